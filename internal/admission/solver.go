package admission

import (
	"context"
	"crypto/sha256"
	"strconv"

	"obs-go/internal/model"
)

// cancelCheckInterval bounds cancellation latency: the search polls ctx
// once per this many nonces.
const cancelCheckInterval = 4096

// SolveChallenge brute-forces the smallest nonce, counting up from 0,
// whose SHA-256 hash of "prefix:nonce" has at least Difficulty leading
// zero hex characters. The search is exhaustive and minimal; it never
// returns without a valid solution unless ctx is cancelled, so callers
// impose the timeout policy.
func SolveChallenge(ctx context.Context, ch *model.PowChallenge) (uint64, error) {
	for nonce := uint64(0); ; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
			}
		}

		sum := sha256.Sum256([]byte(ch.Prefix + ":" + strconv.FormatUint(nonce, 10)))
		if leadingZeroHexDigits(sum[:], ch.Difficulty) {
			return nonce, nil
		}
	}
}

// leadingZeroHexDigits reports whether the hex encoding of sum starts
// with at least n zero characters. Each byte holds two hex digits, so
// the check walks nibbles instead of allocating a hex string per try.
func leadingZeroHexDigits(sum []byte, n int) bool {
	if n <= 0 {
		return true
	}
	if n > len(sum)*2 {
		return false
	}
	for i := 0; i < n/2; i++ {
		if sum[i] != 0 {
			return false
		}
	}
	if n%2 == 1 && sum[n/2]>>4 != 0 {
		return false
	}
	return true
}
