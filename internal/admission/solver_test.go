package admission_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"obs-go/internal/admission"
	"obs-go/internal/model"
)

func hashHex(prefix string, nonce uint64) string {
	sum := sha256.Sum256([]byte(prefix + ":" + strconv.FormatUint(nonce, 10)))
	return hex.EncodeToString(sum[:])
}

func TestSolveChallenge(t *testing.T) {
	t.Run("solution satisfies difficulty", func(t *testing.T) {
		t.Parallel()
		for difficulty := 0; difficulty <= 3; difficulty++ {
			ch := &model.PowChallenge{Prefix: "abc", Difficulty: difficulty}
			nonce, err := admission.SolveChallenge(context.Background(), ch)
			if err != nil {
				t.Fatalf("SolveChallenge(difficulty=%d) error = %v", difficulty, err)
			}

			want := strings.Repeat("0", difficulty)
			if got := hashHex(ch.Prefix, nonce); !strings.HasPrefix(got, want) {
				t.Errorf("difficulty %d: hash %s does not start with %q", difficulty, got, want)
			}
		}
	})

	t.Run("solution is minimal", func(t *testing.T) {
		t.Parallel()
		ch := &model.PowChallenge{Prefix: "minimal", Difficulty: 2}
		nonce, err := admission.SolveChallenge(context.Background(), ch)
		if err != nil {
			t.Fatalf("SolveChallenge() error = %v", err)
		}

		want := strings.Repeat("0", ch.Difficulty)
		for n := uint64(0); n < nonce; n++ {
			if strings.HasPrefix(hashHex(ch.Prefix, n), want) {
				t.Fatalf("nonce %d also satisfies the challenge, but %d was returned", n, nonce)
			}
		}
	})

	t.Run("difficulty one finds smallest nonce with leading zero", func(t *testing.T) {
		t.Parallel()
		ch := &model.PowChallenge{Prefix: "test", Difficulty: 1}
		nonce, err := admission.SolveChallenge(context.Background(), ch)
		if err != nil {
			t.Fatalf("SolveChallenge() error = %v", err)
		}

		if got := hashHex("test", nonce); !strings.HasPrefix(got, "0") {
			t.Errorf("hash %s does not start with 0", got)
		}
		for n := uint64(0); n < nonce; n++ {
			if strings.HasPrefix(hashHex("test", n), "0") {
				t.Fatalf("smaller nonce %d satisfies the challenge", n)
			}
		}
	})

	t.Run("zero difficulty accepts nonce zero", func(t *testing.T) {
		t.Parallel()
		ch := &model.PowChallenge{Prefix: "anything", Difficulty: 0}
		nonce, err := admission.SolveChallenge(context.Background(), ch)
		if err != nil {
			t.Fatalf("SolveChallenge() error = %v", err)
		}
		if nonce != 0 {
			t.Errorf("nonce = %d, want 0", nonce)
		}
	})

	t.Run("cancellation halts the search", func(t *testing.T) {
		t.Parallel()
		// Difficulty high enough that the search cannot finish before
		// the deadline on any hardware.
		ch := &model.PowChallenge{Prefix: "unreachable", Difficulty: 20}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := admission.SolveChallenge(ctx, ch)
		if err == nil {
			t.Fatal("SolveChallenge() expected error after cancellation")
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("cancellation took %v, want bounded latency", elapsed)
		}
	})
}
