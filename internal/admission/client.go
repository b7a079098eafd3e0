// Package admission implements the proof-of-work admission protocol:
// request a challenge from the admission authority, solve it off the
// caller's goroutine, and submit the solution bound to the device's
// public key in exchange for a certificate.
package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"obs-go/internal/model"
	"obs-go/internal/obs"
)

// State tracks the client's position in the admission flow.
type State int

const (
	StateIdle State = iota
	StateChallengeRequested
	StateSolving
	StateSolutionSubmitted
	StateAdmitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChallengeRequested:
		return "challenge_requested"
	case StateSolving:
		return "solving"
	case StateSolutionSubmitted:
		return "solution_submitted"
	case StateAdmitted:
		return "admitted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Client talks to the admission authority. A cancelled or failed
// network operation returns the client to StateIdle so the flow can be
// retried from the top.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  obs.Logger

	mu              sync.Mutex
	state           State
	challengePrefix string // prefix of the challenge in flight
}

var _ obs.AdmissionClient = (*Client)(nil)

// NewClient creates a Client for the authority at baseURL. timeout
// bounds each network operation; ctx passed to the operations can
// shorten it further.
func NewClient(baseURL string, timeout time.Duration, logger obs.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
		state:   StateIdle,
	}
}

// State returns the client's current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// RequestChallenge fetches a fresh proof-of-work challenge.
func (c *Client) RequestChallenge(ctx context.Context) (*model.PowChallenge, error) {
	c.setState(StateChallengeRequested)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/challenge", nil)
	if err != nil {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "challenge", Err: err}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "challenge", Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "challenge", Err: fmt.Errorf("authority returned %s", resp.Status)}
	}

	var ch model.PowChallenge
	if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "challenge", Err: fmt.Errorf("decoding challenge: %w", err)}
	}
	if ch.Difficulty < 0 {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "challenge", Err: fmt.Errorf("invalid difficulty %d", ch.Difficulty)}
	}

	c.mu.Lock()
	c.challengePrefix = ch.Prefix
	c.mu.Unlock()

	c.logger.Debug("challenge received", "prefix", ch.Prefix, "difficulty", ch.Difficulty)
	return &ch, nil
}

// Solve runs the brute-force search until a nonce is found or ctx is
// cancelled. The search polls ctx, so callers that want to stay
// responsive run Solve on their own goroutine.
func (c *Client) Solve(ctx context.Context, ch *model.PowChallenge) (uint64, error) {
	c.setState(StateSolving)

	nonce, err := SolveChallenge(ctx, ch)
	if err != nil {
		c.setState(StateIdle)
		return 0, fmt.Errorf("solving challenge: %w", err)
	}
	return nonce, nil
}

type solutionRequest struct {
	Prefix    string `json:"prefix"`
	Nonce     uint64 `json:"nonce"`
	PublicKey string `json:"publicKey"`
}

type rejectionResponse struct {
	Reason string `json:"reason"`
}

// Submit sends the solved nonce and the device public key to the
// authority. A rejection (stale challenge, replay, quota) yields an
// AdmissionError and StateFailed; transport failure returns to
// StateIdle for retry.
func (c *Client) Submit(ctx context.Context, nonce uint64, publicKeyPEM string) (*model.Certificate, error) {
	c.setState(StateSolutionSubmitted)

	prefix := c.currentChallengePrefix()
	body, err := json.Marshal(solutionRequest{Prefix: prefix, Nonce: nonce, PublicKey: publicKeyPEM})
	if err != nil {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "submit", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/solution", bytes.NewReader(body))
	if err != nil {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "submit", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "submit", Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setState(StateFailed)
		var rej rejectionResponse
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &rej); err != nil || rej.Reason == "" {
			rej.Reason = resp.Status
		}
		return nil, &obs.AdmissionError{Reason: rej.Reason}
	}

	var cert model.Certificate
	if err := json.NewDecoder(resp.Body).Decode(&cert); err != nil {
		c.setState(StateIdle)
		return nil, &obs.NetworkError{Op: "submit", Err: fmt.Errorf("decoding certificate: %w", err)}
	}

	c.setState(StateAdmitted)
	return &cert, nil
}

// currentChallengePrefix returns the prefix of the challenge in flight,
// recorded by the last successful RequestChallenge.
func (c *Client) currentChallengePrefix() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challengePrefix
}

// isTimeout reports whether err represents a deadline expiry, either
// from the transport or from ctx.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
