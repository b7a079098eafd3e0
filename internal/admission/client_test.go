package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"obs-go/internal/admission"
	"obs-go/internal/model"
	"obs-go/internal/obs"
	"obs-go/internal/testutil"
)

func TestClient_AdmissionFlow(t *testing.T) {
	t.Run("full flow ends admitted", func(t *testing.T) {
		authority := testutil.NewStubAdmissionAuthority(t, model.PowChallenge{Prefix: "flow", Difficulty: 1})
		client := admission.NewClient(authority.URL(), 5*time.Second, obs.NewNopLogger())

		if got := client.State(); got != admission.StateIdle {
			t.Fatalf("initial state = %v, want idle", got)
		}

		ch, err := client.RequestChallenge(context.Background())
		if err != nil {
			t.Fatalf("RequestChallenge() error = %v", err)
		}
		if ch.Prefix != "flow" || ch.Difficulty != 1 {
			t.Errorf("challenge = %+v, want prefix=flow difficulty=1", ch)
		}

		nonce, err := client.Solve(context.Background(), ch)
		if err != nil {
			t.Fatalf("Solve() error = %v", err)
		}

		cert, err := client.Submit(context.Background(), nonce, "-----BEGIN PUBLIC KEY-----\n...")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if cert.Token != "test-cert" {
			t.Errorf("certificate token = %q, want test-cert", cert.Token)
		}
		if got := client.State(); got != admission.StateAdmitted {
			t.Errorf("state = %v, want admitted", got)
		}

		subs := authority.Submissions()
		if len(subs) != 1 {
			t.Fatalf("authority received %d submissions, want 1", len(subs))
		}
		if subs[0]["prefix"] != "flow" {
			t.Errorf("submitted prefix = %v, want flow", subs[0]["prefix"])
		}
	})

	t.Run("rejection yields admission error and failed state", func(t *testing.T) {
		authority := testutil.NewStubAdmissionAuthority(t, model.PowChallenge{Prefix: "rej", Difficulty: 0})
		authority.Reject = "stale challenge"
		client := admission.NewClient(authority.URL(), 5*time.Second, obs.NewNopLogger())

		ch, err := client.RequestChallenge(context.Background())
		if err != nil {
			t.Fatalf("RequestChallenge() error = %v", err)
		}
		nonce, err := client.Solve(context.Background(), ch)
		if err != nil {
			t.Fatalf("Solve() error = %v", err)
		}

		_, err = client.Submit(context.Background(), nonce, "pk")
		var admErr *obs.AdmissionError
		if !errors.As(err, &admErr) {
			t.Fatalf("Submit() error = %v, want AdmissionError", err)
		}
		if admErr.Reason != "stale challenge" {
			t.Errorf("reason = %q, want %q", admErr.Reason, "stale challenge")
		}
		if got := client.State(); got != admission.StateFailed {
			t.Errorf("state = %v, want failed", got)
		}
	})

	t.Run("transport failure returns to idle", func(t *testing.T) {
		// Nothing listens on this address.
		client := admission.NewClient("http://127.0.0.1:1", time.Second, obs.NewNopLogger())

		_, err := client.RequestChallenge(context.Background())
		var netErr *obs.NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("RequestChallenge() error = %v, want NetworkError", err)
		}
		if got := client.State(); got != admission.StateIdle {
			t.Errorf("state = %v, want idle", got)
		}
	})

	t.Run("cancelled solve returns to idle", func(t *testing.T) {
		client := admission.NewClient("http://unused", time.Second, obs.NewNopLogger())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Solve(ctx, &model.PowChallenge{Prefix: "x", Difficulty: 20})
		if err == nil {
			t.Fatal("Solve() expected error after cancellation")
		}
		if got := client.State(); got != admission.StateIdle {
			t.Errorf("state = %v, want idle", got)
		}
	})

	t.Run("deadline expiry is marked as timeout", func(t *testing.T) {
		client := admission.NewClient("http://127.0.0.1:1", time.Second, obs.NewNopLogger())

		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()

		_, err := client.RequestChallenge(ctx)
		var netErr *obs.NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("RequestChallenge() error = %v, want NetworkError", err)
		}
		if !netErr.Timeout {
			t.Error("NetworkError.Timeout = false, want true")
		}
	})
}
