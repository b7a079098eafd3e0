package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"obs-go/internal/model"
)

// StubAdmissionAuthority is an in-process admission authority. It
// issues a fixed challenge and accepts any submission unless Reject is
// set.
type StubAdmissionAuthority struct {
	Challenge model.PowChallenge
	Reject    string // when non-empty, submissions are rejected with this reason

	mu          sync.Mutex
	submissions []map[string]any

	srv *httptest.Server
}

// NewStubAdmissionAuthority starts a stub authority issuing the given
// challenge. The server is closed on test cleanup.
func NewStubAdmissionAuthority(t *testing.T, challenge model.PowChallenge) *StubAdmissionAuthority {
	t.Helper()

	a := &StubAdmissionAuthority{Challenge: challenge}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /challenge", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(a.Challenge)
	})
	mux.HandleFunc("POST /solution", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		a.mu.Lock()
		a.submissions = append(a.submissions, body)
		reject := a.Reject
		a.mu.Unlock()

		if reject != "" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"reason": reject})
			return
		}
		json.NewEncoder(w).Encode(model.Certificate{
			Token:     "test-cert",
			IssuedAt:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			ExpiresAt: time.Date(2024, 1, 16, 10, 30, 0, 0, time.UTC),
		})
	})

	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)
	return a
}

// URL returns the authority's base URL.
func (a *StubAdmissionAuthority) URL() string { return a.srv.URL }

// Submissions returns the solution bodies received so far.
func (a *StubAdmissionAuthority) Submissions() []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]map[string]any, len(a.submissions))
	copy(out, a.submissions)
	return out
}

// StubSchemaAuthority serves a fixed label set over HTTP.
type StubSchemaAuthority struct {
	mu     sync.Mutex
	labels []model.Label
	fail   bool
	calls  int

	srv *httptest.Server
}

// NewStubSchemaAuthority starts a stub schema authority. The server is
// closed on test cleanup.
func NewStubSchemaAuthority(t *testing.T, labels []model.Label) *StubSchemaAuthority {
	t.Helper()

	a := &StubSchemaAuthority{labels: labels}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /labels", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		fail := a.fail
		labels := a.labels
		a.calls++
		a.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(labels)
	})

	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)
	return a
}

// URL returns the authority's base URL.
func (a *StubSchemaAuthority) URL() string { return a.srv.URL }

// SetLabels replaces the served label set.
func (a *StubSchemaAuthority) SetLabels(labels []model.Label) {
	a.mu.Lock()
	a.labels = labels
	a.mu.Unlock()
}

// SetFail toggles failure mode: requests return 503.
func (a *StubSchemaAuthority) SetFail(fail bool) {
	a.mu.Lock()
	a.fail = fail
	a.mu.Unlock()
}

// Calls returns how many label fetches the authority has served.
func (a *StubSchemaAuthority) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// StubFetcher is an in-memory schema.Fetcher.
type StubFetcher struct {
	mu     sync.Mutex
	Labels []model.Label
	Err    error
	calls  int
}

// FetchLabels returns the configured labels or error.
func (f *StubFetcher) FetchLabels(ctx context.Context) ([]model.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Labels, nil
}

// Calls returns how many fetches have been attempted.
func (f *StubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
