package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"obs-go/internal/model"
	"obs-go/internal/obs"
)

// Fetcher retrieves a label snapshot from the schema authority.
type Fetcher interface {
	FetchLabels(ctx context.Context) ([]model.Label, error)
}

// HTTPFetcher pulls labels from the schema authority over HTTP.
type HTTPFetcher struct {
	baseURL string
	httpc   *http.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher for the authority at baseURL.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// FetchLabels performs GET /labels and decodes the bilingual label
// definitions.
func (f *HTTPFetcher) FetchLabels(ctx context.Context) ([]model.Label, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/labels", nil)
	if err != nil {
		return nil, &obs.NetworkError{Op: "fetch labels", Err: err}
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, &obs.NetworkError{Op: "fetch labels", Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &obs.NetworkError{Op: "fetch labels", Err: fmt.Errorf("authority returned %s", resp.Status)}
	}

	var labels []model.Label
	if err := json.NewDecoder(resp.Body).Decode(&labels); err != nil {
		return nil, &obs.NetworkError{Op: "fetch labels", Err: fmt.Errorf("decoding labels: %w", err)}
	}
	return labels, nil
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
