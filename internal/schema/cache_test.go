package schema_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"obs-go/internal/model"
	"obs-go/internal/obs"
	"obs-go/internal/schema"
	"obs-go/internal/testutil"
)

var snapshotLabels = []model.Label{
	{LabelID: "species", Type: model.LabelText, Required: true},
	{LabelID: "kind", Type: model.LabelEnum, Options: []string{"sighting", "trace"}},
}

func newTestCache(t *testing.T, fetcher schema.Fetcher, clock obs.Clock) *schema.Cache {
	t.Helper()
	cache, err := schema.NewCache(testutil.NewTestDatabase(t), fetcher, clock, obs.NewNopLogger())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return cache
}

func TestCache_FirstRun(t *testing.T) {
	t.Run("fetches and serves labels", func(t *testing.T) {
		fetcher := &testutil.StubFetcher{Labels: snapshotLabels}
		cache := newTestCache(t, fetcher, testutil.FixedClock())

		labels, err := cache.RefreshIfStale(context.Background())
		if err != nil {
			t.Fatalf("RefreshIfStale: %v", err)
		}
		if len(labels) != 2 {
			t.Errorf("got %d labels, want 2", len(labels))
		}
		if got := cache.Labels(); len(got) != 2 {
			t.Errorf("Labels() returned %d labels, want 2", len(got))
		}
	})

	t.Run("fails hard with no cached snapshot", func(t *testing.T) {
		fetcher := &testutil.StubFetcher{Err: errors.New("authority unreachable")}
		cache := newTestCache(t, fetcher, testutil.FixedClock())

		_, err := cache.RefreshIfStale(context.Background())
		var fetchErr *obs.SchemaFetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("err = %v, want SchemaFetchError", err)
		}
	})
}

func TestCache_StalenessWindow(t *testing.T) {
	clock := testutil.FixedClock()
	fetcher := &testutil.StubFetcher{Labels: snapshotLabels}
	cache := newTestCache(t, fetcher, clock)

	if _, err := cache.RefreshIfStale(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Fatalf("Calls = %d, want 1", fetcher.Calls())
	}

	t.Run("fresh snapshot is a no-op", func(t *testing.T) {
		clock.Advance(23 * time.Hour)
		if _, err := cache.RefreshIfStale(context.Background()); err != nil {
			t.Fatalf("RefreshIfStale: %v", err)
		}
		if fetcher.Calls() != 1 {
			t.Errorf("Calls = %d, want 1 (no refetch within window)", fetcher.Calls())
		}
	})

	t.Run("stale snapshot triggers refetch", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		if _, err := cache.RefreshIfStale(context.Background()); err != nil {
			t.Fatalf("RefreshIfStale: %v", err)
		}
		if fetcher.Calls() != 2 {
			t.Errorf("Calls = %d, want 2", fetcher.Calls())
		}
	})
}

func TestCache_FailSoft(t *testing.T) {
	clock := testutil.FixedClock()
	fetcher := &testutil.StubFetcher{Labels: snapshotLabels}
	cache := newTestCache(t, fetcher, clock)

	if _, err := cache.RefreshIfStale(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	clock.Advance(25 * time.Hour)

	t.Run("fetch failure serves cached snapshot", func(t *testing.T) {
		fetcher.Err = errors.New("authority unreachable")
		labels, err := cache.RefreshIfStale(context.Background())
		if err != nil {
			t.Fatalf("RefreshIfStale: %v", err)
		}
		if len(labels) != 2 {
			t.Errorf("got %d labels, want cached 2", len(labels))
		}
	})

	t.Run("invalid snapshot serves cached snapshot", func(t *testing.T) {
		fetcher.Err = nil
		fetcher.Labels = []model.Label{
			{LabelID: "dup", Type: model.LabelText},
			{LabelID: "dup", Type: model.LabelNumber},
		}
		labels, err := cache.RefreshIfStale(context.Background())
		if err != nil {
			t.Fatalf("RefreshIfStale: %v", err)
		}
		if labels[0].LabelID != "species" {
			t.Errorf("labels[0] = %q, want cached species", labels[0].LabelID)
		}
	})

	t.Run("enum without options is rejected", func(t *testing.T) {
		fetcher.Labels = []model.Label{{LabelID: "kind", Type: model.LabelEnum}}
		labels, err := cache.RefreshIfStale(context.Background())
		if err != nil {
			t.Fatalf("RefreshIfStale: %v", err)
		}
		if len(labels) != 2 {
			t.Errorf("got %d labels, want cached 2", len(labels))
		}
	})
}

func TestCache_PersistsAcrossInstances(t *testing.T) {
	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t)
	fetcher := &testutil.StubFetcher{Labels: snapshotLabels}

	first, err := schema.NewCache(db, fetcher, clock, obs.NewNopLogger())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, err := first.RefreshIfStale(context.Background()); err != nil {
		t.Fatalf("RefreshIfStale: %v", err)
	}

	// A second cache on the same store starts warm and within the window.
	second, err := schema.NewCache(db, &testutil.StubFetcher{Err: errors.New("down")}, clock, obs.NewNopLogger())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	labels, err := second.RefreshIfStale(context.Background())
	if err != nil {
		t.Fatalf("RefreshIfStale: %v", err)
	}
	if len(labels) != 2 {
		t.Errorf("got %d labels, want persisted 2", len(labels))
	}
	if !second.FetchedAt().Equal(first.FetchedAt()) {
		t.Errorf("FetchedAt = %v, want %v", second.FetchedAt(), first.FetchedAt())
	}
}

func TestHTTPFetcher(t *testing.T) {
	authority := testutil.NewStubSchemaAuthority(t, snapshotLabels)
	fetcher := schema.NewHTTPFetcher(authority.URL(), 0)

	labels, err := fetcher.FetchLabels(context.Background())
	if err != nil {
		t.Fatalf("FetchLabels: %v", err)
	}
	if len(labels) != 2 || labels[0].LabelID != "species" {
		t.Errorf("labels = %+v", labels)
	}

	t.Run("server error surfaces as network error", func(t *testing.T) {
		authority.SetFail(true)
		_, err := fetcher.FetchLabels(context.Background())
		var netErr *obs.NetworkError
		if !errors.As(err, &netErr) {
			t.Fatalf("err = %v, want NetworkError", err)
		}
	})
}
