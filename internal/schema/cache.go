// Package schema caches the label definitions that describe what data
// may be collected. The snapshot is pulled from the schema authority,
// persisted locally, and refreshed at most once per staleness window.
package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"obs-go/internal/model"
	"obs-go/internal/obs"
)

// StalenessWindow is how long a fetched snapshot is served before
// RefreshIfStale will contact the authority again.
const StalenessWindow = 24 * time.Hour

// Cache holds the current label snapshot. It is a single-writer,
// many-reader resource: the snapshot swap happens under the write lock
// in one step, so readers always observe a whole snapshot, never a mix
// of old and new labels.
type Cache struct {
	database obs.Database
	fetcher  Fetcher
	clock    obs.Clock
	logger   obs.Logger

	mu        sync.RWMutex
	labels    []model.Label
	fetchedAt time.Time
}

var _ obs.SchemaCache = (*Cache)(nil)

// NewCache creates a Cache and loads any persisted snapshot from the
// local store.
func NewCache(database obs.Database, fetcher Fetcher, clock obs.Clock, logger obs.Logger) (*Cache, error) {
	labels, fetchedAt, err := database.LoadLabelSnapshot()
	if err != nil {
		return nil, fmt.Errorf("loading cached label snapshot: %w", err)
	}

	return &Cache{
		database:  database,
		fetcher:   fetcher,
		clock:     clock,
		logger:    logger,
		labels:    labels,
		fetchedAt: fetchedAt,
	}, nil
}

// Labels returns the current snapshot. The returned slice is shared;
// callers must not mutate it. Empty when no snapshot has been fetched.
func (c *Cache) Labels() []model.Label {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.labels
}

// FetchedAt returns the time of the last successful fetch, zero when
// no snapshot exists.
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// RefreshIfStale refetches the snapshot when it is older than the
// staleness window. Within the window this is a no-op returning the
// current snapshot. On fetch failure the last-known-good snapshot is
// served (fail-soft); only a first run with no cached snapshot fails
// hard, since no form can render without labels.
func (c *Cache) RefreshIfStale(ctx context.Context) ([]model.Label, error) {
	c.mu.RLock()
	labels, fetchedAt := c.labels, c.fetchedAt
	c.mu.RUnlock()

	if len(labels) > 0 && c.clock.Now().Sub(fetchedAt) < StalenessWindow {
		return labels, nil
	}

	fresh, err := c.fetcher.FetchLabels(ctx)
	if err != nil {
		if len(labels) > 0 {
			c.logger.Warn("label refresh failed, serving cached snapshot", "error", err, "fetched_at", fetchedAt)
			return labels, nil
		}
		return nil, &obs.SchemaFetchError{Err: err}
	}

	if err := validateSnapshot(fresh); err != nil {
		if len(labels) > 0 {
			c.logger.Warn("label snapshot rejected, serving cached snapshot", "error", err)
			return labels, nil
		}
		return nil, &obs.SchemaFetchError{Err: err}
	}

	now := c.clock.Now()
	if err := c.database.SaveLabelSnapshot(fresh, now); err != nil {
		return nil, fmt.Errorf("persisting label snapshot: %w", err)
	}

	c.mu.Lock()
	c.labels = fresh
	c.fetchedAt = now
	c.mu.Unlock()

	c.logger.Info("label snapshot refreshed", "labels", len(fresh))
	return fresh, nil
}

// validateSnapshot enforces the snapshot invariants: unique label ids
// and non-empty option lists on enum labels.
func validateSnapshot(labels []model.Label) error {
	if len(labels) == 0 {
		return fmt.Errorf("authority returned an empty label set")
	}

	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l.LabelID == "" {
			return fmt.Errorf("label with empty id")
		}
		if seen[l.LabelID] {
			return fmt.Errorf("duplicate label id %q", l.LabelID)
		}
		seen[l.LabelID] = true

		if l.Type == model.LabelEnum && len(l.Options) == 0 {
			return fmt.Errorf("enum label %q has no options", l.LabelID)
		}
	}
	return nil
}
