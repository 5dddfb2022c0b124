// Package store owns the process-wide ranking data: the snapshot cache keyed
// by slider index and the metadata lookup. Both are populated lazily, never
// evicted and never re-fetched once loaded.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/source"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const metadataKey = "metadata"

// sharedFetchTimeout bounds a coalesced fetch, which no longer follows the
// cancellation of the caller that started it.
const sharedFetchTimeout = 30 * time.Second

// Stats is a point-in-time view of the store counters.
type Stats struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	SnapshotFetches int64 `json:"snapshot_fetches"`
	MetadataFetches int64 `json:"metadata_fetches"`
	CachedSnapshots int   `json:"cached_snapshots"`
	MetadataLoaded  bool  `json:"metadata_loaded"`
}

type Store struct {
	fetcher   source.Fetcher
	metadata  source.MetadataSource
	positions []config.SnapshotPosition
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu        sync.RWMutex
	snapshots map[int]*ranking.Snapshot
	lookup    ranking.Lookup

	group           singleflight.Group
	hits            atomic.Int64
	misses          atomic.Int64
	snapshotFetches atomic.Int64
	metadataFetches atomic.Int64
}

// New creates an empty store. m may be nil.
func New(fetcher source.Fetcher, metadata source.MetadataSource, positions []config.SnapshotPosition, m *metrics.Metrics) *Store {
	return &Store{
		fetcher:   fetcher,
		metadata:  metadata,
		positions: positions,
		metrics:   m,
		logger:    slog.Default().With("component", "store"),
		snapshots: make(map[int]*ranking.Snapshot, len(positions)),
	}
}

// Len returns the number of snapshot positions.
func (s *Store) Len() int {
	return len(s.positions)
}

// Positions returns a copy of the snapshot positions in slider order.
func (s *Store) Positions() []config.SnapshotPosition {
	out := make([]config.SnapshotPosition, len(s.positions))
	copy(out, s.positions)
	return out
}

// Values returns the display value of every position, for slider labels.
func (s *Store) Values() []int {
	values := make([]int, len(s.positions))
	for i, p := range s.positions {
		values[i] = p.Value
	}
	return values
}

func (s *Store) position(index int) (config.SnapshotPosition, error) {
	if index < 0 || index >= len(s.positions) {
		return config.SnapshotPosition{}, fmt.Errorf("%w: index %d (have %d)", apperrors.ErrSnapshotNotFound, index, len(s.positions))
	}
	return s.positions[index], nil
}

// Cached returns the snapshot at index without fetching.
func (s *Store) Cached(index int) (*ranking.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[index]
	return snap, ok
}

// Snapshot returns the snapshot at index, fetching and caching it on first
// use. cached reports whether it was already in memory. Concurrent first
// requests for one index share a single fetch.
func (s *Store) Snapshot(ctx context.Context, index int) (snap *ranking.Snapshot, cached bool, err error) {
	pos, err := s.position(index)
	if err != nil {
		return nil, false, err
	}
	if snap, ok := s.Cached(index); ok {
		s.recordLookup(true)
		return snap, true, nil
	}
	s.recordLookup(false)

	val, err := s.shared(ctx, fmt.Sprintf("snapshot:%d", index), func(ctx context.Context) (any, error) {
		if snap, ok := s.Cached(index); ok {
			return snap, nil
		}
		entries, err := s.fetchSnapshot(ctx, pos)
		if err != nil {
			return nil, err
		}
		snap := &ranking.Snapshot{
			Index:   index,
			Value:   pos.Value,
			File:    pos.File,
			Entries: entries,
		}
		s.mu.Lock()
		s.snapshots[index] = snap
		n := len(s.snapshots)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SnapshotsCached.Set(float64(n))
		}
		s.logger.Info("snapshot cached", "index", index, "file", pos.File, "entries", len(entries))
		return snap, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*ranking.Snapshot), false, nil
}

// shared runs fn once per key for all concurrent callers. fn gets a context
// detached from ctx, so one caller giving up does not fail the others; that
// caller alone returns ctx.Err() while the fetch completes and is cached.
func (s *Store) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) fetchSnapshot(ctx context.Context, pos config.SnapshotPosition) ([]ranking.Entry, error) {
	start := time.Now()
	s.snapshotFetches.Add(1)
	data, err := s.fetcher.Fetch(ctx, pos.File)
	if err != nil {
		s.observeFetch("snapshot", start, err)
		return nil, fmt.Errorf("fetching %s: %w", pos.File, err)
	}
	entries, err := ranking.DecodeSnapshot(pos.File, data)
	s.observeFetch("snapshot", start, err)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Lookup returns the metadata lookup if it has been loaded.
func (s *Store) Lookup() (ranking.Lookup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup, s.lookup != nil
}

// LoadLookup returns the metadata lookup, loading it on first use. A failed
// load leaves the lookup empty so a later call can try again.
func (s *Store) LoadLookup(ctx context.Context) (ranking.Lookup, error) {
	if lookup, ok := s.Lookup(); ok {
		return lookup, nil
	}
	val, err := s.shared(ctx, metadataKey, func(ctx context.Context) (any, error) {
		if lookup, ok := s.Lookup(); ok {
			return lookup, nil
		}
		start := time.Now()
		s.metadataFetches.Add(1)
		lookup, err := s.metadata.LoadLookup(ctx)
		s.observeFetch("metadata", start, err)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.lookup = lookup
		s.mu.Unlock()
		s.logger.Info("metadata loaded", "source", s.metadata.Describe(), "entries", len(lookup))
		return lookup, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(ranking.Lookup), nil
}

// Prefetch loads every snapshot and the metadata concurrently. It returns
// the joined errors of the loads that failed; successful loads stay cached.
func (s *Store) Prefetch(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	g.SetLimit(4)
	for i := range s.positions {
		g.Go(func() error {
			if _, _, err := s.Snapshot(ctx, i); err != nil {
				record(err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if _, err := s.LoadLookup(ctx); err != nil {
			record(err)
		}
		return nil
	})
	g.Wait()
	return errors.Join(errs...)
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	cached := len(s.snapshots)
	loaded := s.lookup != nil
	s.mu.RUnlock()
	return Stats{
		Hits:            s.hits.Load(),
		Misses:          s.misses.Load(),
		SnapshotFetches: s.snapshotFetches.Load(),
		MetadataFetches: s.metadataFetches.Load(),
		CachedSnapshots: cached,
		MetadataLoaded:  loaded,
	}
}

func (s *Store) recordLookup(hit bool) {
	result := "miss"
	if hit {
		s.hits.Add(1)
		result = "hit"
	} else {
		s.misses.Add(1)
	}
	if s.metrics != nil {
		s.metrics.StoreLookupsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Store) observeFetch(kind string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, apperrors.ErrMalformedPayload):
		result = "malformed"
	case err != nil:
		result = "error"
	}
	s.metrics.FetchesTotal.WithLabelValues(kind, result).Inc()
	s.metrics.FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
