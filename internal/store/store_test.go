package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/source"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeFetcher struct {
	mu      sync.Mutex
	files   map[string]string
	fail    map[string]error
	calls   map[string]int
	release chan struct{}
}

func newFakeFetcher(files map[string]string) *fakeFetcher {
	return &fakeFetcher{files: files, fail: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	f.calls[name]++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	body, ok := f.files[name]
	if !ok {
		return nil, apperrors.ErrFetchFailed
	}
	return []byte(body), nil
}

func (f *fakeFetcher) Location() string { return "fake" }

func (f *fakeFetcher) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

var positions = []config.SnapshotPosition{
	{Value: 0, File: "s0.json"},
	{Value: 1000, File: "s1.json"},
}

func testFiles() map[string]string {
	return map[string]string{
		"s0.json":    `[{"mal_ID":1,"parameter":2.5,"num_lists":500},{"mal_ID":2,"parameter":1.5,"num_lists":50}]`,
		"s1.json":    `[{"mal_ID":2,"parameter":0.5,"num_lists":5000}]`,
		"anime.json": `{"1":{"rank":1,"title":"A"},"2":{"rank":2,"title":"B"}}`,
	}
}

func newTestStore(f *fakeFetcher) *Store {
	return New(f, source.NewFileMetadata(f, "anime.json"), positions, nil)
}

func TestSnapshotFetchedOnce(t *testing.T) {
	f := newFakeFetcher(testFiles())
	s := newTestStore(f)
	ctx := context.Background()

	first, cached, err := s.Snapshot(ctx, 0)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if cached {
		t.Error("first load should not be cached")
	}
	second, cached, err := s.Snapshot(ctx, 0)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !cached || first != second {
		t.Error("second load should return the cached snapshot")
	}
	if n := f.count("s0.json"); n != 1 {
		t.Errorf("s0.json fetched %d times, want 1", n)
	}
	if first.Value != 0 || first.File != "s0.json" || first.Len() != 2 {
		t.Errorf("unexpected snapshot %+v", first)
	}

	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.SnapshotFetches != 1 || st.CachedSnapshots != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestConcurrentFirstLoadsCoalesce(t *testing.T) {
	f := newFakeFetcher(testFiles())
	f.release = make(chan struct{})
	s := newTestStore(f)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Snapshot(context.Background(), 1)
			errs <- err
		}()
	}
	for f.count("s1.json") == 0 {
		time.Sleep(time.Millisecond)
	}
	close(f.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Snapshot: %v", err)
		}
	}
	if c := f.count("s1.json"); c != 1 {
		t.Errorf("s1.json fetched %d times, want 1", c)
	}
}

func TestCanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	f := newFakeFetcher(testFiles())
	f.release = make(chan struct{})
	s := newTestStore(f)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := s.Snapshot(firstCtx, 0)
		firstErr <- err
	}()
	for f.count("s0.json") == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		entries int
		err     error
	}
	second := make(chan result, 1)
	go func() {
		snap, _, err := s.Snapshot(context.Background(), 0)
		if err != nil {
			second <- result{err: err}
			return
		}
		second <- result{entries: snap.Len()}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller err = %v, want context.Canceled", err)
	}
	close(f.release)

	got := <-second
	if got.err != nil || got.entries != 2 {
		t.Fatalf("waiting caller = %+v, want 2 entries", got)
	}
	if _, ok := s.Cached(0); !ok {
		t.Error("snapshot not cached after shared fetch")
	}
	if n := f.count("s0.json"); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestSnapshotOutOfRange(t *testing.T) {
	s := newTestStore(newFakeFetcher(testFiles()))
	for _, idx := range []int{-1, 2} {
		if _, _, err := s.Snapshot(context.Background(), idx); !errors.Is(err, apperrors.ErrSnapshotNotFound) {
			t.Errorf("index %d: expected ErrSnapshotNotFound, got %v", idx, err)
		}
	}
}

func TestSnapshotMalformedIsNotCached(t *testing.T) {
	files := testFiles()
	files["s0.json"] = `{"not":"a list"}`
	f := newFakeFetcher(files)
	s := newTestStore(f)

	for i := 0; i < 2; i++ {
		if _, _, err := s.Snapshot(context.Background(), 0); !errors.Is(err, apperrors.ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
	}
	if _, ok := s.Cached(0); ok {
		t.Error("malformed snapshot must not be cached")
	}
	if f.count("s0.json") != 2 {
		t.Errorf("expected a fresh fetch after failure, got %d", f.count("s0.json"))
	}
}

func TestLookupLoadedOnce(t *testing.T) {
	f := newFakeFetcher(testFiles())
	s := newTestStore(f)

	if _, ok := s.Lookup(); ok {
		t.Fatal("lookup should start empty")
	}
	for i := 0; i < 3; i++ {
		lookup, err := s.LoadLookup(context.Background())
		if err != nil {
			t.Fatalf("LoadLookup: %v", err)
		}
		if lookup[1].Title != "A" {
			t.Errorf("unexpected lookup %+v", lookup)
		}
	}
	if f.count("anime.json") != 1 {
		t.Errorf("anime.json fetched %d times, want 1", f.count("anime.json"))
	}
}

func TestMetadataFailureKeepsSnapshot(t *testing.T) {
	f := newFakeFetcher(testFiles())
	f.fail["anime.json"] = apperrors.ErrFetchFailed
	s := newTestStore(f)
	ctx := context.Background()

	if _, _, err := s.Snapshot(ctx, 0); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, err := s.LoadLookup(ctx); !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if _, ok := s.Lookup(); ok {
		t.Error("lookup must stay empty after a failed load")
	}
	if _, ok := s.Cached(0); !ok {
		t.Error("snapshot must stay cached after a metadata failure")
	}

	// a later interaction may still succeed
	delete(f.fail, "anime.json")
	if _, err := s.LoadLookup(ctx); err != nil {
		t.Errorf("retrying lookup: %v", err)
	}
}

func TestPrefetch(t *testing.T) {
	files := testFiles()
	delete(files, "s1.json")
	f := newFakeFetcher(files)
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	s := New(f, source.NewFileMetadata(f, "anime.json"), positions, m)

	err := s.Prefetch(context.Background())
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("expected joined ErrFetchFailed, got %v", err)
	}
	st := s.Stats()
	if st.CachedSnapshots != 1 || !st.MetadataLoaded {
		t.Errorf("unexpected stats after prefetch %+v", st)
	}
	if got := testutil.ToFloat64(m.SnapshotsCached); got != 1 {
		t.Errorf("snapshots cached gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("snapshot", "error")); got != 1 {
		t.Errorf("snapshot error fetches = %v", got)
	}
}

func TestValues(t *testing.T) {
	s := newTestStore(newFakeFetcher(testFiles()))
	if v := s.Values(); len(v) != 2 || v[1] != 1000 {
		t.Errorf("Values = %v", v)
	}
	if s.Len() != 2 || s.Positions()[0].File != "s0.json" {
		t.Errorf("unexpected positions %v", s.Positions())
	}
}
