package source

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	_ "modernc.org/sqlite"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/webpage-data/50027_0.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"mal_ID":1,"parameter":1,"num_lists":2}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(srv.URL+"/webpage-data", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	data, err := f.Fetch(context.Background(), "50027_0.json")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != `[{"mal_ID":1,"parameter":1,"num_lists":2}]` {
		t.Errorf("unexpected body %q", data)
	}
	if err := f.Check(context.Background(), "50027_0.json"); err != nil {
		t.Errorf("Check: %v", err)
	}

	_, err = f.Fetch(context.Background(), "missing.json")
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed for 404, got %v", err)
	}
	_, err = f.Fetch(context.Background(), "http://elsewhere/x.json")
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for absolute name, got %v", err)
	}
}

func TestHTTPFetcherRejectsBadBase(t *testing.T) {
	if _, err := NewHTTPFetcher("ftp://example.org/", time.Second); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestHTTPFetcherUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	f, err := NewHTTPFetcher(base, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	if _, err := f.Fetch(context.Background(), "a.json"); !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFSFetcher(t *testing.T) {
	fsys := fstest.MapFS{
		"anime.json": {Data: []byte(`{"1":{"title":"A"}}`)},
	}
	f := NewFSFetcher(fsys, "memory")
	data, err := f.Fetch(context.Background(), "anime.json")
	if err != nil || string(data) != `{"1":{"title":"A"}}` {
		t.Fatalf("Fetch = %q, %v", data, err)
	}
	if _, err := f.Fetch(context.Background(), "nope.json"); !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), "../etc/passwd"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if f.Location() != "memory" {
		t.Errorf("Location = %q", f.Location())
	}
}

var errMiss = errors.New("miss")

type fakePayloadStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	gets   int
	sets   int
}

func (s *fakePayloadStore) GetBytes(ctx context.Context, key string) ([]byte, error) {
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return nil, errMiss
}

func (s *fakePayloadStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value.([]byte)
	return nil
}

type countingFetcher struct {
	calls atomic.Int64
	data  []byte
	err   error
}

func (f *countingFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	f.calls.Add(1)
	return f.data, f.err
}

func (f *countingFetcher) Location() string { return "counting" }

func TestRedisFetcherReadThrough(t *testing.T) {
	inner := &countingFetcher{data: []byte(`[]`)}
	store := &fakePayloadStore{data: map[string][]byte{}}
	f := NewRedisFetcher(inner, store, time.Minute, func(err error) bool { return errors.Is(err, errMiss) })

	for i := 0; i < 3; i++ {
		data, err := f.Fetch(context.Background(), "a.json")
		if err != nil || string(data) != "[]" {
			t.Fatalf("Fetch #%d = %q, %v", i, data, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner fetched %d times, want 1", inner.calls.Load())
	}
	if _, ok := store.data["rankview:payload:a.json"]; !ok {
		t.Error("payload not stored under prefixed key")
	}
}

func TestRedisFetcherFallsThroughOnRedisError(t *testing.T) {
	inner := &countingFetcher{data: []byte(`{}`)}
	store := &fakePayloadStore{data: map[string][]byte{}, getErr: errors.New("connection refused")}
	f := NewRedisFetcher(inner, store, time.Minute, func(err error) bool { return errors.Is(err, errMiss) })

	if _, err := f.Fetch(context.Background(), "anime.json"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("expected fall-through fetch, got %d", inner.calls.Load())
	}
}

func TestRedisFetcherBypassesFailingRedis(t *testing.T) {
	inner := &countingFetcher{data: []byte(`{}`)}
	down := errors.New("connection refused")
	store := &fakePayloadStore{data: map[string][]byte{}, getErr: down, setErr: down}
	f := NewRedisFetcher(inner, store, time.Minute, func(err error) bool { return errors.Is(err, errMiss) })

	for i := 0; i < 10; i++ {
		if _, err := f.Fetch(context.Background(), "a.json"); err != nil {
			t.Fatalf("Fetch #%d: %v", i, err)
		}
	}
	if inner.calls.Load() != 10 {
		t.Errorf("inner fetched %d times, want 10", inner.calls.Load())
	}
	if calls := store.gets + store.sets; calls >= 10 {
		t.Errorf("redis called %d times, want the breaker to stop calls", calls)
	}
}

func TestRedisFetcherDoesNotCacheFailures(t *testing.T) {
	inner := &countingFetcher{err: apperrors.ErrFetchFailed}
	store := &fakePayloadStore{data: map[string][]byte{}}
	f := NewRedisFetcher(inner, store, time.Minute, func(err error) bool { return errors.Is(err, errMiss) })

	if _, err := f.Fetch(context.Background(), "a.json"); !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if store.sets != 0 {
		t.Errorf("failure was cached %d times", store.sets)
	}
}

func TestFileMetadata(t *testing.T) {
	fsys := fstest.MapFS{
		"anime.json": {Data: []byte(`{"1":{"rank":4,"title":"A"}}`)},
		"bad.json":   {Data: []byte(`{"x":{"title":"A"}}`)},
	}
	fetcher := NewFSFetcher(fsys, "memory")

	lookup, err := NewFileMetadata(fetcher, "anime.json").LoadLookup(context.Background())
	if err != nil {
		t.Fatalf("LoadLookup: %v", err)
	}
	if md, ok := lookup.Get(1); !ok || *md.Rank != 4 {
		t.Errorf("unexpected lookup %+v", lookup)
	}

	_, err = NewFileMetadata(fetcher, "bad.json").LoadLookup(context.Background())
	if !errors.Is(err, apperrors.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
	_, err = NewFileMetadata(fetcher, "gone.json").LoadLookup(context.Background())
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed, got %v", err)
	}
}

func TestSQLMetadata(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "anime.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE anime (
			anime_id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			title_en TEXT,
			mean REAL,
			rank INTEGER,
			popularity INTEGER,
			num_list_users INTEGER
		)`,
		`INSERT INTO anime VALUES (5114, 'Fullmetal Alchemist: Brotherhood', 'Fullmetal Alchemist: Brotherhood', 9.1, 1, 3, 3000000)`,
		`INSERT INTO anime VALUES (42, 'Obscure', NULL, NULL, NULL, 9000, 12)`,
		`INSERT INTO anime VALUES (43, 'Blank English', '', 7.0, 900, 100, 50)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	src := NewSQLMetadata(db, "sqlite")
	lookup, err := src.LoadLookup(ctx)
	if err != nil {
		t.Fatalf("LoadLookup: %v", err)
	}
	if len(lookup) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lookup))
	}
	fma := lookup[5114]
	if *fma.Rank != 1 || *fma.Score != 9.1 || *fma.Popularity != 3 || *fma.TitleEN != "Fullmetal Alchemist: Brotherhood" {
		t.Errorf("unexpected metadata %+v", fma)
	}
	obscure := lookup[42]
	if obscure.Rank != nil || obscure.Score != nil || obscure.TitleEN != nil {
		t.Errorf("expected nulls to stay nil, got %+v", obscure)
	}
	if lookup[43].TitleEN != nil {
		t.Error("empty English title should be treated as absent")
	}
	if src.Describe() != "sqlite:anime" {
		t.Errorf("Describe = %q", src.Describe())
	}
}

func TestSQLMetadataMissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	_, err = NewSQLMetadata(db, "sqlite").LoadLookup(context.Background())
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed, got %v", err)
	}
}
