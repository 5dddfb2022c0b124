package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/source"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/store"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/viewer"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/middleware"
	"github.com/google/go-cmp/cmp"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"s0.json":    {Data: []byte(`[{"mal_ID":1,"parameter":2.5,"num_lists":500},{"mal_ID":2,"parameter":1.5,"num_lists":50}]`)},
		"s1.json":    {Data: []byte(`[{"mal_ID":2,"parameter":0.5,"num_lists":5000}]`)},
		"anime.json": {Data: []byte(`{"1":{"rank":1,"score":9.1,"title":"A <b>","title_en":"A en"},"2":{"rank":2,"title":"B"}}`)},
	}
}

func newTestStore(fsys fstest.MapFS) *store.Store {
	fetcher := source.NewFSFetcher(fsys, "test")
	return store.New(fetcher, source.NewFileMetadata(fetcher, "anime.json"), []config.SnapshotPosition{
		{Value: 0, File: "s0.json"},
		{Value: 1000, File: "s1.json"},
	}, nil)
}

func testView() config.ViewConfig {
	return config.ViewConfig{Variant: "basic", CutoffMin: 0, CutoffMax: 5000, CutoffStep: 50}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPage(t *testing.T) {
	router := NewRouter(NewHandler(newTestStore(testFS()), testView(), Options{}), RouterConfig{})

	rec := get(t, router, "/?snapshot=0&cutoff=100")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		`id="dataSelector"`,
		`id="cutoffSelector"`,
		`<span id="cutoffSelectorText">100</span>`,
		`<table id="animeTable">`,
		`<td>A &lt;b&gt;</td>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, `data-mal-id="2"`) {
		t.Error("entry below the cutoff was rendered")
	}
}

func TestPageLoadFailureServesEmptyTable(t *testing.T) {
	fsys := testFS()
	delete(fsys, "anime.json")
	router := NewRouter(NewHandler(newTestStore(fsys), testView(), Options{}), RouterConfig{})

	rec := get(t, router, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `<tr id="tableHeaders">`) || strings.Contains(body, "data-mal-id") {
		t.Error("expected a header-only table")
	}

	rec = get(t, router, "/api/v1/rows")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("rows status = %d, want 502", rec.Code)
	}
}

func TestRows(t *testing.T) {
	router := NewRouter(NewHandler(newTestStore(testFS()), testView(), Options{Variant: render.Extended}), RouterConfig{})

	rec := get(t, router, "/api/v1/rows?snapshot=0&cutoff=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp rowsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Variant != render.Extended || len(resp.Header) != len(render.Header(render.Extended)) {
		t.Errorf("unexpected variant/header %s %v", resp.Variant, resp.Header)
	}
	got := []int{resp.Rows[0].MALID, resp.Rows[1].MALID}
	if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
		t.Errorf("row order (-want +got):\n%s", diff)
	}
	// extended columns: Rank, MAL Rank, Rank diff, MAL Score, ...
	if score := resp.Rows[0].Cells[3]; score != "9.1" {
		t.Errorf("score cell = %q, want 9.1", score)
	}
	if resp.CacheHit {
		t.Error("first load should not be a cache hit")
	}

	rec = get(t, router, "/api/v1/rows?snapshot=0&cutoff=0")
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.CacheHit {
		t.Error("second load should be a cache hit")
	}
}

func TestTableFragment(t *testing.T) {
	router := NewRouter(NewHandler(newTestStore(testFS()), testView(), Options{}), RouterConfig{})
	rec := get(t, router, "/api/v1/table?snapshot=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, `<table id="animeTable">`) || !strings.Contains(body, `data-mal-id="2"`) {
		t.Errorf("unexpected fragment %q", body)
	}
}

func TestInvalidSelection(t *testing.T) {
	router := NewRouter(NewHandler(newTestStore(testFS()), testView(), Options{}), RouterConfig{})
	for _, target := range []string{
		"/api/v1/rows?snapshot=x",
		"/api/v1/rows?snapshot=2",
		"/api/v1/rows?snapshot=-1",
		"/api/v1/table?cutoff=-5",
		"/api/v1/rows?cutoff=120",
		"/api/v1/rows?cutoff=90000",
		"/api/v1/table?cutoff=5050",
		"/?cutoff=abc",
		"/?cutoff=120",
	} {
		if rec := get(t, router, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rec.Code)
		}
	}
}

func TestRowsAppliesRequestedCutoff(t *testing.T) {
	router := NewRouter(NewHandler(newTestStore(testFS()), testView(), Options{}), RouterConfig{})
	for _, cutoff := range []int{0, 100, 5000} {
		rec := get(t, router, fmt.Sprintf("/api/v1/rows?snapshot=0&cutoff=%d", cutoff))
		if rec.Code != http.StatusOK {
			t.Fatalf("cutoff %d: status = %d: %s", cutoff, rec.Code, rec.Body.String())
		}
		var resp rowsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if resp.Cutoff != cutoff {
			t.Errorf("applied cutoff = %d, want %d", resp.Cutoff, cutoff)
		}
	}

	rec := get(t, router, "/api/v1/rows?snapshot=0&cutoff=120")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "steps of 50") {
		t.Errorf("off-step cutoff: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSnapshotsAndCacheStats(t *testing.T) {
	st := newTestStore(testFS())
	router := NewRouter(NewHandler(st, testView(), Options{}), RouterConfig{})
	get(t, router, "/api/v1/rows?snapshot=1")

	rec := get(t, router, "/api/v1/snapshots")
	var infos []snapshotInfo
	if err := json.NewDecoder(rec.Body).Decode(&infos); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	want := []snapshotInfo{
		{Index: 0, Value: 0, File: "s0.json", Cached: false},
		{Index: 1, Value: 1000, File: "s1.json", Cached: true},
	}
	if diff := cmp.Diff(want, infos); diff != "" {
		t.Errorf("snapshots (-want +got):\n%s", diff)
	}

	rec = get(t, router, "/api/v1/cache/stats")
	var stats store.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if stats.SnapshotFetches != 1 || !stats.MetadataLoaded {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRenderHookAndAnalyticsRoutes(t *testing.T) {
	agg := analytics.NewAggregator()
	var mu sync.Mutex
	var outcomes []viewer.Outcome
	h := NewHandler(newTestStore(testFS()), testView(), Options{
		OnRender: func(ctx context.Context, out viewer.Outcome) {
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			agg.Record(analytics.NewViewEvent(ctx, Frontend, "basic", out))
		},
	})
	checker := health.NewChecker()
	router := NewRouter(h, RouterConfig{
		Analytics: analytics.NewHandler(agg, nil),
		Health:    checker,
		Limiter:   middleware.NewLimiter(100, time.Minute),
		Timeout:   5 * time.Second,
	})

	rec := get(t, router, "/api/v1/rows?snapshot=0&cutoff=100")
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if len(outcomes) != 1 || outcomes[0].Rows != 1 {
		t.Fatalf("render hook saw %+v", outcomes)
	}

	rec = get(t, router, "/api/v1/analytics")
	var stats analytics.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if stats.TotalViews != 1 || stats.Frontends[Frontend] != 1 {
		t.Errorf("unexpected analytics %+v", stats)
	}

	if rec := get(t, router, "/health/ready"); rec.Code != http.StatusOK {
		t.Errorf("ready = %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := NewRouter(NewHandler(newTestStore(testFS()), testView(), Options{}), RouterConfig{})
	if rec := get(t, router, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
