package loadtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSelections(t *testing.T) {
	got := Selections(2, Config{CutoffMin: 0, CutoffMax: 200, CutoffStep: 100})
	want := []Selection{
		{0, 0}, {0, 100}, {0, 200},
		{1, 0}, {1, 100}, {1, 200},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Selections mismatch (-want +got):\n%s", diff)
	}
}

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for _, tc := range []struct {
		p    float64
		want time.Duration
	}{{50, 5}, {95, 10}, {0, 1}, {100, 10}} {
		if got := Percentile(lat, tc.p); got != tc.want {
			t.Errorf("Percentile(%v) = %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("Percentile(nil) = %v, want 0", got)
	}
}

func TestRun(t *testing.T) {
	var rows atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/snapshots":
			fmt.Fprint(w, `[{"index":0},{"index":1}]`)
		case "/api/v1/rows":
			if r.URL.Query().Get("snapshot") == "" {
				http.Error(w, "missing", http.StatusBadRequest)
				return
			}
			rows.Add(1)
			fmt.Fprint(w, `{"cache_hit":true,"rows":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rep, err := Run(context.Background(), srv.Client(), Config{
		BaseURL:     srv.URL + "/",
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		CutoffMax:   100,
		CutoffStep:  50,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Total == 0 || rep.Failed != 0 {
		t.Fatalf("report = %+v, want requests without failures", rep)
	}
	if rep.CacheHits != rep.Succeeded {
		t.Errorf("cache hits = %d, want %d", rep.CacheHits, rep.Succeeded)
	}
	if int64(rep.Succeeded) > rows.Load() {
		t.Errorf("succeeded %d > served %d", rep.Succeeded, rows.Load())
	}

	var buf bytes.Buffer
	rep.Write(&buf)
	for _, want := range []string{"Total requests:", "Cache hit rate:  100.00%", "  200: "} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	_, err := Run(context.Background(), http.DefaultClient, Config{BaseURL: "http://localhost"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRunServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Run(context.Background(), srv.Client(), Config{BaseURL: srv.URL, Concurrency: 1, Duration: time.Second})
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed", err)
	}
}
