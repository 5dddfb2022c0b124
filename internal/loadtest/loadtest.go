// Package loadtest drives a running rankview server with concurrent table
// requests and summarizes latency, status codes and cache behaviour.
package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	// Workers sweep CutoffMin..CutoffMax in CutoffStep increments.
	CutoffMin  int
	CutoffMax  int
	CutoffStep int
}

// Selection is one (snapshot, cutoff) request.
type Selection struct {
	Snapshot int
	Cutoff   int
}

// Report aggregates the results of a run.
type Report struct {
	Elapsed     time.Duration
	Total       int
	Succeeded   int
	Failed      int
	CacheHits   int
	StatusCodes map[int]int
	Latencies   []time.Duration
}

type recorder struct {
	mu sync.Mutex
	r  Report
}

func (rec *recorder) add(d time.Duration, status int, cacheHit bool, err error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.r.Total++
	if err != nil {
		rec.r.Failed++
		return
	}
	rec.r.StatusCodes[status]++
	rec.r.Latencies = append(rec.r.Latencies, d)
	if status < 200 || status > 299 {
		rec.r.Failed++
		return
	}
	rec.r.Succeeded++
	if cacheHit {
		rec.r.CacheHits++
	}
}

// Selections enumerates every snapshot against every cutoff step.
func Selections(snapshots int, cfg Config) []Selection {
	step := max(cfg.CutoffStep, 1)
	var out []Selection
	for s := 0; s < snapshots; s++ {
		for c := cfg.CutoffMin; c <= cfg.CutoffMax; c += step {
			out = append(out, Selection{Snapshot: s, Cutoff: c})
		}
	}
	return out
}

// Run discovers the server's snapshots, then keeps cfg.Concurrency workers
// requesting /api/v1/rows until cfg.Duration elapses or ctx is done.
func Run(ctx context.Context, client *http.Client, cfg Config) (*Report, error) {
	if cfg.Concurrency <= 0 || cfg.Duration <= 0 {
		return nil, fmt.Errorf("%w: concurrency and duration must be positive", apperrors.ErrInvalidInput)
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	n, err := countSnapshots(ctx, client, base)
	if err != nil {
		return nil, err
	}
	sels := Selections(n, cfg)
	if len(sels) == 0 {
		return nil, fmt.Errorf("%w: server lists no snapshots", apperrors.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	rec := &recorder{r: Report{StatusCodes: make(map[int]int)}}
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				sel := sels[i%len(sels)]
				d, status, hit, err := request(ctx, client, base, sel)
				if ctx.Err() != nil {
					return nil
				}
				rec.add(d, status, hit, err)
			}
			return nil
		})
	}
	g.Wait()
	rec.r.Elapsed = time.Since(start)
	return &rec.r, nil
}

func countSnapshots(ctx context.Context, client *http.Client, base string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/snapshots", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: base url %q: %v", apperrors.ErrInvalidInput, base, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: listing snapshots: %v", apperrors.ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: listing snapshots: status %d", apperrors.ErrFetchFailed, resp.StatusCode)
	}
	var snaps []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		return 0, fmt.Errorf("%w: listing snapshots: %v", apperrors.ErrMalformedPayload, err)
	}
	return len(snaps), nil
}

func request(ctx context.Context, client *http.Client, base string, sel Selection) (time.Duration, int, bool, error) {
	q := url.Values{}
	q.Set("snapshot", fmt.Sprint(sel.Snapshot))
	q.Set("cutoff", fmt.Sprint(sel.Cutoff))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/rows?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, false, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	return time.Since(start), resp.StatusCode, body.CacheHit, nil
}

// Percentile returns the p-th percentile (nearest rank) of sorted.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

// Write prints a human-readable summary of r.
func (r *Report) Write(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total requests:  %d\n", r.Total)
	fmt.Fprintf(w, "Successful:      %d\n", r.Succeeded)
	fmt.Fprintf(w, "Failed:          %d\n", r.Failed)
	if r.Total > 0 {
		fmt.Fprintf(w, "Error rate:      %.2f%%\n", float64(r.Failed)/float64(r.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(r.Total)/r.Elapsed.Seconds())
	}
	if r.Succeeded > 0 {
		fmt.Fprintf(w, "Cache hit rate:  %.2f%%\n", float64(r.CacheHits)/float64(r.Succeeded)*100)
	}

	lat := slices.Clone(r.Latencies)
	slices.Sort(lat)
	if len(lat) > 0 {
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:  %s\n", lat[0])
		fmt.Fprintf(w, "Avg:  %s\n", sum/time.Duration(len(lat)))
		fmt.Fprintf(w, "P50:  %s\n", Percentile(lat, 50))
		fmt.Fprintf(w, "P95:  %s\n", Percentile(lat, 95))
		fmt.Fprintf(w, "P99:  %s\n", Percentile(lat, 99))
		fmt.Fprintf(w, "Max:  %s\n", lat[len(lat)-1])
	}

	codes := make([]int, 0, len(r.StatusCodes))
	for c := range r.StatusCodes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status codes ===")
	for _, c := range codes {
		fmt.Fprintf(w, "  %d: %d\n", c, r.StatusCodes[c])
	}
}
