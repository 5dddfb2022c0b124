package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type Stats struct {
	TotalViews     int64            `json:"total_views"`
	CacheHits      int64            `json:"cache_hits"`
	CacheMisses    int64            `json:"cache_misses"`
	EmptyViews     int64            `json:"empty_views"`
	AvgLatencyMs   float64          `json:"avg_latency_ms"`
	P50LatencyMs   float64          `json:"p50_latency_ms"`
	P95LatencyMs   float64          `json:"p95_latency_ms"`
	P99LatencyMs   float64          `json:"p99_latency_ms"`
	Snapshots      []SnapshotCount  `json:"snapshots"`
	TopCutoffs     []CutoffCount    `json:"top_cutoffs"`
	Frontends      map[string]int64 `json:"frontends"`
	ViewsPerMinute float64          `json:"views_per_minute"`
	CapturedAt     time.Time        `json:"captured_at"`
}

type SnapshotCount struct {
	Value int   `json:"value"`
	Views int64 `json:"views"`
}

type CutoffCount struct {
	Cutoff int   `json:"cutoff"`
	Views  int64 `json:"views"`
}

// Aggregator keeps running totals of view events in memory.
type Aggregator struct {
	mu         sync.RWMutex
	totalViews int64
	cacheHits  int64
	emptyViews int64
	latencies  []float64
	next       int
	snapshots  map[int]int64
	cutoffs    map[int]int64
	frontends  map[string]int64
	startTime  time.Time
	logger     *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies: make([]float64, 0, 1024),
		snapshots: make(map[int]int64),
		cutoffs:   make(map[int]int64),
		frontends: make(map[string]int64),
		startTime: time.Now(),
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record folds one event into the totals. Events of other types are ignored.
func (a *Aggregator) Record(e ViewEvent) {
	if e.Type != EventView {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalViews++
	if e.CacheHit {
		a.cacheHits++
	}
	if e.Rows == 0 {
		a.emptyViews++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.snapshots[e.SnapshotValue]++
	a.cutoffs[e.Cutoff]++
	if e.Frontend != "" {
		a.frontends[e.Frontend]++
	}
}

// HandleMessage is the kafka.MessageHandler for the view events topic.
// Undecodable messages are logged and skipped so they get committed.
func (a *Aggregator) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[ViewEvent](value)
	if err != nil {
		a.logger.Error("skipping undecodable view event", "key", string(key), "error", err)
		return nil
	}
	a.Record(event)
	return nil
}

// PublishBatch lets a Collector feed the aggregator without a broker.
func (a *Aggregator) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, ev := range events {
		e, ok := ev.Value.(ViewEvent)
		if !ok {
			return fmt.Errorf("unexpected analytics event %T", ev.Value)
		}
		a.Record(e)
	}
	return nil
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalViews:  a.totalViews,
		CacheHits:   a.cacheHits,
		CacheMisses: a.totalViews - a.cacheHits,
		EmptyViews:  a.emptyViews,
		Frontends:   make(map[string]int64, len(a.frontends)),
		CapturedAt:  time.Now().UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}

	stats.Snapshots = make([]SnapshotCount, 0, len(a.snapshots))
	for value, views := range a.snapshots {
		stats.Snapshots = append(stats.Snapshots, SnapshotCount{Value: value, Views: views})
	}
	sort.Slice(stats.Snapshots, func(i, j int) bool {
		return stats.Snapshots[i].Value < stats.Snapshots[j].Value
	})
	stats.TopCutoffs = topCutoffs(a.cutoffs, 10)
	for name, n := range a.frontends {
		stats.Frontends[name] = n
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.ViewsPerMinute = float64(stats.TotalViews) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topCutoffs returns the n most viewed cutoffs, most viewed first and lower
// cutoffs first among ties.
func topCutoffs(counts map[int]int64, n int) []CutoffCount {
	result := make([]CutoffCount, 0, len(counts))
	for cutoff, views := range counts {
		result = append(result, CutoffCount{Cutoff: cutoff, Views: views})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Views != result[j].Views {
			return result[i].Views > result[j].Views
		}
		return result[i].Cutoff < result[j].Cutoff
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
