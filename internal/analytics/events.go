// Package analytics records which tables people look at. Every rendered
// table becomes a ViewEvent; the Collector batches events onto Kafka and the
// Aggregator folds them into Stats.
package analytics

import (
	"context"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/viewer"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/logger"
)

type EventType string

const EventView EventType = "view"

type ViewEvent struct {
	Type          EventType `json:"type"`
	Snapshot      int       `json:"snapshot"`
	SnapshotValue int       `json:"snapshot_value"`
	Cutoff        int       `json:"cutoff"`
	Rows          int       `json:"rows"`
	CacheHit      bool      `json:"cache_hit"`
	LatencyMs     float64   `json:"latency_ms"`
	Frontend      string    `json:"frontend"`
	Variant       string    `json:"variant"`
	RequestID     string    `json:"request_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewViewEvent describes a finished render. The request ID is taken from ctx
// when present.
func NewViewEvent(ctx context.Context, frontend, variant string, out viewer.Outcome) ViewEvent {
	return ViewEvent{
		Type:          EventView,
		Snapshot:      out.Index,
		SnapshotValue: out.Value,
		Cutoff:        out.Cutoff,
		Rows:          out.Rows,
		CacheHit:      out.CacheHit,
		LatencyMs:     float64(out.Duration.Microseconds()) / 1000,
		Frontend:      frontend,
		Variant:       variant,
		RequestID:     logger.RequestID(ctx),
		Timestamp:     time.Now().UTC(),
	}
}

// Key partitions events by snapshot so per-snapshot ordering holds.
func (e ViewEvent) Key() string {
	return "snapshot-" + strconv.Itoa(e.Snapshot)
}
