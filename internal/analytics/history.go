package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/database"
)

// History persists Stats snapshots in the analytics_snapshots table of the
// metadata database.
type History struct {
	db     *database.Client
	logger *slog.Logger
}

func NewHistory(db *database.Client) *History {
	return &History{
		db:     db,
		logger: slog.Default().With("component", "analytics-history"),
	}
}

// EnsureSchema creates the analytics_snapshots table if it is missing.
func (h *History) EnsureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if h.db.Driver() == "sqlite" {
		ddl = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		data        TEXT NOT NULL,
		captured_at TIMESTAMP NOT NULL
	)`
	}
	if _, err := h.db.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating analytics_snapshots: %w", err)
	}
	return nil
}

func (h *History) Save(ctx context.Context, stats Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = h.db.DB.ExecContext(ctx,
		h.db.Rebind(`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`),
		string(data), stats.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	h.logger.Debug("analytics snapshot saved", "total_views", stats.TotalViews)
	return nil
}

// Latest returns the newest snapshot, or nil when none was saved yet.
func (h *History) Latest(ctx context.Context) (*Stats, error) {
	var data []byte
	err := h.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &stats, nil
}

// List returns up to limit snapshots, newest first. Corrupt rows are skipped.
func (h *History) List(ctx context.Context, limit int) ([]Stats, error) {
	rows, err := h.db.DB.QueryContext(ctx,
		h.db.Rebind(`SELECT data FROM analytics_snapshots ORDER BY id DESC LIMIT $1`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Stats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			h.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// Run saves the aggregator's stats every interval until ctx is cancelled,
// then saves once more.
func (h *History) Run(ctx context.Context, agg *Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	h.logger.Info("analytics history started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			if err := h.Save(ctx, agg.Stats()); err != nil {
				h.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.Save(saveCtx, agg.Stats()); err != nil {
				h.logger.Error("final snapshot failed", "error", err)
			}
			return
		}
	}
}
