package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/source"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/store"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/rankview/pkg/redis"
)

// checkable is implemented by fetchers that can probe a resource cheaply.
type checkable interface {
	Check(ctx context.Context, name string) error
}

// backend is the data side of every command: the store and the clients it
// was built from.
type backend struct {
	store   *store.Store
	fetcher source.Fetcher
	origin  checkable
	redis   *pkgredis.Client
	db      *database.Client
}

// newBackend builds the fetcher chain and metadata source from cfg. Redis is
// optional: when it cannot be reached the payload cache is skipped.
func newBackend(cfg *config.Config, m *metrics.Metrics) (*backend, error) {
	b := &backend{}

	var origin source.Fetcher
	if cfg.Data.BaseURL != "" {
		f, err := source.NewHTTPFetcher(cfg.Data.BaseURL, cfg.Data.FetchTimeout)
		if err != nil {
			return nil, err
		}
		origin, b.origin = f, f
	} else {
		f := source.NewFSFetcher(os.DirFS(cfg.Data.Dir), cfg.Data.Dir)
		origin, b.origin = f, f
	}
	b.fetcher = origin

	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, payload cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			b.redis = client
			b.fetcher = source.NewRedisFetcher(origin, client, cfg.Redis.CacheTTL, pkgredis.IsNilError)
			slog.Info("payload cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var meta source.MetadataSource
	switch cfg.Metadata.Driver {
	case "file":
		meta = source.NewFileMetadata(b.fetcher, cfg.Data.MetadataFile)
	default:
		db, err := database.New(cfg.Metadata)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening metadata database: %w", err)
		}
		b.db = db
		meta = source.NewSQLMetadata(db.DB, db.Driver())
	}

	b.store = store.New(b.fetcher, meta, cfg.Data.Snapshots, m)
	slog.Info("ranking data source ready",
		"location", origin.Location(),
		"snapshots", len(cfg.Data.Snapshots),
		"metadata", meta.Describe(),
	)
	return b, nil
}

// registerChecks adds readiness checks for the data source and the clients
// in use. Only the data source and the metadata database can take the
// service down; Redis merely degrades it.
func (b *backend) registerChecks(checker *health.Checker, cfg *config.Config) {
	probe := cfg.Data.Snapshots[0].File
	checker.Register("source", health.Ping(func(ctx context.Context) error {
		return b.origin.Check(ctx, probe)
	}, health.StatusDown))
	if b.redis != nil {
		checker.Register("redis", health.Ping(b.redis.Ping, health.StatusDegraded))
	}
	if b.db != nil {
		checker.Register("database", health.Ping(b.db.Ping, health.StatusDown))
	}
}

func (b *backend) Close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			slog.Error("closing redis", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			slog.Error("closing database", "error", err)
		}
	}
}
