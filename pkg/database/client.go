// Package database opens the SQL database holding scraped anime metadata.
// Both PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite) are supported.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Client struct {
	DB     *sql.DB
	driver string
}

// New opens cfg.DSN with the driver named by cfg.Driver and pings it.
func New(cfg config.MetadataConfig) (*Client, error) {
	driverName, err := sqlDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Driver, err)
	}
	return &Client{DB: db, driver: cfg.Driver}, nil
}

// Driver returns the configured driver ("postgres" or "sqlite").
func (c *Client) Driver() string {
	return c.driver
}

// Rebind rewrites PostgreSQL-style $N placeholders for the configured
// driver. SQLite gets positional ? placeholders.
func (c *Client) Rebind(query string) string {
	if c.driver != "sqlite" {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

var placeholder = regexp.MustCompile(`\$[0-9]+`)

func sqlDriver(name string) (string, error) {
	switch name {
	case "postgres":
		return "postgres", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported metadata driver %q", name)
	}
}
