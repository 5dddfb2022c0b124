package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/resilience"
)

const payloadKeyPrefix = "rankview:payload:"

// PayloadStore is the subset of the Redis client the read-through layer needs.
type PayloadStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RedisFetcher serves payloads from Redis and falls through to the wrapped
// fetcher on a miss, so replicas of the service share one copy of each file.
// Redis failures are logged and never fail the fetch; after repeated
// failures Redis is bypassed until a probe succeeds.
type RedisFetcher struct {
	next    Fetcher
	store   PayloadStore
	ttl     time.Duration
	isMiss  func(error) bool
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// NewRedisFetcher wraps next. isMiss tells a missing key apart from a Redis
// error; both fall through to next, only the latter is logged.
func NewRedisFetcher(next Fetcher, store PayloadStore, ttl time.Duration, isMiss func(error) bool) *RedisFetcher {
	return &RedisFetcher{
		next:    next,
		store:   store,
		ttl:     ttl,
		isMiss:  isMiss,
		breaker: resilience.NewBreaker("redis", resilience.BreakerConfig{}),
		logger:  slog.Default().With("component", "payload-cache"),
	}
}

func (f *RedisFetcher) Location() string {
	return f.next.Location()
}

func (f *RedisFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	key := payloadKeyPrefix + name
	if data, ok := f.get(ctx, key); ok {
		return data, nil
	}

	data, err := f.next.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	f.set(ctx, key, data)
	return data, nil
}

func (f *RedisFetcher) get(ctx context.Context, key string) ([]byte, bool) {
	if f.breaker.Allow() != nil {
		return nil, false
	}
	data, err := f.store.GetBytes(ctx, key)
	switch {
	case err == nil:
		f.breaker.Record(nil)
		f.logger.Debug("payload cache hit", "key", key, "bytes", len(data))
		return data, true
	case f.isMiss(err):
		f.breaker.Record(nil)
	default:
		f.breaker.Record(err)
		f.logger.Error("payload cache get failed", "key", key, "error", err)
	}
	return nil, false
}

func (f *RedisFetcher) set(ctx context.Context, key string, data []byte) {
	if f.breaker.Allow() != nil {
		return
	}
	err := f.store.Set(ctx, key, data, f.ttl)
	f.breaker.Record(err)
	if err != nil {
		f.logger.Error("payload cache set failed", "key", key, "error", err)
	}
}
