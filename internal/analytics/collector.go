package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/kafka"
	"github.com/prometheus/client_golang/prometheus"
)

// Publisher is where the collector sends its batches: a kafka.Producer, or
// an Aggregator directly when no broker is configured.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers view events and publishes them in batches, on a timer or
// when a batch fills up. Track never blocks; events are dropped when the
// buffer is full.
type Collector struct {
	publisher     Publisher
	events        chan ViewEvent
	batchSize     int
	flushInterval time.Duration
	dropped       prometheus.Counter
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// CollectorOptions tunes a Collector. Zero values pick defaults.
type CollectorOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// Dropped counts events lost to a full buffer or failed publishes.
	Dropped prometheus.Counter
}

func NewCollector(publisher Publisher, opts CollectorOptions) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		events:        make(chan ViewEvent, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		dropped:       opts.Dropped,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the publish loop until ctx is cancelled or Close is called.
// Buffered events are flushed on the way out.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case e, ok := <-c.events:
				if !ok {
					c.final(batch)
					return
				}
				batch = append(batch, kafka.Event{Key: e.Key(), Value: e})
				if len(batch) >= c.batchSize {
					batch = c.flush(ctx, batch)
				}
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				c.final(c.drain(batch))
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.events), "batch_size", c.batchSize, "flush_interval", c.flushInterval)
}

// Track queues e for publishing. It is safe to call after Close.
func (c *Collector) Track(e ViewEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- e:
	default:
		c.drop(1)
		c.logger.Warn("analytics event dropped, buffer full")
	}
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

// flush publishes batch and returns the slice to keep filling. A failed
// batch is kept for the next flush, up to three batches worth.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("publishing view events failed", "count", len(batch), "error", err)
		if limit := c.batchSize * 3; len(batch) > limit {
			c.drop(len(batch) - limit)
			batch = batch[len(batch)-limit:]
		}
		return batch
	}
	c.logger.Debug("view events published", "count", len(batch))
	return make([]kafka.Event, 0, c.batchSize)
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case e, ok := <-c.events:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: e.Key(), Value: e})
		default:
			return batch
		}
	}
}

func (c *Collector) final(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.drop(len(batch))
		c.logger.Error("final flush failed", "count", len(batch), "error", err)
	}
}

func (c *Collector) drop(n int) {
	if c.dropped != nil {
		c.dropped.Add(float64(n))
	}
}
