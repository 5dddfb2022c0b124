package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/render"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/viewer"
	"github.com/Adithya-Monish-Kumar-K/rankview/internal/web"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ranking page and its JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setup(os.Stdout); err != nil {
				return err
			}
			defer root.close()
			if port > 0 {
				root.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), root.cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting rankview", "port", cfg.Server.Port, "variant", cfg.View.Variant)
	variant, err := render.ParseVariant(cfg.View.Variant)
	if err != nil {
		return err
	}

	m := metrics.New()
	stopMetrics := metrics.StartServer(cfg.Metrics)

	b, err := newBackend(cfg, m)
	if err != nil {
		return err
	}
	defer b.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Data.Prefetch {
		g.Go(func() error {
			start := time.Now()
			if err := b.store.Prefetch(ctx); err != nil {
				slog.Warn("prefetch incomplete", "error", err)
			} else {
				slog.Info("prefetch complete", "duration", time.Since(start))
			}
			return nil
		})
	}

	checker := health.NewChecker()
	b.registerChecks(checker, cfg)

	var (
		analyticsHandler *analytics.Handler
		onRender         func(context.Context, viewer.Outcome)
	)
	if cfg.Analytics.Enabled {
		pipeline, err := startAnalytics(ctx, g, cfg, b, m, checker)
		if err != nil {
			return err
		}
		defer pipeline.close()
		analyticsHandler = pipeline.handler
		onRender = func(ctx context.Context, out viewer.Outcome) {
			pipeline.collector.Track(analytics.NewViewEvent(ctx, web.Frontend, string(variant), out))
		}
	}

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		g.Go(func() error {
			limiter.Run(ctx, 5*time.Minute)
			return nil
		})
	}

	handler := web.NewHandler(b.store, cfg.View, web.Options{
		Variant:  variant,
		Metrics:  m,
		OnRender: onRender,
	})
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: web.NewRouter(handler, web.RouterConfig{
			Analytics:   analyticsHandler,
			Health:      checker,
			Metrics:     m,
			Limiter:     limiter,
			CORSOrigins: cfg.Server.CORSOrigins,
			Timeout:     cfg.Server.WriteTimeout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout + time.Second,
	}

	g.Go(func() error {
		slog.Info("rankview listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("rankview stopped")
	return err
}

// analyticsPipeline is the running view-event path: collector, aggregator
// and, with the kafka transport, the producer and consumer in between.
type analyticsPipeline struct {
	collector *analytics.Collector
	handler   *analytics.Handler
	producer  *kafka.Producer
}

func startAnalytics(ctx context.Context, g *errgroup.Group, cfg *config.Config, b *backend, m *metrics.Metrics, checker *health.Checker) (*analyticsPipeline, error) {
	agg := analytics.NewAggregator()
	p := &analyticsPipeline{}

	var publisher analytics.Publisher = agg
	if cfg.Analytics.Transport == "kafka" {
		topic := cfg.Kafka.Topics.ViewEvents
		p.producer = kafka.NewProducer(cfg.Kafka, topic)
		publisher = p.producer
		consumer := kafka.NewConsumer(cfg.Kafka, topic, agg.HandleMessage)
		g.Go(func() error {
			return consumer.Start(ctx)
		})
		checker.Register("kafka", health.Ping(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		}, health.StatusDegraded))
		slog.Info("view events go through kafka", "topic", topic, "brokers", cfg.Kafka.Brokers)
	}

	p.collector = analytics.NewCollector(publisher, analytics.CollectorOptions{
		BufferSize:    cfg.Analytics.BufferSize,
		BatchSize:     cfg.Analytics.BatchSize,
		FlushInterval: cfg.Analytics.FlushInterval,
		Dropped:       m.AnalyticsDropped,
	})
	p.collector.Start(ctx)

	var history *analytics.History
	if b.db != nil && cfg.Analytics.HistoryInterval > 0 {
		history = analytics.NewHistory(b.db)
		if err := history.EnsureSchema(ctx); err != nil {
			p.close()
			return nil, err
		}
		g.Go(func() error {
			history.Run(ctx, agg, cfg.Analytics.HistoryInterval)
			return nil
		})
	}
	p.handler = analytics.NewHandler(agg, history)
	return p, nil
}

func (p *analyticsPipeline) close() {
	p.collector.Close()
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			slog.Error("closing kafka producer", "error", err)
		}
	}
}
