package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/events/consumer"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/registry/cache"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting tag search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	index := tagindex.New()

	var (
		rankCache   *cache.RankCache
		cacheAdmin  handler.CacheAdmin
		rc          registry.RankCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, rank caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			rankCache = cache.New(redisClient, cfg.Redis.CacheTTL, cache.NewBreaker(resilience.BreakerConfig{}))
			cacheAdmin, rc = rankCache, rankCache
			slog.Info("rank cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	reg := registry.New(index, rc, m)

	if err := preload(ctx, cfg, reg, m); err != nil {
		slog.Error("initial load failed", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		s := reg.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d entities, %d tags", s.Entities, s.Tags),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil || rankCache == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(reg, cacheAdmin, cfg.Search.MaxQueryTags)
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(h, checker, router.Options{
			Metrics:     m,
			Timeout:     cfg.Search.Timeout,
			CORSOrigins: cfg.Server.CORSOrigins,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	servers := []*http.Server{server}
	if cfg.Metrics.Enabled {
		servers = append(servers, metrics.NewServer(cfg.Metrics.Port))
	}
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	if cfg.Kafka.Enabled {
		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.TagEvents, consumer.HandleMessage(reg, m))
		checker.Register("kafka", consumer.HealthCheck(kafkaConsumer))
		tagConsumer := consumer.New(kafkaConsumer)
		g.Go(func() error {
			return tagConsumer.Start(gctx)
		})
		slog.Info("replaying tag events",
			"topic", cfg.Kafka.TagEvents,
			"group", kafkaConsumer.Status().GroupID,
		)
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("tag search service stopped")
}

// preload runs the configured bulk loads, CSV first, then Postgres.
func preload(ctx context.Context, cfg *config.Config, reg *registry.Registry, m *metrics.Metrics) error {
	opts := loader.Options{Strict: cfg.Loader.Strict, ProgressEvery: 10000, Metrics: m}

	if cfg.Loader.CSVPath != "" {
		src, err := loader.OpenCSV(cfg.Loader.CSVPath, cfg.Loader.SkipHeader)
		if err != nil {
			return err
		}
		defer src.Close()
		stats, err := loader.Load(ctx, src, loader.NewIndexSink(reg), opts)
		if err != nil {
			return fmt.Errorf("loading %s: %w", cfg.Loader.CSVPath, err)
		}
		slog.Info("csv loaded", "path", cfg.Loader.CSVPath, "records", stats.Records, "malformed", stats.Malformed)
	}

	if cfg.Loader.PostgresQuery != "" {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		src := loader.NewPostgresSource(db.DB, cfg.Loader.PostgresQuery)
		defer src.Close()
		stats, err := loader.Load(ctx, src, loader.NewIndexSink(reg), opts)
		if err != nil {
			return fmt.Errorf("loading from postgres: %w", err)
		}
		slog.Info("postgres loaded", "database", cfg.Postgres.Database, "records", stats.Records)
	}
	return nil
}
