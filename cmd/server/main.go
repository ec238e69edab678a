package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"georef/internal/audit"
	"georef/internal/gcp/cache"
	gcphandler "georef/internal/gcp/handler"
	gcpmetrics "georef/internal/gcp/metrics"
	gcpservice "georef/internal/gcp/service"
	gcpstore "georef/internal/gcp/store"
	imagehandler "georef/internal/image/handler"
	imageservice "georef/internal/image/service"
	imagestore "georef/internal/image/store"
	"georef/internal/platform/config"
	"georef/internal/platform/httpserver"
	"georef/internal/platform/kafka"
	"georef/internal/platform/logger"
	"georef/internal/platform/metrics"
	"georef/internal/platform/postgres"
	"georef/internal/platform/redis"
)

const startupTimeout = 15 * time.Second

const auditBufferSize = 1024

// backends holds the optional infrastructure; a nil field means the
// in-memory fallback is used.
type backends struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func (b backends) close() {
	if b.kafka != nil {
		b.kafka.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

// main wires configuration, backends, services and the HTTP router, and owns
// the server lifecycle. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	b, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewWithRegistry(registry)

	var auditSink audit.Sink = audit.NewInMemoryStore()
	if b.kafka != nil {
		auditSink = audit.NewKafkaSink(b.kafka, cfg.Kafka.AuditTopic, audit.WithSinkLogger(log))
	}
	publisher := audit.NewPublisher(auditSink, audit.WithLogger(log), audit.WithAsyncBuffer(auditBufferSize))
	defer publisher.Close()

	var (
		images    imageservice.Store
		gcpImages gcpservice.ImageStore
		gcps      gcpservice.Store
		gcpOpts   []gcpservice.Option
	)
	if b.db != nil {
		pgImages := imagestore.NewPostgres(b.db)
		images, gcpImages = pgImages, pgImages
		gcps = gcpstore.NewPostgres(b.db)
		gcpOpts = append(gcpOpts, gcpservice.WithTx(newGCPPostgresTx(b.db)))
	} else {
		memImages := imagestore.NewInMemory()
		images, gcpImages = memImages, memImages
		gcps = gcpstore.NewInMemory()
	}

	var residualCache gcpservice.ResidualCache = cache.NewMemoryCache(cfg.ResidualCacheTTL)
	if b.redis != nil {
		residualCache = cache.NewRedisCache(b.redis.Client, cfg.ResidualCacheTTL)
	}

	imageSvc := imageservice.New(images,
		imageservice.WithLogger(log),
		imageservice.WithAuditPublisher(publisher),
	)
	gcpSvc := gcpservice.New(gcps, gcpImages, append(gcpOpts,
		gcpservice.WithLogger(log),
		gcpservice.WithMetrics(gcpmetrics.NewWithRegistry(registry)),
		gcpservice.WithAuditPublisher(publisher),
		gcpservice.WithCache(residualCache),
	)...)

	router := newRouter(routerDeps{
		cfg:      cfg.Server,
		logger:   log,
		metrics:  httpMetrics,
		gatherer: registry,
		images:   imagehandler.New(imageSvc, log),
		gcps:     gcphandler.New(gcpSvc, log),
		db:       b.db,
		redis:    b.redis,
	})
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting georef",
			"addr", cfg.Server.Addr,
			"env", cfg.Server.Environment,
			"postgres", b.db != nil,
			"redis", b.redis != nil,
			"kafka", b.kafka != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// connect opens the configured backends concurrently. Any failure aborts
// startup and closes what was already opened.
func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (backends, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	var b backends
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		db, err := postgres.Open(gctx, cfg.Database)
		if err != nil || db == nil {
			return err
		}
		b.db = db
		if err := postgres.Migrate(gctx, db); err != nil {
			return err
		}
		log.Info("postgres connected, schema applied")
		return nil
	})
	g.Go(func() error {
		client, err := redis.New(gctx, cfg.Redis)
		if err != nil || client == nil {
			return err
		}
		b.redis = client
		log.Info("redis connected")
		return nil
	})
	g.Go(func() error {
		client, err := kafka.New(gctx, cfg.Kafka)
		if err != nil || client == nil {
			return err
		}
		b.kafka = client
		log.Info("kafka connected", "topic", cfg.Kafka.AuditTopic)
		return nil
	})
	if err := g.Wait(); err != nil {
		b.close()
		return backends{}, err
	}
	return b, nil
}
