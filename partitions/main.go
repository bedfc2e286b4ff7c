package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animus-labs/animus-assets/internal/graphspec"
	"github.com/animus-labs/animus-assets/internal/iomanager"
	"github.com/animus-labs/animus-assets/internal/platform/env"
	"github.com/animus-labs/animus-assets/internal/platform/httpserver"
	"github.com/animus-labs/animus-assets/internal/platform/metrics"
	"github.com/animus-labs/animus-assets/internal/platform/objectstore"
	"github.com/animus-labs/animus-assets/internal/platform/postgres"
	"github.com/animus-labs/animus-assets/internal/repo"
	repopg "github.com/animus-labs/animus-assets/internal/repo/postgres"
)

const (
	serviceName = "partitions"

	defaultMaxLoadedPartitions = 366
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("ASSETS_HTTP_ADDR", ":8090")
	shutdownTimeout, err := env.Duration("ASSETS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	ioConcurrency, err := env.Int("ASSETS_IO_CONCURRENCY", 8)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	maxLoaded, err := env.Int("ASSETS_MAX_LOADED_PARTITIONS", defaultMaxLoadedPartitions)
	if err != nil || maxLoaded <= 0 {
		logger.Error("invalid env", "name", "ASSETS_MAX_LOADED_PARTITIONS", "error", err)
		os.Exit(2)
	}
	cacheSize, err := env.Int("ASSETS_RESOLVE_CACHE_SIZE", 4096)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	graphPath := env.String("ASSETS_GRAPH_PATH", "graph.yaml")

	spec, err := graphspec.ParseFile(graphPath)
	if err != nil {
		logger.Error("invalid graph spec", "path", graphPath, "error", err)
		os.Exit(2)
	}
	loaded, err := spec.Build()
	if err != nil {
		logger.Error("invalid asset graph", "path", graphPath, "error", err)
		os.Exit(2)
	}
	logger.Info("asset graph loaded",
		"path", graphPath,
		"assets", len(loaded.Graph.Assets()),
		"sources", len(loaded.Graph.Sources()),
		"jobs", len(loaded.Jobs),
	)

	m := metrics.New()
	checks := make([]httpserver.ReadinessCheck, 0, 2)

	var (
		db      *sql.DB
		catalog repo.MaterializationRepository
	)
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	if dbCfg.Enabled() {
		db, err = postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := repopg.EnsureSchema(ctx, db); err != nil {
			logger.Error("database schema", "error", err)
			os.Exit(1)
		}
		catalog = repopg.NewMaterializationStore(db)
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		})
	} else {
		logger.Warn("materialization catalog disabled", "reason", "ASSETS_DATABASE_URL not set")
	}

	var partitionIO *iomanager.PartitionedIO
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	if storeCfg.Enabled() {
		client, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store client", "error", err)
			os.Exit(1)
		}
		if err := objectstore.EnsureBucket(ctx, client, storeCfg); err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		store, err := objectstore.NewMinioStoreWithClient(client)
		if err != nil {
			logger.Error("object store", "error", err)
			os.Exit(1)
		}
		partitionIO, err = iomanager.New(store, storeCfg)
		if err != nil {
			logger.Error("partition io", "error", err)
			os.Exit(1)
		}
		partitionIO.Concurrency = ioConcurrency
		partitionIO.MaxPartitions = maxLoaded
		partitionIO.Observer = m
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "objectstore",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckBucket(checkCtx, client, storeCfg)
			},
		})
	} else {
		logger.Warn("partition storage disabled", "reason", "ASSETS_MINIO_ENDPOINT not set")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, checks...))
	mux.Handle("GET /metrics", m.Handler())

	api := newPartitionsAPI(logger, loaded, catalog, partitionIO, m, cacheSize)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         serviceName,
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	handler := httpserver.Wrap(logger, serviceName, mux, m.ObserveHTTP)
	if err := httpserver.Run(ctx, logger, cfg, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
