// Package control wires the application together and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/batchwatch/internal/core/config"
	"github.com/vietddude/batchwatch/internal/core/domain"
	"github.com/vietddude/batchwatch/internal/core/worker"
	"github.com/vietddude/batchwatch/internal/decode"
	"github.com/vietddude/batchwatch/internal/health"
	"github.com/vietddude/batchwatch/internal/infra/blob"
	"github.com/vietddude/batchwatch/internal/infra/l1"
	redisclient "github.com/vietddude/batchwatch/internal/infra/redis"
	"github.com/vietddude/batchwatch/internal/infra/storage"
	"github.com/vietddude/batchwatch/internal/infra/storage/memory"
	"github.com/vietddude/batchwatch/internal/infra/storage/postgres"
	"github.com/vietddude/batchwatch/internal/ingest"
)

// App is the assembled service: L1 client, blob client, storage, the
// ingestion loop and the health server.
type App struct {
	cfg          *config.AppConfig
	loop         *ingest.Loop
	pruner       *worker.Pruner
	healthServer *health.Server
	l1Client     *l1.Client
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {

	// 1. Initialize Storage
	var batchRepo storage.BatchRepository
	var checkpointRepo storage.CheckpointRepository
	var failedRepo storage.FailedBlockRepository
	var db *postgres.DB
	var pinger health.Pinger

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		batchRepo = postgres.NewBatchRepo(db)
		checkpointRepo = postgres.NewCheckpointRepo(db)
		failedRepo = postgres.NewFailedRepo(db)
		pinger = db
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		batchRepo = memory.NewBatchRepo(store)
		checkpointRepo = memory.NewCheckpointRepo(store)
		failedRepo = memory.NewFailedRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Chain Clients
	l1Client, err := l1.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to dial l1: %w", err)
	}

	var blobClient blob.Client
	if cfg.Chain.BeaconURL != "" {
		blobClient, err = blob.NewBeaconClient(ctx, cfg.Chain.BeaconURL)
		if err != nil {
			return nil, fmt.Errorf("failed to init beacon client: %w", err)
		}
	} else {
		slog.Warn("No beacon URL configured, records will be stored without blobs")
		blobClient = blob.Unavailable{}
	}

	// 3. Initialize Pipeline Components
	scanner, err := ingest.NewScanner(cfg.Chain.RollupAddress, blobClient)
	if err != nil {
		return nil, err
	}
	decoder, err := decode.NewDecoder(cfg.Decode.Format)
	if err != nil {
		return nil, err
	}

	// 4. Initialize Redis (optional)
	var redisClient *redisclient.Client
	var rescanQueue ingest.RescanQueue
	if cfg.Redis.URL != "" && cfg.Scan.RescanRanges {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, rescan disabled", "error", err)
		} else {
			rescanQueue = redisClient
			slog.Info("Rescan queue enabled")
		}
	}

	loop := ingest.NewLoop(
		ingest.Config{Scan: cfg.Scan, DecodeWorkers: cfg.Decode.Workers},
		l1Client,
		scanner,
		decoder,
		batchRepo,
		checkpointRepo,
		failedRepo,
		rescanQueue,
	)

	var pruner *worker.Pruner
	if cfg.Scan.RetentionPeriod > 0 {
		pruner = worker.NewPruner(cfg.Scan.RetentionPeriod, batchRepo)
	}

	// 5. Initialize Health Monitor
	healthMon := health.NewMonitor(
		l1Client,
		pinger,
		batchRepo,
		checkpointRepo,
		failedRepo,
		health.StateFunc(func() string { return string(loop.Status()) }),
	)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		loop:         loop,
		pruner:       pruner,
		healthServer: healthServer,
		l1Client:     l1Client,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Start launches the health server, the ingestion loop and the rescan
// worker. It returns immediately; Stop shuts everything down.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	go a.runLoop(ctx)

	if a.redisClient != nil {
		go a.runRescanWorker(ctx)
	}

	if a.pruner != nil {
		go a.pruner.Start(ctx)
	}

	return nil
}

// Stop stops the app and releases its resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping batchwatch...")

	a.l1Client.Close()
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}

func (a *App) blockRange() domain.BlockRange {
	rng := domain.BlockRange{Start: a.cfg.Scan.StartBlock}
	if a.cfg.Scan.EndBlock != 0 {
		end := a.cfg.Scan.EndBlock
		rng.End = &end
	}
	return rng
}

// runLoop runs one ingestion pass immediately, then again every poll
// interval. Fatal errors stop the loop; transient ones surface on the next
// tick anyway.
func (a *App) runLoop(ctx context.Context) {
	rng := a.blockRange()

	if err := a.loop.Run(ctx, rng); err != nil {
		if ctx.Err() != nil {
			return
		}
		a.log.Error("Ingestion pass failed", "error", err)
	}

	ticker := time.NewTicker(a.cfg.Scan.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.loop.Run(ctx, rng); err != nil {
				if ctx.Err() != nil {
					return
				}
				a.log.Error("Ingestion pass failed", "error", err)
			}
		}
	}
}

func (a *App) runRescanWorker(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.loop.RunRescan(ctx); err != nil && ctx.Err() == nil {
				a.log.Error("Rescan drain failed", "error", err)
			}
		}
	}
}
