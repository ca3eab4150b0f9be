// Package main provides the indexer entry point: watcher, job workers
// and the read-only projection API in one process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/splits-indexer/internal/adapter"
	"github.com/splits-indexer/internal/api"
	"github.com/splits-indexer/internal/config"
	"github.com/splits-indexer/internal/events"
	"github.com/splits-indexer/internal/job"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/service"
	"github.com/splits-indexer/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level := logging.ParseLogLevel(cfg.Logging.Level)
	format := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(level, format)
	logger := logging.NewLogger(level, format)

	logger.Info("Splits indexer starting")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	redis, err := storage.NewRedisQueueStore(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// ClickHouse audit sink is optional. Failures here degrade to
	// running without the sink rather than aborting startup.
	var audit *storage.AuditSink
	if cfg.Database.ClickHouse.Host != "" {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, continuing without audit sink")
		} else {
			defer clickhouse.Close()
			audit = storage.NewAuditSink(clickhouse)
			if err := audit.CreateAuditTable(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to prepare audit table, continuing without audit sink")
				audit = nil
			}
		}
	}

	// One RPC client feeds both the log watcher and the contract caller
	client, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to dial RPC endpoint")
	}
	defer client.Close()

	contract, err := adapter.NewEthereumContractWithClient(client, &cfg.Chain)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize contract caller")
	}
	fetcher := adapter.NewIPFSFetcher(&cfg.IPFS)

	engine := service.NewEngine(postgres, contract, fetcher)
	dispatcher := events.NewDispatcher(engine)

	queue := job.NewQueue(redis.Client())
	pool := job.NewWorkerPool(queue, dispatcher, audit, &cfg.Queue, logger)

	decoder, err := events.NewDecoder()
	if err != nil {
		logger.WithError(err).Fatal("Failed to build event decoder")
	}
	ingestor := events.NewIngestor(postgres, queue)
	watcher := events.NewWatcher(client, decoder, ingestor, postgres, &cfg.Chain, logger)

	server := api.NewServer(postgres, &cfg.API, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	go watcher.Run(ctx)
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("API server terminated")
			cancel()
		}
	}()

	logger.WithField("workers", cfg.Queue.Workers).Info("Indexer running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown failed")
	}

	pool.Wait()
	logger.Info("Indexer stopped")
}
