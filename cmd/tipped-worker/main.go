package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tipped/internal/amqp"
	"tipped/internal/cli"
	"tipped/internal/ledger"
	gledger "tipped/internal/ledger/google"
	"tipped/internal/services"
	"tipped/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("tipped-worker")

	logger.Info("Starting tipped-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ledger client for sync operations (optional)
	var (
		appender ledger.TipAppender
		remover  ledger.TipRemover
	)
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gledger.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize ledger client", "error", err)
			os.Exit(1)
		}
		appender, remover = client, client
		logger.Info("Ledger client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Ledger sync disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	if appender == nil {
		// Nothing to sync against; stay up so pending rows are visible
		// in logs, but do no work.
		logger.Info("No ledger configured, worker idle until shutdown")
		<-ctx.Done()
		return
	}

	processor := services.NewSyncProcessor(repo, appender, remover, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	})

	syncWorker := worker.NewSyncWorker(processor, repo, cfg.SyncBatchSize)

	// On startup, reconcile anything that went pending while we were down.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
		// Don't exit - continue with normal operation
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Fast path: consume sync messages from the broker.
	g.Go(func() error {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer amqpClient.Close()

		err = amqpClient.ConsumeTipSync(gctx, syncWorker.HandleSyncMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Error("Sync processor stop error", "error", err)
	}

	logger.Info("Worker shutdown complete")
}
