package main

import (
	"context"
	"errors"
	"os"

	"expenses/internal/amqp"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/log"
	"expenses/internal/services"
	"expenses/internal/sheets/google"
	"expenses/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker, (*config.Config).ValidateWorker)
	logger.Info("Starting expenses-worker")

	parent, stop := context.WithCancel(context.Background())
	defer stop()

	store := cli.OpenStore(parent, logger, cfg)

	sheetsClient, err := google.New(parent, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		ExpensesSheet:   cfg.GoogleSheetName,
		SummarySheet:    cfg.GoogleSummarySheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	if err := sheetsClient.EnsureHeaders(parent); err != nil {
		// Not fatal: the sheet may be briefly unreachable, and rows still land below.
		logger.Warn("Failed to write sheet headers", log.FieldError, err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	mirror := worker.NewMirrorWorker(sheetsClient)
	if cfg.ResyncOnStart {
		logger.Info("Performing startup resync")
		if _, err := mirror.Resync(parent, store.Store); err != nil {
			logger.Error("Startup resync failed", log.FieldError, err)
		}
	}

	digest := worker.NewDigest(services.NewSummaryService(store.Store), sheetsClient, cfg.Location())
	scheduler, err := digest.Schedule(parent, cfg.DigestSchedule)
	if err != nil {
		logger.Error("Failed to schedule monthly digest", log.FieldError, err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Monthly digest scheduled", "schedule", cfg.DigestSchedule, "timezone", cfg.Location().String())

	ctx, done := cli.GracefulShutdown(parent, logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
		if err := amqpClient.Close(); err != nil {
			logger.Error("Failed to close AMQP client", log.FieldError, err)
		}
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	})

	go func() {
		if err := amqpClient.ConsumeExpenseEvents(ctx, mirror.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", log.FieldError, err)
			stop()
		}
	}()

	<-done
	logger.Info("Worker stopped")
}
