package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/cli"
	"gastos/internal/export"
	"gastos/internal/export/sheets"
	"gastos/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting gastos-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.ExportEnabled() {
		logger.Info("Export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", log.FieldError, err)
		os.Exit(1)
	}

	// The worker reads the ledgers the API server wrote.
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	sheetsClient, err := sheets.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	worker := export.NewWorker(sqliteRepo, sheetsClient, loc, logger)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("No AMQP_URL - exporting on the periodic schedule only", "interval", cfg.ExportInterval.String())
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.Consume(gctx, worker.HandleLedgerChanged)
		})
	}
	g.Go(func() error {
		return worker.Run(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}
