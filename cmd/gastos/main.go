package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gastos/internal/aggregate"
	"gastos/internal/backend"
	"gastos/internal/cache"
	"gastos/internal/cli"
	apphttp "gastos/internal/http"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/session"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", log.FieldError, err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	subOpts := ledger.Options{Interval: cfg.PollInterval, Logger: logger}
	var sub ledger.Subscriber
	switch cfg.LedgerFeed {
	case "poll":
		sub = ledger.NewPollingSubscriber(res.Backend, subOpts)
	default:
		sub = ledger.NewPushSubscriber(res.Backend, res.Feed, subOpts)
	}
	mirror := ledger.NewMirror(res.Backend, res.Feed, sub, logger)

	memo := aggregate.NewMemo(cfg.ViewCacheSize, cfg.ViewCacheTTL)
	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	if cfg.ViewCacheSize > 0 {
		caches.Register(memo.Cache())
		caches.StartCleanup(cfg.ViewCacheTTL)
	} else {
		memo = nil
	}

	sessions := session.NewManager(session.Deps{
		Mirror:   mirror,
		Store:    res.Backend,
		Memo:     memo,
		Location: loc,
		Logger:   logger,
	})

	srv := apphttp.NewServer(":"+cfg.Port, sessions, apphttp.Options{
		Logger:   logger,
		Location: loc,
		Memo:     memo,
	})
	srv.WriteTimeout = 0 // event streams manage their own deadlines

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		sessions.Close()
		caches.Stop()
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting gastos server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"ledger_feed", cfg.LedgerFeed,
		"timezone", loc.String(),
		"amqp", cfg.AMQPURL != "",
		log.FieldOperation, log.OpStartup)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully", "uptime", time.Since(startedAt).Round(time.Second).String())
}

var startedAt = time.Now()
