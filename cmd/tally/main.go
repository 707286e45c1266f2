package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/cli"
	"tally/internal/config"
	apphttp "tally/internal/http"
	applog "tally/internal/log"
	"tally/internal/services"
	"tally/internal/tarot"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	loc, _ := cfg.Location()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.MongoTimeout+5*time.Second)
	store, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).CreateBackend(startCtx, backendCfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var (
		publisher services.EventPublisher
		events    *amqp.Client
	)
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger.WithComponent(applog.ComponentAMQP).Slog())
		if err != nil {
			logger.Warn("AMQP unavailable, caches will not be invalidated across instances", applog.FieldError, err)
			events = nil
		} else {
			publisher = events
		}
	}

	ledger := services.NewLedger(store, publisher, services.Config{
		Location:        loc,
		RecentLimit:     cfg.RecentLimit,
		SummaryLimit:    cfg.SummaryLimit,
		CacheTTL:        cfg.CacheTTL,
		CacheMaxEntries: cfg.CacheMaxEntries,
	}, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Ledger:             ledger,
		Deck:               loadDeck(cfg, logger),
		TarotCover:         coverPath(cfg),
		TarotSpread:        cfg.TarotSpread,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	if events != nil {
		go func() {
			if err := events.ConsumeTransactionEvents(ctx, ledger.HandleTransactionEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Transaction event consumer stopped", applog.FieldError, err)
			}
		}()
	}

	logger.Info("Starting tally server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String(),
		"amqp", events != nil,
		applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)

	_ = ledger.Close()
	if events != nil {
		if err := events.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Warn("Backend close error", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}

// loadDeck returns nil when the card directory cannot be read; the tarot
// page then reports the deck as unavailable.
func loadDeck(cfg *config.Config, logger *applog.Logger) apphttp.Deck {
	deck, err := tarot.LoadDeck(cfg.TarotDir)
	if err != nil {
		logger.Warn("Tarot deck unavailable", applog.FieldError, err, applog.FieldComponent, applog.ComponentTarot)
		return nil
	}
	logger.Info("Tarot deck loaded", applog.FieldCount, deck.Len(), "dir", cfg.TarotDir)
	return deck
}

func coverPath(cfg *config.Config) string {
	if cfg.TarotCover != "" {
		return cfg.TarotCover
	}
	return filepath.Join(cfg.TarotDir, tarot.CoverFile)
}
