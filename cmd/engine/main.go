package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rawblock/wallet-risk-engine/internal/api"
	"github.com/rawblock/wallet-risk-engine/internal/config"
	"github.com/rawblock/wallet-risk-engine/internal/db"
	"github.com/rawblock/wallet-risk-engine/internal/etherscan"
	"github.com/rawblock/wallet-risk-engine/internal/logger"
	"github.com/rawblock/wallet-risk-engine/internal/monitor"
	"github.com/rawblock/wallet-risk-engine/internal/publish"
	"github.com/rawblock/wallet-risk-engine/internal/service"
	"github.com/rawblock/wallet-risk-engine/internal/watchlist"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	// ─── Configuration ──────────────────────────────────────────────────
	// Credentials come from the environment only. Use a .env file for
	// local development.
	// ────────────────────────────────────────────────────────────────────
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	level := logger.SetLevel(cfg.LogLevel)
	log.Info().Bool("dotenv", dotenv).Str("level", level.String()).Msg("Starting Wallet Risk Engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Blacklist: config first, then rows persisted by earlier runs.
	registry := watchlist.New()
	entries, err := cfg.BlacklistEntries()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid blacklist configuration")
	}
	for _, e := range entries {
		registry.Add(e.Address, e.Label, "config")
	}

	var deps service.Deps

	var store *db.PostgresStore
	if cfg.DatabaseURL != "" {
		store = connectStore(ctx, cfg.DatabaseURL, registry, log)
		if store != nil {
			defer store.Close()
			deps.Store = store
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set; assessment history is disabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := publish.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Kafka, continuing without publishing")
		} else {
			defer func() {
				if err := sink.Close(); err != nil {
					log.Warn().Err(err).Msg("Kafka close failed")
				}
			}()
			deps.Sink = sink
			log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Publishing assessments to Kafka")
		}
	}

	if cfg.EtherscanAPIKey != "" {
		deps.Fetcher = etherscan.NewClient(cfg.EtherscanURL, cfg.EtherscanAPIKey, log)
	} else {
		log.Warn().Msg("ETHERSCAN_API_KEY not set; live wallet assessment is disabled")
	}

	wsHub := api.NewHub(log)
	go wsHub.Run()
	defer wsHub.Close()
	deps.Hub = wsHub

	thresholds, err := cfg.Thresholds(registry.Snapshot())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid rule thresholds")
	}
	svc, err := service.New(service.Options{
		Thresholds:        thresholds,
		TransactionCount:  cfg.TransactionCount,
		WalletAgeEstimate: cfg.WalletAgeEstimate,
		Workers:           cfg.EngineWorkers,
	}, registry, deps, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build assessment service")
	}

	// The poller fans out to the hub and sink, so it must stop before the
	// deferred closes above run.
	var background sync.WaitGroup
	defer background.Wait()
	if len(cfg.WatchWallets) > 0 {
		if deps.Fetcher == nil {
			log.Warn().Msg("WATCH_WALLETS set without ETHERSCAN_API_KEY; wallet monitor disabled")
		} else {
			poller := monitor.NewPoller(svc, cfg.WatchWallets, cfg.WatchInterval, log)
			background.Add(1)
			go func() {
				defer background.Done()
				poller.Run(ctx)
			}()
		}
	}

	r := api.SetupRouter(ctx, svc, wsHub, api.RouterConfig{
		AllowedOrigins:  cfg.AllowedOrigins,
		AuthToken:       cfg.APIAuthToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		RateLimitBurst:  cfg.RateLimitBurst,
		DBConnected:     store != nil,
		KafkaEnabled:    deps.Sink != nil,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Int("blacklist", registry.Size()).Msg("Engine listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}

// connectStore opens Postgres, applies the schema and warm-starts the
// registry. Failures are logged and the engine runs without persistence.
func connectStore(ctx context.Context, url string, registry *watchlist.Registry, log zerolog.Logger) *db.PostgresStore {
	store, err := db.Connect(ctx, url, log)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to PostgreSQL, continuing without persistence")
		return nil
	}
	if err := store.InitSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("DB schema init failed")
	}

	rows, err := store.LoadBlacklist(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted blacklist")
		return store
	}
	for _, row := range rows {
		registry.Add(row.Address, row.Label, "database")
	}
	log.Info().Int("entries", len(rows)).Msg("Loaded persisted blacklist")
	return store
}
