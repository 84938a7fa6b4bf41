// Tradebook server entry point: wires the ledger, price cache, quote
// stream and HTTP API together and owns graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/tradebook/internal/clients/finnhub"
	"github.com/aristath/tradebook/internal/config"
	"github.com/aristath/tradebook/internal/database"
	"github.com/aristath/tradebook/internal/modules/ledger"
	"github.com/aristath/tradebook/internal/modules/pricing"
	"github.com/aristath/tradebook/internal/modules/watchlist"
	"github.com/aristath/tradebook/internal/scheduler"
	"github.com/aristath/tradebook/internal/server"
	"github.com/aristath/tradebook/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("port", cfg.Port).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting tradebook server")

	// The ledger database is the single source of truth for balances;
	// the cache database only ever holds reconstructible state.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	defer ledgerDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{ledgerDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	// Ledger side
	repo := ledger.NewRepository(ledgerDB.Conn(), log)
	executor := ledger.NewExecutor(ledgerDB.Conn(), repo, log)
	watchlistRepo := watchlist.NewRepository(ledgerDB.Conn(), log)

	// Pricing side: every applied tick flows cache -> reconciler -> positions
	priceCache := pricing.NewCache(log)
	reconciler := pricing.NewReconciler(repo, log)
	priceCache.OnUpdate(reconciler.Apply)

	snapshots := pricing.NewSnapshotStore(cacheDB.Conn(), log)
	if err := snapshots.Load(priceCache); err != nil {
		// A lost snapshot only means a cold cache
		log.Warn().Err(err).Msg("Failed to restore price cache snapshot")
	}

	quoteClient := finnhub.NewClient(cfg.FinnhubBaseURL, cfg.FinnhubAPIKey, log)

	streamURL := cfg.FinnhubWSURL
	if cfg.FinnhubAPIKey != "" {
		streamURL += "?token=" + url.QueryEscape(cfg.FinnhubAPIKey)
	}
	stream := finnhub.NewStreamSupervisor(streamURL, finnhub.Dial, priceCache, cfg.ReconnectDelay, log)

	if cfg.FinnhubAPIKey != "" {
		watched, err := watchlistRepo.AllSymbols()
		if err != nil {
			return fmt.Errorf("failed to load watched symbols: %w", err)
		}
		// Start is non-fatal on connection failure; it keeps retrying
		if err := stream.Start(append(watched, cfg.IndexSymbols...)); err != nil {
			log.Warn().Err(err).Msg("Quote stream not yet connected")
		}
	} else {
		log.Warn().Msg("FINNHUB_API_KEY not set, quote stream and polling disabled")
	}

	sched := scheduler.New(log)
	if cfg.FinnhubAPIKey != "" {
		pollJob := pricing.NewPollJob(quoteClient, watchlistRepo, priceCache, cfg.IndexSymbols, log)
		schedule := fmt.Sprintf("@every %s", cfg.PollInterval)
		if err := sched.AddJob(schedule, pollJob); err != nil {
			return fmt.Errorf("failed to register quote poll job: %w", err)
		}

		// Warm the cache at boot instead of waiting for the first cycle
		go func() {
			if err := sched.RunNow(pollJob); err != nil {
				log.Warn().Err(err).Msg("Initial quote poll failed")
			}
		}()
	}
	sched.Start()

	srv := server.New(server.Config{
		Port:            cfg.Port,
		DevMode:         cfg.DevMode,
		StartingBalance: cfg.StartingBalance,
		Log:             log,
		LedgerDB:        ledgerDB,
		CacheDB:         cacheDB,
		Repo:            repo,
		Executor:        executor,
		WatchlistRepo:   watchlistRepo,
		PriceCache:      priceCache,
		Quotes:          quoteClient,
		Stream:          stream,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// Shutdown order: stop inbound traffic sources first, then flush
	// state, then stop serving.
	if err := stream.Stop(); err != nil {
		log.Warn().Err(err).Msg("Error stopping quote stream")
	}
	sched.Stop()

	if err := snapshots.Save(priceCache); err != nil {
		log.Warn().Err(err).Msg("Failed to save price cache snapshot")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if err := ledgerDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
