package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/alpha-trader/internal/config"
	"github.com/aristath/alpha-trader/internal/modules/audit"
	"github.com/aristath/alpha-trader/internal/modules/execution"
	"github.com/aristath/alpha-trader/internal/modules/portfolio"
	"github.com/aristath/alpha-trader/internal/modules/strategy"
	"github.com/aristath/alpha-trader/internal/modules/universe"
	"github.com/aristath/alpha-trader/internal/scheduler"
	"github.com/aristath/alpha-trader/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet
		panic(err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		File:   cfg.LogFile,
	})

	log.Info().Msg("Starting alpha trader")

	// Load strategy parameters
	params, err := config.LoadStrategyParams(cfg.StrategyParamsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategy parameters")
	}

	// Load the trading universe
	u, err := universe.LoadFromYAML(cfg.UniversePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load trading universe")
	}

	// Open the cycle snapshot store
	store, err := audit.Open(cfg.AuditDatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit store")
	}
	defer store.Close()

	// Paper book and execution
	book := portfolio.NewBook(float64(cfg.PaperStartingCash))
	pm := execution.NewPaperPositionManager(book, u, log)

	svc := strategy.New(params, u, pm, store, cfg.SignalsPath, log)

	// Schedule strategy cycles
	runner := scheduler.New(log)
	if err := runner.AddCycle(cfg.CycleSchedule, "rebalance", svc.RunCycle); err != nil {
		log.Fatal().Err(err).Msg("Failed to register strategy cycle")
	}
	runner.Start()
	defer runner.Stop()

	log.Info().
		Str("schedule", cfg.CycleSchedule).
		Int("pairs", len(u.SpotPairs())).
		Float64("starting_cash", book.Cash()).
		Msg("Trader started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down trader...")
}
