package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	AuditDatabasePath  string
	StrategyParamsPath string
	UniversePath       string
	SignalsPath        string
	CycleSchedule      string
	PaperStartingCash  int
	LogLevel           string
	LogFile            string
	DevMode            bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		AuditDatabasePath:  getEnv("AUDIT_DATABASE_PATH", "./data/cycles.db"),
		StrategyParamsPath: getEnv("STRATEGY_PARAMS_PATH", ""),
		UniversePath:       getEnv("UNIVERSE_PATH", "./data/universe.yaml"),
		SignalsPath:        getEnv("SIGNALS_PATH", "./data/signals.yaml"),
		CycleSchedule:      getEnv("CYCLE_SCHEDULE", "@hourly"),
		PaperStartingCash:  getEnvAsInt("PAPER_STARTING_CASH", 10000),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
		DevMode:            getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.AuditDatabasePath == "" {
		return fmt.Errorf("AUDIT_DATABASE_PATH is required")
	}
	if c.CycleSchedule == "" {
		return fmt.Errorf("CYCLE_SCHEDULE is required")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
