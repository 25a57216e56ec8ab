package config

import (
	"fmt"
	"os"
	"time"

	"github.com/interaction-monitor/pkg/models"
)

// Config holds application configuration read from the environment
type Config struct {
	Port                string
	DatabaseURL         string
	RedisURL            string
	LogLevel            string
	Env                 string
	RulesFile           string          // YAML rules file, watched for changes
	MatchTimeout        time.Duration   // Upper bound for a single pattern match
	BlockSeverity       models.Severity // Lowest failing severity that blocks an interaction
	SyncInterval        time.Duration   // Redis -> Postgres history sync period
	RuleRefreshInterval time.Duration   // Rules table refresh period
	HistoryLoadLimit    int             // Records restored from Postgres at start-up
	DBMaxOpenConns      int             // Maximum number of open database connections
	DBMaxIdleConns      int             // Maximum number of idle database connections
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		LogLevel:            getEnv("LOG_LEVEL", "debug"),
		Env:                 getEnv("ENV", "development"),
		RulesFile:           getEnv("RULES_FILE", "rules.yaml"),
		MatchTimeout:        getEnvAsDuration("MATCH_TIMEOUT", 100*time.Millisecond),
		SyncInterval:        getEnvAsDuration("SYNC_INTERVAL", 5*time.Second),
		RuleRefreshInterval: getEnvAsDuration("RULE_REFRESH_INTERVAL", 10*time.Minute),
		HistoryLoadLimit:    getEnvAsInt("HISTORY_LOAD_LIMIT", 1000),
		DBMaxOpenConns:      getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:      getEnvAsInt("DB_MAX_IDLE_CONNS", 20),
	}

	severity, err := models.ParseSeverity(getEnv("BLOCK_SEVERITY", string(models.SeverityHigh)))
	if err != nil {
		return nil, fmt.Errorf("BLOCK_SEVERITY: %w", err)
	}
	if severity.Rank() < models.SeverityHigh.Rank() {
		return nil, fmt.Errorf("BLOCK_SEVERITY must be high or critical, got %q", severity)
	}
	config.BlockSeverity = severity

	// Validate required fields
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if config.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return config, nil
}

// getEnv reads an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration reads an environment variable as a duration ("250ms", "5s")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
