// Package config loads and validates environment variables at startup.
// Fail-fast: if a variable is present but invalid, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultStateFile    = "data/state.json"
	defaultCatalogURL   = "https://www.vinted.co.uk"
	defaultPollInterval = 15
	defaultMaxPerTick   = 5

	// Observed safe range: below 5s the upstream rate-limits aggressively,
	// above 30s freshness degrades past usefulness.
	minPollInterval = 5
	maxPollInterval = 30
)

// Config holds all runtime configuration for the monitor service.
type Config struct {
	Port                string
	TelegramToken       string
	DatabaseURL         string // optional: Postgres-backed stores when set
	RedisURL            string // optional: Redis-backed seen store when set
	StateFile           string // JSON fallback store location
	CatalogBaseURL      string
	PollIntervalSeconds int
	MaxPerTick          int // notification cap per search per tick
	LogLevel            string
	LogFormat           string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	interval := defaultPollInterval
	if s := os.Getenv("POLL_INTERVAL_SECONDS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be an integer, got %q", s)
		}
		if v < minPollInterval || v > maxPollInterval {
			return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be between %d and %d, got %d",
				minPollInterval, maxPollInterval, v)
		}
		interval = v
	}

	maxPerTick := defaultMaxPerTick
	if s := os.Getenv("MAX_PER_TICK"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("MAX_PER_TICK must be a positive integer, got %q", s)
		}
		maxPerTick = v
	}

	stateFile := os.Getenv("STATE_FILE")
	if stateFile == "" {
		stateFile = defaultStateFile
	}

	catalogURL := os.Getenv("CATALOG_BASE_URL")
	if catalogURL == "" {
		catalogURL = defaultCatalogURL
	}

	port := os.Getenv("MONITOR_PORT")
	if port == "" {
		port = "8082"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		Port:                port,
		TelegramToken:       token,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		StateFile:           stateFile,
		CatalogBaseURL:      catalogURL,
		PollIntervalSeconds: interval,
		MaxPerTick:          maxPerTick,
		LogLevel:            logLevel,
		LogFormat:           os.Getenv("LOG_FORMAT"),
	}, nil
}
