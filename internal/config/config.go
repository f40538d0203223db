// Package config loads the broker's immutable configuration record.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	defaultBindAddr       = "[::]:7001"
	defaultDataDir        = "./data"
	defaultNodeID         = "node-1"
	defaultMaxConnections = 256
)

// AppConfig is constructed once at startup and read-only thereafter.
type AppConfig struct {
	NodeID         string
	BindAddr       string
	DataDir        string
	MaxConnections int
}

// Load reads AppConfig from the environment, falling back to defaults for
// anything unset or invalid. A ".env" file in the working directory is
// loaded first, if present, purely as a local-development convenience;
// its absence is not an error.
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := AppConfig{
		NodeID:         getEnv("NODE_ID", defaultNodeID),
		BindAddr:       getEnv("BIND_ADDR", defaultBindAddr),
		DataDir:        getEnv("DATA_DIR", defaultDataDir),
		MaxConnections: getEnvInt("MAX_CONNECTIONS", defaultMaxConnections),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return AppConfig{}, fmt.Errorf("create data dir %q: %w", cfg.DataDir, err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer env var, using default")
		return fallback
	}
	return n
}
