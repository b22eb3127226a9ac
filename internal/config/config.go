package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	AdminAddr    string
	DataDir      string
	DatabasePath string
	LogDir       string
	FrontendDir  string
	UpstreamURL  string
	NotifyURLs   []string
	GeoIPPath    string
	Debug        bool
	SyncSchedule string
}

// Load reads an optional .env file and then env vars, falling back to
// defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	// A missing .env is normal; the process environment is used as-is.
	_ = godotenv.Load()

	cfg := Config{
		Environment:  getEnv("SENTINEL_ENV", "development"),
		HTTPPort:     getEnv("SENTINEL_HTTP_PORT", "8080"),
		AdminAddr:    getEnv("SENTINEL_ADMIN_ADDR", "127.0.0.1:8081"),
		DataDir:      getEnv("SENTINEL_DATA_DIR", filepath.Join("data", "sentinel")),
		DatabasePath: getEnv("SENTINEL_DB_PATH", filepath.Join("data", "sentinel.db")),
		LogDir:       getEnv("SENTINEL_LOG_DIR", filepath.Join("data", "logs")),
		FrontendDir:  getEnv("SENTINEL_FRONTEND_DIR", ""),
		UpstreamURL:  getEnv("SENTINEL_UPSTREAM_URL", ""),
		NotifyURLs:   splitList(os.Getenv("SENTINEL_NOTIFY_URLS")),
		GeoIPPath:    getEnv("SENTINEL_GEOIP_DB", ""),
		Debug:        getBool("SENTINEL_DEBUG", false),
		SyncSchedule: getEnv("SENTINEL_SYNC_SCHEDULE", "@every 1m"),
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure database directory: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the environment is "production".
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
