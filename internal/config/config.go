// Package config loads the agent's runtime configuration from
// environment variables, following owl-common/config's LoadFromEnv
// idiom (SPEC_FULL.md's ambient configuration section).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/micheletedeschi/mtconnect-agent/internal/adapter"
)

// DatabaseConfig holds the audit sink's Postgres connection
// parameters.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN builds a libpq-style connection string.
func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Configured reports whether enough of MTC_DB_* was set to attempt a
// connection. An empty host leaves the audit sink disabled.
func (c DatabaseConfig) Configured() bool {
	return c.Host != ""
}

func (c *DatabaseConfig) loadFromEnv() {
	c.Host = getEnv("MTC_DB_HOST", "")
	c.Port = getEnvInt("MTC_DB_PORT", 5432)
	c.User = getEnv("MTC_DB_USER", "mtconnect")
	c.Password = getEnv("MTC_DB_PASSWORD", "")
	c.Database = getEnv("MTC_DB_NAME", "mtconnect")
	c.SSLMode = getEnv("MTC_DB_SSLMODE", "disable")
}

// Config is the agent's full runtime configuration.
type Config struct {
	HTTPAddr string

	RingCapacity        uint64
	AssetBufferCapacity uint64

	Adapters []adapter.Endpoint

	// DevicesFile points at a {devices:[...]} JSON file (spec.md §6)
	// loaded once at startup; empty disables device preloading.
	DevicesFile string

	XSDValidatorCmd string

	Database DatabaseConfig
	RedisAddr string

	WebhookURLs []string

	LogLevel  string
	LogFormat string
}

// LoadFromEnv reads MTC_* environment variables into a Config,
// defaulting anything unset.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:            getEnv("MTC_HTTP_ADDR", ":7000"),
		RingCapacity:        getEnvUint("MTC_RING_CAPACITY", 10000),
		AssetBufferCapacity: getEnvUint("MTC_ASSET_BUFFER_CAPACITY", 1024),
		DevicesFile:         getEnv("MTC_DEVICES_FILE", ""),
		XSDValidatorCmd:     getEnv("MTC_XSD_VALIDATOR_CMD", ""),
		RedisAddr:           getEnv("MTC_REDIS_ADDR", ""),
		LogLevel:            getEnv("MTC_LOG_LEVEL", "info"),
		LogFormat:           getEnv("MTC_LOG_FORMAT", "json"),
	}
	cfg.Database.loadFromEnv()

	adapters, err := parseAdapters(getEnv("MTC_ADAPTERS", ""))
	if err != nil {
		return nil, err
	}
	cfg.Adapters = adapters

	cfg.WebhookURLs = splitNonEmpty(getEnv("MTC_WEBHOOK_URLS", ""))

	return cfg, nil
}

// parseAdapters parses a comma-separated uuid@host:port list, e.g.
// "dev-uuid-1@10.0.0.5:7878,dev-uuid-2@10.0.0.6:7878".
func parseAdapters(raw string) ([]adapter.Endpoint, error) {
	var endpoints []adapter.Endpoint
	for _, entry := range splitNonEmpty(raw) {
		parts := strings.SplitN(entry, "@", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("config: invalid MTC_ADAPTERS entry %q, want uuid@host:port", entry)
		}
		endpoints = append(endpoints, adapter.Endpoint{DeviceUUID: parts[0], Address: parts[1]})
	}
	return endpoints, nil
}

func splitNonEmpty(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
