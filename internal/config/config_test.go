package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, uint64(10000), cfg.RingCapacity)
	assert.Equal(t, uint64(1024), cfg.AssetBufferCapacity)
	assert.Empty(t, cfg.Adapters)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.Database.Configured())
	assert.Empty(t, cfg.RedisAddr)
}

func TestParseAdaptersValid(t *testing.T) {
	t.Setenv("MTC_ADAPTERS", "dev-1@10.0.0.5:7878,dev-2@10.0.0.6:7878")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.Adapters, 2)
	assert.Equal(t, "dev-1", cfg.Adapters[0].DeviceUUID)
	assert.Equal(t, "10.0.0.5:7878", cfg.Adapters[0].Address)
}

func TestParseAdaptersRejectsMalformedEntry(t *testing.T) {
	t.Setenv("MTC_ADAPTERS", "dev-1-missing-address")
	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestWebhookURLsSplit(t *testing.T) {
	t.Setenv("MTC_WEBHOOK_URLS", "http://a.example/hook, http://b.example/hook")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example/hook", "http://b.example/hook"}, cfg.WebhookURLs)
}

func TestDatabaseConfigDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", db.GetDSN())
}
