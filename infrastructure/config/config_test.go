package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stratus-backend/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
environment: staging
cache:
  provider: dynamodb
  table: stratus-cache
refresh:
  interval: 2m
  jitter: 10s
  timeout: 45s
  maxConcurrent: 8
source:
  baseUrl: http://inventory.internal:9090
accounts:
  - name: acct1
    provider: aws
    regions: [us-east, us-west]
`

func TestLoad_FileOverridesDefaults(t *testing.T) {
	// Arrange
	path := writeConfig(t, validYAML)

	// Act
	cfg, err := config.Load(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "dynamodb", cfg.Cache.Provider)
	assert.Equal(t, "stratus-cache", cfg.Cache.Table)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, 8, cfg.Refresh.MaxConcurrent)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, []string{"us-east", "us-west"}, cfg.Accounts[0].Regions)

	// Defaults survive where the file is silent
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, validYAML)
	t.Setenv("CACHE_TABLE", "stratus-cache-test")
	t.Setenv("REFRESH_INTERVAL", "30s")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "stratus-cache-test", cfg.Cache.Table)
	assert.Equal(t, 30*time.Second, cfg.Refresh.Interval)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
environment: development
cache:
  provider: redis
accounts:
  - name: acct1
    provider: aws
    regions: [us-east]
`)

	_, err := config.Load(path)

	assert.Error(t, err)
}

func TestLoad_RequiresTableForDynamoDB(t *testing.T) {
	path := writeConfig(t, `
environment: development
cache:
  provider: dynamodb
accounts:
  - name: acct1
    provider: aws
    regions: [us-east]
`)

	_, err := config.Load(path)

	assert.Error(t, err)
}

func TestLoad_RejectsMemoryStoreInProduction(t *testing.T) {
	path := writeConfig(t, `
environment: production
cache:
  provider: memory
accounts:
  - name: acct1
    provider: aws
    regions: [us-east]
`)

	_, err := config.Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory store")
}

func TestLoad_RejectsJitterAboveInterval(t *testing.T) {
	path := writeConfig(t, `
environment: development
refresh:
  interval: 10s
  jitter: 20s
  timeout: 5s
  maxConcurrent: 2
accounts:
  - name: acct1
    provider: aws
    regions: [us-east]
`)

	_, err := config.Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jitter")
}

func TestLoad_EnvOnlyWithoutAccounts(t *testing.T) {
	// The lambda cold start loads with no file and no accounts: a read-only
	// deployment that serves the shared cache without running any agents.
	t.Setenv("CACHE_PROVIDER", "dynamodb")
	t.Setenv("CACHE_TABLE", "stratus-cache")

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, "dynamodb", cfg.Cache.Provider)
	assert.Equal(t, "stratus-cache", cfg.Cache.Table)
	assert.Empty(t, cfg.Accounts)
}

func TestLoad_RejectsAccountWithoutRegions(t *testing.T) {
	// Accounts may be absent entirely, but a listed account must be complete.
	path := writeConfig(t, `
environment: development
accounts:
  - name: acct1
    provider: aws
`)

	_, err := config.Load(path)

	assert.Error(t, err)
}
