package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable applyEnv reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LINKGRAPH_CONFIG_FILE", "ENVIRONMENT", "LOG_LEVEL", "LINK_STORAGE", "SQL_DSN",
		"AWS_REGION", "TABLE_NAME", "DYNAMODB_TABLE", "INDEX_NAME", "GSI2_INDEX_NAME",
		"EVENT_BUS_NAME", "EVENT_SOURCE", "LINK_CACHE", "BADGER_DIR", "CACHE_SWEEP_EVERY",
		"AWS_LAMBDA_FUNCTION_NAME", "IS_LAMBDA", "ENABLE_METRICS", "ENABLE_TRACING",
		"METRICS_NAMESPACE", "METRICS_FLUSH_EVERY", "PUBLISH_TO_CLOUDWATCH",
		"WRITE_RATE_PER_SECOND", "WRITE_BURST", "DISTRIBUTED_RATE_LIMIT", "RATE_LIMIT_WINDOW",
		"ENABLE_CIRCUIT_BREAKER", "BREAKER_MIN_REQUESTS", "BREAKER_OPEN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestRead_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Read("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.NeedsAWS())
}

func TestRead_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "linkgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: staging
storage: sqlite
sql_dsn: file:links.db
cache: badger
badger_dir: /tmp/links-cache
write_rate_per_second: 5
cache_sweep_every: 2m
`), 0o600))

	t.Setenv("LINKGRAPH_CONFIG_FILE", path)
	t.Setenv("LINK_STORAGE", "POSTGRES")
	t.Setenv("SQL_DSN", "postgres://links")
	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("ENABLE_CIRCUIT_BREAKER", "false")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "link-cleanup")

	cfg, err := Read("")
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, StoragePostgres, cfg.Storage, "environment wins over the file")
	assert.Equal(t, "postgres://links", cfg.SQLDSN)
	assert.Equal(t, CacheBadger, cfg.Cache)
	assert.Equal(t, "/tmp/links-cache", cfg.BadgerDir)
	assert.Equal(t, 2*time.Minute, cfg.CacheSweepEvery)
	assert.Equal(t, 5.0, cfg.WriteRatePerSecond)
	assert.Equal(t, 20, cfg.WriteBurst, "defaults survive a partial file")
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.False(t, cfg.EnableCircuitBreaker)
	assert.True(t, cfg.IsLambda)
	assert.NoError(t, cfg.Validate())
}

func TestRead_BadFile(t *testing.T) {
	clearEnv(t)

	_, err := Read(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o600))
	_, err = Read(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadConfig_Validates(t *testing.T) {
	clearEnv(t)
	t.Setenv("LINK_STORAGE", "cassandra")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"sql without dsn", func(c *Config) { c.Storage = StorageSQLite }, "SQL_DSN is required"},
		{"dynamodb without table", func(c *Config) {
			c.Storage = StorageDynamoDB
			c.DynamoDBTable = ""
		}, "DYNAMODB_TABLE is required"},
		{"dynamodb without indexes", func(c *Config) {
			c.Storage = StorageDynamoDB
			c.GSI2IndexName = ""
		}, "GSI2_INDEX_NAME"},
		{"unknown cache", func(c *Config) { c.Cache = "redis" }, "unknown cache backend"},
		{"cloudwatch without metrics", func(c *Config) { c.PublishToCloudWatch = true }, "requires ENABLE_METRICS"},
		{"negative rate", func(c *Config) { c.WriteRatePerSecond = -1 }, "cannot be negative"},
		{"rate without burst", func(c *Config) {
			c.WriteRatePerSecond = 1
			c.WriteBurst = 0
		}, "WRITE_BURST"},
		{"distributed limiter without table", func(c *Config) {
			c.DistributedRateLimit = true
			c.DynamoDBTable = ""
		}, "DISTRIBUTED_RATE_LIMIT requires"},
		{"breaker without threshold", func(c *Config) { c.BreakerMinRequests = 0 }, "BREAKER_MIN_REQUESTS"},
		{"memory in production", func(c *Config) { c.Environment = "production" }, "memory storage is not allowed"},
		{"production without bus", func(c *Config) {
			c.Environment = "production"
			c.Storage = StorageDynamoDB
		}, "EVENT_BUS_NAME is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestNeedsAWS(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"local only", func(*Config) {}, false},
		{"dynamodb storage", func(c *Config) { c.Storage = StorageDynamoDB }, true},
		{"event bus", func(c *Config) { c.EventBusName = "links" }, true},
		{"cloudwatch", func(c *Config) { c.PublishToCloudWatch = true }, true},
		{"distributed limiter", func(c *Config) {
			c.DistributedRateLimit = true
			c.WriteRatePerSecond = 1
		}, true},
		{"distributed limiter disabled", func(c *Config) { c.DistributedRateLimit = true }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Equal(t, tt.want, cfg.NeedsAWS())
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("LG_TEST_DURATION", "45")
	assert.Equal(t, 45*time.Second, getEnvDuration("LG_TEST_DURATION", time.Minute))
	t.Setenv("LG_TEST_DURATION", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("LG_TEST_DURATION", time.Minute))
	t.Setenv("LG_TEST_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("LG_TEST_DURATION", time.Minute))

	t.Setenv("LG_TEST_BOOL", "yes")
	assert.True(t, getEnvBool("LG_TEST_BOOL", false))
	t.Setenv("LG_TEST_BOOL", "off")
	assert.False(t, getEnvBool("LG_TEST_BOOL", true))

	t.Setenv("LG_TEST_INT", "x")
	assert.Equal(t, 7, getEnvInt("LG_TEST_INT", 7))
	t.Setenv("LG_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, getEnvFloat("LG_TEST_FLOAT", 0))
}
