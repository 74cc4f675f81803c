package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageDynamoDB = "dynamodb"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheBadger = "badger"
	CacheNone   = "none"
)

// Config holds all application configuration
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	// Storage
	Storage string `yaml:"storage"`
	SQLDSN  string `yaml:"sql_dsn"`

	// AWS configuration
	AWSRegion     string `yaml:"aws_region"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	IndexName     string `yaml:"index_name"`      // GSI1 - outgoing links
	GSI2IndexName string `yaml:"gsi2_index_name"` // GSI2 - incoming links
	EventBusName  string `yaml:"event_bus_name"`
	EventSource   string `yaml:"event_source"`

	// Cache
	Cache           string        `yaml:"cache"`
	BadgerDir       string        `yaml:"badger_dir"`
	CacheSweepEvery time.Duration `yaml:"cache_sweep_every"`

	// Lambda configuration
	IsLambda           bool   `yaml:"is_lambda"`
	LambdaFunctionName string `yaml:"lambda_function_name"`

	// Observability
	EnableMetrics       bool          `yaml:"enable_metrics"`
	EnableTracing       bool          `yaml:"enable_tracing"`
	MetricsNamespace    string        `yaml:"metrics_namespace"`
	MetricsFlushEvery   time.Duration `yaml:"metrics_flush_every"`
	PublishToCloudWatch bool          `yaml:"publish_to_cloudwatch"`

	// Write throttling, disabled when WriteRatePerSecond is zero
	WriteRatePerSecond   float64       `yaml:"write_rate_per_second"`
	WriteBurst           int           `yaml:"write_burst"`
	DistributedRateLimit bool          `yaml:"distributed_rate_limit"` // count in DynamoDB across instances
	RateLimitWindow      time.Duration `yaml:"rate_limit_window"`

	// Circuit breaker around the repository
	EnableCircuitBreaker bool          `yaml:"enable_circuit_breaker"`
	BreakerMinRequests   uint32        `yaml:"breaker_min_requests"`
	BreakerOpenTimeout   time.Duration `yaml:"breaker_open_timeout"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Environment:          "development",
		LogLevel:             "info",
		Storage:              StorageMemory,
		AWSRegion:            "us-west-2",
		DynamoDBTable:        "linkgraph",
		IndexName:            "GSI1",
		GSI2IndexName:        "GSI2",
		EventSource:          "linkgraph.links",
		Cache:                CacheMemory,
		CacheSweepEvery:      time.Minute,
		MetricsNamespace:     "linkgraph",
		MetricsFlushEvery:    time.Minute,
		WriteBurst:           20,
		RateLimitWindow:      time.Minute,
		EnableCircuitBreaker: true,
		BreakerMinRequests:   5,
		BreakerOpenTimeout:   30 * time.Second,
	}
}

// LoadConfig reads the YAML file named by LINKGRAPH_CONFIG_FILE, if any, and
// then applies environment variables on top.
func LoadConfig() (*Config, error) {
	cfg, err := Read("")
	if err != nil {
		return nil, err
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read loads defaults, the YAML file at path (LINKGRAPH_CONFIG_FILE when path
// is empty) and the environment, without validating the result.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("LINKGRAPH_CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Storage = strings.ToLower(getEnv("LINK_STORAGE", c.Storage))
	c.SQLDSN = getEnv("SQL_DSN", c.SQLDSN)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.IndexName = getEnv("INDEX_NAME", c.IndexName)
	c.GSI2IndexName = getEnv("GSI2_INDEX_NAME", c.GSI2IndexName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.EventSource = getEnv("EVENT_SOURCE", c.EventSource)

	c.Cache = strings.ToLower(getEnv("LINK_CACHE", c.Cache))
	c.BadgerDir = getEnv("BADGER_DIR", c.BadgerDir)
	c.CacheSweepEvery = getEnvDuration("CACHE_SWEEP_EVERY", c.CacheSweepEvery)

	c.LambdaFunctionName = getEnv("AWS_LAMBDA_FUNCTION_NAME", c.LambdaFunctionName)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.IsLambda || c.LambdaFunctionName != "")

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.MetricsNamespace = getEnv("METRICS_NAMESPACE", c.MetricsNamespace)
	c.MetricsFlushEvery = getEnvDuration("METRICS_FLUSH_EVERY", c.MetricsFlushEvery)
	c.PublishToCloudWatch = getEnvBool("PUBLISH_TO_CLOUDWATCH", c.PublishToCloudWatch)

	c.WriteRatePerSecond = getEnvFloat("WRITE_RATE_PER_SECOND", c.WriteRatePerSecond)
	c.WriteBurst = getEnvInt("WRITE_BURST", c.WriteBurst)
	c.DistributedRateLimit = getEnvBool("DISTRIBUTED_RATE_LIMIT", c.DistributedRateLimit)
	c.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimitWindow)

	c.EnableCircuitBreaker = getEnvBool("ENABLE_CIRCUIT_BREAKER", c.EnableCircuitBreaker)
	c.BreakerMinRequests = uint32(getEnvInt("BREAKER_MIN_REQUESTS", int(c.BreakerMinRequests)))
	c.BreakerOpenTimeout = getEnvDuration("BREAKER_OPEN_TIMEOUT", c.BreakerOpenTimeout)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageSQLite, StoragePostgres:
		if c.SQLDSN == "" {
			return fmt.Errorf("SQL_DSN is required for %s storage", c.Storage)
		}
	case StorageDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.IndexName == "" || c.GSI2IndexName == "" {
			return fmt.Errorf("INDEX_NAME and GSI2_INDEX_NAME are required for dynamodb storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}

	switch c.Cache {
	case CacheMemory, CacheNone, CacheBadger:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache)
	}

	if c.PublishToCloudWatch && !c.EnableMetrics {
		return fmt.Errorf("PUBLISH_TO_CLOUDWATCH requires ENABLE_METRICS")
	}
	if c.WriteRatePerSecond < 0 {
		return fmt.Errorf("WRITE_RATE_PER_SECOND cannot be negative")
	}
	if c.WriteRatePerSecond > 0 && c.WriteBurst < 1 {
		return fmt.Errorf("WRITE_BURST must be positive when throttling is enabled")
	}
	if c.DistributedRateLimit && c.DynamoDBTable == "" {
		return fmt.Errorf("DISTRIBUTED_RATE_LIMIT requires DYNAMODB_TABLE")
	}
	if c.EnableCircuitBreaker && c.BreakerMinRequests == 0 {
		return fmt.Errorf("BREAKER_MIN_REQUESTS must be positive")
	}

	if c.IsProduction() {
		if c.Storage == StorageMemory {
			return fmt.Errorf("memory storage is not allowed in production")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required in production")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.Storage == StorageDynamoDB || c.EventBusName != "" || c.PublishToCloudWatch ||
		(c.DistributedRateLimit && c.WriteRatePerSecond > 0)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s") or whole seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
