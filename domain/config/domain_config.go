package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Traversal bounds
	DefaultGraphDepth  int
	MaxGraphDepth      int
	DefaultPathDepth   int
	MaxPathDepth       int
	MaxCycleCheckDepth int
	MaxTraversalNodes  int

	// Cache
	CacheTTL time.Duration

	// Bulk operations
	DefaultBatchSize int
	MaxBulkItems     int
	BulkConcurrency  int

	// Link constraints
	MaxNoteLength   int
	MaxMetadataKeys int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		DefaultGraphDepth:  2,
		MaxGraphDepth:      6,
		DefaultPathDepth:   6,
		MaxPathDepth:       12,
		MaxCycleCheckDepth: 64,
		MaxTraversalNodes:  5000,

		CacheTTL: 5 * time.Minute,

		DefaultBatchSize: 1,
		MaxBulkItems:     500,
		BulkConcurrency:  1,

		MaxNoteLength:   2000,
		MaxMetadataKeys: 50,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Tighter traversal bounds for shared infrastructure
	config.MaxGraphDepth = 4
	config.MaxTraversalNodes = 2000
	config.MaxBulkItems = 200

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.CacheTTL = 30 * time.Second
	config.MaxBulkItems = 5000

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// ClampGraphDepth bounds a requested graph depth, substituting the default for non-positive values.
func (c *DomainConfig) ClampGraphDepth(depth int) int {
	return clamp(depth, c.DefaultGraphDepth, c.MaxGraphDepth)
}

// ClampPathDepth bounds a requested path depth, substituting the default for non-positive values.
func (c *DomainConfig) ClampPathDepth(depth int) int {
	return clamp(depth, c.DefaultPathDepth, c.MaxPathDepth)
}

// CacheTTLSeconds returns the cache TTL in whole seconds, at least one.
func (c *DomainConfig) CacheTTLSeconds() int {
	secs := int(c.CacheTTL / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.DefaultGraphDepth < 1 || c.DefaultGraphDepth > c.MaxGraphDepth {
		return fmt.Errorf("default graph depth %d must be within 1..%d", c.DefaultGraphDepth, c.MaxGraphDepth)
	}
	if c.DefaultPathDepth < 1 || c.DefaultPathDepth > c.MaxPathDepth {
		return fmt.Errorf("default path depth %d must be within 1..%d", c.DefaultPathDepth, c.MaxPathDepth)
	}
	if c.MaxCycleCheckDepth < 1 {
		return fmt.Errorf("max cycle check depth must be positive")
	}
	if c.MaxTraversalNodes < 1 {
		return fmt.Errorf("max traversal nodes must be positive")
	}
	if c.DefaultBatchSize < 1 {
		return fmt.Errorf("default batch size must be positive")
	}
	if c.BulkConcurrency < 1 {
		return fmt.Errorf("bulk concurrency must be positive")
	}
	if c.MaxNoteLength < 0 || c.MaxMetadataKeys < 0 {
		return fmt.Errorf("link limits cannot be negative")
	}
	return nil
}

func clamp(v, def, limit int) int {
	if v <= 0 {
		return def
	}
	if v > limit {
		return limit
	}
	return v
}
