package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDomainConfig(t *testing.T) {
	prod := LoadDomainConfig("production")
	assert.Equal(t, 4, prod.MaxGraphDepth)
	assert.Equal(t, 2000, prod.MaxTraversalNodes)
	assert.Equal(t, 200, prod.MaxBulkItems)

	dev := LoadDomainConfig("development")
	assert.Equal(t, 30*time.Second, dev.CacheTTL)
	assert.Equal(t, 5000, dev.MaxBulkItems)

	assert.Equal(t, DefaultDomainConfig(), LoadDomainConfig("staging"))

	for _, env := range []string{"production", "development", "staging"} {
		assert.NoError(t, LoadDomainConfig(env).Validate(), env)
	}
}

func TestClampDepth(t *testing.T) {
	c := DefaultDomainConfig()

	tests := []struct {
		requested int
		graph     int
		path      int
	}{
		{0, 2, 6},
		{-3, 2, 6},
		{3, 3, 3},
		{6, 6, 6},
		{9, 6, 9},
		{50, 6, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.graph, c.ClampGraphDepth(tt.requested), "graph depth %d", tt.requested)
		assert.Equal(t, tt.path, c.ClampPathDepth(tt.requested), "path depth %d", tt.requested)
	}
}

func TestCacheTTLSeconds(t *testing.T) {
	c := DefaultDomainConfig()
	assert.Equal(t, 300, c.CacheTTLSeconds())

	c.CacheTTL = 200 * time.Millisecond
	assert.Equal(t, 1, c.CacheTTLSeconds())
}

func TestDomainConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DomainConfig)
		want   string
	}{
		{"default graph depth above max", func(c *DomainConfig) { c.DefaultGraphDepth = 7 }, "default graph depth"},
		{"zero path depth", func(c *DomainConfig) { c.DefaultPathDepth = 0 }, "default path depth"},
		{"cycle depth", func(c *DomainConfig) { c.MaxCycleCheckDepth = 0 }, "cycle check depth"},
		{"node budget", func(c *DomainConfig) { c.MaxTraversalNodes = 0 }, "traversal nodes"},
		{"batch size", func(c *DomainConfig) { c.DefaultBatchSize = 0 }, "batch size"},
		{"concurrency", func(c *DomainConfig) { c.BulkConcurrency = 0 }, "concurrency"},
		{"negative limits", func(c *DomainConfig) { c.MaxNoteLength = -1 }, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultDomainConfig()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
