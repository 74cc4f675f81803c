package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"linkgraph/domain/core/entities"
)

func init() {
	gob.Register(&entities.EntityLink{})
	gob.Register([]*entities.EntityLink{})
	gob.Register(&entities.EntityLinkWithDetails{})
	gob.Register([]*entities.EntityLinkWithDetails{})
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// BadgerConfig configures the embedded cache store.
type BadgerConfig struct {
	// Path is ignored when InMemory is set.
	Path     string
	InMemory bool
}

// BadgerCache stores gob-encoded values in BadgerDB with per-entry TTL.
// Values must be types registered with encoding/gob.
type BadgerCache struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerCache opens the store described by cfg.
func NewBadgerCache(cfg BadgerConfig, logger *zap.Logger) (*BadgerCache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger cache path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	return &BadgerCache{db: db, logger: logger.Named("badger_cache")}, nil
}

// Get retrieves a value from cache. Decode failures count as misses.
func (c *BadgerCache) Get(ctx context.Context, key string) (interface{}, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var value interface{}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&value); err != nil {
		c.logger.Warn("Cache decode failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, true
}

// Set stores a value in cache with TTL in seconds
func (c *BadgerCache) Set(ctx context.Context, key string, value interface{}, ttl int) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return fmt.Errorf("encode cache value for %s: %w", key, err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), buf.Bytes())
		if ttl > 0 {
			entry = entry.WithTTL(time.Duration(ttl) * time.Second)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a value from cache
func (c *BadgerCache) Delete(ctx context.Context, key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Clear removes all values from cache
func (c *BadgerCache) Clear(ctx context.Context) error {
	return c.db.DropAll()
}

// Close releases the underlying database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
