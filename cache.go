package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

var errBadgerClosed = errors.New("badger database is closed")

// Cache stores raw upstream payloads with an expiration. Values are
// compressed at rest by every implementation.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Flush(ctx context.Context) error
	Ping(ctx context.Context) error
}

type RedisCache struct {
	client     *redis.Client
	compressor *Compressor
}

func NewRedisCache(client *redis.Client, compressor *Compressor) *RedisCache {
	return &RedisCache{
		client:     client,
		compressor: compressor,
	}
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(ctx, key, c.compressor.Compress(value), expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return c.compressor.Decompress(raw)
}

func (c *RedisCache) Flush(ctx context.Context) error {
	return c.client.FlushDB(ctx).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// BadgerCache is an embedded alternative to Redis for single-instance
// deployments. An empty path keeps the data in memory.
type BadgerCache struct {
	db         *badger.DB
	compressor *Compressor
}

func NewBadgerCache(path string, compressor *Compressor) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerCache{db: db, compressor: compressor}, nil
}

func (c *BadgerCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	payload := c.compressor.Compress(value)
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload)
		if expiration > 0 {
			entry = entry.WithTTL(expiration)
		}
		return txn.SetEntry(entry)
	})
}

func (c *BadgerCache) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return c.compressor.Decompress(raw)
}

func (c *BadgerCache) Flush(ctx context.Context) error {
	return c.db.DropAll()
}

func (c *BadgerCache) Ping(ctx context.Context) error {
	if c.db.IsClosed() {
		return errBadgerClosed
	}
	return nil
}

// RunGC reclaims value log space. Badger reports ErrNoRewrite when there was
// nothing to collect, which is not a failure.
func (c *BadgerCache) RunGC() error {
	err := c.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return err
	}
	return nil
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}
