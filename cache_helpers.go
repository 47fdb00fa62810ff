package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cor0nius/rainodds/internal/database"
	"github.com/google/uuid"
)

// This file contains the multi-layered response cache that sits in front of
// every upstream GET. Lookups go to the key-value cache first, then to the
// api_responses table in PostgreSQL (when configured), and only then to the
// network. Only successful upstream responses are stored.

// cacheKey derives a compact key from an upstream URL.
func cacheKey(prefix, rawURL string) string {
	return fmt.Sprintf("%s:%016x", prefix, xxhash.Sum64String(rawURL))
}

// cachedGet returns the payload stored under key or calls fetch and stores its result.
func (cfg *apiConfig) cachedGet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	body, err := cfg.cache.Get(ctx, key)
	if err == nil {
		cacheLookupsTotal.WithLabelValues("kv", "hit").Inc()
		cfg.logger.Debug("cache hit", "key", key)
		return body, nil
	}
	cacheLookupsTotal.WithLabelValues("kv", "miss").Inc()
	if !errors.Is(err, ErrCacheMiss) {
		cfg.logger.Warn("error getting from cache", "key", key, "error", err)
	}

	if cfg.dbQueries != nil {
		now := time.Now().UTC()
		row, err := cfg.dbQueries.GetFreshAPIResponse(ctx, database.GetFreshAPIResponseParams{
			CacheKey:  key,
			ExpiresAt: now,
		})
		switch {
		case err == nil:
			cacheLookupsTotal.WithLabelValues("db", "hit").Inc()
			cfg.logger.Debug("db cache hit", "key", key)
			if setErr := cfg.cache.Set(ctx, key, row.Body, row.ExpiresAt.Sub(now)); setErr != nil {
				cfg.logger.Warn("error setting to cache", "key", key, "error", setErr)
			}
			return row.Body, nil
		case errors.Is(err, sql.ErrNoRows):
			cacheLookupsTotal.WithLabelValues("db", "miss").Inc()
		default:
			cacheLookupsTotal.WithLabelValues("db", "miss").Inc()
			cfg.logger.Warn("error reading response from database", "key", key, "error", err)
		}
	}

	body, err = fetch(ctx)
	if err != nil {
		return nil, err
	}
	cfg.logger.Debug("upstream fetch successful", "key", key)

	cfg.storeResponse(ctx, key, body)
	return body, nil
}

// storeResponse writes a fresh payload to every configured tier. Failures are
// logged and otherwise ignored since the caller already has the data.
func (cfg *apiConfig) storeResponse(ctx context.Context, key string, body []byte) {
	now := time.Now().UTC()
	if cfg.dbQueries != nil {
		_, err := cfg.dbQueries.UpsertAPIResponse(ctx, database.UpsertAPIResponseParams{
			ID:        uuid.New(),
			CacheKey:  key,
			Body:      body,
			FetchedAt: now,
			ExpiresAt: now.Add(cfg.cacheTTL),
		})
		if err != nil {
			cfg.logger.Warn("error persisting response", "key", key, "error", err)
		}
	}
	if err := cfg.cache.Set(ctx, key, body, cfg.cacheTTL); err != nil {
		cfg.logger.Warn("error setting to cache after upstream fetch", "key", key, "error", err)
	} else {
		cfg.logger.Debug("set to cache", "key", key)
	}
}

// resetCaches empties every response cache tier.
func (cfg *apiConfig) resetCaches(ctx context.Context) error {
	if cfg.dbQueries != nil {
		if err := cfg.dbQueries.DeleteAllAPIResponses(ctx); err != nil {
			return fmt.Errorf("could not clear database cache: %w", err)
		}
	}
	if err := cfg.cache.Flush(ctx); err != nil {
		return fmt.Errorf("could not flush cache: %w", err)
	}
	return nil
}
