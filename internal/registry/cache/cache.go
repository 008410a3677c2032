// Package cache stores rank results in Redis. Keys embed the index scope and
// revision, so any mutation of the index makes every earlier entry
// unreachable without an explicit invalidation round-trip, and indexes
// sharing one Redis never read each other's entries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/resilience"
)

const keyPrefix = "rank:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type entry struct {
	Scope    string                  `json:"scope"`
	Revision uint64                  `json:"revision"`
	Query    []string                `json:"query"`
	Results  []tagindex.ScoredEntity `json:"results"`
}

type RankCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.Breaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New builds a cache over store. While breaker is open the cache is
// bypassed; breaker may be nil.
func New(store Store, ttl time.Duration, breaker *resilience.Breaker) *RankCache {
	return &RankCache{
		store:   store,
		ttl:     ttl,
		breaker: breaker,
		logger:  slog.Default().With("component", "rank-cache"),
	}
}

// NewBreaker returns a breaker that ignores cache misses.
func NewBreaker(cfg resilience.BreakerConfig) *resilience.Breaker {
	cfg.IsFailure = func(err error) bool { return !pkgredis.IsNilError(err) }
	return resilience.NewBreaker("rank-cache", cfg)
}

func (c *RankCache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Do(fn)
}

func (c *RankCache) get(ctx context.Context, key string) ([]tagindex.ScoredEntity, bool) {
	var data string
	err := c.guard(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		switch {
		case pkgredis.IsNilError(err):
		case errors.Is(err, resilience.ErrCircuitOpen):
			c.logger.Debug("cache bypassed", "key", key)
		default:
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var e entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return e.Results, true
}

func (c *RankCache) set(ctx context.Context, key string, e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.guard(func() error { return c.store.Set(ctx, key, data, c.ttl) })
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached ranking for query at scope and revision,
// or runs compute once per key across concurrent callers and stores its
// result.
// Cache failures degrade to computing; only compute errors are returned.
func (c *RankCache) GetOrCompute(
	ctx context.Context,
	scope string,
	revision uint64,
	query []string,
	compute func() ([]tagindex.ScoredEntity, error),
) ([]tagindex.ScoredEntity, bool, error) {
	normalized := tagindex.NormalizeQuery(query)
	key := BuildKey(scope, revision, normalized)
	if results, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		c.logger.Debug("cache hit", "key", key, "revision", revision)
		return results, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(key, func() (any, error) {
		if results, ok := c.get(ctx, key); ok {
			return results, nil
		}
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, entry{Scope: scope, Revision: revision, Query: normalized, Results: results})
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]tagindex.ScoredEntity), false, nil
}

// Invalidate drops every cached ranking.
func (c *RankCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating rank cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *RankCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey derives the cache key from the index scope, its revision and the
// normalised (distinct, sorted) query.
func BuildKey(scope string, revision uint64, normalized []string) string {
	hash := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return fmt.Sprintf("%s%s:%d:%x", keyPrefix, scope, revision, hash[:16])
}
