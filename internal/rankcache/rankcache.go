// Package rankcache caches ranked candidate lists in Redis. Ranking is a
// pure function of the immutable index and the query, so its output is
// safe to share across callers. Authorization decisions are never cached
// here or anywhere else: a decision is valid only for the request that
// produced it.
package rankcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/ranker"
	"github.com/answergate/answergate/pkg/config"
	pkgredis "github.com/answergate/answergate/pkg/redis"
)

const keyPrefix = "rank:"

// cachedCandidate is the stored form: ids and scores only, no text.
type cachedCandidate struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Resolver maps a document id back to its document. The pipeline supplies
// one backed by the in-memory collection.
type Resolver func(id string) (corpus.Document, bool)

// Cache wraps Redis with request coalescing for identical queries.
type Cache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	resolve Resolver
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig, resolve Resolver) *Cache {
	return &Cache{
		client:  client,
		cfg:     cfg,
		resolve: resolve,
		logger:  slog.Default().With("component", "rank-cache"),
	}
}

// GetOrCompute returns cached candidates for (query, topK) or runs
// computeFn and stores its result. The bool reports a cache hit.
func (c *Cache) GetOrCompute(ctx context.Context, query string, topK int, computeFn func() []ranker.ScoredCandidate) ([]ranker.ScoredCandidate, bool) {
	if cands, ok := c.get(ctx, query, topK); ok {
		return cands, true
	}
	key := c.buildKey(query, topK)
	val, _, _ := c.group.Do(key, func() (interface{}, error) {
		if cands, ok := c.get(ctx, query, topK); ok {
			return cands, nil
		}
		cands := computeFn()
		c.set(ctx, query, topK, cands)
		return cands, nil
	})
	return val.([]ranker.ScoredCandidate), false
}

// Hits returns the number of cache hits since start.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses returns the number of cache misses since start.
func (c *Cache) Misses() int64 { return c.misses.Load() }

func (c *Cache) get(ctx context.Context, query string, topK int) ([]ranker.ScoredCandidate, bool) {
	key := c.buildKey(query, topK)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var stored []cachedCandidate
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	cands := make([]ranker.ScoredCandidate, 0, len(stored))
	for _, s := range stored {
		doc, ok := c.resolve(s.ID)
		if !ok {
			// The cached entry references an id absent from this
			// process's collection; treat the whole entry as stale.
			c.misses.Add(1)
			return nil, false
		}
		cands = append(cands, ranker.ScoredCandidate{Doc: doc, Score: s.Score})
	}
	c.hits.Add(1)
	return cands, true
}

func (c *Cache) set(ctx context.Context, query string, topK int, cands []ranker.ScoredCandidate) {
	stored := make([]cachedCandidate, len(cands))
	for i, cand := range cands {
		stored[i] = cachedCandidate{ID: cand.Doc.ID, Score: cand.Score}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		c.logger.Error("cache marshal failed", "error", err)
		return
	}
	key := c.buildKey(query, topK)
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *Cache) buildKey(query string, topK int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s", topK, query))
	return keyPrefix + hex.EncodeToString(sum[:16])
}
