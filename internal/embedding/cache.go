package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedProvider wraps a Provider with a Redis result cache keyed by
// model+text content. Cache failures degrade to the inner provider; they
// never fail an Embed call.
type CachedProvider struct {
	inner  Provider
	model  string
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider creates a caching wrapper around inner.
func NewCachedProvider(inner Provider, model string, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{inner: inner, model: model, rdb: rdb, ttl: ttl, logger: logger}
}

// Embed returns cached vectors where available and delegates the rest to the
// inner provider, preserving input order.
func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if v, ok := c.lookup(ctx, text); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh, err := c.inner.Embed(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, v := range fresh {
			vectors[missingIdx[j]] = v
			c.put(ctx, missing[j], v)
		}
	}

	c.logger.Debug("embedding cache pass",
		zap.Int("requested", len(texts)),
		zap.Int("misses", len(missing)))
	return vectors, nil
}

// Dimension delegates to the inner provider.
func (c *CachedProvider) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedProvider) lookup(ctx context.Context, text string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, c.key(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (c *CachedProvider) put(ctx context.Context, text string, v []float32) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(text), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

func (c *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return fmt.Sprintf("embed:%s", hex.EncodeToString(sum[:]))
}
