package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/metrics"
	"github.com/crosslink/backend/internal/vector"
	"github.com/crosslink/backend/pkg/logger"
)

// Generator produces a fresh embedding for a piece of text.
type Generator interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// HotTier is a fast cache keyed by article ID, typically Redis.
type HotTier interface {
	GetEmbedding(ctx context.Context, articleID string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, articleID string, embedding []float32, ttl time.Duration) error
	DeleteEmbedding(ctx context.Context, articleID string) error
}

// DurableTier survives restarts, typically Milvus.
type DurableTier interface {
	Fetch(ctx context.Context, articleID string) ([]float32, bool, error)
	Upsert(ctx context.Context, articleID string, embedding []float32) error
	Delete(ctx context.Context, articleID string) error
}

// Cache resolves article embeddings through a hot tier, a durable tier,
// and finally the generator, writing back to the tiers above on each
// miss. Either tier may be nil and the chain skips it.
type Cache struct {
	generator Generator
	hot       HotTier
	durable   DurableTier
	dim       int
	ttl       time.Duration
}

func NewCache(generator Generator, hot HotTier, durable DurableTier, dim int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Cache{
		generator: generator,
		hot:       hot,
		durable:   durable,
		dim:       dim,
		ttl:       ttl,
	}
}

func (c *Cache) GetOrGenerate(ctx context.Context, articleID, content string) ([]float32, error) {
	if c.hot != nil {
		embedding, found, err := c.hot.GetEmbedding(ctx, articleID)
		if err != nil {
			logger.Warn("Hot tier lookup failed", zap.String("article_id", articleID), zap.Error(err))
		} else if found {
			if err := c.checkDim(embedding); err != nil {
				return nil, fmt.Errorf("cached embedding for %s: %w", articleID, err)
			}
			metrics.EmbeddingCacheHits.WithLabelValues("redis").Inc()
			return embedding, nil
		}
	}

	if c.durable != nil {
		embedding, found, err := c.durable.Fetch(ctx, articleID)
		if err != nil {
			logger.Warn("Durable tier lookup failed", zap.String("article_id", articleID), zap.Error(err))
		} else if found {
			if err := c.checkDim(embedding); err != nil {
				return nil, fmt.Errorf("stored embedding for %s: %w", articleID, err)
			}
			metrics.EmbeddingCacheHits.WithLabelValues("milvus").Inc()
			c.warmHot(ctx, articleID, embedding)
			return embedding, nil
		}
	}

	metrics.EmbeddingCacheMisses.Inc()

	embedding, err := c.generator.GenerateEmbedding(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding for %s: %w", articleID, err)
	}

	if err := c.checkDim(embedding); err != nil {
		return nil, fmt.Errorf("generated embedding for %s: %w", articleID, err)
	}

	if c.durable != nil {
		if err := c.durable.Upsert(ctx, articleID, embedding); err != nil {
			logger.Warn("Failed to persist embedding", zap.String("article_id", articleID), zap.Error(err))
		}
	}
	c.warmHot(ctx, articleID, embedding)

	return embedding, nil
}

// Invalidate drops an article's embedding from every tier after its
// content changes. Both tiers must be cleared: a stale durable entry would
// otherwise re-warm the hot tier on the next lookup.
func (c *Cache) Invalidate(ctx context.Context, articleID string) {
	if c.hot != nil {
		if err := c.hot.DeleteEmbedding(ctx, articleID); err != nil {
			logger.Warn("Failed to invalidate hot-tier embedding", zap.String("article_id", articleID), zap.Error(err))
		}
	}
	if c.durable != nil {
		if err := c.durable.Delete(ctx, articleID); err != nil {
			logger.Warn("Failed to invalidate stored embedding", zap.String("article_id", articleID), zap.Error(err))
		}
	}
}

func (c *Cache) warmHot(ctx context.Context, articleID string, embedding []float32) {
	if c.hot == nil {
		return
	}
	if err := c.hot.SetEmbedding(ctx, articleID, embedding, c.ttl); err != nil {
		logger.Warn("Failed to warm hot tier", zap.String("article_id", articleID), zap.Error(err))
	}
}

func (c *Cache) checkDim(embedding []float32) error {
	if c.dim > 0 && len(embedding) != c.dim {
		return fmt.Errorf("%w: got %d, want %d", vector.ErrDimensionMismatch, len(embedding), c.dim)
	}
	return nil
}
