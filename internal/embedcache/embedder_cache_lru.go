package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/docqa/internal/ai"
)

// WrapLruCacheToEmbedder keeps recent vectors in process memory. Concurrent
// misses for the same text share one upstream call, which matters when a
// document repeats boilerplate across many chunks.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next   ai.IEmbedder
	cache  *expirable.LRU[string, []float32]
	flight singleflight.Group
}

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key, _, _ := buildCacheKey(l.next.ModelName(), text)
	if vec, ok := l.cache.Get(key); ok {
		return cloneEmbedding(vec), nil
	}
	v, err, shared := l.flight.Do(key, func() (interface{}, error) {
		vec, err := l.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		l.cache.Add(key, cloneEmbedding(vec))
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logutil.GetLogger(ctx).Debug("embedding shared with concurrent caller", zap.Int("chars", len(text)))
	}
	return cloneEmbedding(v.([]float32)), nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cloneEmbedding(values []float32) []float32 {
	if values == nil {
		return nil
	}
	return append(make([]float32, 0, len(values)), values...)
}
