package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/cache"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
)

// Cached 以文本摘要为键缓存向量，只对未命中的文本调用下层
type Cached struct {
	next  embedding.Embedder
	store cache.Store
	ttl   time.Duration
	// namespace 区分不同模型的向量
	namespace string
	log       *logrus.Entry
}

var _ embedding.Embedder = (*Cached)(nil)

// NewCached 包装 next
func NewCached(next embedding.Embedder, store cache.Store, namespace string, ttl time.Duration) *Cached {
	return &Cached{next: next, store: store, ttl: ttl, namespace: namespace, log: logger.For("embedder")}
}

// EmbedStrings implements embedding.Embedder
func (c *Cached) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	keys := make([]string, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		keys[i] = "embedding:" + cache.Hash(c.namespace, t)
		var vec []float64
		hit, err := c.store.GetJSON(ctx, keys[i], &vec)
		if err != nil {
			c.log.WithError(err).Warn("读取向量缓存失败")
		}
		if hit && len(vec) > 0 {
			out[i] = vec
			metrics.CacheLookups.WithLabelValues("embedding", "hit").Inc()
			continue
		}
		metrics.CacheLookups.WithLabelValues("embedding", "miss").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(missTexts), len(vecs))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.store.SetJSON(ctx, keys[i], vecs[j], c.ttl); err != nil {
			c.log.WithError(err).Warn("写入向量缓存失败")
		}
	}
	return out, nil
}
