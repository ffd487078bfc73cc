package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	rcache "github.com/iWorld-y/company_radar/app/company_radar/pkg/cache"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/search"
)

// Searcher 给任意 Searcher 加一层响应缓存
type Searcher struct {
	next  search.Searcher
	store rcache.Store
	ttl   time.Duration
	log   *logrus.Entry
}

var _ search.Searcher = (*Searcher)(nil)

// New 包装 next，缓存读写失败时退化为直接搜索
func New(next search.Searcher, store rcache.Store, ttl time.Duration) *Searcher {
	return &Searcher{next: next, store: store, ttl: ttl, log: logger.For("search_cache")}
}

// Search implements search.Searcher
func (s *Searcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	key := "search:" + rcache.Hash(req.Query, req.Topic, strconv.Itoa(req.MaxResults),
		strconv.FormatBool(req.IncludeRawContent), req.StartDate, req.EndDate, req.Language, req.Country)

	var cached search.Response
	hit, err := s.store.GetJSON(ctx, key, &cached)
	if err != nil {
		s.log.WithError(err).Warn("读取搜索缓存失败")
	}
	if hit {
		metrics.CacheLookups.WithLabelValues("search", "hit").Inc()
		return &cached, nil
	}
	metrics.CacheLookups.WithLabelValues("search", "miss").Inc()

	resp, err := s.next.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", req.Query, err)
	}
	if err := s.store.SetJSON(ctx, key, resp, s.ttl); err != nil {
		s.log.WithError(err).Warn("写入搜索缓存失败")
	}
	return resp, nil
}
