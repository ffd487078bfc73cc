package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
)

// ErrMissingOwner 未指定用户，拒绝开始抓取
var ErrMissingOwner = errors.New("crawler: owner is required")

// ArticleSink 抓取结果的落地位置
type ArticleSink interface {
	SaveArticles(ctx context.Context, owner string, articles []model.Article) (storage.SaveResult, error)
}

// CrawlRequest 一次抓取的参数
type CrawlRequest struct {
	Owner   string
	Subject string
	Sort    string
	Area    string
	// 零值时分别为 2014-01-01 和今天
	StartDate time.Time
	EndDate   time.Time

	ExactPhrase     string
	IncludeKeywords string
	ExcludeKeywords string
	HKOnly          bool
	// MaxPages 为 0 时不限页数
	MaxPages int
	// FeedURLs 额外的 RSS 来源
	FeedURLs []string
}

// Fetcher 两阶段新闻抓取：分页收集链接，再并发抓取详情
type Fetcher struct {
	cfg    config.CrawlerConfig
	sel    Selectors
	client *http.Client
	sink   ArticleSink
	feed   *gofeed.Parser
	log    *logrus.Entry
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// Option Fetcher 可选项
type Option func(*Fetcher)

// WithSelectors 替换页面结构
func WithSelectors(sel Selectors) Option {
	return func(f *Fetcher) { f.sel = sel }
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithSleep 替换分页间隔的等待函数
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// NewFetcher 创建抓取器，sink 为 nil 时只返回结果不落库
func NewFetcher(cfg config.CrawlerConfig, sink ArticleSink, opts ...Option) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	f := &Fetcher{
		cfg:    cfg,
		sel:    DefaultSelectors(),
		client: &http.Client{},
		sink:   sink,
		log:    logger.For("crawler"),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.feed = gofeed.NewParser()
	f.feed.Client = f.client
	return f
}

// Crawl 收集链接并抓取全部详情，边抓边按批次写入 sink
func (f *Fetcher) Crawl(ctx context.Context, req CrawlRequest, progress model.ProgressFunc) ([]model.Article, error) {
	if req.Owner == "" {
		progress.Notify("未指定用户，无法开始抓取", 0, model.StatusError)
		return nil, ErrMissingOwner
	}
	log := f.log.WithFields(logrus.Fields{"owner": req.Owner, "subject": req.Subject})

	progress.Notify(fmt.Sprintf("[1/2] 正在收集「%s」的新闻链接", req.Subject), 0, model.StatusProgress)
	links, err := f.Discover(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	if len(req.FeedURLs) > 0 {
		links = append(links, f.DiscoverFeeds(ctx, req.FeedURLs, req.Subject)...)
	}
	links = dedupe(links)

	if len(links) == 0 {
		progress.Notify("没有可抓取的文章链接", 0, model.StatusWarning)
		return nil, nil
	}
	log.Infof("链接收集完成，共 %d 条", len(links))
	progress.Notify(fmt.Sprintf("[2/2] 开始抓取 %d 篇文章详情", len(links)), 0.5, model.StatusProgress)

	sem := semaphore.NewWeighted(int64(f.cfg.Concurrency))
	results := make(chan model.Article)
	var wg sync.WaitGroup
	for _, link := range links {
		wg.Add(1)
		go func(link string) {
			defer wg.Done()
			a := blankArticle(req.Subject, link)
			if err := sem.Acquire(ctx, 1); err == nil {
				a = f.FetchDetail(ctx, req.Subject, link)
				sem.Release(1)
			}
			results <- a
		}(link)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	articles := make([]model.Article, 0, len(links))
	batch := make([]model.Article, 0, f.cfg.BatchSize)
	for a := range results {
		articles = append(articles, a)
		batch = append(batch, a)
		if len(batch) == f.cfg.BatchSize {
			f.flush(ctx, req.Owner, batch)
			batch = batch[:0]
		}
		done := len(articles)
		progress.Notify(fmt.Sprintf("[2/2] 文章详情抓取中 (%d/%d)", done, len(links)),
			0.5+0.5*float64(done)/float64(len(links)), model.StatusProgress)
	}
	if len(batch) > 0 {
		f.flush(ctx, req.Owner, batch)
	}

	if err := ctx.Err(); err != nil {
		return articles, err
	}
	progress.Notify(fmt.Sprintf("抓取完成，共 %d 篇文章", len(articles)), 1, model.StatusInfo)
	return articles, nil
}

func (f *Fetcher) flush(ctx context.Context, owner string, batch []model.Article) {
	if f.sink == nil {
		return
	}
	// 拷贝一份，batch 会被复用
	out := append([]model.Article(nil), batch...)
	if _, err := f.sink.SaveArticles(ctx, owner, out); err != nil {
		f.log.WithField("owner", owner).Errorf("批量保存文章失败: %v", err)
	}
}

func blankArticle(subject, link string) model.Article {
	return model.Article{
		Subject:     subject,
		Title:       model.Unavailable,
		PublishDate: model.Unavailable,
		Author:      model.Unavailable,
		FullText:    model.Unavailable,
		URL:         link,
	}
}

func dedupe(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := links[:0:0]
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func randomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
