package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/cache"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/classifier"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/collector"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/crawler"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/embedder"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/engine"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/llm"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
	searchcache "github.com/iWorld-y/company_radar/app/company_radar/pkg/search/cache"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/search/factory"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore/milvus"
)

// App 按配置装配好的全部组件
type App struct {
	Config     *config.Config
	Store      *storage.Storage
	Fetcher    *crawler.Fetcher
	LLM        *llm.Client
	Classifier *classifier.Classifier
	Engine     *engine.Engine

	closers []func() error
	log     *logrus.Entry
}

// Feature 需要装配的能力
type Feature int

const (
	// FeatureCrawl 只需要数据库和爬虫
	FeatureCrawl Feature = iota
	// FeatureReports 需要 LLM，网页搜索与向量库可用时启用未来报告
	FeatureReports
)

// New 校验凭证并初始化组件，任一必需依赖失败立即返回
func New(ctx context.Context, cfg *config.Config, features ...Feature) (*App, error) {
	metrics.Init()
	a := &App{Config: cfg, log: logger.For("bootstrap")}

	needLLM := false
	for _, f := range features {
		if f == FeatureReports {
			needLLM = true
		}
	}
	if needLLM {
		if err := cfg.Validate(config.NeedLLM); err != nil {
			return nil, err
		}
	}

	store, err := storage.NewStorage(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("数据库初始化失败: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)
	a.Fetcher = crawler.NewFetcher(cfg.Crawler, store)

	if !needLLM {
		return a, nil
	}

	client, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.LLM = client
	a.Classifier = classifier.New(store, client)

	opts := []engine.Option{engine.WithMaxParallel(cfg.Concurrency.MaxParallelUnits)}
	future, err := a.futureDeps(ctx)
	switch {
	case err == nil:
		opts = append(opts, future)
	case errors.Is(err, config.ErrMissingCredential):
		a.log.Warnf("未来报告不可用: %v", err)
	default:
		a.Close()
		return nil, err
	}
	a.Engine = engine.NewEngine(store, client, opts...)
	return a, nil
}

// futureDeps 装配网页收集和向量库，Redis 配置时为搜索与向量化加缓存
func (a *App) futureDeps(ctx context.Context) (engine.Option, error) {
	cfg := a.Config
	if err := cfg.Validate(config.NeedEmbedding, config.NeedSearch); err != nil {
		return nil, err
	}

	searcher, err := factory.NewSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("搜索客户端初始化失败: %w", err)
	}
	var emb embedding.Embedder = embedder.NewOpenAI(cfg.Embedding)

	if cfg.Redis.Addr != "" {
		rc, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("Redis 初始化失败: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		searcher = searchcache.New(searcher, rc, cfg.Redis.TTL)
		emb = embedder.NewCached(emb, rc, cfg.Embedding.Model, cfg.Redis.TTL)
	}

	backend, err := a.vectorBackend(ctx)
	if err != nil {
		return nil, err
	}
	vectors := vectorstore.NewStore(backend, emb, cfg.Vector)
	return engine.WithFuture(collector.New(searcher), vectors), nil
}

func (a *App) vectorBackend(ctx context.Context) (vectorstore.Backend, error) {
	switch a.Config.Vector.Backend {
	case "sql":
		return vectorstore.NewSQLBackend(a.Store), nil
	case "milvus":
		b, err := milvus.New(ctx, a.Config.Vector.Milvus)
		if err != nil {
			return nil, fmt.Errorf("Milvus 初始化失败: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %q", a.Config.Vector.Backend)
	}
}

// Close 逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
