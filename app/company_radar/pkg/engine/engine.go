package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/llm"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore"
)

var (
	// ErrUnsupportedKind 报告类型无法生成
	ErrUnsupportedKind = errors.New("engine: unsupported report kind")
	// ErrInvalidRequest owner 或 subject 为空
	ErrInvalidRequest = errors.New("engine: owner and subject are required")
	// ErrFutureDisabled 未配置网页收集与向量库
	ErrFutureDisabled = errors.New("engine: future pipeline is not configured")
)

// 失败单元和占位结果的文本前缀
const (
	FailurePrefix = "报告生成失败: "
	NoDataPrefix  = "暂无数据: "
)

// Status 一次生成的结果状态
type Status string

const (
	StatusCached    Status = "cached"
	StatusGenerated Status = "generated"
	StatusNoData    Status = "no_data"
	StatusFailed    Status = "failed"
)

// Result 生成结果。单元失败体现在 Status 和 Text 里，不作为 error 返回
type Result struct {
	Kind   model.ReportKind
	Text   string
	Status Status
	Units  UnitStats
}

// UnitStats 本次涉及的报告单元统计
type UnitStats struct {
	Cached    int
	Generated int
	Failed    int
}

func (u *UnitStats) add(s Status) {
	switch s {
	case StatusCached:
		u.Cached++
	case StatusGenerated:
		u.Generated++
	case StatusFailed:
		u.Failed++
	}
}

// status 汇总单元状态：有失败即失败，有新生成即新生成
func (u UnitStats) status() Status {
	switch {
	case u.Failed > 0:
		return StatusFailed
	case u.Generated > 0:
		return StatusGenerated
	default:
		return StatusCached
	}
}

// Options 单次生成的选项
type Options struct {
	Progress model.ProgressFunc
	// SkipWebSearch 未来报告只使用向量库中已有的分片
	SkipWebSearch bool
}

// ReportStore 报告缓存
type ReportStore interface {
	FindReport(ctx context.Context, key model.CacheKey) (*model.Report, error)
	SaveReport(ctx context.Context, r model.Report) (bool, error)
	LoadReports(ctx context.Context, q storage.ReportQuery) ([]model.Report, error)
}

// ArticleStore 文章来源
type ArticleStore interface {
	LoadArticles(ctx context.Context, q storage.ArticleQuery) ([]model.Article, error)
}

// Store 引擎需要的全部持久化能力，storage.Storage 满足该接口
type Store interface {
	ReportStore
	ArticleStore
}

// Collector 网页搜索并转成文档
type Collector interface {
	Collect(ctx context.Context, query, subject, owner string) ([]*schema.Document, error)
}

// ContextStore 未来报告使用的向量库
type ContextStore interface {
	Upsert(ctx context.Context, f vectorstore.Filter, docs []*schema.Document) (vectorstore.UpsertResult, error)
	Query(ctx context.Context, f vectorstore.Filter, text string, k int) ([]*schema.Document, error)
}

// Engine 报告编排：月报 -> 年报 -> 关键词/趋势，以及检索增强的未来报告
type Engine struct {
	store     Store
	llm       llm.Invoker
	collector Collector
	vectors   ContextStore
	sem       *semaphore.Weighted
	locks     *keyLocks
	now       func() time.Time
	retrieveK int
	log       *logrus.Entry
}

// Option Engine 可选项
type Option func(*Engine)

// WithClock 替换当前时间来源，决定关键词/趋势/未来报告的年份
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxParallel 同时进行的 LLM 调用上限
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithFuture 启用未来报告
func WithFuture(c Collector, vectors ContextStore) Option {
	return func(e *Engine) {
		e.collector = c
		e.vectors = vectors
	}
}

// WithLogger 替换日志
func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine 创建引擎实例
func NewEngine(store Store, invoker llm.Invoker, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		llm:       invoker,
		sem:       semaphore.NewWeighted(8),
		locks:     newKeyLocks(),
		now:       time.Now,
		retrieveK: 20,
		log:       logger.For("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate 生成指定类型的报告，已缓存的单元直接复用
func (e *Engine) Generate(ctx context.Context, kind model.ReportKind, subject, owner string, opts Options) (*Result, error) {
	subject, owner = strings.TrimSpace(subject), strings.TrimSpace(owner)
	if subject == "" || owner == "" {
		return nil, ErrInvalidRequest
	}

	log := e.log.WithFields(logrus.Fields{"owner": owner, "subject": subject, "kind": kind})
	log.Info("开始生成报告")
	start := time.Now()

	var (
		res *Result
		err error
	)
	switch kind {
	case model.KindMonthly, model.KindYearly:
		res, err = e.generatePeriodic(ctx, kind, subject, owner, opts.Progress)
	case model.KindKeyword, model.KindTrend:
		res, err = e.generateDerived(ctx, kind, subject, owner, opts.Progress)
	case model.KindFuture:
		res, err = e.generateFuture(ctx, subject, owner, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	if err != nil {
		log.Errorf("报告生成中断: %v", err)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status":    res.Status,
		"cached":    res.Units.Cached,
		"generated": res.Units.Generated,
		"failed":    res.Units.Failed,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("报告生成结束")
	return res, nil
}

// runUnit 生成一个报告单元：加锁 -> 查缓存 -> 调用 LLM -> 后处理 -> 写一次
func (e *Engine) runUnit(ctx context.Context, key model.CacheKey, tpl string, vars func() map[string]any) (string, Status, error) {
	unlock := e.locks.lock(key)
	defer unlock()

	kind := string(key.Kind)
	cached, err := e.store.FindReport(ctx, key)
	if err != nil {
		metrics.ReportUnits.WithLabelValues(kind, string(StatusFailed)).Inc()
		return "", StatusFailed, fmt.Errorf("load cached report: %w", err)
	}
	if cached != nil {
		metrics.ReportUnits.WithLabelValues(kind, string(StatusCached)).Inc()
		return cached.Content, StatusCached, nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", StatusFailed, err
	}
	raw, err := e.llm.Invoke(ctx, tpl, vars())
	e.sem.Release(1)
	if err != nil {
		metrics.ReportUnits.WithLabelValues(kind, string(StatusFailed)).Inc()
		return "", StatusFailed, err
	}

	content := FormatReport(raw)
	saved, err := e.store.SaveReport(ctx, model.Report{
		Owner:   key.Owner,
		Kind:    key.Kind,
		Subject: key.Subject,
		Year:    key.Year,
		Month:   key.Month,
		Content: content,
	})
	if err != nil {
		metrics.ReportUnits.WithLabelValues(kind, string(StatusFailed)).Inc()
		return "", StatusFailed, fmt.Errorf("save report: %w", err)
	}
	if !saved {
		// 已有内容为准
		if existing, err := e.store.FindReport(ctx, key); err == nil && existing != nil {
			metrics.ReportUnits.WithLabelValues(kind, string(StatusCached)).Inc()
			return existing.Content, StatusCached, nil
		}
	}
	metrics.ReportUnits.WithLabelValues(kind, string(StatusGenerated)).Inc()
	return content, StatusGenerated, nil
}

func (e *Engine) currentYearKey(kind model.ReportKind, subject, owner string) model.CacheKey {
	return model.CacheKey{Owner: owner, Kind: kind, Subject: subject, Year: e.now().Year()}
}

func noData(kind model.ReportKind, reason string) *Result {
	metrics.ReportUnits.WithLabelValues(string(kind), string(StatusNoData)).Inc()
	return &Result{Kind: kind, Text: NoDataPrefix + reason, Status: StatusNoData}
}

func failureText(err error) string {
	return FailurePrefix + err.Error()
}

// keyLocks 按缓存键加锁，关闭同一进程内“查缓存-生成-写入”之间的竞争窗口
type keyLocks struct {
	mu    sync.Mutex
	locks map[model.CacheKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[model.CacheKey]*keyLock)}
}

func (k *keyLocks) lock(key model.CacheKey) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
