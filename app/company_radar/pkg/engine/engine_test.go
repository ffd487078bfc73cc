package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/llm"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type llmCall struct {
	name string
	vars map[string]any
}

// fakeLLM 按模板返回带层级符号的文本，fail 返回非空时该次调用失败
type fakeLLM struct {
	mu    sync.Mutex
	calls []llmCall
	fail  func(name string, vars map[string]any) error
	delay time.Duration
}

func (f *fakeLLM) Invoke(_ context.Context, name string, vars map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, llmCall{name: name, vars: vars})
	fail := f.fail
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fail != nil {
		if err := fail(name, vars); err != nil {
			return "", err
		}
	}
	switch name {
	case llm.TemplateMonthly:
		return fmt.Sprintf("□ %v年%v月 主要议题 ○ %v 议题 - 细节", vars["year"], vars["month"], vars["company"]), nil
	case llm.TemplateYearly:
		return fmt.Sprintf("□ %v年 核心议题 ○ 全年汇总", vars["year"]), nil
	default:
		return fmt.Sprintf("□ %s 报告 ○ %v", name, vars["company"]), nil
	}
}

func (f *fakeLLM) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if name == "" || c.name == name {
			n++
		}
	}
	return n
}

func (f *fakeLLM) last(name string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].name == name {
			return f.calls[i].vars
		}
	}
	return nil
}

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.NewStorage(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "radar.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, store *storage.Storage, f *fakeLLM, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithLogger(logger.Discard())}, opts...)
	return NewEngine(store, f, opts...)
}

func seed(t *testing.T, s *storage.Storage, owner, subject string, dates ...string) {
	t.Helper()
	var articles []model.Article
	for i, d := range dates {
		articles = append(articles, model.Article{
			Subject:     subject,
			Title:       fmt.Sprintf("%s news %d", subject, i),
			PublishDate: d,
			Author:      "Kim",
			FullText:    fmt.Sprintf("body %d of %s", i, subject),
			URL:         fmt.Sprintf("https://n.example/%s/%s/%d", owner, strings.ReplaceAll(subject, " ", "-"), i),
		})
	}
	_, err := s.SaveArticles(context.Background(), owner, articles)
	require.NoError(t, err)
}

func reports(t *testing.T, s *storage.Storage, owner string, kind model.ReportKind) []model.Report {
	t.Helper()
	rs, err := s.LoadReports(context.Background(), storage.ReportQuery{Owner: owner, Kind: kind})
	require.NoError(t, err)
	return rs
}

func TestYearlyFreshGenerationThenCached(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store, "alice", "Acme Corp", "2023-03-05", "2023-03-20", "2023-07-01", model.Unavailable)
	seed(t, store, "bob", "Acme Corp", "2021-01-01")
	f := &fakeLLM{}
	e := newTestEngine(t, store, f)

	res, err := e.Generate(ctx, model.KindYearly, "Acme Corp", "alice", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, res.Status)
	assert.Equal(t, UnitStats{Generated: 3}, res.Units)
	assert.Equal(t, 2, f.count(llm.TemplateMonthly))
	assert.Equal(t, 1, f.count(llm.TemplateYearly))

	monthly := reports(t, store, "alice", model.KindMonthly)
	require.Len(t, monthly, 2)
	months := []int{monthly[0].Month, monthly[1].Month}
	assert.ElementsMatch(t, []int{3, 7}, months)

	yearly := reports(t, store, "alice", model.KindYearly)
	require.Len(t, yearly, 1)
	assert.Equal(t, 2023, yearly[0].Year)
	assert.Equal(t, 0, yearly[0].Month)
	assert.Equal(t, "□ 2023年 核心议题 \n  ○ 全年汇总", yearly[0].Content)
	assert.Equal(t, yearly[0].Content, res.Text)

	// 年报由两份月报按月份顺序拼接而成
	march := "□ 2023年3月 主要议题 \n  ○ Acme Corp 议题 \n    - 细节"
	july := "□ 2023年7月 主要议题 \n  ○ Acme Corp 议题 \n    - 细节"
	assert.Equal(t, march+"\n---\n"+july, f.last(llm.TemplateYearly)["articles"])

	var marchVars map[string]any
	for _, c := range f.calls {
		if c.name == llm.TemplateMonthly && c.vars["month"] == 3 {
			marchVars = c.vars
		}
	}
	require.NotNil(t, marchVars)
	assert.Equal(t, "**标题:** Acme Corp news 0\n**发布日期:** 2023-03-05\n**正文:** body 0 of Acme Corp"+
		"\n---\n**标题:** Acme Corp news 1\n**发布日期:** 2023-03-20\n**正文:** body 1 of Acme Corp", marchVars["articles"])

	assert.Empty(t, reports(t, store, "bob", model.KindMonthly))

	again, err := e.Generate(ctx, model.KindYearly, "Acme Corp", "alice", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusCached, again.Status)
	assert.Equal(t, res.Text, again.Text)
	assert.Equal(t, UnitStats{Cached: 1}, again.Units)
	assert.Equal(t, 3, f.count(""))
}

func TestYearlyNoData(t *testing.T) {
	f := &fakeLLM{}
	var statuses []model.ProgressStatus
	e := newTestEngine(t, newTestStore(t), f)

	res, err := e.Generate(context.Background(), model.KindYearly, "Nobody Inc", "bob", Options{
		Progress: func(_ string, _ float64, s model.ProgressStatus) { statuses = append(statuses, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)
	assert.Contains(t, res.Text, "暂无数据")
	assert.Contains(t, statuses, model.StatusWarning)
	assert.Zero(t, f.count(""))
}

func TestYearlyNoValidDates(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "bob", "Acme Corp", model.Unavailable, "yesterday")
	res, err := newTestEngine(t, store, &fakeLLM{}).Generate(context.Background(), model.KindYearly, "Acme Corp", "bob", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)
}

func TestMonthlyFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed(t, store, "carol", "Acme Corp", "2022-05-03", "2022-06-10", "2023-01-15")

	f := &fakeLLM{fail: func(name string, vars map[string]any) error {
		if name == llm.TemplateMonthly && vars["year"] == 2022 && vars["month"] == 5 {
			return errors.New("retry attempts exhausted: 503")
		}
		return nil
	}}
	e := newTestEngine(t, store, f)

	var (
		fractions []float64
		statuses  []model.ProgressStatus
	)
	res, err := e.Generate(ctx, model.KindYearly, "Acme Corp", "carol", Options{
		Progress: func(_ string, fr float64, s model.ProgressStatus) {
			fractions = append(fractions, fr)
			statuses = append(statuses, s)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, UnitStats{Generated: 3, Failed: 2}, res.Units)
	assert.Contains(t, res.Text, FailurePrefix)
	assert.True(t, strings.HasPrefix(res.Text, "□ 2023年 核心议题"), res.Text)
	assert.Contains(t, statuses, model.StatusError)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}

	monthly := reports(t, store, "carol", model.KindMonthly)
	got := map[string]bool{}
	for _, r := range monthly {
		got[fmt.Sprintf("%d-%02d", r.Year, r.Month)] = true
	}
	assert.Equal(t, map[string]bool{"2022-06": true, "2023-01": true}, got)

	yearly := reports(t, store, "carol", model.KindYearly)
	require.Len(t, yearly, 1)
	assert.Equal(t, 2023, yearly[0].Year)

	// 重新运行只补齐失败的单元
	f.mu.Lock()
	f.fail = nil
	f.mu.Unlock()
	before := f.count("")

	res, err = e.Generate(ctx, model.KindYearly, "Acme Corp", "carol", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, res.Status)
	assert.Equal(t, UnitStats{Cached: 2, Generated: 2}, res.Units)
	assert.Equal(t, before+2, f.count(""))
	assert.NotContains(t, res.Text, FailurePrefix)
	assert.Len(t, reports(t, store, "carol", model.KindYearly), 2)
}

func TestMonthlyKindSkipsYearly(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "dave", "Acme Corp", "2024-02-01", "2024-04-01")
	f := &fakeLLM{}

	res, err := newTestEngine(t, store, f).Generate(context.Background(), model.KindMonthly, "Acme Corp", "dave", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, res.Status)
	assert.Zero(t, f.count(llm.TemplateYearly))
	assert.True(t, strings.HasPrefix(res.Text, "□ 2024年4月"), res.Text)
	assert.Empty(t, reports(t, store, "dave", model.KindYearly))
}

func TestDerivedReports(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	f := &fakeLLM{}
	e := newTestEngine(t, store, f)

	for _, kind := range []model.ReportKind{model.KindKeyword, model.KindTrend} {
		res, err := e.Generate(ctx, kind, "Acme Corp", "alice", Options{})
		require.NoError(t, err)
		assert.Equal(t, StatusNoData, res.Status, kind)
		assert.Contains(t, res.Text, "暂无数据")
	}
	assert.Zero(t, f.count(""))

	for _, y := range []int{2022, 2023} {
		_, err := store.SaveReport(ctx, model.Report{
			Owner: "alice", Kind: model.KindYearly, Subject: "Acme Corp", Year: y, Content: fmt.Sprintf("Y%d", y),
		})
		require.NoError(t, err)
	}

	res, err := e.Generate(ctx, model.KindKeyword, "Acme Corp", "alice", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, res.Status)
	assert.Equal(t, "Y2023\n\n---\n\nY2022", f.last(llm.TemplateKeyword)["annual_reports"])

	stored, err := store.FindReport(ctx, model.CacheKey{Owner: "alice", Kind: model.KindKeyword, Subject: "Acme Corp", Year: 2025})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Text, stored.Content)

	res, err = e.Generate(ctx, model.KindKeyword, "Acme Corp", "alice", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusCached, res.Status)
	assert.Equal(t, 1, f.count(llm.TemplateKeyword))
}

func TestDerivedFailureIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.SaveReport(ctx, model.Report{Owner: "alice", Kind: model.KindYearly, Subject: "Acme Corp", Year: 2024, Content: "Y"})
	require.NoError(t, err)

	f := &fakeLLM{fail: func(string, map[string]any) error { return errors.New("boom") }}
	res, err := newTestEngine(t, store, f).Generate(ctx, model.KindTrend, "Acme Corp", "alice", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, FailurePrefix+"boom", res.Text)
	assert.Empty(t, reports(t, store, "alice", model.KindTrend))
}

func TestConcurrentSameKeyGeneratesOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.SaveReport(ctx, model.Report{Owner: "alice", Kind: model.KindYearly, Subject: "Acme Corp", Year: 2024, Content: "Y"})
	require.NoError(t, err)

	f := &fakeLLM{delay: 20 * time.Millisecond}
	e := newTestEngine(t, store, f)

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Generate(ctx, model.KindTrend, "Acme Corp", "alice", Options{})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.count(llm.TemplateTrend))
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Text, r.Text)
	}
}

func TestGenerateValidation(t *testing.T) {
	e := newTestEngine(t, newTestStore(t), &fakeLLM{})
	_, err := e.Generate(context.Background(), model.KindYearly, "Acme", " ", Options{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.Generate(context.Background(), model.ReportKind("weekly"), "Acme", "alice", Options{})
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = e.Generate(context.Background(), model.KindFuture, "Acme", "alice", Options{})
	assert.ErrorIs(t, err, ErrFutureDisabled)
}

// wordEmbedder 按关键词出现次数生成向量
type wordEmbedder struct{}

func (wordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{
			float64(strings.Count(t, "战略")) + 0.1,
			float64(strings.Count(t, "电池")) + 0.1,
			float64(strings.Count(t, "机器人")) + 0.1,
		}
	}
	return out, nil
}

type fakeCollector struct {
	mu      sync.Mutex
	queries []string
}

func (c *fakeCollector) Collect(_ context.Context, query, subject, owner string) ([]*schema.Document, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()

	if strings.HasSuffix(query, "未来增长点") {
		return nil, errors.New("search quota exceeded")
	}
	shared := &schema.Document{
		Content:  subject + " 公布了电池战略",
		MetaData: map[string]any{vectorstore.MetaSource: "https://shared.example", vectorstore.MetaOwner: owner},
	}
	own := &schema.Document{
		Content:  query + " 相关的机器人业务",
		MetaData: map[string]any{vectorstore.MetaSource: "https://n.example/" + query},
	}
	return []*schema.Document{shared, own}, nil
}

func TestFutureReport(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	vectors := vectorstore.NewStore(vectorstore.NewSQLBackend(store), wordEmbedder{}, config.VectorConfig{})
	col := &fakeCollector{}
	f := &fakeLLM{}
	e := newTestEngine(t, store, f, WithFuture(col, vectors))

	var warnings int
	res, err := e.Generate(ctx, model.KindFuture, "Acme Corp", "alice", Options{
		Progress: func(_ string, _ float64, s model.ProgressStatus) {
			if s == model.StatusWarning {
				warnings++
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusGenerated, res.Status)
	assert.Len(t, col.queries, 4)
	assert.Equal(t, 1, warnings)

	vars := f.last(llm.TemplateFuture)
	require.NotNil(t, vars)
	ctxText := vars["context"].(string)
	assert.Equal(t, 1, strings.Count(ctxText, "Acme Corp 公布了电池战略"))
	assert.Contains(t, ctxText, "Acme Corp 未来战略 相关的机器人业务")
	assert.NotContains(t, ctxText, "未来增长点")

	n, err := store.CountChunks(ctx, "alice", "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	again, err := e.Generate(ctx, model.KindFuture, "Acme Corp", "alice", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusCached, again.Status)
	assert.Len(t, col.queries, 4)
	assert.Equal(t, 1, f.count(llm.TemplateFuture))

	// 其他用户看不到 alice 的分片
	res, err = e.Generate(ctx, model.KindFuture, "Acme Corp", "bob", Options{SkipWebSearch: true})
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)
	assert.Contains(t, res.Text, "暂无数据")
	assert.Equal(t, 1, f.count(llm.TemplateFuture))
}

func TestFormatReport(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"□ A ○ B - C • D", "□ A \n  ○ B \n    - C \n      • D"},
		{"A\n○ B", "A\n  ○ B"},
		{"A\n- B\n• C", "A\n    - B\n      • C"},
		{"intro\n□ 标题", "intro\n□ 标题"},
		{"  plain text  ", "plain text"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatReport(c.in), c.in)
	}
}

func TestKeyLocksRelease(t *testing.T) {
	l := newKeyLocks()
	key := model.CacheKey{Owner: "a", Kind: model.KindTrend, Subject: "s", Year: 2025}
	unlock := l.lock(key)
	unlock()
	assert.Empty(t, l.locks)
}
