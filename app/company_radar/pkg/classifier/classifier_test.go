package classifier

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
)

type scriptedLLM struct {
	mu    sync.Mutex
	calls int
	reply func(content string) (string, error)
}

func (s *scriptedLLM) Invoke(_ context.Context, name string, vars map[string]any) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.reply(vars["article_content"].(string))
}

func newStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.NewStorage(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "radar.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseAnswer(t *testing.T) {
	assert.Equal(t, model.SuitabilityUnsuitable, ParseAnswer("不适合"))
	assert.Equal(t, model.SuitabilityUnsuitable, ParseAnswer(" 这篇新闻不适合。"))
	assert.Equal(t, model.SuitabilitySuitable, ParseAnswer("适合"))
	assert.Equal(t, model.SuitabilityUnset, ParseAnswer("无法判断"))
}

func TestClassifyPending(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var articles []model.Article
	for i, title := range []string{"Acme 新工厂", "周末天气", "Acme 业绩", "无法判断", "接口失败"} {
		articles = append(articles, model.Article{
			Subject:     "Acme",
			Title:       title,
			PublishDate: "2023-01-0" + string(rune('1'+i)),
			FullText:    "正文 " + title,
			URL:         "https://n.example/" + string(rune('a'+i)),
		})
	}
	_, err := store.SaveArticles(ctx, "alice", articles)
	require.NoError(t, err)
	_, err = store.SaveArticles(ctx, "bob", articles[:1])
	require.NoError(t, err)

	fake := &scriptedLLM{reply: func(content string) (string, error) {
		switch {
		case strings.Contains(content, "天气"):
			return "不适合", nil
		case strings.Contains(content, "无法判断"):
			return "不确定", nil
		case strings.Contains(content, "接口失败"):
			return "", errors.New("upstream down")
		}
		return "适合", nil
	}}
	c := New(store, fake)
	c.log = logger.Discard()
	c.batchSize = 2

	var fractions []float64
	stats, err := c.ClassifyPending(ctx, "alice", "Acme", func(_ string, f float64, _ model.ProgressStatus) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 5, Suitable: 2, Unsuitable: 1, Undecided: 2}, stats)
	assert.Equal(t, []float64{0.4, 0.8, 1}, fractions)

	dist, err := store.SuitabilityStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[model.Suitability]int{
		model.SuitabilitySuitable:   2,
		model.SuitabilityUnsuitable: 1,
		model.SuitabilityUnset:      2,
	}, dist)

	// 其他用户的文章不受影响
	dist, err = store.SuitabilityStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[model.Suitability]int{model.SuitabilityUnset: 1}, dist)

	// 再次运行只处理仍未判定的文章
	stats, err = c.ClassifyPending(ctx, "alice", "Acme", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 7, fake.calls)
}

func TestClassifyStopsAfterCancelledBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newStore(t)

	var articles []model.Article
	for i := range 5 {
		articles = append(articles, model.Article{
			Subject:     "Acme",
			Title:       "Acme 新闻 " + string(rune('a'+i)),
			PublishDate: "2023-02-0" + string(rune('1'+i)),
			FullText:    "正文",
			URL:         "https://n.example/c" + string(rune('a'+i)),
		})
	}
	_, err := store.SaveArticles(context.Background(), "alice", articles)
	require.NoError(t, err)

	fake := &scriptedLLM{reply: func(string) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	c := New(store, fake)
	c.log = logger.Discard()
	c.batchSize = 2

	stats, err := c.ClassifyPending(ctx, "alice", "Acme", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Undecided)
	assert.Equal(t, 2, fake.calls)

	dist, err := store.SuitabilityStats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, map[model.Suitability]int{model.SuitabilityUnset: 5}, dist)
}

func TestClassifyRequiresOwner(t *testing.T) {
	c := New(newStore(t), &scriptedLLM{})
	_, err := c.ClassifyPending(context.Background(), "", "Acme", nil)
	assert.Error(t, err)
}
