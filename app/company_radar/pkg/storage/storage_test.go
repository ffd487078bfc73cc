package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "radar.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func article(url, title, date string) model.Article {
	return model.Article{
		Subject:     "Acme Corp",
		Title:       title,
		PublishDate: date,
		Author:      "Kim",
		FullText:    "body of " + title,
		URL:         url,
	}
}

func TestNewStorageUnsupportedDriver(t *testing.T) {
	_, err := NewStorage(config.DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSaveArticlesIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := []model.Article{
		article("https://n.example/1", "one", "2023-03-01"),
		article("https://n.example/2", "two", "2023-07-09"),
	}

	res, err := s.SaveArticles(ctx, "alice", batch)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Inserted: 2}, res)

	res, err = s.SaveArticles(ctx, "alice", batch)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Duplicates: 2}, res)

	got, err := s.LoadArticles(ctx, ArticleQuery{Owner: "alice"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Title)
	assert.Equal(t, model.SuitabilityUnset, got[0].Suitability)
}

func TestSaveArticlesSkipsIncompleteRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noBody := article("https://n.example/3", "three", "2023-01-01")
	noBody.FullText = model.Unavailable
	noTitle := article("https://n.example/4", "", "2023-01-01")
	noURL := article("", "five", "2023-01-01")
	noAuthor := article("https://n.example/6", "six", "2023-01-01")
	noAuthor.Author = model.Unavailable

	res, err := s.SaveArticles(ctx, "alice", []model.Article{noBody, noTitle, noURL, noAuthor})
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Inserted: 1, Skipped: 3}, res)
}

func TestSaveArticlesSanitizesText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := article("https://n.example/nul", "nul\x00title", "2023-01-01")
	a.FullText = "bad \xff utf8"
	_, err := s.SaveArticles(ctx, "alice", []model.Article{a})
	require.NoError(t, err)

	got, err := s.LoadArticles(ctx, ArticleQuery{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nultitle", got[0].Title)
	assert.Equal(t, "bad  utf8", got[0].FullText)
}

func TestArticlesArePartitionedByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shared := article("https://n.example/shared", "shared", "2023-03-01")

	_, err := s.SaveArticles(ctx, "alice", []model.Article{shared})
	require.NoError(t, err)
	// 同一个 URL 对不同用户是独立记录
	res, err := s.SaveArticles(ctx, "carol", []model.Article{shared})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	got, err := s.LoadArticles(ctx, ArticleQuery{Owner: "bob"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.LoadArticles(ctx, ArticleQuery{Owner: "carol", Subject: "Other"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResetArticlesScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveArticles(ctx, "alice", []model.Article{article("https://n.example/a", "a", "2023-03-01")})
	require.NoError(t, err)
	_, err = s.SaveArticles(ctx, "carol", []model.Article{article("https://n.example/c", "c", "2023-03-01")})
	require.NoError(t, err)

	n, err := s.ResetArticles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	alice, err := s.LoadArticles(ctx, ArticleQuery{Owner: "alice"})
	require.NoError(t, err)
	assert.Empty(t, alice)
	carol, err := s.LoadArticles(ctx, ArticleQuery{Owner: "carol"})
	require.NoError(t, err)
	assert.Len(t, carol, 1)

	// 全量清空后表依然可用
	n, err = s.ResetArticles(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	res, err := s.SaveArticles(ctx, "carol", []model.Article{article("https://n.example/c", "c", "2023-03-01")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func TestUpdateSuitability(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.SaveArticles(ctx, "alice", []model.Article{
		article("https://n.example/a", "a", "2023-03-01"),
		article("https://n.example/b", "b", "2023-03-02"),
	})
	require.NoError(t, err)
	got, err := s.LoadArticles(ctx, ArticleQuery{Owner: "alice"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateSuitability(ctx, got[0].ID, model.SuitabilitySuitable))
	require.NoError(t, s.UpdateSuitability(ctx, got[1].ID, model.SuitabilityUnsuitable))

	unset, err := s.LoadArticles(ctx, ArticleQuery{Owner: "alice", OnlyUnset: true})
	require.NoError(t, err)
	assert.Empty(t, unset)

	// 可以重新置回未判定
	require.NoError(t, s.UpdateSuitability(ctx, got[1].ID, model.SuitabilityUnset))
	stats, err := s.SuitabilityStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[model.Suitability]int{model.SuitabilitySuitable: 1, model.SuitabilityUnset: 1}, stats)

	err = s.UpdateSuitability(ctx, 9999, model.SuitabilitySuitable)
	assert.ErrorIs(t, err, ErrNotFound)
}
