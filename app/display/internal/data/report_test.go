package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/bootstrap"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
	"github.com/iWorld-y/company_radar/app/display/internal/conf"
	"github.com/iWorld-y/company_radar/app/display/internal/domain"
)

func newTestData(t *testing.T) (*Data, *storage.Storage) {
	t.Helper()
	s, err := storage.NewStorage(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "radar.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &Data{app: &bootstrap.App{Config: config.Default(), Store: s}}, s
}

func TestReportRepoListAndGet(t *testing.T) {
	d, s := newTestData(t)
	ctx := context.Background()
	for _, r := range []model.Report{
		{Owner: "alice", Kind: model.KindYearly, Subject: "Acme", Year: 2023, Content: "Y2023"},
		{Owner: "alice", Kind: model.KindYearly, Subject: "Acme", Year: 2024, Content: "Y2024"},
		{Owner: "bob", Kind: model.KindYearly, Subject: "Acme", Year: 2024, Content: "bob"},
	} {
		_, err := s.SaveReport(ctx, r)
		require.NoError(t, err)
	}

	repo := NewReportRepo(d, log.DefaultLogger)
	list, err := repo.ListReports(ctx, domain.ReportFilter{Owner: "alice", Kind: "yearly"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, r := range list {
		assert.Equal(t, "alice", r.Owner)
		assert.Empty(t, r.Content)
		assert.WithinDuration(t, time.Now(), r.CreatedAt, time.Minute)
	}

	list, err = repo.ListReports(ctx, domain.ReportFilter{Owner: "alice", Year: 2023})
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := repo.GetReport(ctx, list[0].ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Y2023", got.Content)

	_, err = repo.GetReport(ctx, list[0].ID, "bob")
	assert.True(t, kerrors.IsNotFound(err))
	_, err = repo.GetReport(ctx, 999, "alice")
	assert.True(t, kerrors.IsNotFound(err))
}

func TestGeneratorDisabledWithoutEngine(t *testing.T) {
	d, _ := newTestData(t)
	assert.Nil(t, NewReportGenerator(d))
}

func TestRefresherSkipsClassifyWithoutLLM(t *testing.T) {
	d, _ := newTestData(t)
	r := NewRefresher(d, log.DefaultLogger)
	assert.NoError(t, r.Classify(context.Background(), "alice", "Acme"))
}

func TestNewDataFallsBackToReadOnly(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "db:\n  driver: sqlite\n  path: " + filepath.Join(dir, "radar.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	d, cleanup, err := NewData(&conf.Radar{Config: path}, log.DefaultLogger)
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, d.app.Store)
	assert.Nil(t, d.app.Engine)
	assert.Nil(t, NewReportGenerator(d))
	assert.Equal(t, 7, NewScheduleConfig(d).Days)
}

func TestNewDataRequiresConfigPath(t *testing.T) {
	_, _, err := NewData(&conf.Radar{}, log.DefaultLogger)
	assert.Error(t, err)
}
