package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
	"github.com/iWorld-y/company_radar/app/display/internal/conf"
	"github.com/iWorld-y/company_radar/app/display/internal/service"
	"github.com/iWorld-y/company_radar/app/display/internal/usecase"
)

func TestHTTPServerExposesMetrics(t *testing.T) {
	metrics.Init()
	metrics.ReportUnits.WithLabelValues("yearly", "cached").Inc()

	svc := service.NewDisplayService(nil, nil, log.DefaultLogger)
	srv := NewHTTPServer(&conf.Server{Http: &conf.HTTP{Timeout: "5s"}}, svc, log.DefaultLogger)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "company_radar_report_units_total")
}

func TestSchedulerDisabledWithoutCron(t *testing.T) {
	jobs, cleanup := usecase.NewJobManager(nil, nil, log.DefaultLogger)
	defer cleanup()
	uc := usecase.NewRefreshUseCase(nil, jobs, nil, log.DefaultLogger)

	sc, err := NewScheduler(&config.ScheduleConfig{}, uc, log.DefaultLogger)
	require.NoError(t, err)
	require.NoError(t, sc.Start(context.Background()))
	require.NoError(t, sc.Stop(context.Background()))
}

func TestSchedulerRejectsInvalidCron(t *testing.T) {
	_, err := NewScheduler(&config.ScheduleConfig{Cron: "every day"}, nil, log.DefaultLogger)
	assert.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	jobs, cleanup := usecase.NewJobManager(nil, nil, log.DefaultLogger)
	defer cleanup()
	uc := usecase.NewRefreshUseCase(nil, jobs, nil, log.DefaultLogger)

	sc, err := NewScheduler(&config.ScheduleConfig{Cron: "0 3 * * *"}, uc, log.DefaultLogger)
	require.NoError(t, err)
	require.NoError(t, sc.Start(context.Background()))
	require.NoError(t, sc.Stop(context.Background()))
}
