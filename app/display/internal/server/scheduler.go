package server

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/display/internal/usecase"
)

// Scheduler 按 cron 表达式触发刷新，实现 transport.Server 以随应用启停
type Scheduler struct {
	cron    *cron.Cron
	enabled bool
	log     *log.Helper

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler 表达式为空时不启用；表达式非法时启动失败
func NewScheduler(s *config.ScheduleConfig, uc *usecase.RefreshUseCase, logger log.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sc := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		log:    log.NewHelper(logger),
		ctx:    ctx,
		cancel: cancel,
	}
	if s == nil || s.Cron == "" {
		return sc, nil
	}

	_, err := sc.cron.AddFunc(s.Cron, func() {
		ids, err := uc.Run(sc.ctx)
		if err != nil {
			sc.log.Errorf("scheduled refresh finished with errors: %v", err)
		}
		sc.log.Infof("scheduled refresh submitted %d jobs", len(ids))
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", s.Cron, err)
	}
	sc.enabled = true
	return sc, nil
}

func (s *Scheduler) Start(context.Context) error {
	if !s.enabled {
		s.log.Info("scheduled refresh disabled")
		return nil
	}
	s.log.Info("scheduled refresh started")
	s.cron.Start()
	return nil
}

// Stop 取消正在执行的刷新并等待其退出
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
