package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/display/internal/domain"
	"github.com/iWorld-y/company_radar/app/display/internal/repo"
)

// RefreshUseCase 定时刷新：抓取关注企业的最新新闻，标注后提交报告生成任务
type RefreshUseCase struct {
	refresher repo.Refresher
	jobs      *JobManager
	watch     []config.WatchConfig
	days      int
	kinds     []string
	log       *log.Helper
}

func NewRefreshUseCase(r repo.Refresher, jobs *JobManager, s *config.ScheduleConfig, logger log.Logger) *RefreshUseCase {
	uc := &RefreshUseCase{refresher: r, jobs: jobs, days: 7, log: log.NewHelper(logger)}
	if s != nil {
		uc.watch = s.Watch
		uc.kinds = s.Kinds
		if s.Days > 0 {
			uc.days = s.Days
		}
	}
	return uc
}

// Run 依次处理每个关注项，单项失败不影响其余；返回提交的任务 ID
func (uc *RefreshUseCase) Run(ctx context.Context) ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, w := range uc.watch {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		n, err := uc.refresher.Crawl(ctx, w.Owner, w.Subject, uc.days)
		if err != nil {
			uc.log.Errorf("refresh crawl failed owner=%s subject=%s: %v", w.Owner, w.Subject, err)
			errs = append(errs, fmt.Errorf("crawl %s/%s: %w", w.Owner, w.Subject, err))
			continue
		}
		uc.log.Infof("refresh crawled %d articles owner=%s subject=%s", n, w.Owner, w.Subject)

		if err := uc.refresher.Classify(ctx, w.Owner, w.Subject); err != nil {
			uc.log.Warnf("refresh classify failed owner=%s subject=%s: %v", w.Owner, w.Subject, err)
		}

		for _, kind := range uc.kinds {
			job, err := uc.jobs.Submit(ctx, domain.GenerateRequest{Owner: w.Owner, Subject: w.Subject, Kind: kind})
			if err != nil {
				errs = append(errs, fmt.Errorf("submit %s %s/%s: %w", kind, w.Owner, w.Subject, err))
				continue
			}
			ids = append(ids, job.ID)
		}
	}
	return ids, errors.Join(errs...)
}
