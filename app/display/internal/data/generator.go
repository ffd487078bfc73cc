package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/crawler"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/engine"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/display/internal/domain"
	"github.com/iWorld-y/company_radar/app/display/internal/repo"
)

type reportGenerator struct {
	engine *engine.Engine
}

// NewReportGenerator 未配置 LLM 时返回 nil，使用方据此拒绝生成请求
func NewReportGenerator(data *Data) repo.ReportGenerator {
	if data.app.Engine == nil {
		return nil
	}
	return &reportGenerator{engine: data.app.Engine}
}

func (g *reportGenerator) Generate(ctx context.Context, req domain.GenerateRequest, progress repo.ProgressFunc) (*domain.JobResult, error) {
	kind, ok := model.ParseReportKind(req.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnsupportedKind, req.Kind)
	}
	res, err := g.engine.Generate(ctx, kind, req.Subject, req.Owner, engine.Options{
		SkipWebSearch: req.SkipSearch,
		Progress: func(msg string, fraction float64, _ model.ProgressStatus) {
			if progress != nil {
				progress(msg, fraction)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return &domain.JobResult{
		Status:    string(res.Status),
		Text:      res.Text,
		Cached:    res.Units.Cached,
		Generated: res.Units.Generated,
		Failed:    res.Units.Failed,
	}, nil
}

type refresher struct {
	data *Data
	now  func() time.Time
	log  *log.Helper
}

// NewRefresher 定时刷新使用的抓取与标注
func NewRefresher(data *Data, logger log.Logger) repo.Refresher {
	return &refresher{data: data, now: time.Now, log: log.NewHelper(logger)}
}

func (r *refresher) Crawl(ctx context.Context, owner, subject string, days int) (int, error) {
	end := r.now()
	articles, err := r.data.app.Fetcher.Crawl(ctx, crawler.CrawlRequest{
		Owner:     owner,
		Subject:   subject,
		StartDate: end.AddDate(0, 0, -days),
		EndDate:   end,
	}, nil)
	return len(articles), err
}

func (r *refresher) Classify(ctx context.Context, owner, subject string) error {
	if r.data.app.Classifier == nil {
		r.log.Debugf("classifier disabled, skip %s/%s", owner, subject)
		return nil
	}
	stats, err := r.data.app.Classifier.ClassifyPending(ctx, owner, subject, nil)
	if err != nil {
		return err
	}
	r.log.Infof("标注完成 owner=%s subject=%s suitable=%d unsuitable=%d undecided=%d",
		owner, subject, stats.Suitable, stats.Unsuitable, stats.Undecided)
	return nil
}
