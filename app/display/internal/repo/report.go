package repo

import (
	"context"

	"github.com/iWorld-y/company_radar/app/display/internal/domain"
)

// ReportRepo 报告仓库接口
type ReportRepo interface {
	// ListReports 按条件列出报告摘要，按创建时间倒序
	ListReports(ctx context.Context, f domain.ReportFilter) ([]*domain.Report, error)
	// GetReport 根据 ID 获取报告详情，只返回属于 owner 的报告
	GetReport(ctx context.Context, id int64, owner string) (*domain.Report, error)
}

// ProgressFunc 生成过程中的进度回调
type ProgressFunc func(msg string, fraction float64)

// ReportGenerator 报告生成器，未配置 LLM 时为 nil
type ReportGenerator interface {
	Generate(ctx context.Context, req domain.GenerateRequest, progress ProgressFunc) (*domain.JobResult, error)
}

// Refresher 定时刷新使用的抓取与标注
type Refresher interface {
	// Crawl 抓取 subject 最近 days 天的新闻
	Crawl(ctx context.Context, owner, subject string, days int) (int, error)
	// Classify 标注尚未判定的文章，未配置 LLM 时跳过
	Classify(ctx context.Context, owner, subject string) error
}
