package usecase

import (
	"context"
	"strings"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/display/internal/domain"
	"github.com/iWorld-y/company_radar/app/display/internal/repo"
)

// ReportUseCase 已生成报告的查询
type ReportUseCase struct {
	repo repo.ReportRepo
	log  *log.Helper
}

// NewReportUseCase 创建报告查询业务逻辑实例
func NewReportUseCase(repo repo.ReportRepo, logger log.Logger) *ReportUseCase {
	return &ReportUseCase{repo: repo, log: log.NewHelper(logger)}
}

// List 列出某个用户的报告摘要
func (uc *ReportUseCase) List(ctx context.Context, f domain.ReportFilter) ([]*domain.Report, error) {
	f.Owner = strings.TrimSpace(f.Owner)
	if f.Owner == "" {
		return nil, errors.BadRequest("OWNER_REQUIRED", "owner is required")
	}
	if f.Kind != "" {
		kind, ok := model.ParseReportKind(f.Kind)
		if !ok {
			return nil, errors.BadRequest("INVALID_KIND", "unsupported report kind: "+f.Kind)
		}
		f.Kind = string(kind)
	}
	return uc.repo.ListReports(ctx, f)
}

// Get 获取报告详情，只能读取自己的报告
func (uc *ReportUseCase) Get(ctx context.Context, id int64, owner string) (*domain.Report, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errors.BadRequest("OWNER_REQUIRED", "owner is required")
	}
	return uc.repo.GetReport(ctx, id, owner)
}
