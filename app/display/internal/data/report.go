package data

import (
	"context"
	"errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
	"github.com/iWorld-y/company_radar/app/display/internal/domain"
	"github.com/iWorld-y/company_radar/app/display/internal/repo"
)

type reportRepo struct {
	data *Data
	log  *log.Helper
}

func NewReportRepo(data *Data, logger log.Logger) repo.ReportRepo {
	return &reportRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *reportRepo) ListReports(ctx context.Context, f domain.ReportFilter) ([]*domain.Report, error) {
	reports, err := r.data.app.Store.LoadReports(ctx, storage.ReportQuery{
		Owner:   f.Owner,
		Subject: f.Subject,
		Kind:    model.ReportKind(f.Kind),
		Year:    f.Year,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Report, 0, len(reports))
	for _, rp := range reports {
		d := toDomain(rp)
		// 列表只返回摘要
		d.Content = ""
		out = append(out, d)
	}
	return out, nil
}

func (r *reportRepo) GetReport(ctx context.Context, id int64, owner string) (*domain.Report, error) {
	rp, err := r.data.app.Store.GetReport(ctx, id, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, kerrors.NotFound("REPORT_NOT_FOUND", "report not found")
		}
		return nil, err
	}
	return toDomain(*rp), nil
}

func toDomain(r model.Report) *domain.Report {
	return &domain.Report{
		ID:        r.ID,
		Owner:     r.Owner,
		Kind:      string(r.Kind),
		Subject:   r.Subject,
		Year:      r.Year,
		Month:     r.Month,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}
