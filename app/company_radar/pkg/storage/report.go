package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
)

// NoMonth 作为 ReportQuery.Month 时匹配 month IS NULL（非月报）
const NoMonth = -1

// ReportQuery 报告查询条件，零值字段为通配
type ReportQuery struct {
	Owner   string
	Kind    model.ReportKind
	Subject string
	Year    int
	// Month: 0 通配, NoMonth 匹配空月份, 1-12 精确匹配
	Month int
}

var reportColumns = []string{"id", "owner", "kind", "subject", "year", "month", "content", "created_at"}

// SaveReport 写一次语义：缓存键已存在时不写入，返回 saved=false
func (s *Storage) SaveReport(ctx context.Context, r model.Report) (bool, error) {
	if r.Owner == "" || r.Kind == "" || r.Subject == "" {
		return false, fmt.Errorf("save report: owner, kind and subject are required")
	}
	if r.Kind == model.KindMonthly && (r.Month < 1 || r.Month > 12) {
		return false, fmt.Errorf("save report: monthly report needs month 1-12, got %d", r.Month)
	}
	if r.Kind != model.KindMonthly && r.Month != 0 {
		return false, fmt.Errorf("save report: %s report must not carry a month", r.Kind)
	}

	var month interface{}
	if r.Month > 0 {
		month = r.Month
	}
	query, args, err := s.sb.Insert("reports").
		Columns("owner", "kind", "subject", "year", "month", "content", "created_at").
		Values(r.Owner, string(r.Kind), r.Subject, r.Year, month, sanitize(r.Content), time.Now().UnixMilli()).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.WithFields(map[string]interface{}{
			"owner": r.Owner, "kind": r.Kind, "subject": r.Subject, "year": r.Year, "month": r.Month,
		}).Warn("报告已存在，保留已有内容，跳过写入")
		return false, nil
	}
	return true, nil
}

// LoadReports 按条件加载报告，按创建时间倒序
func (s *Storage) LoadReports(ctx context.Context, q ReportQuery) ([]model.Report, error) {
	sel := s.sb.Select(reportColumns...).From("reports")
	eq := sq.Eq{}
	if q.Owner != "" {
		eq["owner"] = q.Owner
	}
	if q.Kind != "" {
		eq["kind"] = string(q.Kind)
	}
	if q.Subject != "" {
		eq["subject"] = q.Subject
	}
	if q.Year != 0 {
		eq["year"] = q.Year
	}
	switch {
	case q.Month == NoMonth:
		eq["month"] = nil
	case q.Month > 0:
		eq["month"] = q.Month
	}
	if len(eq) > 0 {
		sel = sel.Where(eq)
	}

	query, args, err := sel.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindReport 查找缓存键对应的报告，不存在返回 nil
func (s *Storage) FindReport(ctx context.Context, key model.CacheKey) (*model.Report, error) {
	month := key.Month
	if month == 0 {
		month = NoMonth
	}
	reports, err := s.LoadReports(ctx, ReportQuery{
		Owner:   key.Owner,
		Kind:    key.Kind,
		Subject: key.Subject,
		Year:    key.Year,
		Month:   month,
	})
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// GetReport 按 ID 获取报告，owner 非空时校验归属
func (s *Storage) GetReport(ctx context.Context, id int64, owner string) (*model.Report, error) {
	eq := sq.Eq{"id": id}
	if owner != "" {
		eq["owner"] = owner
	}
	query, args, err := s.sb.Select(reportColumns...).From("reports").Where(eq).ToSql()
	if err != nil {
		return nil, err
	}

	r, err := scanReport(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(rs rowScanner) (model.Report, error) {
	var (
		r       model.Report
		kind    string
		month   sql.NullInt64
		created int64
	)
	if err := rs.Scan(&r.ID, &r.Owner, &kind, &r.Subject, &r.Year, &month, &r.Content, &created); err != nil {
		return model.Report{}, err
	}
	r.Kind = model.ReportKind(kind)
	if month.Valid {
		r.Month = int(month.Int64)
	}
	r.CreatedAt = time.UnixMilli(created)
	return r, nil
}
