package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/llm"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
)

var derivedTemplates = map[model.ReportKind]string{
	model.KindKeyword: llm.TemplateKeyword,
	model.KindTrend:   llm.TemplateTrend,
}

var derivedNames = map[model.ReportKind]string{
	model.KindKeyword: "核心关键词总结",
	model.KindTrend:   "企业趋势分析",
}

// generateDerived 关键词/趋势报告：以当年为键，由全部年报汇总生成
func (e *Engine) generateDerived(ctx context.Context, kind model.ReportKind, subject, owner string, progress model.ProgressFunc) (*Result, error) {
	name := derivedNames[kind]
	key := e.currentYearKey(kind, subject, owner)

	cached, err := e.store.FindReport(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load cached report: %w", err)
	}
	if cached != nil {
		progress.Notify(fmt.Sprintf("'%s' 的%s已存在，加载已有报告", subject, name), 1, model.StatusInfo)
		return &Result{Kind: kind, Text: cached.Content, Status: StatusCached, Units: UnitStats{Cached: 1}}, nil
	}

	yearly, err := e.store.LoadReports(ctx, storage.ReportQuery{
		Owner:   owner,
		Kind:    model.KindYearly,
		Subject: subject,
		Month:   storage.NoMonth,
	})
	if err != nil {
		return nil, fmt.Errorf("load yearly reports: %w", err)
	}
	if len(yearly) == 0 {
		msg := fmt.Sprintf("'%s' 还没有年度报告，请先生成年度报告再生成%s", subject, name)
		progress.Notify(msg, 0, model.StatusWarning)
		return noData(kind, msg), nil
	}

	slices.SortStableFunc(yearly, func(a, b model.Report) int { return b.Year - a.Year })
	contents := make([]string, len(yearly))
	for i, r := range yearly {
		contents[i] = r.Content
	}

	progress.Notify(fmt.Sprintf("[报告生成] 正在生成 '%s' 的%s...", subject, name), 0.5, model.StatusProgress)
	content, status, err := e.runUnit(ctx, key, derivedTemplates[kind], func() map[string]any {
		return map[string]any{
			"company":        subject,
			"annual_reports": strings.Join(contents, reportSeparator),
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		progress.Notify(fmt.Sprintf("%s生成失败: %v", name, err), 1, model.StatusError)
		return &Result{Kind: kind, Text: failureText(err), Status: StatusFailed, Units: UnitStats{Failed: 1}}, nil
	}

	res := &Result{Kind: kind, Text: content, Status: status}
	res.Units.add(status)
	progress.Notify(fmt.Sprintf("'%s' 的%s完成", subject, name), 1, model.StatusInfo)
	return res, nil
}
