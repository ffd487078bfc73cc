package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/llm"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
)

// 拼接分隔符
const (
	articleSeparator = "\n---\n"
	reportSeparator  = "\n\n---\n\n"
)

// yearPlan 一个年份待处理的月份
type yearPlan struct {
	year   int
	months map[int][]model.Article
	// cached 年报已存在时的内容，此时不再处理月份
	cached *string
}

type monthOutcome struct {
	month   int
	content string
	status  Status
	err     error
}

type yearOutcome struct {
	year   int
	text   string
	months []monthOutcome
	// status 年报单元的状态，只生成月报时为空
	status Status
}

// progressTracker 串行化进度回调
type progressTracker struct {
	mu    sync.Mutex
	fn    model.ProgressFunc
	total int
	done  int
}

func (p *progressTracker) step(msg string, status model.ProgressStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	fraction := 1.0
	if p.total > 0 {
		fraction = float64(p.done) / float64(p.total)
	}
	p.fn.Notify(msg, fraction, status)
}

// generatePeriodic 月报/年报：按 (年, 月) 分解，所有年份的月份同时展开，每个年份只等待自己的月份
func (e *Engine) generatePeriodic(ctx context.Context, kind model.ReportKind, subject, owner string, progress model.ProgressFunc) (*Result, error) {
	articles, err := e.store.LoadArticles(ctx, storage.ArticleQuery{Owner: owner, Subject: subject})
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	if len(articles) == 0 {
		progress.Notify(fmt.Sprintf("没有 '%s' 的文章，请先抓取新闻", subject), 0, model.StatusWarning)
		return noData(kind, fmt.Sprintf("没有 '%s' 的文章，请先抓取新闻", subject)), nil
	}

	plans := groupByMonth(articles)
	if len(plans) == 0 {
		progress.Notify("文章没有有效的发布日期", 0, model.StatusWarning)
		return noData(kind, "文章没有有效的发布日期"), nil
	}
	first, last := plans[0].year, plans[len(plans)-1].year
	progress.Notify(fmt.Sprintf("%d~%d 年可生成报告", first, last), 0, model.StatusInfo)

	withYearly := kind == model.KindYearly
	tracker := &progressTracker{fn: progress}
	for _, p := range plans {
		if withYearly {
			key := model.CacheKey{Owner: owner, Kind: model.KindYearly, Subject: subject, Year: p.year}
			r, err := e.store.FindReport(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("load cached yearly report: %w", err)
			}
			if r != nil {
				p.cached = &r.Content
				continue
			}
			tracker.total++
		}
		tracker.total += len(p.months)
	}

	outcomes := make([]yearOutcome, len(plans))
	var wg sync.WaitGroup
	for i, p := range plans {
		if p.cached != nil {
			outcomes[i] = yearOutcome{year: p.year, text: *p.cached, status: StatusCached}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = e.runYear(ctx, p, subject, owner, withYearly, tracker)
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Kind: kind}
	var sections []string
	for i := len(outcomes) - 1; i >= 0; i-- {
		o := outcomes[i]
		if withYearly {
			sections = append(sections, o.text)
			continue
		}
		for j := len(o.months) - 1; j >= 0; j-- {
			m := o.months[j]
			if m.err != nil {
				sections = append(sections, fmt.Sprintf("%d年%d月 %s", o.year, m.month, failureText(m.err)))
				continue
			}
			sections = append(sections, m.content)
		}
	}
	for _, o := range outcomes {
		for _, m := range o.months {
			res.Units.add(m.status)
		}
		res.Units.add(o.status)
	}
	res.Status = res.Units.status()
	res.Text = strings.Join(sections, reportSeparator)

	if res.Status == StatusFailed {
		progress.Notify(fmt.Sprintf("部分报告生成失败 (%d 个单元)，重新运行会重试失败的单元", res.Units.Failed), 1, model.StatusError)
	} else {
		progress.Notify(fmt.Sprintf("'%s' 报告生成完成", subject), 1, model.StatusInfo)
	}
	return res, nil
}

// runYear 展开一个年份的月份，全部成功后再生成年报
func (e *Engine) runYear(ctx context.Context, p *yearPlan, subject, owner string, withYearly bool, tracker *progressTracker) yearOutcome {
	months := make([]int, 0, len(p.months))
	for m := range p.months {
		months = append(months, m)
	}
	slices.Sort(months)

	out := yearOutcome{year: p.year, months: make([]monthOutcome, len(months))}
	var wg sync.WaitGroup
	for i, m := range months {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.months[i] = e.runMonth(ctx, p.year, m, p.months[m], subject, owner, tracker)
		}()
	}
	wg.Wait()

	var (
		contents []string
		failures []string
	)
	for _, m := range out.months {
		if m.err != nil {
			failures = append(failures, fmt.Sprintf("%d月: %v", m.month, m.err))
			continue
		}
		contents = append(contents, m.content)
	}
	if !withYearly {
		return out
	}

	if len(failures) > 0 {
		// 年报只由完整的月报生成，否则写一次的年报会永久缺月
		out.status = StatusFailed
		out.text = fmt.Sprintf("%d年 %s%d 个月度报告未完成 (%s)", p.year, FailurePrefix, len(failures), strings.Join(failures, "; "))
		tracker.step(fmt.Sprintf("%d年 年度报告跳过: 月度报告未全部完成", p.year), model.StatusError)
		return out
	}

	key := model.CacheKey{Owner: owner, Kind: model.KindYearly, Subject: subject, Year: p.year}
	content, status, err := e.runUnit(ctx, key, llm.TemplateYearly, func() map[string]any {
		return map[string]any{
			"company":  subject,
			"year":     p.year,
			"articles": strings.Join(contents, articleSeparator),
		}
	})
	if err != nil {
		e.log.WithField("year", p.year).Errorf("年度报告生成失败: %v", err)
		out.status = StatusFailed
		out.text = fmt.Sprintf("%d年 %s", p.year, failureText(err))
		tracker.step(fmt.Sprintf("%d年 年度报告生成失败: %v", p.year, err), model.StatusError)
		return out
	}
	out.text = content
	out.status = status
	tracker.step(fmt.Sprintf("%d年 年度报告%s", p.year, statusLabel(status)), model.StatusProgress)
	return out
}

func (e *Engine) runMonth(ctx context.Context, year, month int, articles []model.Article, subject, owner string, tracker *progressTracker) monthOutcome {
	key := model.CacheKey{Owner: owner, Kind: model.KindMonthly, Subject: subject, Year: year, Month: month}
	content, status, err := e.runUnit(ctx, key, llm.TemplateMonthly, func() map[string]any {
		return map[string]any{
			"company":  subject,
			"year":     year,
			"month":    month,
			"articles": articlesText(articles),
		}
	})
	if err != nil {
		e.log.WithFields(map[string]any{"year": year, "month": month}).Errorf("月度报告生成失败: %v", err)
		tracker.step(fmt.Sprintf("%d-%02d 月度报告生成失败: %v", year, month, err), model.StatusError)
		return monthOutcome{month: month, status: StatusFailed, err: err}
	}
	tracker.step(fmt.Sprintf("%d-%02d 月度报告%s", year, month, statusLabel(status)), model.StatusProgress)
	return monthOutcome{month: month, content: content, status: status}
}

func statusLabel(s Status) string {
	if s == StatusCached {
		return "已缓存"
	}
	return "生成完成"
}

// groupByMonth 按发布日期分组，无法解析日期的文章丢弃，年份升序
func groupByMonth(articles []model.Article) []*yearPlan {
	byYear := make(map[int]*yearPlan)
	for _, a := range articles {
		d, ok := a.Date()
		if !ok {
			continue
		}
		p, ok := byYear[d.Year()]
		if !ok {
			p = &yearPlan{year: d.Year(), months: make(map[int][]model.Article)}
			byYear[d.Year()] = p
		}
		m := int(d.Month())
		p.months[m] = append(p.months[m], a)
	}

	plans := make([]*yearPlan, 0, len(byYear))
	for _, p := range byYear {
		plans = append(plans, p)
	}
	slices.SortFunc(plans, func(a, b *yearPlan) int { return a.year - b.year })
	return plans
}

func articlesText(articles []model.Article) string {
	parts := make([]string, len(articles))
	for i, a := range articles {
		parts[i] = fmt.Sprintf("**标题:** %s\n**发布日期:** %s\n**正文:** %s", a.Title, a.PublishDate, a.FullText)
	}
	return strings.Join(parts, articleSeparator)
}
