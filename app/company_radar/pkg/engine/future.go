package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/llm"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore"
)

// FutureQueries 未来报告的网页搜索词
func FutureQueries(subject string) []string {
	return []string{
		subject + " 未来战略",
		subject + " 新业务动向",
		subject + " 未来增长点",
		subject + " 未来新业务",
	}
}

// RetrievalQuery 从向量库检索上下文时使用的查询
func RetrievalQuery(subject string) string {
	return subject + " 的现有能力、未来增长动力、技术路线图、长期市场定位以及业务组合多元化战略的深度分析资料"
}

// generateFuture 未来战略报告：搜索 -> 去重 -> 写入向量库 -> 检索 -> 生成
func (e *Engine) generateFuture(ctx context.Context, subject, owner string, opts Options) (*Result, error) {
	if e.vectors == nil {
		return nil, ErrFutureDisabled
	}
	progress := opts.Progress
	key := e.currentYearKey(model.KindFuture, subject, owner)

	progress.Notify(fmt.Sprintf("'%s' 未来战略路线图报告生成准备中...", subject), 0.1, model.StatusProgress)
	cached, err := e.store.FindReport(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load cached report: %w", err)
	}
	if cached != nil {
		progress.Notify(fmt.Sprintf("'%s' 的未来战略报告已存在，加载已有报告", subject), 1, model.StatusInfo)
		return &Result{Kind: model.KindFuture, Text: cached.Content, Status: StatusCached, Units: UnitStats{Cached: 1}}, nil
	}

	filter := vectorstore.Filter{Owner: owner, Subject: subject}
	if !opts.SkipWebSearch && e.collector != nil {
		docs := e.searchAll(ctx, subject, owner, progress)
		if len(docs) == 0 {
			progress.Notify(fmt.Sprintf("'%s' 没有新的网页搜索结果，尝试使用向量库中已有的资料", subject), 0.6, model.StatusWarning)
		} else {
			progress.Notify(fmt.Sprintf("写入 %d 篇文档到向量库", len(docs)), 0.5, model.StatusProgress)
			res, err := e.vectors.Upsert(ctx, filter, docs)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				e.log.WithField("subject", subject).Warnf("写入向量库失败: %v", err)
				progress.Notify(fmt.Sprintf("写入向量库失败: %v", err), 0.6, model.StatusWarning)
			} else {
				progress.Notify(fmt.Sprintf("向量库新增 %d 个分片，跳过 %d 个已存在的分片", res.Added, res.Skipped), 0.6, model.StatusProgress)
			}
		}
	}

	retrieved, err := e.vectors.Query(ctx, filter, RetrievalQuery(subject), e.retrieveK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		progress.Notify(fmt.Sprintf("检索失败: %v", err), 1, model.StatusError)
		return &Result{Kind: model.KindFuture, Text: failureText(err), Status: StatusFailed, Units: UnitStats{Failed: 1}}, nil
	}
	if len(retrieved) == 0 {
		msg := fmt.Sprintf("向量库中没有 '%s' 的相关资料，请开启网页搜索后重试", subject)
		progress.Notify(msg, 1, model.StatusWarning)
		return noData(model.KindFuture, msg), nil
	}

	contexts := make([]string, len(retrieved))
	for i, d := range retrieved {
		contexts[i] = d.Content
	}
	progress.Notify(fmt.Sprintf("基于 %d 个相关分片生成报告...", len(retrieved)), 0.8, model.StatusProgress)
	content, status, err := e.runUnit(ctx, key, llm.TemplateFuture, func() map[string]any {
		return map[string]any{
			"company": subject,
			"context": strings.Join(contexts, "\n\n"),
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		progress.Notify(fmt.Sprintf("未来战略报告生成失败: %v", err), 1, model.StatusError)
		return &Result{Kind: model.KindFuture, Text: failureText(err), Status: StatusFailed, Units: UnitStats{Failed: 1}}, nil
	}

	res := &Result{Kind: model.KindFuture, Text: content, Status: status}
	res.Units.add(status)
	progress.Notify(fmt.Sprintf("'%s' 未来战略路线图报告生成完成", subject), 1, model.StatusInfo)
	return res, nil
}

// searchAll 并发执行全部搜索词，单个搜索失败只记警告；按内容哈希去重
func (e *Engine) searchAll(ctx context.Context, subject, owner string, progress model.ProgressFunc) []*schema.Document {
	queries := FutureQueries(subject)
	results := make([][]*schema.Document, len(queries))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docs, err := e.collector.Collect(ctx, q, subject, owner)
			if err != nil {
				e.log.WithField("query", q).Warnf("网页搜索失败: %v", err)
				mu.Lock()
				progress.Notify(fmt.Sprintf("搜索 '%s' 失败: %v", q, err), 0.3, model.StatusWarning)
				mu.Unlock()
				return
			}
			results[i] = docs
		}()
	}
	wg.Wait()

	seen := make(map[[sha256.Size]byte]struct{})
	var unique []*schema.Document
	for _, docs := range results {
		for _, d := range docs {
			h := sha256.Sum256([]byte(d.Content))
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			unique = append(unique, d)
		}
	}
	return unique
}
