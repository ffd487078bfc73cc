package classifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/llm"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
)

const (
	defaultBatchSize = 10
	// 过长的正文只取前面一段用于判定
	maxContentRunes = 3000
)

// ArticleStore 分类所需的文章读写
type ArticleStore interface {
	LoadArticles(ctx context.Context, q storage.ArticleQuery) ([]model.Article, error)
	UpdateSuitability(ctx context.Context, id int64, v model.Suitability) error
}

// Stats 一次分类的结果
type Stats struct {
	Total      int
	Suitable   int
	Unsuitable int
	// Undecided 回答无法识别或调用失败，保持未判定
	Undecided int
}

// Classifier 用 LLM 判断文章是否适合企业分析
type Classifier struct {
	store     ArticleStore
	llm       llm.Invoker
	batchSize int
	log       *logrus.Entry
}

// New 创建分类器
func New(store ArticleStore, invoker llm.Invoker) *Classifier {
	return &Classifier{
		store:     store,
		llm:       invoker,
		batchSize: defaultBatchSize,
		log:       logger.For("classifier"),
	}
}

// ClassifyPending 判定 (owner, subject) 下所有尚未判定的文章
func (c *Classifier) ClassifyPending(ctx context.Context, owner, subject string, progress model.ProgressFunc) (Stats, error) {
	var stats Stats
	if owner == "" {
		return stats, fmt.Errorf("classify: owner is required")
	}
	articles, err := c.store.LoadArticles(ctx, storage.ArticleQuery{Owner: owner, Subject: subject, OnlyUnset: true})
	if err != nil {
		return stats, err
	}
	stats.Total = len(articles)
	if stats.Total == 0 {
		progress.Notify("没有待判定的文章", 1, model.StatusInfo)
		return stats, nil
	}

	log := c.log.WithFields(logrus.Fields{"owner": owner, "subject": subject})
	var mu sync.Mutex
	for start := 0; start < len(articles); start += c.batchSize {
		batch := articles[start:min(start+c.batchSize, len(articles))]

		// 单篇失败只计入未判定，不影响同批其他文章
		var g errgroup.Group
		for _, a := range batch {
			g.Go(func() error {
				v, err := c.classify(ctx, a)
				if err == nil && v != model.SuitabilityUnset {
					err = c.store.UpdateSuitability(ctx, a.ID, v)
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.WithField("url", a.URL).Warnf("文章判定失败: %v", err)
					stats.Undecided++
					return nil
				}
				switch v {
				case model.SuitabilitySuitable:
					stats.Suitable++
				case model.SuitabilityUnsuitable:
					stats.Unsuitable++
				default:
					stats.Undecided++
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		done := min(start+c.batchSize, len(articles))
		progress.Notify(fmt.Sprintf("[适用性判定] %d/%d 完成，适合 %d 篇", done, stats.Total, stats.Suitable),
			float64(done)/float64(stats.Total), model.StatusProgress)
	}

	log.Infof("适用性判定完成: 适合 %d, 不适合 %d, 未判定 %d", stats.Suitable, stats.Unsuitable, stats.Undecided)
	return stats, nil
}

func (c *Classifier) classify(ctx context.Context, a model.Article) (model.Suitability, error) {
	content := a.FullText
	if r := []rune(content); len(r) > maxContentRunes {
		content = string(r[:maxContentRunes])
	}
	answer, err := c.llm.Invoke(ctx, llm.TemplateSuitability, map[string]any{
		"article_content": fmt.Sprintf("标题: %s\n%s", a.Title, content),
	})
	if err != nil {
		return model.SuitabilityUnset, err
	}
	return ParseAnswer(answer), nil
}

// ParseAnswer 把模型回答映射为适用性，先检查“不适合”，否则它会被“适合”误判
func ParseAnswer(answer string) model.Suitability {
	a := strings.TrimSpace(answer)
	switch {
	case strings.Contains(a, "不适合"):
		return model.SuitabilityUnsuitable
	case strings.Contains(a, "适合"):
		return model.SuitabilitySuitable
	default:
		return model.SuitabilityUnset
	}
}
