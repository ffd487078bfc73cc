package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
)

// SaveResult 一次文章写入的统计
type SaveResult struct {
	Inserted   int
	Duplicates int
	Skipped    int
}

// ArticleQuery 文章查询条件，空字段为通配
type ArticleQuery struct {
	Owner   string
	Subject string
	// OnlyUnset 只返回尚未判定适用性的文章
	OnlyUnset bool
}

var articleColumns = []string{
	"id", "owner", "subject", "title", "publish_date", "author", "full_text", "url", "suitability",
}

// SaveArticles 按 (owner, url) 去重插入，缺少标题/URL/正文的记录跳过
func (s *Storage) SaveArticles(ctx context.Context, owner string, articles []model.Article) (SaveResult, error) {
	var res SaveResult
	if owner == "" {
		return res, fmt.Errorf("save articles: owner is required")
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		for _, a := range articles {
			if model.Missing(a.Title) || model.Missing(a.URL) || model.Missing(a.FullText) {
				res.Skipped++
				s.log.WithField("url", a.URL).Warn("文章缺少必填字段，跳过保存")
				continue
			}

			query, args, err := s.sb.Insert("articles").
				Columns("owner", "subject", "title", "publish_date", "author", "full_text", "url", "suitability", "created_at").
				Values(owner, sanitize(a.Subject), sanitize(a.Title), a.PublishDate, sanitize(a.Author),
					sanitize(a.FullText), a.URL, suitabilityValue(a.Suitability), now).
				Suffix("ON CONFLICT (owner, url) DO NOTHING").
				ToSql()
			if err != nil {
				return err
			}
			r, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to insert article %s: %w", a.URL, err)
			}
			if n, _ := r.RowsAffected(); n == 0 {
				res.Duplicates++
				continue
			}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}

	metrics.ArticlesSaved.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.ArticlesSaved.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	metrics.ArticlesSaved.WithLabelValues("skipped").Add(float64(res.Skipped))
	s.log.WithField("owner", owner).Infof("文章保存完成: 新增 %d, 重复 %d, 跳过 %d", res.Inserted, res.Duplicates, res.Skipped)
	return res, nil
}

// LoadArticles 加载满足条件的文章，按发布日期升序
func (s *Storage) LoadArticles(ctx context.Context, q ArticleQuery) ([]model.Article, error) {
	sel := s.sb.Select(articleColumns...).From("articles")
	eq := sq.Eq{}
	if q.Owner != "" {
		eq["owner"] = q.Owner
	}
	if q.Subject != "" {
		eq["subject"] = q.Subject
	}
	if q.OnlyUnset {
		eq["suitability"] = nil
	}
	if len(eq) > 0 {
		sel = sel.Where(eq)
	}
	query, args, err := sel.OrderBy("publish_date", "id").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		var (
			a           model.Article
			publishDate sql.NullString
			author      sql.NullString
			suitability sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Owner, &a.Subject, &a.Title, &publishDate, &author, &a.FullText, &a.URL, &suitability); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a.PublishDate = publishDate.String
		a.Author = author.String
		a.Suitability = suitabilityFromDB(suitability)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateSuitability 设置文章的适用性标注
func (s *Storage) UpdateSuitability(ctx context.Context, id int64, v model.Suitability) error {
	query, args, err := s.sb.Update("articles").
		Set("suitability", suitabilityValue(v)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	r, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update suitability: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// ResetArticles 删除某个用户（owner 为空时为全部）的文章，并保证表结构仍然存在
func (s *Storage) ResetArticles(ctx context.Context, owner string) (int64, error) {
	var (
		deleted int64
		err     error
	)
	if owner == "" {
		var n int64
		if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&n); err == nil {
			deleted = n
			_, err = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS articles")
		}
	} else {
		var query string
		var args []interface{}
		query, args, err = s.sb.Delete("articles").Where(sq.Eq{"owner": owner}).ToSql()
		if err == nil {
			var r sql.Result
			if r, err = s.db.ExecContext(ctx, query, args...); err == nil {
				deleted, _ = r.RowsAffected()
			}
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reset articles: %w", err)
	}

	if err := s.initSchema(ctx); err != nil {
		return deleted, fmt.Errorf("failed to re-initialize schema: %w", err)
	}
	s.log.WithField("owner", owner).Infof("已清空文章 %d 条", deleted)
	return deleted, nil
}

// SuitabilityStats 统计某用户文章的适用性分布
func (s *Storage) SuitabilityStats(ctx context.Context, owner string) (map[model.Suitability]int, error) {
	sel := s.sb.Select("suitability", "COUNT(*)").From("articles").GroupBy("suitability")
	if owner != "" {
		sel = sel.Where(sq.Eq{"owner": owner})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suitability stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[model.Suitability]int)
	for rows.Next() {
		var (
			v sql.NullInt64
			n int
		)
		if err := rows.Scan(&v, &n); err != nil {
			return nil, err
		}
		stats[suitabilityFromDB(v)] += n
	}
	return stats, rows.Err()
}

func suitabilityValue(v model.Suitability) interface{} {
	switch v {
	case model.SuitabilityUnsuitable:
		return 0
	case model.SuitabilitySuitable:
		return 1
	default:
		return nil
	}
}

func suitabilityFromDB(v sql.NullInt64) model.Suitability {
	if !v.Valid {
		return model.SuitabilityUnset
	}
	if v.Int64 == 1 {
		return model.SuitabilitySuitable
	}
	return model.SuitabilityUnsuitable
}
