package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ChunkRecord 上下文分片的持久化形式
type ChunkRecord struct {
	Owner     string
	Subject   string
	ID        string
	Text      string
	Source    string
	Metadata  map[string]string
	Embedding []float32
}

// 单条 IN 查询的最大参数个数
const idBatch = 500

// ExistingChunkIDs 返回 (owner, subject) 分区内已存在的 id
func (s *Storage) ExistingChunkIDs(ctx context.Context, owner, subject string, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for start := 0; start < len(ids); start += idBatch {
		end := start + idBatch
		if end > len(ids) {
			end = len(ids)
		}
		query, args, err := s.sb.Select("id").From("context_chunks").
			Where(sq.Eq{"owner": owner, "subject": subject, "id": ids[start:end]}).
			ToSql()
		if err != nil {
			return nil, err
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query chunk ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			found[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// InsertChunks 批量写入分片，已存在的 id 忽略
func (s *Storage) InsertChunks(ctx context.Context, chunks []ChunkRecord) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		for _, c := range chunks {
			emb, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("failed to encode embedding: %w", err)
			}
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			query, args, err := s.sb.Insert("context_chunks").
				Columns("owner", "subject", "id", "text", "source", "metadata", "embedding", "created_at").
				Values(c.Owner, c.Subject, c.ID, sanitize(c.Text), c.Source, string(meta), string(emb), now).
				Suffix("ON CONFLICT DO NOTHING").
				ToSql()
			if err != nil {
				return err
			}
			r, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
			}
			if n, _ := r.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}

// LoadChunks 加载 (owner, subject) 分区内的全部分片
func (s *Storage) LoadChunks(ctx context.Context, owner, subject string) ([]ChunkRecord, error) {
	query, args, err := s.sb.Select("owner", "subject", "id", "text", "source", "metadata", "embedding").
		From("context_chunks").
		Where(sq.Eq{"owner": owner, "subject": subject}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRecord
	for rows.Next() {
		var (
			c         ChunkRecord
			source    sql.NullString
			meta      sql.NullString
			embedding string
		)
		if err := rows.Scan(&c.Owner, &c.Subject, &c.ID, &c.Text, &source, &meta, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Source = source.String
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", c.ID, err)
			}
		}
		if err := json.Unmarshal([]byte(embedding), &c.Embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding of %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountChunks 返回分区内分片数量
func (s *Storage) CountChunks(ctx context.Context, owner, subject string) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("context_chunks").
		Where(sq.Eq{"owner": owner, "subject": subject}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
