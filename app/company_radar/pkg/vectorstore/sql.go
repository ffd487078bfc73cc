package vectorstore

import (
	"context"
	"sort"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/storage"
)

// ChunkStore SQL 侧的分片表操作
type ChunkStore interface {
	ExistingChunkIDs(ctx context.Context, owner, subject string, ids []string) (map[string]struct{}, error)
	InsertChunks(ctx context.Context, chunks []storage.ChunkRecord) (int, error)
	LoadChunks(ctx context.Context, owner, subject string) ([]storage.ChunkRecord, error)
}

// SQLBackend 把向量存进关系库，检索时在进程内计算余弦相似度
type SQLBackend struct {
	store ChunkStore
}

var _ Backend = (*SQLBackend)(nil)

// NewSQLBackend 创建 SQL 后端
func NewSQLBackend(store ChunkStore) *SQLBackend {
	return &SQLBackend{store: store}
}

// ExistingIDs implements Backend
func (b *SQLBackend) ExistingIDs(ctx context.Context, f Filter, ids []string) (map[string]struct{}, error) {
	return b.store.ExistingChunkIDs(ctx, f.Owner, f.Subject, ids)
}

// Insert implements Backend
func (b *SQLBackend) Insert(ctx context.Context, chunks []Chunk) (int, error) {
	records := make([]storage.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = storage.ChunkRecord{
			Owner:     c.Owner,
			Subject:   c.Subject,
			ID:        c.ID,
			Text:      c.Text,
			Source:    c.Source,
			Metadata:  c.Metadata,
			Embedding: c.Embedding,
		}
	}
	return b.store.InsertChunks(ctx, records)
}

// Candidates implements Backend
func (b *SQLBackend) Candidates(ctx context.Context, f Filter, query []float32, n int) ([]Chunk, error) {
	records, err := b.store.LoadChunks(ctx, f.Owner, f.Subject)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(records))
	for i, r := range records {
		chunks[i] = Chunk{
			ID:        r.ID,
			Owner:     r.Owner,
			Subject:   r.Subject,
			Text:      r.Text,
			Source:    r.Source,
			Metadata:  r.Metadata,
			Embedding: r.Embedding,
			Score:     Cosine(query, r.Embedding),
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	if len(chunks) > n {
		chunks = chunks[:n]
	}
	return chunks, nil
}
