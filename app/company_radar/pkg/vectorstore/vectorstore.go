package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
)

// 文档元数据键
const (
	MetaSource      = "source"
	MetaTitle       = "title"
	MetaPosition    = "position"
	MetaQueryOrigin = "query_origin"
	MetaFetchType   = "fetched_type"
	MetaSubject     = "subject"
	MetaOwner       = "owner"
)

const (
	defaultFetchK = 20
	defaultLambda = 0.5
)

// ErrInvalidFilter 分区条件不完整
var ErrInvalidFilter = errors.New("vectorstore: owner and subject are required")

// Filter 检索和去重的分区：同一 (owner, subject) 内的分片互相可见
type Filter struct {
	Owner   string
	Subject string
}

func (f Filter) validate() error {
	if f.Owner == "" || f.Subject == "" {
		return ErrInvalidFilter
	}
	return nil
}

// Chunk 一个带向量的文本分片
type Chunk struct {
	ID        string
	Owner     string
	Subject   string
	Text      string
	Source    string
	Metadata  map[string]string
	Embedding []float32
	// Score 检索时与查询的相似度
	Score float64
}

// Backend 向量的实际存储
type Backend interface {
	// ExistingIDs 返回分区内已存在的 id
	ExistingIDs(ctx context.Context, f Filter, ids []string) (map[string]struct{}, error)
	Insert(ctx context.Context, chunks []Chunk) (int, error)
	// Candidates 返回分区内与 query 最相近的至多 n 个分片，需带上向量
	Candidates(ctx context.Context, f Filter, query []float32, n int) ([]Chunk, error)
}

// UpsertResult 一次写入的统计
type UpsertResult struct {
	Added   int
	Skipped int
}

// Store 分区隔离、内容寻址的上下文向量库
type Store struct {
	backend   Backend
	embedder  embedding.Embedder
	batchSize int
	pause     time.Duration
	topK      int
	fetchK    int
	lambda    float64
	sleep     func(ctx context.Context, d time.Duration) error
	log       *logrus.Entry
}

// Option Store 可选项
type Option func(*Store)

// WithSleep 替换批次之间的等待函数
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Store) { s.sleep = sleep }
}

// WithMMR 设置候选数量与 lambda
func WithMMR(fetchK int, lambda float64) Option {
	return func(s *Store) {
		s.fetchK = fetchK
		s.lambda = lambda
	}
}

// NewStore 创建向量库
func NewStore(backend Backend, emb embedding.Embedder, cfg config.VectorConfig, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		embedder:  emb,
		batchSize: cfg.BatchSize,
		pause:     cfg.BatchPause,
		topK:      cfg.TopK,
		fetchK:    defaultFetchK,
		lambda:    defaultLambda,
		sleep:     sleepCtx,
		log:       logger.For("vectorstore"),
	}
	if s.batchSize <= 0 {
		s.batchSize = 80
	}
	if s.topK <= 0 {
		s.topK = 20
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert 切分文档并只为分区内尚不存在的分片计算向量
func (s *Store) Upsert(ctx context.Context, f Filter, docs []*schema.Document) (UpsertResult, error) {
	var res UpsertResult
	if err := f.validate(); err != nil {
		return res, err
	}

	chunks, err := Split(docs)
	if err != nil {
		return res, err
	}
	if len(chunks) == 0 {
		return res, nil
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].Owner, chunks[i].Subject = f.Owner, f.Subject
		ids[i] = chunks[i].ID
	}
	existing, err := s.backend.ExistingIDs(ctx, f, ids)
	if err != nil {
		return res, fmt.Errorf("query existing chunks: %w", err)
	}

	fresh := chunks[:0:0]
	for _, c := range chunks {
		if _, ok := existing[c.ID]; ok {
			res.Skipped++
			continue
		}
		fresh = append(fresh, c)
	}
	log := s.log.WithFields(logrus.Fields{"owner": f.Owner, "subject": f.Subject})
	if len(fresh) == 0 {
		log.Infof("全部 %d 个分片已存在，跳过向量化", res.Skipped)
		metrics.ChunksUpserted.WithLabelValues("skipped").Add(float64(res.Skipped))
		return res, nil
	}

	for start := 0; start < len(fresh); start += s.batchSize {
		if start > 0 && s.pause > 0 {
			if err := s.sleep(ctx, s.pause); err != nil {
				return res, err
			}
		}
		batch := fresh[start:min(start+s.batchSize, len(fresh))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := s.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(batch) {
			return res, fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(vecs))
		}
		for i := range batch {
			batch[i].Embedding = toFloat32(vecs[i])
		}

		n, err := s.backend.Insert(ctx, batch)
		if err != nil {
			return res, fmt.Errorf("insert chunks: %w", err)
		}
		res.Added += n
		res.Skipped += len(batch) - n
		log.Infof("分片批次写入完成 (%d/%d)", min(start+s.batchSize, len(fresh)), len(fresh))
	}

	metrics.ChunksUpserted.WithLabelValues("added").Add(float64(res.Added))
	metrics.ChunksUpserted.WithLabelValues("skipped").Add(float64(res.Skipped))
	log.Infof("向量库写入完成: 新增 %d, 跳过 %d", res.Added, res.Skipped)
	return res, nil
}

// Query 在分区内检索与 text 最相关且彼此多样的 k 个分片，分区为空时返回空结果
func (s *Store) Query(ctx context.Context, f Filter, text string, k int) ([]*schema.Document, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.topK
	}

	vecs, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: want 1, got %d", len(vecs))
	}
	query := toFloat32(vecs[0])

	cands, err := s.backend.Candidates(ctx, f, query, max(k, s.fetchK))
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(cands) == 0 {
		return []*schema.Document{}, nil
	}

	embs := make([][]float32, len(cands))
	for i, c := range cands {
		embs[i] = c.Embedding
	}
	picked := MMR(query, embs, k, s.lambda)

	docs := make([]*schema.Document, 0, len(picked))
	for _, i := range picked {
		c := cands[i]
		meta := make(map[string]any, len(c.Metadata)+1)
		for key, v := range c.Metadata {
			meta[key] = v
		}
		meta[MetaSource] = c.Source
		doc := &schema.Document{ID: c.ID, Content: c.Text, MetaData: meta}
		docs = append(docs, doc.WithScore(Cosine(query, c.Embedding)))
	}
	return docs, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
