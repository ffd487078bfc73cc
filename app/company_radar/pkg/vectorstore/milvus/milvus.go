package milvus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore"
)

const (
	fieldPK        = "pk"
	fieldChunkID   = "chunk_id"
	fieldOwner     = "owner"
	fieldSubject   = "subject"
	fieldText      = "text"
	fieldSource    = "source"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"
)

var outputFields = []string{fieldChunkID, fieldOwner, fieldSubject, fieldText, fieldSource, fieldMetadata, fieldEmbedding}

// Backend 基于 Milvus 的向量后端，按 owner/subject 标量字段过滤
type Backend struct {
	client     client.Client
	collection string
	dim        int
	log        *logrus.Entry
}

var _ vectorstore.Backend = (*Backend)(nil)

// New 连接 Milvus 并确保集合存在
func New(ctx context.Context, cfg config.MilvusConfig) (*Backend, error) {
	c, err := client.NewGrpcClient(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	b := &Backend{
		client:     c,
		collection: cfg.Collection,
		dim:        cfg.Dim,
		log:        logger.For("milvus").WithField("collection", cfg.Collection),
	}
	if err := b.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	b.log.WithField("address", cfg.Address).Info("Milvus 客户端初始化完成")
	return b, nil
}

// Close 关闭连接
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) ensureCollection(ctx context.Context) error {
	has, err := b.client.HasCollection(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		schema := &entity.Schema{
			CollectionName: b.collection,
			Description:    "company radar context chunks",
			Fields: []*entity.Field{
				varchar(fieldPK, 64).WithIsPrimaryKey(true),
				varchar(fieldChunkID, 64),
				varchar(fieldOwner, 128),
				varchar(fieldSubject, 256),
				varchar(fieldText, 8192),
				varchar(fieldSource, 2048),
				varchar(fieldMetadata, 8192),
				entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(b.dim)),
			},
		}
		if err := b.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexIvfFlat(entity.COSINE, 128)
		if err != nil {
			return fmt.Errorf("failed to build index param: %w", err)
		}
		if err := b.client.CreateIndex(ctx, b.collection, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		b.log.Info("集合创建完成")
	}

	if err := b.client.LoadCollection(ctx, b.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func varchar(name string, maxLen int) *entity.Field {
	return entity.NewField().WithName(name).WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(maxLen))
}

// ExistingIDs implements vectorstore.Backend
func (b *Backend) ExistingIDs(ctx context.Context, f vectorstore.Filter, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}

	rs, err := b.client.Query(ctx, b.collection, []string{}, existsExpr(f, ids), []string{fieldChunkID})
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	col := rs.GetColumn(fieldChunkID)
	if col == nil {
		return found, nil
	}
	for i := 0; i < col.Len(); i++ {
		v, err := col.GetAsString(i)
		if err != nil {
			return nil, err
		}
		found[v] = struct{}{}
	}
	return found, nil
}

// Insert implements vectorstore.Backend
func (b *Backend) Insert(ctx context.Context, chunks []vectorstore.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	n := len(chunks)
	pks := make([]string, n)
	chunkIDs := make([]string, n)
	owners := make([]string, n)
	subjects := make([]string, n)
	texts := make([]string, n)
	sources := make([]string, n)
	metas := make([]string, n)
	embeddings := make([][]float32, n)
	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode metadata: %w", err)
		}
		pks[i] = primaryKey(c.Owner, c.Subject, c.ID)
		chunkIDs[i] = c.ID
		owners[i] = c.Owner
		subjects[i] = c.Subject
		texts[i] = c.Text
		sources[i] = c.Source
		metas[i] = string(meta)
		embeddings[i] = c.Embedding
	}

	_, err := b.client.Insert(ctx, b.collection, "",
		entity.NewColumnVarChar(fieldPK, pks),
		entity.NewColumnVarChar(fieldChunkID, chunkIDs),
		entity.NewColumnVarChar(fieldOwner, owners),
		entity.NewColumnVarChar(fieldSubject, subjects),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldSource, sources),
		entity.NewColumnVarChar(fieldMetadata, metas),
		entity.NewColumnFloatVector(fieldEmbedding, b.dim, embeddings),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := b.client.Flush(ctx, b.collection, false); err != nil {
		return 0, fmt.Errorf("failed to flush: %w", err)
	}
	b.log.Infof("写入 %d 个分片", n)
	return n, nil
}

// Candidates implements vectorstore.Backend
func (b *Backend) Candidates(ctx context.Context, f vectorstore.Filter, query []float32, n int) ([]vectorstore.Chunk, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, err
	}
	results, err := b.client.Search(ctx, b.collection, []string{}, partitionExpr(f), outputFields,
		[]entity.Vector{entity.FloatVector(query)}, fieldEmbedding, entity.COSINE, n, sp)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var chunks []vectorstore.Chunk
	for _, sr := range results {
		for i := 0; i < sr.ResultCount; i++ {
			c := vectorstore.Chunk{Score: float64(sr.Scores[i])}
			c.ID, _ = sr.Fields.GetColumn(fieldChunkID).GetAsString(i)
			c.Owner, _ = sr.Fields.GetColumn(fieldOwner).GetAsString(i)
			c.Subject, _ = sr.Fields.GetColumn(fieldSubject).GetAsString(i)
			c.Text, _ = sr.Fields.GetColumn(fieldText).GetAsString(i)
			c.Source, _ = sr.Fields.GetColumn(fieldSource).GetAsString(i)
			if meta, err := sr.Fields.GetColumn(fieldMetadata).GetAsString(i); err == nil && meta != "" {
				if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
					b.log.Warnf("分片 %s 元数据解析失败: %v", c.ID, err)
				}
			}
			if v, err := sr.Fields.GetColumn(fieldEmbedding).Get(i); err == nil {
				c.Embedding, _ = v.([]float32)
			}
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func primaryKey(owner, subject, id string) string {
	sum := sha256.Sum256([]byte(owner + "\x00" + subject + "\x00" + id))
	return hex.EncodeToString(sum[:])
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func partitionExpr(f vectorstore.Filter) string {
	return fmt.Sprintf("%s == %s && %s == %s", fieldOwner, quote(f.Owner), fieldSubject, quote(f.Subject))
}

func existsExpr(f vectorstore.Filter, ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return fmt.Sprintf("%s && %s in [%s]", partitionExpr(f), fieldChunkID, strings.Join(quoted, ", "))
}
