package embedder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/sashabaranov/go-openai"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/retry"
)

// 单次请求最多携带的文本条数
const maxInputsPerRequest = 64

// OpenAI 基于 OpenAI 兼容接口的向量化实现
type OpenAI struct {
	client *openai.Client
	model  string
	retry  retry.Config
}

var _ embedding.Embedder = (*OpenAI)(nil)

// NewOpenAI 创建向量化客户端
func NewOpenAI(cfg config.EmbeddingConfig) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	rc := retry.DefaultConfig()
	rc.InitialDelay = time.Second
	rc.Logger = logger.For("embedder")
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		retry:  rc,
	}
}

// EmbedStrings 按输入顺序返回向量
func (e *OpenAI) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxInputsPerRequest {
		end := min(start+maxInputsPerRequest, len(texts))
		batch := texts[start:end]

		resp, err := retry.DoWithResult(ctx, e.retry, func(ctx context.Context) (openai.EmbeddingResponse, error) {
			return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: batch,
				Model: openai.EmbeddingModel(e.model),
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(resp.Data))
		}

		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			vec := make([]float64, len(d.Embedding))
			for i, v := range d.Embedding {
				vec[i] = float64(v)
			}
			out = append(out, vec)
		}
	}
	return out, nil
}
