package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/retry"
)

var (
	// ErrUnknownTemplate 模板名未注册
	ErrUnknownTemplate = errors.New("llm: unknown template")
	// ErrEmptyResponse 模型返回空内容
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Generator 对话模型的最小接口，eino ChatModel 满足该接口
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Limiter 调用前的限流
type Limiter interface {
	Wait(ctx context.Context) error
}

// Invoker 按模板名调用 LLM，engine 和 classifier 依赖该接口
type Invoker interface {
	Invoke(ctx context.Context, name string, vars map[string]any) (string, error)
}

// Client 模板化的 LLM 调用：限流 -> 生成 -> 重试
type Client struct {
	gen       Generator
	limiter   Limiter
	templates map[string]prompt.ChatTemplate
	retry     retry.Config
	log       *logrus.Entry
}

var _ Invoker = (*Client)(nil)

// Option Client 可选项
type Option func(*Client)

// WithTemplates 覆盖或追加模板
func WithTemplates(tpls map[string]prompt.ChatTemplate) Option {
	return func(c *Client) {
		for name, t := range tpls {
			c.templates[name] = t
		}
	}
}

// WithRetry 替换重试策略
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger 替换日志
func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.log = l }
}

// NewClient 用给定模型和限流器创建客户端，limiter 为 nil 时不限流
func NewClient(gen Generator, limiter Limiter, opts ...Option) *Client {
	c := &Client{
		gen:       gen,
		limiter:   limiter,
		templates: DefaultTemplates(),
		retry:     retry.DefaultConfig(),
		log:       logger.For("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.Logger == nil {
		c.retry.Logger = c.log
	}
	if c.retry.Retryable == nil {
		c.retry.Retryable = retryable
	}
	return c
}

// NewLimiter 按 RPM 和突发量创建限流器
func NewLimiter(cfg config.ConcurrencyConfig) *rate.Limiter {
	limit := rate.Limit(float64(cfg.RPM) / 60.0)
	return rate.NewLimiter(limit, max(cfg.QPS, 1))
}

// NewFromConfig 初始化 OpenAI 兼容的对话模型与限流器
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Retry.MaxAttempts
	rc.InitialDelay = cfg.Retry.InitialDelay
	rc.MaxDelay = cfg.Retry.MaxDelay

	return NewClient(chatModel, NewLimiter(cfg.Concurrency), WithRetry(rc)), nil
}

// Invoke 渲染模板并调用模型，返回去掉代码块标记的文本
func (c *Client) Invoke(ctx context.Context, name string, vars map[string]any) (string, error) {
	tpl, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	messages, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format template %s: %w", name, err)
	}

	start := time.Now()
	out, err := retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (string, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		resp, err := c.gen.Generate(ctx, messages)
		if err != nil {
			return "", err
		}
		text := stripCodeFence(resp.Content)
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
	metrics.LLMDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(name, "error").Inc()
		c.log.WithField("template", name).Errorf("LLM 调用失败: %v", err)
		return "", err
	}
	metrics.LLMCalls.WithLabelValues(name, "ok").Inc()
	return out, nil
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " \t") {
		// 去掉语言标记，如 ```markdown
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
