package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/retry"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	reply func(n int) (string, error)
}

func (f *fakeGenerator) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	n := len(f.calls)
	f.mu.Unlock()
	text, err := f.reply(n)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

type countingLimiter struct{ n int }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.n++
	return ctx.Err()
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestInvokeFormatsTemplate(t *testing.T) {
	gen := &fakeGenerator{reply: func(int) (string, error) { return "□ 主要议题", nil }}
	lim := &countingLimiter{}
	c := NewClient(gen, lim, WithLogger(logger.Discard()))

	out, err := c.Invoke(context.Background(), TemplateMonthly, map[string]any{
		"company": "Acme", "year": 2023, "month": 4, "articles": "**标题:** 新工厂",
	})
	require.NoError(t, err)
	assert.Equal(t, "□ 主要议题", out)
	assert.Equal(t, 1, lim.n)

	require.Len(t, gen.calls, 1)
	msgs := gen.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "2023 年 4 月关于【Acme】")
	assert.Contains(t, msgs[1].Content, "**标题:** 新工厂")
}

func TestInvokeUnknownTemplate(t *testing.T) {
	c := NewClient(&fakeGenerator{}, nil, WithLogger(logger.Discard()))
	_, err := c.Invoke(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestInvokeRetriesUntilSuccess(t *testing.T) {
	gen := &fakeGenerator{reply: func(n int) (string, error) {
		if n < 3 {
			return "", errors.New("429 too many requests")
		}
		return "ok", nil
	}}
	lim := &countingLimiter{}
	c := NewClient(gen, lim, WithRetry(fastRetry(5)), WithLogger(logger.Discard()))

	out, err := c.Invoke(context.Background(), TemplateTrend, map[string]any{"company": "Acme", "annual_reports": "r"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Len(t, gen.calls, 3)
	// 每次尝试前都经过限流
	assert.Equal(t, 3, lim.n)
}

func TestInvokeBoundedAttempts(t *testing.T) {
	gen := &fakeGenerator{reply: func(int) (string, error) { return "", errors.New("boom") }}
	c := NewClient(gen, nil, WithRetry(fastRetry(4)), WithLogger(logger.Discard()))

	_, err := c.Invoke(context.Background(), TemplateKeyword, map[string]any{"company": "Acme", "annual_reports": "r"})
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Len(t, gen.calls, 4)
}

func TestInvokeEmptyResponseIsRetried(t *testing.T) {
	gen := &fakeGenerator{reply: func(n int) (string, error) {
		if n == 1 {
			return "  ", nil
		}
		return "内容", nil
	}}
	c := NewClient(gen, nil, WithRetry(fastRetry(3)), WithLogger(logger.Discard()))

	out, err := c.Invoke(context.Background(), TemplateFuture, map[string]any{"company": "Acme", "context": "c"})
	require.NoError(t, err)
	assert.Equal(t, "内容", out)
}

func TestInvokeCancelledContextNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{reply: func(int) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	c := NewClient(gen, nil, WithRetry(fastRetry(5)), WithLogger(logger.Discard()))

	_, err := c.Invoke(ctx, TemplateSuitability, map[string]any{"article_content": "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, gen.calls, 1)
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"plain":                     "plain",
		"```\nbody\n```":            "body",
		"```markdown\n□ a\n○ b\n```": "□ a\n○ b",
		"  ```text\n适合```  ":         "适合",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripCodeFence(in), in)
	}
}

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(config.ConcurrencyConfig{RPM: 120, QPS: 0})
	assert.InDelta(t, 2.0, float64(l.Limit()), 1e-9)
	assert.Equal(t, 1, l.Burst())
}

func TestDefaultTemplatesRender(t *testing.T) {
	vars := map[string]any{
		"company": "Acme", "year": 2024, "month": 1, "articles": "a",
		"annual_reports": "r", "context": "c", "article_content": "n",
	}
	for name, tpl := range DefaultTemplates() {
		msgs, err := tpl.Format(context.Background(), vars)
		require.NoError(t, err, name)
		require.NotEmpty(t, msgs, name)
		assert.False(t, strings.Contains(msgs[len(msgs)-1].Content, "{"), name)
	}
}
