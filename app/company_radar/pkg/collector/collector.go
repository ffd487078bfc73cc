package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/retry"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/search"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/vectorstore"
)

// 文档的获取方式
const (
	FetchFullContent    = "full_content"
	FetchSnippet        = "snippet_fallback"
	FetchSnippetOnly    = "snippet_only"
	FetchAnswerBox      = "answer_box_snippet"
	FetchKnowledgeGraph = "knowledge_graph_snippet"
)

const (
	minPageChars    = 100
	minSnippetChars = 50
	defaultResults  = 10
	pageParallelism = 8
)

// Collector 把一次网页搜索变成带元数据的文档
type Collector struct {
	searcher   search.Searcher
	client     *http.Client
	maxResults int
	retry      retry.Config
	log        *logrus.Entry
}

// Option Collector 可选项
type Option func(*Collector)

// WithHTTPClient 替换抓取正文的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(col *Collector) { col.client = c }
}

// WithRetry 替换搜索的重试策略
func WithRetry(cfg retry.Config) Option {
	return func(col *Collector) { col.retry = cfg }
}

// WithMaxResults 每次搜索的结果数
func WithMaxResults(n int) Option {
	return func(col *Collector) { col.maxResults = n }
}

// New 创建收集器
func New(searcher search.Searcher, opts ...Option) *Collector {
	c := &Collector{
		searcher:   searcher,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxResults: defaultResults,
		retry: retry.Config{
			MaxAttempts:  5,
			InitialDelay: 4 * time.Second,
			MaxDelay:     30 * time.Second,
		},
		log: logger.For("collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.Logger == nil {
		c.retry.Logger = c.log
	}
	return c
}

// Collect 执行搜索并加载每个结果的正文，正文过短时退回摘要
func (c *Collector) Collect(ctx context.Context, query, subject, owner string) ([]*schema.Document, error) {
	log := c.log.WithFields(logrus.Fields{"query": query, "owner": owner})
	log.Info("开始网页搜索")

	resp, err := retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (*search.Response, error) {
		return c.searcher.Search(ctx, &search.Request{Query: query, Topic: "general", MaxResults: c.maxResults})
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	docs := make([]*schema.Document, len(resp.Results))
	seen := make(map[string]struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageParallelism)
	for i, r := range resp.Results {
		meta := map[string]any{
			vectorstore.MetaSource:      orUnavailable(r.URL),
			vectorstore.MetaTitle:       orUnavailable(r.Title),
			vectorstore.MetaQueryOrigin: query,
			vectorstore.MetaSubject:     subject,
			vectorstore.MetaOwner:       owner,
		}

		switch r.Kind {
		case search.KindAnswerBox, search.KindKnowledgeGraph:
			docs[i] = snippetDoc(r, meta)
			continue
		}

		meta[vectorstore.MetaPosition] = strconv.Itoa(position(r))
		if _, dup := seen[r.URL]; r.URL == "" || dup {
			docs[i] = fallbackDoc(r, meta, FetchSnippetOnly, "(链接为空或重复)")
			continue
		}
		seen[r.URL] = struct{}{}

		g.Go(func() error {
			text, err := c.fetchPage(gctx, r.URL)
			note := "(原文过短)"
			if err != nil {
				log.WithField("url", r.URL).Warnf("原文加载失败: %v", err)
				note = "(原文加载失败)"
			} else if len([]rune(text)) >= minPageChars {
				meta[vectorstore.MetaFetchType] = FetchFullContent
				docs[i] = &schema.Document{Content: text, MetaData: meta}
				return nil
			}
			docs[i] = fallbackDoc(r, meta, FetchSnippet, note)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*schema.Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, d)
		}
	}
	log.Infof("收集到 %d 篇文档 (搜索结果 %d 条)", len(out), len(resp.Results))
	return out, nil
}

func (c *Collector) fetchPage(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; company-radar/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status code: %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", err
	}
	return collapseSpace(article.TextContent), nil
}

func snippetDoc(r search.Result, meta map[string]any) *schema.Document {
	label, fetch := "AnswerBox", FetchAnswerBox
	if r.Kind == search.KindKnowledgeGraph {
		label, fetch = "KnowledgeGraph", FetchKnowledgeGraph
	}
	body := collapseSpace(r.Content)
	if body == "" {
		return nil
	}
	meta[vectorstore.MetaFetchType] = fetch
	return &schema.Document{
		Content:  fmt.Sprintf("%s 标题: %s\n内容: %s", label, orUnavailable(r.Title), body),
		MetaData: meta,
	}
}

func fallbackDoc(r search.Result, meta map[string]any, fetch, note string) *schema.Document {
	snippet := collapseSpace(r.Content)
	if len([]rune(snippet)) <= minSnippetChars {
		return nil
	}
	meta[vectorstore.MetaFetchType] = fetch
	return &schema.Document{
		Content:  fmt.Sprintf("标题: %s\n内容: %s %s", orUnavailable(r.Title), snippet, note),
		MetaData: meta,
	}
}

func position(r search.Result) int {
	if r.Position > 0 {
		return r.Position
	}
	return -1
}

func orUnavailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.Unavailable
	}
	return s
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
