package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/search"
)

const defaultEndpoint = "https://google.serper.dev/search"

// Client Google Serper API 客户端
type Client struct {
	apiKey   string
	gl       string
	hl       string
	endpoint string
	client   *http.Client
}

// Option 客户端可选项
type Option func(*Client)

// WithEndpoint 替换 API 地址
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithLocale 设置地区 (gl) 与界面语言 (hl)
func WithLocale(gl, hl string) Option {
	return func(c *Client) {
		if gl != "" {
			c.gl = gl
		}
		if hl != "" {
			c.hl = hl
		}
	}
}

// NewClient 创建 Serper 客户端，默认地区 kr / 语言 ko
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		gl:       "kr",
		hl:       "ko",
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ search.Searcher = (*Client)(nil)

type searchRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
	Num int    `json:"num,omitempty"`
	Tbs string `json:"tbs,omitempty"`
}

// SearchResponse Serper 响应中用到的部分
type SearchResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Date     string `json:"date"`
		Position int    `json:"position"`
	} `json:"organic"`
	AnswerBox *struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Answer  string `json:"answer"`
	} `json:"answerBox"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Snippet     string `json:"snippet"`
		Description string `json:"description"`
		Link        string `json:"descriptionLink"`
	} `json:"knowledgeGraph"`
}

// Search implements search.Searcher
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	body := searchRequest{Q: req.Query, GL: c.gl, HL: c.hl, Num: req.MaxResults}
	if req.Country != "" {
		body.GL = req.Country
	}
	if req.Language != "" {
		body.HL = req.Language
	}
	if body.Num == 0 {
		body.Num = 10
	}
	if req.Topic == "news" {
		body.Tbs = "qdr:y"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper api error (status %d): %s", res.StatusCode, string(raw))
	}

	var sr SearchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}
	return &search.Response{Results: convert(&sr)}, nil
}

func convert(sr *SearchResponse) []search.Result {
	results := make([]search.Result, 0, len(sr.Organic)+2)
	for i, o := range sr.Organic {
		pos := o.Position
		if pos == 0 {
			pos = i + 1
		}
		results = append(results, search.Result{
			Title:         o.Title,
			URL:           o.Link,
			Content:       o.Snippet,
			PublishedDate: o.Date,
			Position:      pos,
			Kind:          search.KindOrganic,
		})
	}

	if ab := sr.AnswerBox; ab != nil {
		snippet := ab.Snippet
		if snippet == "" {
			snippet = ab.Answer
		}
		if snippet != "" {
			results = append(results, search.Result{
				Title:   ab.Title,
				URL:     ab.Link,
				Content: snippet,
				Kind:    search.KindAnswerBox,
			})
		}
	}

	if kg := sr.KnowledgeGraph; kg != nil {
		snippet := kg.Snippet
		if snippet == "" {
			snippet = kg.Description
		}
		if snippet != "" {
			results = append(results, search.Result{
				Title:   kg.Title,
				URL:     kg.Link,
				Content: snippet,
				Kind:    search.KindKnowledgeGraph,
			})
		}
	}
	return results
}
