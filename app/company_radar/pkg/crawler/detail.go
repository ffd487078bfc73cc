package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/metrics"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
)

var (
	spaces      = regexp.MustCompile(`\s+`)
	lineSpacing = regexp.MustCompile(`\s*\n\s*`)
)

// FetchDetail 抓取单篇文章。任何失败都只把对应字段留为 N/A，不返回错误
func (f *Fetcher) FetchDetail(ctx context.Context, subject, link string) model.Article {
	a := blankArticle(subject, link)

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	raw, err := f.get(ctx, link)
	if err != nil {
		metrics.ArticlesFetched.WithLabelValues("error").Inc()
		f.log.WithField("url", link).Warnf("文章请求失败: %v", err)
		return a
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		metrics.ArticlesFetched.WithLabelValues("error").Inc()
		f.log.WithField("url", link).Warnf("文章解析失败: %v", err)
		return a
	}

	f.extract(doc, raw, &a)
	metrics.ArticlesFetched.WithLabelValues("ok").Inc()
	return a
}

func (f *Fetcher) get(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", randomUserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// extract 各字段独立提取，互不影响
func (f *Fetcher) extract(doc *goquery.Document, raw []byte, a *model.Article) {
	if v := f.title(doc); v != "" {
		a.Title = v
	}
	if v := f.published(doc); v != "" {
		a.PublishDate = v
	}
	if v := f.author(doc); v != "" {
		a.Author = v
	}
	if v := f.body(doc, raw, a.URL); v != "" {
		a.FullText = v
	}
}

func (f *Fetcher) title(doc *goquery.Document) string {
	for _, sel := range f.sel.Title {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	full := doc.Find("title").First().Text()
	if i := strings.Index(full, "|"); i >= 0 {
		full = full[:i]
	}
	return strings.TrimSpace(full)
}

func (f *Fetcher) published(doc *goquery.Document) string {
	for _, sel := range f.sel.Published {
		s := doc.Find(sel).First()
		v, ok := s.Attr("content")
		if !ok {
			v, ok = s.Attr("datetime")
		}
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		// 只保留日期部分
		if i := strings.IndexAny(v, "T "); i > 0 {
			v = v[:i]
		}
		return v
	}
	return ""
}

func (f *Fetcher) author(doc *goquery.Document) string {
	for _, sel := range f.sel.Author {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	if f.sel.ReporterPattern != nil {
		var reporter string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := s.Text()
			if f.sel.ReporterScriptMarker != "" && !strings.Contains(text, f.sel.ReporterScriptMarker) {
				return true
			}
			if m := f.sel.ReporterPattern.FindStringSubmatch(text); len(m) > 1 {
				reporter = strings.TrimSpace(strings.SplitN(m[1], "(", 2)[0])
				return false
			}
			return true
		})
		if reporter != "" {
			return reporter
		}
	}

	v, _ := doc.Find(`meta[name="author"]`).First().Attr("content")
	return strings.TrimSpace(v)
}

func (f *Fetcher) body(doc *goquery.Document, raw []byte, link string) string {
	for _, sel := range f.sel.Body {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}

		var paragraphs []string
		container.Find("p").Each(func(_ int, p *goquery.Selection) {
			if t := strings.TrimSpace(spaces.ReplaceAllString(p.Text(), " ")); t != "" {
				paragraphs = append(paragraphs, t)
			}
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n\n")
		}

		container.Find("br").ReplaceWithHtml("\n")
		if t := strings.TrimSpace(lineSpacing.ReplaceAllString(container.Text(), "\n")); t != "" {
			return t
		}
	}

	// 没有匹配的正文容器时交给 readability
	pageURL, _ := url.Parse(link)
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(lineSpacing.ReplaceAllString(article.TextContent, "\n"))
}
