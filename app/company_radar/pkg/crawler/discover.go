package crawler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
)

const searchDateLayout = "2006.01.02"

// Discover 分页请求搜索结果，返回文章链接。
// 停止条件：某页没有链接、达到 MaxPages、或已收集数量达到首页给出的总数。
// 某页请求失败时停止分页并保留已收集的链接。
func (f *Fetcher) Discover(ctx context.Context, req CrawlRequest, progress model.ProgressFunc) ([]string, error) {
	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = f.cfg.MaxPages
	}

	var links []string
	total := -1
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return links, err
		}

		doc, pageURL, err := f.fetchSearchPage(ctx, req, page)
		if err != nil {
			f.log.WithField("page", page).Warnf("搜索结果页请求失败，停止收集: %v", err)
			progress.Notify("搜索结果页请求出错，停止收集链接", fraction(len(links), total, page), model.StatusWarning)
			break
		}

		if page == 1 {
			total = f.parseTotal(doc)
			if total < 0 {
				progress.Notify("无法识别文章总数，只按页收集", 0, model.StatusInfo)
			}
		}

		pageLinks := f.parseLinks(doc, pageURL)
		if len(pageLinks) == 0 {
			progress.Notify(fmt.Sprintf("[1/2] 没有更多链接，共收集 %d 条", len(links)), 0.49, model.StatusInfo)
			break
		}
		links = append(links, pageLinks...)

		msg := fmt.Sprintf("[1/2] 链接收集中 (已收集 %d 条)", len(links))
		if total >= 0 {
			msg = fmt.Sprintf("[1/2] 链接收集中 (已收集 %d 条 / 预计 %d 条)", len(links), total)
		}
		progress.Notify(msg, fraction(len(links), total, page), model.StatusProgress)

		if maxPages > 0 && page >= maxPages {
			progress.Notify(fmt.Sprintf("[1/2] 已达到最大页数 %d，共 %d 条", maxPages, len(links)), 0.5, model.StatusInfo)
			break
		}
		if total >= 0 && len(links) >= total {
			progress.Notify(fmt.Sprintf("[1/2] 已收集全部 %d 条链接", total), 0.5, model.StatusInfo)
			break
		}

		if f.cfg.PageDelay > 0 {
			if err := f.sleep(ctx, rand.N(f.cfg.PageDelay)); err != nil {
				return links, err
			}
		}
	}
	return links, nil
}

func fraction(collected, total, page int) float64 {
	if total > 0 {
		return min(float64(collected)/float64(total)/2, 0.5)
	}
	return min(float64(page)*10/1000, 0.5)
}

// SearchURL 构造某一页的搜索地址
func (f *Fetcher) SearchURL(req CrawlRequest, page int) (string, error) {
	u, err := url.Parse(f.cfg.SearchURL)
	if err != nil {
		return "", fmt.Errorf("invalid search url %s: %w", f.cfg.SearchURL, err)
	}

	start, end := req.StartDate, req.EndDate
	if start.IsZero() {
		start = time.Date(2014, 1, 1, 0, 0, 0, 0, time.Local)
	}
	if end.IsZero() {
		end = f.now()
	}
	sort := req.Sort
	if sort == "" {
		sort = f.cfg.Sort
	}
	area := req.Area
	if area == "" {
		area = "ALL"
	}

	q := u.Query()
	q.Set("query", req.Subject)
	q.Set("sort", sort)
	q.Set("period", "DATE")
	q.Set("area", area)
	q.Set("sdate", start.Format(searchDateLayout))
	q.Set("edate", end.Format(searchDateLayout))
	q.Set("page", strconv.Itoa(page))
	if req.ExactPhrase != "" {
		q.Set("exact", req.ExactPhrase)
	}
	if req.IncludeKeywords != "" {
		q.Set("include", req.IncludeKeywords)
	}
	if req.ExcludeKeywords != "" {
		q.Set("except", req.ExcludeKeywords)
	}
	if req.HKOnly {
		q.Set("hk_only", "y")
	} else {
		q.Set("hk_only", "n")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) fetchSearchPage(ctx context.Context, req CrawlRequest, page int) (*goquery.Document, *url.URL, error) {
	pageURL, err := f.SearchURL(req, page)
	if err != nil {
		return nil, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", randomUserAgent())

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("request search page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("search page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse search page: %w", err)
	}
	return doc, resp.Request.URL, nil
}

// parseTotal 从结果页解析文章总数，无法识别时返回 -1
func (f *Fetcher) parseTotal(doc *goquery.Document) int {
	text := strings.TrimSpace(doc.Find(f.sel.TotalCount).First().Text())
	if text == "" || f.sel.TotalPattern == nil {
		return -1
	}
	m := f.sel.TotalPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return -1
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return -1
	}
	return n
}

func (f *Fetcher) parseLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find(f.sel.ResultItem).Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find(f.sel.ResultLink).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		links = append(links, href)
	})
	return links
}
