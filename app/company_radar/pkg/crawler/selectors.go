package crawler

import "regexp"

// Selectors 站点相关的页面结构，替换它即可适配其他新闻站点
type Selectors struct {
	// 搜索结果页
	ResultItem   string
	ResultLink   string
	TotalCount   string
	TotalPattern *regexp.Regexp

	// 文章详情页，按顺序尝试
	Title     []string
	Published []string
	Author    []string
	Body      []string
	// ReporterScript 嵌在脚本里的记者信息
	ReporterScriptMarker string
	ReporterPattern      *regexp.Regexp
}

// DefaultSelectors 韩国经济新闻 (hankyung.com) 的页面结构
func DefaultSelectors() Selectors {
	return Selectors{
		ResultItem:   "ul.article > li",
		ResultLink:   ".txt_wrap > a",
		TotalCount:   ".section.hk_news .tit-wrap .tit span",
		TotalPattern: regexp.MustCompile(`/ (\d+)건`),

		Title:     []string{`meta[property="og:title"]`},
		Published: []string{`meta[property="article:published_time"]`, `time[datetime]`},
		Author:    []string{`meta[property="dable:author"]`},
		Body:      []string{"div#articletxt", "div.article-body"},

		ReporterScriptMarker: "GATrackingData",
		ReporterPattern:      regexp.MustCompile(`hk_reporter\s*:\s*'([^']+)'`),
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 13; SM-G991N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
}
