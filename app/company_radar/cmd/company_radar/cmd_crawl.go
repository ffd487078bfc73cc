package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/bootstrap"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/crawler"
)

type crawlOptions struct {
	owner    string
	subject  string
	maxPages int
	sort     string
	area     string
	start    string
	end      string
	feeds    []string
	exact    string
	include  string
	exclude  string
	hkOnly   bool
}

func newCrawlCmd(g *globalOptions) *cobra.Command {
	o := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "抓取企业相关新闻并写入数据库",
		Example: `  company_radar crawl --owner alice --subject 삼성전자 --start 2023-01-01 --max-pages 5
  company_radar crawl --owner alice --subject Acme --feed https://example.com/rss`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.owner, "owner", "", "数据所属用户")
	f.StringVar(&o.subject, "subject", "", "企业名称或检索主题")
	f.IntVar(&o.maxPages, "max-pages", 0, "最多翻页数，0 使用配置值")
	f.StringVar(&o.sort, "sort", "", "排序方式，为空使用配置值")
	f.StringVar(&o.area, "area", "", "检索范围")
	f.StringVar(&o.start, "start", "", "开始日期 YYYY-MM-DD")
	f.StringVar(&o.end, "end", "", "结束日期 YYYY-MM-DD")
	f.StringSliceVar(&o.feeds, "feed", nil, "额外的 RSS 地址，可重复")
	f.StringVar(&o.exact, "exact", "", "精确匹配的短语")
	f.StringVar(&o.include, "include", "", "必须包含的关键词")
	f.StringVar(&o.exclude, "exclude", "", "排除的关键词")
	f.BoolVar(&o.hkOnly, "hk-only", false, "只检索本社新闻")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// request 把命令行参数转成抓取请求，未指定的项沿用配置
func (o *crawlOptions) request(g *globalOptions) (crawler.CrawlRequest, error) {
	req := crawler.CrawlRequest{
		Owner:           strings.TrimSpace(o.owner),
		Subject:         strings.TrimSpace(o.subject),
		Sort:            o.sort,
		Area:            o.area,
		ExactPhrase:     o.exact,
		IncludeKeywords: o.include,
		ExcludeKeywords: o.exclude,
		HKOnly:          o.hkOnly,
		MaxPages:        o.maxPages,
		FeedURLs:        o.feeds,
	}
	if req.Owner == "" || req.Subject == "" {
		return req, fmt.Errorf("--owner 和 --subject 不能为空")
	}
	if req.Sort == "" {
		req.Sort = g.cfg.Crawler.Sort
	}
	if req.MaxPages == 0 {
		req.MaxPages = g.cfg.Crawler.MaxPages
	}

	var err error
	if req.StartDate, err = parseDate("--start", o.start); err != nil {
		return req, err
	}
	if req.EndDate, err = parseDate("--end", o.end); err != nil {
		return req, err
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.StartDate.After(req.EndDate) {
		return req, fmt.Errorf("开始日期 %s 晚于结束日期 %s", o.start, o.end)
	}
	return req, nil
}

func parseDate(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s 日期格式应为 YYYY-MM-DD: %q", flag, v)
	}
	return t, nil
}

func runCrawl(cmd *cobra.Command, g *globalOptions, o *crawlOptions) error {
	req, err := o.request(g)
	if err != nil {
		return err
	}
	ctx, cancel := g.context(cmd)
	defer cancel()

	app, err := bootstrap.New(ctx, g.cfg, bootstrap.FeatureCrawl)
	if err != nil {
		return err
	}
	defer app.Close()

	articles, err := app.Fetcher.Crawl(ctx, req, progressPrinter(cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("抓取中断 (已处理 %d 篇): %w", len(articles), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "抓取完成: '%s' 共处理 %d 篇文章\n", req.Subject, len(articles))
	return nil
}
