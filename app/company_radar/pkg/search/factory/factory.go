package factory

import (
	"fmt"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/search"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/searxng"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/serper"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/tavily"
)

// NewSearcher 根据配置创建搜索实例
func NewSearcher(cfg config.SearchConfig) (search.Searcher, error) {
	provider := cfg.Provider
	if provider == "" {
		// 未指定时按凭证回退：serper 优先，其次 tavily
		switch {
		case cfg.Serper.APIKey != "":
			provider = "serper"
		case cfg.Tavily.APIKey != "":
			provider = "tavily"
		default:
			return nil, fmt.Errorf("search provider not configured")
		}
	}

	switch provider {
	case "serper":
		if cfg.Serper.APIKey == "" {
			return nil, fmt.Errorf("serper api key is missing")
		}
		return serper.NewClient(cfg.Serper.APIKey, serper.WithLocale(cfg.Serper.GL, cfg.Serper.HL)), nil

	case "tavily":
		if cfg.Tavily.APIKey == "" {
			return nil, fmt.Errorf("tavily api key is missing")
		}
		return tavily.NewClient(cfg.Tavily.APIKey), nil

	case "searxng":
		if cfg.SearXNG.BaseURL == "" {
			return nil, fmt.Errorf("searxng base url is missing")
		}
		return searxng.NewClient(cfg.SearXNG.BaseURL, cfg.SearXNG.Timeout), nil

	default:
		return nil, fmt.Errorf("unknown search provider: %s", provider)
	}
}
