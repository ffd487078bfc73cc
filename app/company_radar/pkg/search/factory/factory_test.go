package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/config"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/searxng"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/serper"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/tavily"
)

func TestNewSearcher(t *testing.T) {
	s, err := NewSearcher(config.SearchConfig{Serper: config.SerperConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &serper.Client{}, s)

	s, err = NewSearcher(config.SearchConfig{Tavily: config.TavilyConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &tavily.Client{}, s)

	s, err = NewSearcher(config.SearchConfig{Provider: "searxng", SearXNG: config.SearXNGConfig{BaseURL: "http://localhost:8080"}})
	require.NoError(t, err)
	assert.IsType(t, &searxng.Client{}, s)
}

func TestNewSearcherErrors(t *testing.T) {
	_, err := NewSearcher(config.SearchConfig{})
	assert.Error(t, err)
	_, err = NewSearcher(config.SearchConfig{Provider: "tavily"})
	assert.Error(t, err)
	_, err = NewSearcher(config.SearchConfig{Provider: "bing"})
	assert.Error(t, err)
}
