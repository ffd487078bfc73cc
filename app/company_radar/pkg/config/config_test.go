package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(envLLMAPIKey, "")
	t.Setenv(envEmbeddingAPIKey, "")
	path := writeConfig(t, `
llm:
  base_url: https://llm.example.com/v1
  api_key: sk-file
  model: gpt-4o-mini
db:
  driver: sqlite
crawler:
  timeout: 3s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Concurrency.RPM)
	assert.Equal(t, "data/company_radar.db", cfg.DB.Path)
	assert.Equal(t, 3*time.Second, cfg.Crawler.Timeout)
	assert.Equal(t, 10, cfg.Crawler.BatchSize)
	assert.Equal(t, 80, cfg.Vector.BatchSize)
	assert.Equal(t, 20, cfg.Vector.TopK)
	assert.Equal(t, time.Second, cfg.Vector.BatchPause)
	// 向量化配置未填写时沿用 LLM 配置
	assert.Equal(t, "sk-file", cfg.Embedding.APIKey)
	assert.Equal(t, "https://llm.example.com/v1", cfg.Embedding.BaseURL)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv(envLLMAPIKey, "sk-env")
	t.Setenv(envSerperAPIKey, "serper-env")
	path := writeConfig(t, `
llm:
  api_key: sk-file
  model: m
search:
  provider: serper
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, "serper-env", cfg.Search.Serper.APIKey)
	assert.NoError(t, cfg.Validate(NeedLLM, NeedSearch))
}

func TestLoadConfigBatchPause(t *testing.T) {
	cases := []struct {
		name string
		body string
		want time.Duration
	}{
		{name: "omitted", body: "vector:\n  batch_size: 40\n", want: time.Second},
		{name: "zero", body: "vector:\n  batch_pause: 0s\n", want: time.Second},
		{name: "explicit", body: "vector:\n  batch_pause: 10s\n", want: 10 * time.Second},
		{name: "negative disables", body: "vector:\n  batch_pause: -1s\n", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Vector.BatchPause)
		})
	}
}

func TestValidateMissingCredential(t *testing.T) {
	cfg := Default()
	cfg.Search.Provider = "tavily"

	err := cfg.Validate(NeedLLM, NeedSearch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, err.Error(), "llm.api_key")
	assert.Contains(t, err.Error(), "search.tavily.api_key")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
