package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredential 必需的外部凭证缺失
var ErrMissingCredential = errors.New("missing required credential")

// 敏感配置的环境变量覆盖
const (
	envLLMAPIKey       = "LLM_API_KEY"
	envEmbeddingAPIKey = "EMBEDDING_API_KEY"
	envTavilyAPIKey    = "TAVILY_API_KEY"
	envSerperAPIKey    = "SERPER_API_KEY"
	envDBPassword      = "DB_PASSWORD"
	envRedisPassword   = "REDIS_PASSWORD"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Search      SearchConfig      `yaml:"search"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Retry       RetryConfig       `yaml:"retry"`
	DB          DBConfig          `yaml:"db"`
	Crawler     CrawlerConfig     `yaml:"crawler"`
	Vector      VectorConfig      `yaml:"vector"`
	Redis       RedisConfig       `yaml:"redis"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// EmbeddingConfig 向量化模型配置，未配置的字段沿用 LLM 配置
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// DBConfig 数据库相关配置
type DBConfig struct {
	Driver   string `yaml:"driver"` // postgres 或 sqlite
	Path     string `yaml:"path"`   // sqlite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	Provider string        `yaml:"provider"`
	Tavily   TavilyConfig  `yaml:"tavily"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
	Serper   SerperConfig  `yaml:"serper"`
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// SerperConfig Serper (Google 搜索) 配置
type SerperConfig struct {
	APIKey string `yaml:"api_key"`
	GL     string `yaml:"gl"`
	HL     string `yaml:"hl"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS              int `yaml:"qps"`
	RPM              int `yaml:"rpm"`
	MaxParallelUnits int `yaml:"max_parallel_units"`
}

// RetryConfig LLM 调用重试配置
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CrawlerConfig 新闻爬虫配置
type CrawlerConfig struct {
	SearchURL   string        `yaml:"search_url"`
	Sort        string        `yaml:"sort"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	BatchSize   int           `yaml:"batch_size"`
	MaxPages    int           `yaml:"max_pages"`
	PageDelay   time.Duration `yaml:"page_delay"`
}

// VectorConfig 向量库配置
type VectorConfig struct {
	Backend    string        `yaml:"backend"` // sql 或 milvus
	BatchSize  int           `yaml:"batch_size"`
	BatchPause time.Duration `yaml:"batch_pause"`
	TopK       int           `yaml:"top_k"`
	Milvus     MilvusConfig  `yaml:"milvus"`
}

// MilvusConfig Milvus 连接配置
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
	Dim        int    `yaml:"dim"`
}

// RedisConfig 缓存配置，Addr 为空时不启用
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// ScheduleConfig 定时刷新配置（仅 display 服务使用）
type ScheduleConfig struct {
	Cron  string        `yaml:"cron"`
	Watch []WatchConfig `yaml:"watch"`
	Days  int           `yaml:"days"`
	Kinds []string      `yaml:"kinds"`
}

// WatchConfig 定时任务关注的 (用户, 企业)
type WatchConfig struct {
	Owner   string `yaml:"owner"`
	Subject string `yaml:"subject"`
}

// Requirement 启动时必须存在的外部依赖
type Requirement int

const (
	NeedLLM Requirement = iota
	NeedEmbedding
	NeedSearch
)

// LoadConfig 从指定路径加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.fillDefaults()
	return cfg, nil
}

// Default 返回带默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

func (c *Config) fillDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Concurrency.RPM <= 0 {
		c.Concurrency.RPM = 10
	}
	if c.Concurrency.QPS <= 0 {
		c.Concurrency.QPS = 1
	}
	if c.Concurrency.MaxParallelUnits <= 0 {
		c.Concurrency.MaxParallelUnits = 8
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 10
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = 4 * time.Second
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 10 * time.Second
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "postgres"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "data/company_radar.db"
	}
	if c.Crawler.SearchURL == "" {
		c.Crawler.SearchURL = "https://search.hankyung.com/search/news"
	}
	if c.Crawler.Sort == "" {
		c.Crawler.Sort = "DATE/DESC,RANK/DESC"
	}
	if c.Crawler.Concurrency <= 0 {
		c.Crawler.Concurrency = 100
	}
	if c.Crawler.Timeout <= 0 {
		c.Crawler.Timeout = 10 * time.Second
	}
	if c.Crawler.BatchSize <= 0 {
		c.Crawler.BatchSize = 10
	}
	if c.Crawler.PageDelay < 0 {
		c.Crawler.PageDelay = 0
	}
	if c.Vector.Backend == "" {
		c.Vector.Backend = "sql"
	}
	if c.Vector.BatchSize <= 0 {
		c.Vector.BatchSize = 80
	}
	// 未填写时批次间默认停 1 秒，负数表示不停
	if c.Vector.BatchPause == 0 {
		c.Vector.BatchPause = time.Second
	} else if c.Vector.BatchPause < 0 {
		c.Vector.BatchPause = 0
	}
	if c.Vector.TopK <= 0 {
		c.Vector.TopK = 20
	}
	if c.Vector.Milvus.Collection == "" {
		c.Vector.Milvus.Collection = "future_report_search"
	}
	if c.Vector.Milvus.Dim <= 0 {
		c.Vector.Milvus.Dim = 1536
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = c.LLM.BaseURL
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 24 * time.Hour
	}
	if c.Schedule.Days <= 0 {
		c.Schedule.Days = 7
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envLLMAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(envEmbeddingAPIKey); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(envTavilyAPIKey); v != "" {
		c.Search.Tavily.APIKey = v
	}
	if v := os.Getenv(envSerperAPIKey); v != "" {
		c.Search.Serper.APIKey = v
	}
	if v := os.Getenv(envDBPassword); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv(envRedisPassword); v != "" {
		c.Redis.Password = v
	}
}

// Validate 启动时检查凭证，缺失直接失败
func (c *Config) Validate(needs ...Requirement) error {
	var missing []string
	for _, n := range needs {
		switch n {
		case NeedLLM:
			if c.LLM.APIKey == "" {
				missing = append(missing, "llm.api_key")
			}
			if c.LLM.Model == "" {
				missing = append(missing, "llm.model")
			}
		case NeedEmbedding:
			if c.Embedding.APIKey == "" {
				missing = append(missing, "embedding.api_key")
			}
		case NeedSearch:
			switch c.Search.Provider {
			case "tavily":
				if c.Search.Tavily.APIKey == "" {
					missing = append(missing, "search.tavily.api_key")
				}
			case "searxng":
				if c.Search.SearXNG.BaseURL == "" {
					missing = append(missing, "search.searxng.base_url")
				}
			case "serper", "":
				if c.Search.Serper.APIKey == "" && c.Search.Tavily.APIKey == "" {
					missing = append(missing, "search.serper.api_key")
				}
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}
