package model

import (
	"strings"
	"time"
)

// Unavailable 字段抽取失败时的占位值
const Unavailable = "N/A"

// Suitability 文章适用性标注（三态）
type Suitability int

const (
	// SuitabilityUnset 尚未判定，数据库中为 NULL
	SuitabilityUnset Suitability = iota
	// SuitabilityUnsuitable 不适合用于企业分析
	SuitabilityUnsuitable
	// SuitabilitySuitable 适合用于企业分析
	SuitabilitySuitable
)

func (s Suitability) String() string {
	switch s {
	case SuitabilityUnsuitable:
		return "unsuitable"
	case SuitabilitySuitable:
		return "suitable"
	default:
		return "unset"
	}
}

// Article 爬取到的新闻文章
type Article struct {
	ID          int64
	Owner       string
	Subject     string // 文章收集时对应的企业/主题
	Title       string
	PublishDate string // YYYY-MM-DD，可能为 Unavailable
	Author      string
	FullText    string
	URL         string
	Suitability Suitability
}

// Date 解析发布日期，无法解析时返回 false
func (a Article) Date() (time.Time, bool) {
	d := strings.TrimSpace(a.PublishDate)
	if d == "" || d == Unavailable {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, d)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Missing 判断字段是否缺失（空串或占位值）
func Missing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == Unavailable
}

// ReportKind 报告类型
type ReportKind string

const (
	KindMonthly ReportKind = "monthly"
	KindYearly  ReportKind = "yearly"
	KindKeyword ReportKind = "keyword"
	KindTrend   ReportKind = "trend"
	KindFuture  ReportKind = "future"
)

// ParseReportKind 解析报告类型字符串
func ParseReportKind(s string) (ReportKind, bool) {
	switch k := ReportKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMonthly, KindYearly, KindKeyword, KindTrend, KindFuture:
		return k, true
	}
	return "", false
}

// Report 生成的报告产物，同一 CacheKey 至多一条
type Report struct {
	ID        int64
	Owner     string
	Kind      ReportKind
	Subject   string
	Year      int
	Month     int // 0 表示无月份（非月报）
	Content   string
	CreatedAt time.Time
}

// Key 返回报告的缓存键
func (r Report) Key() CacheKey {
	return CacheKey{Owner: r.Owner, Kind: r.Kind, Subject: r.Subject, Year: r.Year, Month: r.Month}
}

// CacheKey 报告缓存键 (owner, kind, subject, year, month)
type CacheKey struct {
	Owner   string
	Kind    ReportKind
	Subject string
	Year    int
	Month   int
}
