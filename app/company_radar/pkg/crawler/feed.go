package crawler

import (
	"context"
	"strings"
)

// DiscoverFeeds 从 RSS/Atom 源中挑出标题或摘要提到 subject 的条目链接。
// 单个源失败只记录日志。
func (f *Fetcher) DiscoverFeeds(ctx context.Context, feedURLs []string, subject string) []string {
	needle := strings.ToLower(subject)
	var links []string
	for _, feedURL := range feedURLs {
		feed, err := f.feed.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			f.log.WithField("feed", feedURL).Warnf("解析 RSS 失败: %v", err)
			continue
		}
		matched := 0
		for _, item := range feed.Items {
			if item == nil || item.Link == "" {
				continue
			}
			text := strings.ToLower(item.Title + " " + item.Description)
			if needle != "" && !strings.Contains(text, needle) {
				continue
			}
			links = append(links, item.Link)
			matched++
		}
		f.log.WithField("feed", feedURL).Infof("RSS 匹配到 %d 条", matched)
	}
	return links
}
