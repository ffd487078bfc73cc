package engine

import "strings"

// 层级符号前插入换行和缩进
var markerBreaks = strings.NewReplacer(
	"○ ", "\n  ○ ",
	"- ", "\n    - ",
	"• ", "\n      • ",
	"□ ", "\n□ ",
)

// 换行已存在时会多出一个空行，合并掉
var blankCollapse = strings.NewReplacer(
	"\n\n  ○", "\n  ○",
	"\n\n    -", "\n    -",
	"\n\n      •", "\n      •",
	"\n\n□ ", "\n□ ",
)

// FormatReport 规整 LLM 输出的层级符号，使每个符号另起一行
func FormatReport(content string) string {
	return strings.TrimSpace(blankCollapse.Replace(markerBreaks.Replace(content)))
}
