package llm

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// 模板名
const (
	TemplateMonthly     = "monthly"
	TemplateYearly      = "yearly"
	TemplateKeyword     = "keyword"
	TemplateTrend       = "trend"
	TemplateFuture      = "future"
	TemplateSuitability = "suitability"
)

const analystSystem = `你是一名资深的企业与产业分析师，擅长从新闻报道中提炼企业的核心动向。
输出使用中文，只输出报告正文，不要输出任何解释或 markdown 代码块。
层级符号约定：□ 表示一级标题，○ 表示二级要点，- 表示三级细节，• 表示补充说明。`

const monthlyUser = `以下是 {year} 年 {month} 月关于【{company}】的新闻文章，文章之间用 --- 分隔：

{articles}

请撰写【{company}】{year} 年 {month} 月的月度核心议题报告：
□ {year}年{month}月 主要议题
○ 按重要性列出 3-5 个议题，每个议题用一句话概括
- 每个议题下给出关键事实（金额、合作方、产品、时间点）
• 必要时补充对企业经营的影响
只依据给出的文章，不要编造事实。`

const yearlyUser = `以下是【{company}】{year} 年各月的月度报告，报告之间用 --- 分隔：

{articles}

请整合为【{company}】{year} 年的年度核心议题报告：
□ {year}年 核心议题
○ 合并重复议题，按全年影响力排序列出 5-8 个议题
- 说明每个议题的发展脉络和关键节点
• 给出该议题对企业中长期的意义
□ {year}年 总结
○ 用 2-3 句话概括全年经营主线`

const keywordUser = `以下是【{company}】各年度的核心议题报告，按年份从新到旧排列，报告之间用 --- 分隔：

{annual_reports}

请提炼【{company}】的核心关键词：
□ 核心关键词
○ 列出 5-10 个关键词，每个关键词后给出一句话说明
- 注明关键词首次出现和最近出现的年份
□ 关键词变化
○ 说明关键词随时间的演变`

const trendUser = `以下是【{company}】各年度的核心议题报告，按年份从新到旧排列，报告之间用 --- 分隔：

{annual_reports}

请分析【{company}】的企业发展趋势：
□ 业务结构变化
○ 主力业务与新兴业务的此消彼长
□ 投资与合作动向
○ 重要投资、并购、合作伙伴的变化
□ 风险与挑战
○ 反复出现的风险因素
□ 综合判断
○ 用 3 句话以内概括企业的发展方向`

const futureUser = `以下是关于【{company}】未来战略的检索资料，资料之间用空行分隔：

{context}

请撰写【{company}】的未来战略路线图报告：
□ 当前核心能力
○ 技术、产品、市场上的优势
□ 未来增长动力
○ 新业务与新市场，每项给出依据
- 引用资料中的具体事实
□ 技术与业务路线图
○ 按短期、中期、长期分别列出
□ 潜在风险
○ 实现路线图需要克服的障碍
资料不足的部分请明确写出“资料不足”，不要编造。`

const suitabilitySystem = `你负责筛选用于企业与产业分析的新闻。只回答“适合”或“不适合”，不要输出其他内容。`

const suitabilityUser = `判断下面这篇新闻是否适合用于企业或产业分析。
经营、投资、技术、产品、合作、业绩相关的新闻为适合；天气、娱乐、社会新闻、广告、与企业经营无关的新闻为不适合。

新闻内容：
{article_content}`

// DefaultTemplates 返回内置模板，变量使用 FString 语法
func DefaultTemplates() map[string]prompt.ChatTemplate {
	analyst := func(user string) prompt.ChatTemplate {
		return prompt.FromMessages(schema.FString,
			schema.SystemMessage(analystSystem),
			schema.UserMessage(user),
		)
	}
	return map[string]prompt.ChatTemplate{
		TemplateMonthly: analyst(monthlyUser),
		TemplateYearly:  analyst(yearlyUser),
		TemplateKeyword: analyst(keywordUser),
		TemplateTrend:   analyst(trendUser),
		TemplateFuture:  analyst(futureUser),
		TemplateSuitability: prompt.FromMessages(schema.FString,
			schema.SystemMessage(suitabilitySystem),
			schema.UserMessage(suitabilityUser),
		),
	}
}
