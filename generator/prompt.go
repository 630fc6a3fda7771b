package generator

import "fmt"

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	System string
	User   string
	// Input 是嵌入 User 的原始文本，便于 Mock 实现直接取用。
	Input string
}

const analysisSystemPrompt = `你是一个专业的博客内容助手，需要完成三件事：
1. 识别用户输入文本的意图（想表达什么、想做什么）
2. 把用户输入整理成一篇通顺、有条理的博客文章
3. 生成合适的标题、摘要和标签

要求：
- 输入可能杂乱、有错别字、语序混乱，先理解原意再重新组织
- 保留用户原意，语言通顺，段落清晰
- 可以补充过渡句，但不要编造用户没说过的内容
- 只返回 JSON，不要包含 markdown 代码块标记`

const analysisTemplate = `{
  "intent": "用户的意图（如：分享美食经验、技术教程、产品评测、生活记录等）",
  "polished_content": "整理润色后的完整博客文章，段落之间用\n\n分隔",
  "title_suggestion": "建议的博客标题",
  "summary": "100字以内的内容摘要",
  "tags": ["标签1", "标签2", "标签3"],
  "tone": "文章语气",
  "changes_made": "简要说明做了哪些整理（如：修正错别字、调整语序、补充过渡句等）"
}`

// BuildAnalysisPrompt 生成意图分析 + 润色的提示词。
func BuildAnalysisPrompt(text string) Prompt {
	user := fmt.Sprintf("请分析并整理以下文本，按如下 JSON 格式返回：\n\n%s\n\n用户原始输入：\n%s", analysisTemplate, text)
	return Prompt{
		System: analysisSystemPrompt,
		User:   user,
		Input:  text,
	}
}
