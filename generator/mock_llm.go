package generator

import (
	"context"
	"encoding/json"
	"strings"
)

// MockLLM 本地调试用的占位实现，不调用外部模型，按约定的 JSON 结构回显输入。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	text := prompt.Input
	title := []rune(strings.TrimSpace(text))
	if len(title) > 16 {
		title = title[:16]
	}
	summary := []rune(text)
	if len(summary) > 100 {
		summary = summary[:100]
	}
	out, err := json.Marshal(Report{
		Intent:          "生活记录",
		PolishedContent: text,
		TitleSuggestion: string(title),
		Summary:         string(summary),
		Tags:            []string{"随笔"},
		Tone:            "轻松",
		ChangesMade:     "本地调试模式，未做改动",
	})
	if err != nil {
		return "", err
	}
	// 模拟模型偶尔会加的代码块标记
	return "```json\n" + string(out) + "\n```", nil
}
