package generator

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// 模型有时会把 JSON 包在 ```json ... ``` 里。
var fenceRe = regexp.MustCompile("```[A-Za-z0-9_+-]*\\s*")

// StripFences 去掉所有代码块标记（带语言标签或不带）。
func StripFences(reply string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(reply, ""))
}

// ParseAnalysis 把模型回复解析为 Analysis。回复不是合法 JSON 对象时降级为 RawAnalysis，
// 这不是错误。input 用作润色正文缺失时的回落。
func ParseAnalysis(reply, input string) Analysis {
	cleaned := StripFences(reply)
	if !gjson.Valid(cleaned) {
		return RawAnalysis(reply)
	}
	doc := gjson.Parse(cleaned)
	if !doc.IsObject() {
		return RawAnalysis(reply)
	}

	r := Report{
		Intent:          doc.Get("intent").String(),
		PolishedContent: doc.Get("polished_content").String(),
		TitleSuggestion: doc.Get("title_suggestion").String(),
		Summary:         doc.Get("summary").String(),
		Tags:            stringList(doc.Get("tags")),
		Tone:            doc.Get("tone").String(),
		ChangesMade:     doc.Get("changes_made").String(),
	}
	if r.TitleSuggestion == "" {
		r.TitleSuggestion = DefaultTitle
	}
	if r.Intent == "" {
		r.Intent = DefaultIntent
	}
	if r.PolishedContent == "" {
		r.PolishedContent = input
	}
	return StructuredAnalysis(r)
}

func stringList(v gjson.Result) []string {
	tags := []string{}
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				tags = append(tags, s)
			}
		}
	case v.Type == gjson.String && strings.TrimSpace(v.Str) != "":
		tags = append(tags, strings.TrimSpace(v.Str))
	}
	return tags
}
