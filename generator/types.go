package generator

import "encoding/json"

// 缺省值
const (
	DefaultTitle  = "无标题文章"
	DefaultIntent = "未识别"
)

// Report 是模型按约定返回的结构化分析结果。
type Report struct {
	Intent          string   `json:"intent"`
	PolishedContent string   `json:"polished_content"`
	TitleSuggestion string   `json:"title_suggestion"`
	Summary         string   `json:"summary"`
	Tags            []string `json:"tags"`
	Tone            string   `json:"tone"`
	ChangesMade     string   `json:"changes_made"`
}

// AnalysisKind 区分两种分析结果。
type AnalysisKind int

const (
	AnalysisStructured AnalysisKind = iota
	AnalysisRaw
)

func (k AnalysisKind) String() string {
	if k == AnalysisRaw {
		return "raw"
	}
	return "structured"
}

// Analysis 是结构化结果或原始文本二选一，解析时一次性确定，之后不可变。
type Analysis struct {
	kind   AnalysisKind
	report Report
	raw    string
}

// StructuredAnalysis 包装一个已补全缺省值的 Report。
func StructuredAnalysis(r Report) Analysis {
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return Analysis{kind: AnalysisStructured, report: r}
}

// RawAnalysis 包装无法解析的模型回复。
func RawAnalysis(reply string) Analysis {
	return Analysis{kind: AnalysisRaw, raw: reply}
}

func (a Analysis) Kind() AnalysisKind { return a.kind }

func (a Analysis) IsRaw() bool { return a.kind == AnalysisRaw }

// Report 仅在结构化结果时返回 ok=true。
func (a Analysis) Report() (Report, bool) {
	if a.kind != AnalysisStructured {
		return Report{}, false
	}
	r := a.report
	r.Tags = append([]string{}, a.report.Tags...)
	return r, true
}

// Raw 仅在原始文本结果时返回 ok=true。
func (a Analysis) Raw() (string, bool) {
	if a.kind != AnalysisRaw {
		return "", false
	}
	return a.raw, true
}

// MarshalJSON 结构化结果输出各字段，原始结果输出 {"raw": ...}。
func (a Analysis) MarshalJSON() ([]byte, error) {
	if a.kind == AnalysisRaw {
		return json.Marshal(struct {
			Raw string `json:"raw"`
		}{a.raw})
	}
	r, _ := a.Report()
	return json.Marshal(r)
}
