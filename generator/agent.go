package generator

import (
	"context"
	"errors"
	"net/url"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/sirupsen/logrus"

	"blogauto/apperr"
)

// Analyzer 负责一次意图分析 + 文本整理请求，调用之间不保留状态。
type Analyzer struct {
	llm LLMClient
	log logrus.FieldLogger
}

func NewAnalyzer(llm LLMClient, log logrus.FieldLogger) (*Analyzer, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{llm: llm, log: log}, nil
}

// Analyze 校验输入、调用模型并解析回复。空输入在发起网络请求前被拒绝；
// 模型调用失败返回 apperr.KindProvider；回复无法解析时返回 RawAnalysis 而非错误。
func (a *Analyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return Analysis{}, apperr.Input(apperr.MsgEmptyInput)
	}

	raw, err := a.llm.Complete(ctx, BuildAnalysisPrompt(text))
	if err != nil {
		a.log.WithError(err).Error("analysis request failed")
		return Analysis{}, apperr.Provider(providerMessage(err), err)
	}

	analysis := ParseAnalysis(raw, text)
	if analysis.IsRaw() {
		a.log.WithField("reply_len", len(raw)).Warn("model reply is not JSON, falling back to raw text")
	}
	return analysis, nil
}

// providerMessage 优先使用服务端返回的错误信息。
func providerMessage(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return apperr.MsgProviderDown
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return apperr.MsgAnalysisFailed
}
