// Package apperr 定义工作流各步骤共享的错误分类。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind string

const (
	KindInput     Kind = "input_error"
	KindProvider  Kind = "provider_error"
	KindSynthesis Kind = "synthesis_error"
	KindPublish   Kind = "publish_error"
	KindTransport Kind = "transport_error"
	KindNotFound  Kind = "not_found"
	KindConflict  Kind = "conflict"
	KindInternal  Kind = "internal_error"
)

// 面向用户的固定提示。
const (
	MsgEmptyInput       = "请输入文本内容"
	MsgAnalysisFailed   = "分析过程出错"
	MsgProviderDown     = "无法连接 AI 服务"
	MsgBackendDown      = "无法连接后端服务"
	MsgBadResponse      = "后端服务返回异常"
	MsgTTSFailed        = "TTS 服务出错"
	MsgTTSDown          = "无法连接 TTS 服务"
	MsgPostNotFound     = "文章不存在"
	MsgRunInProgress    = "正在处理中，请稍候"
	MsgProcessingFailed = "处理失败"
	MsgBadRequest       = "请求格式错误"
)

// Error 携带类别和可直接展示给用户的消息。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建新的 Error
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Input(message string) *Error {
	return New(KindInput, message, nil)
}

func Provider(message string, cause error) *Error {
	return New(KindProvider, message, cause)
}

func Publish(message string, cause error) *Error {
	return New(KindPublish, message, cause)
}

func Synthesis(message string, cause error) *Error {
	return New(KindSynthesis, message, cause)
}

func Transport(message string, cause error) *Error {
	return New(KindTransport, message, cause)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

// KindOf 返回 err 链上第一个 *Error 的类别，找不到时为 KindInternal。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is 检查 err 是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage 返回可展示的消息：优先 *Error.Message，其次 err.Error()，最后是通用提示。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgProcessingFailed
}

// HTTPStatus 把错误类别映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
