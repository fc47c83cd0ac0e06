package ai

import (
	"context"
	"fmt"
)

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 对话补全请求
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse 对话补全响应
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage token 用量统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client 模型客户端接口。上层只依赖此接口，便于在测试中替换为桩实现，
// 也便于后续接入其他模型提供方。
type Client interface {
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ErrorType 客户端错误分类
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeInvalidParams ErrorType = "invalid_params"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// ClientError 携带分类信息的客户端错误
type ClientError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误是否值得重试。参数错误和鉴权错误重试无意义。
func (e *ClientError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeInvalidParams, ErrorTypeAuth:
		return false
	default:
		return true
	}
}

// UnavailableClient 未配置模型凭证时的占位客户端。每次调用返回鉴权
// 错误，经 ResilientClient 包装后表现为稳定的兜底响应。
type UnavailableClient struct{}

// ChatCompletion 实现 Client
func (UnavailableClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return nil, &ClientError{
		Type:    ErrorTypeAuth,
		Message: "未配置模型 API Key",
	}
}
