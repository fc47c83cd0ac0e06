package openai

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ai"
)

// Client OpenAI 客户端适配器。不做重试，重试和降级由上层 ResilientClient 负责。
type Client struct {
	client  *openai.Client
	modelID string
}

// NewClient 创建 OpenAI 客户端
func NewClient(apiKey, baseURL, model string) (*Client, error) {
	if apiKey == "" {
		return nil, &ai.ClientError{
			Type:    ai.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		modelID: model,
	}, nil
}

// ChatCompletion 对话补全（非流式）
func (c *Client) ChatCompletion(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	// 转换消息格式
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ai.ClientError{
			Type:    ai.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}

	return &ai.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: ai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// wrapError 按错误文本归类错误类型
func wrapError(err error) *ai.ClientError {
	errMsg := strings.ToLower(err.Error())

	var errType ai.ErrorType
	switch {
	case strings.Contains(errMsg, "401") || strings.Contains(errMsg, "403"):
		errType = ai.ErrorTypeAuth
	case strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "429"):
		errType = ai.ErrorTypeRateLimit
	case strings.Contains(errMsg, "400") || strings.Contains(errMsg, "invalid"):
		errType = ai.ErrorTypeInvalidParams
	case strings.Contains(errMsg, "500") || strings.Contains(errMsg, "502") || strings.Contains(errMsg, "503"):
		errType = ai.ErrorTypeServerError
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "connection"):
		errType = ai.ErrorTypeNetwork
	default:
		errType = ai.ErrorTypeUnknown
	}

	return &ai.ClientError{
		Type:    errType,
		Message: "OpenAI API 错误",
		Err:     err,
	}
}
