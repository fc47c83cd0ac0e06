package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient 按脚本返回响应或错误
type scriptedClient struct {
	calls     int
	responses []func() (*ChatResponse, error)
}

func (s *scriptedClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx]()
}

func okResponse(content string) func() (*ChatResponse, error) {
	return func() (*ChatResponse, error) {
		return &ChatResponse{ID: "r1", Model: "test", Content: content}, nil
	}
}

func failWith(err error) func() (*ChatResponse, error) {
	return func() (*ChatResponse, error) {
		return nil, err
	}
}

func testRequest() *ChatRequest {
	return &ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}}
}

func TestResilientRejectsEmptyRequest(t *testing.T) {
	c := NewResilientClient(&scriptedClient{}, nil)

	_, err := c.ChatCompletion(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = c.ChatCompletion(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestResilientSuccessFirstAttempt(t *testing.T) {
	inner := &scriptedClient{responses: []func() (*ChatResponse, error){okResponse("hello")}}
	c := NewResilientClient(inner, nil)

	resp, err := c.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 1, inner.calls)
}

func TestResilientRetriesThenSucceeds(t *testing.T) {
	inner := &scriptedClient{responses: []func() (*ChatResponse, error){
		failWith(errors.New("transient")),
		failWith(errors.New("transient")),
		okResponse("third time"),
	}}

	var sleeps []time.Duration
	c := NewResilientClient(inner, nil,
		WithBackoffBase(time.Second),
		withSleep(func(d time.Duration) { sleeps = append(sleeps, d) }),
	)

	resp, err := c.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "third time", resp.Content)
	assert.Equal(t, 3, inner.calls)
	// 第 n 次重试前等待 2^n * base
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps)
}

func TestResilientExhaustsRetriesAndFallsBack(t *testing.T) {
	inner := &scriptedClient{responses: []func() (*ChatResponse, error){
		failWith(errors.New("down")),
	}}
	c := NewResilientClient(inner, nil, withSleep(func(time.Duration) {}))

	resp, err := c.ChatCompletion(context.Background(), testRequest())
	// 重试耗尽后返回兜底响应而不是错误
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, inner.calls)
	assert.Equal(t, "fallback", resp.ID)
	assert.Contains(t, resp.Content, `"degraded":true`)
}

func TestResilientNonRetryableErrorShortCircuits(t *testing.T) {
	inner := &scriptedClient{responses: []func() (*ChatResponse, error){
		failWith(&ClientError{Type: ErrorTypeAuth, Message: "bad key"}),
	}}
	c := NewResilientClient(inner, nil, withSleep(func(time.Duration) {}))

	resp, err := c.ChatCompletion(context.Background(), testRequest())
	require.NoError(t, err)
	// 鉴权错误不重试，直接降级
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "fallback", resp.ID)
}

func TestClientErrorRetryability(t *testing.T) {
	assert.False(t, (&ClientError{Type: ErrorTypeAuth}).IsRetryable())
	assert.False(t, (&ClientError{Type: ErrorTypeInvalidParams}).IsRetryable())
	assert.True(t, (&ClientError{Type: ErrorTypeRateLimit}).IsRetryable())
	assert.True(t, (&ClientError{Type: ErrorTypeNetwork}).IsRetryable())
	assert.True(t, (&ClientError{Type: ErrorTypeServerError}).IsRetryable())
	assert.True(t, (&ClientError{Type: ErrorTypeUnknown}).IsRetryable())
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &ClientError{Type: ErrorTypeNetwork, Message: "call failed", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "network")
	assert.Contains(t, err.Error(), "root cause")
}

func TestUnavailableClientAlwaysFails(t *testing.T) {
	_, err := UnavailableClient{}.ChatCompletion(context.Background(), testRequest())
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeAuth, clientErr.Type)
}
