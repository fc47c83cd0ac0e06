package security

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/logger"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// EventType 安全事件类型
type EventType string

const (
	EventAuthAttempt        EventType = "auth_attempt"
	EventAuthSuccess        EventType = "auth_success"
	EventAuthFailure        EventType = "auth_failure"
	EventSessionTimeout     EventType = "session_timeout"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
)

// Severity 事件严重级别
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent 结构化安全事件。创建后不再修改。
type SecurityEvent struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"userId,omitempty"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
	UserAgent string         `json:"userAgent"`
	Severity  Severity       `json:"severity"`
}

// Escalator 高危事件升级通知接口。实现必须是非阻塞的（如投递到带缓冲
// 的通道或发送异步 webhook）；日志调用方不会等待它完成。
type Escalator interface {
	Escalate(event SecurityEvent)
}

// DefaultEventCapacity 事件环默认容量
const DefaultEventCapacity = 100

// EventLog 容量受限的追加式安全事件日志。超出容量时最旧的事件先被淘汰。
type EventLog struct {
	mu        sync.Mutex
	events    []SecurityEvent
	capacity  int
	escalator Escalator
	logger    *zap.Logger
}

// NewEventLog 创建事件日志。capacity <= 0 时使用默认容量；escalator 可为 nil。
func NewEventLog(capacity int, escalator Escalator) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventLog{
		events:    make([]SecurityEvent, 0, capacity),
		capacity:  capacity,
		escalator: escalator,
		logger:    logger.Named("security.events"),
	}
}

// LogEvent 补全时间戳后追加事件。high/critical 事件同步触发一次尽力而为
// 的升级通知，通知失败（panic）不影响日志写入。
func (l *EventLog) LogEvent(eventType EventType, userID string, details map[string]any, userAgent string, severity Severity) SecurityEvent {
	if details == nil {
		details = map[string]any{}
	}
	if userAgent == "" {
		userAgent = "server"
	}

	event := SecurityEvent{
		Type:      eventType,
		UserID:    userID,
		Details:   details,
		Timestamp: time.Now(),
		UserAgent: userAgent,
		Severity:  severity,
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	l.mu.Unlock()

	metrics.SecurityEventsTotal.WithLabelValues(string(eventType), string(severity)).Inc()

	if severity == SeverityHigh || severity == SeverityCritical {
		l.escalate(event)
	}

	return event
}

// escalate 升级通知，隔离实现中的 panic。
func (l *EventLog) escalate(event SecurityEvent) {
	if l.escalator == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("事件升级通知失败", zap.Any("panic", r), zap.String("type", string(event.Type)))
		}
	}()
	l.escalator.Escalate(event)
}

// GetEvents 返回全部事件的防御性拷贝。
func (l *EventLog) GetEvents() []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyEvents(l.events)
}

// GetEventsByType 按类型过滤
func (l *EventLog) GetEventsByType(eventType EventType) []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]SecurityEvent, 0)
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, copyEvent(e))
		}
	}
	return out
}

// GetEventsBySeverity 按严重级别过滤
func (l *EventLog) GetEventsBySeverity(severity Severity) []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]SecurityEvent, 0)
	for _, e := range l.events {
		if e.Severity == severity {
			out = append(out, copyEvent(e))
		}
	}
	return out
}

// ClearEvents 清空日志
func (l *EventLog) ClearEvents() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.mu.Unlock()
}

// Len 当前事件数
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func copyEvents(events []SecurityEvent) []SecurityEvent {
	out := make([]SecurityEvent, len(events))
	for i, e := range events {
		out[i] = copyEvent(e)
	}
	return out
}

// copyEvent 连 Details map 一起拷贝，调用方无法通过返回值篡改内部状态。
func copyEvent(e SecurityEvent) SecurityEvent {
	details := make(map[string]any, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	e.Details = details
	return e
}

// ============================================================================
// 便捷记录方法：固定事件类型/严重级别，并在入库前完成字段脱敏
// ============================================================================

// LogAuthAttempt 记录认证尝试。邮箱在事件构造前脱敏。
func (l *EventLog) LogAuthAttempt(email string, success bool, userAgent string) SecurityEvent {
	eventType := EventAuthFailure
	severity := SeverityMedium
	if success {
		eventType = EventAuthSuccess
		severity = SeverityLow
	}
	return l.LogEvent(eventType, "", map[string]any{
		"email":   MaskEmail(email),
		"success": success,
	}, userAgent, severity)
}

// LogSuspiciousActivity 记录可疑活动
func (l *EventLog) LogSuspiciousActivity(userID string, details map[string]any) SecurityEvent {
	return l.LogEvent(EventSuspiciousActivity, userID, details, "", SeverityHigh)
}

// LogRateLimitExceeded 记录限流触发
func (l *EventLog) LogRateLimitExceeded(key string, userAgent string) SecurityEvent {
	return l.LogEvent(EventRateLimitExceeded, "", map[string]any{
		"key": key,
	}, userAgent, SeverityMedium)
}

// LogSessionTimeout 记录会话超时
func (l *EventLog) LogSessionTimeout(userID string) SecurityEvent {
	return l.LogEvent(EventSessionTimeout, userID, map[string]any{}, "", SeverityLow)
}

// MaskEmail 邮箱脱敏：保留本地部分前两个字符，如 ab***@example.com。
// 非邮箱格式整体打码。
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return local[:1] + "***@" + domain
	}
	return local[:2] + "***@" + domain
}

// LogEscalator 把升级事件写入 zap 的缺省 Escalator，接入外部通知系统前
// 的占位实现。
type LogEscalator struct{}

func (LogEscalator) Escalate(event SecurityEvent) {
	logger.Warn("安全事件升级",
		zap.String("type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("user_id", event.UserID),
	)
}
