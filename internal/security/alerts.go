package security

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// AlertType 告警类型
type AlertType string

const (
	AlertThreatDetected    AlertType = "threat_detected"
	AlertBehavioralAnomaly AlertType = "behavioral_anomaly"
	AlertPolicyViolation   AlertType = "policy_violation"
	AlertDataBreach        AlertType = "data_breach"
)

// AlertStatus 告警状态
type AlertStatus string

const (
	StatusOpen          AlertStatus = "open"
	StatusInvestigating AlertStatus = "investigating"
	StatusResolved      AlertStatus = "resolved"
	StatusFalsePositive AlertStatus = "false_positive"
)

// SecurityAlert 安全告警
type SecurityAlert struct {
	ID          string         `json:"id"`
	Type        AlertType      `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	UserID      string         `json:"userId,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   time.Time      `json:"timestamp"`
	Status      AlertStatus    `json:"status"`
}

var (
	ErrInvalidAlertType     = errors.New("invalid alert type")
	ErrInvalidAlertSeverity = errors.New("invalid alert severity")
)

var validAlertTypes = map[AlertType]struct{}{
	AlertThreatDetected:    {},
	AlertBehavioralAnomaly: {},
	AlertPolicyViolation:   {},
	AlertDataBreach:        {},
}

var validSeverities = map[Severity]struct{}{
	SeverityLow:      {},
	SeverityMedium:   {},
	SeverityHigh:     {},
	SeverityCritical: {},
}

// validTransitions 告警状态机。open 为初始态；resolved / false_positive
// 为终态，终态不再迁出。
var validTransitions = map[AlertStatus][]AlertStatus{
	StatusOpen:          {StatusInvestigating, StatusResolved, StatusFalsePositive},
	StatusInvestigating: {StatusResolved, StatusFalsePositive},
	StatusResolved:      {},
	StatusFalsePositive: {},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to AlertStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewAlertID 生成告警 ID：毫秒时间戳加 UUID 片段，高并发下依然
// 抗碰撞且保持按时间粗排序。
func NewAlertID() string {
	return fmt.Sprintf("sec_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// NewAlert 告警工厂。未知类型或严重级别直接返回校验错误，初始状态
// 固定为 open。
func NewAlert(alertType AlertType, severity Severity, description, userID string, metadata map[string]any) (SecurityAlert, error) {
	if _, ok := validAlertTypes[alertType]; !ok {
		return SecurityAlert{}, fmt.Errorf("%w: %q", ErrInvalidAlertType, alertType)
	}
	if _, ok := validSeverities[severity]; !ok {
		return SecurityAlert{}, fmt.Errorf("%w: %q", ErrInvalidAlertSeverity, severity)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	return SecurityAlert{
		ID:          NewAlertID(),
		Type:        alertType,
		Severity:    severity,
		Description: description,
		UserID:      userID,
		Metadata:    metadata,
		Timestamp:   time.Now(),
		Status:      StatusOpen,
	}, nil
}

// AlertStore 进程生命周期内的告警存储。追加式，仅显式管理操作清空；
// 单锁串行化并发写入。
type AlertStore struct {
	mu     sync.Mutex
	alerts []SecurityAlert
}

// NewAlertStore 创建告警存储
func NewAlertStore() *AlertStore {
	return &AlertStore{}
}

// Add 追加告警
func (s *AlertStore) Add(alert SecurityAlert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, copyAlert(alert))
	s.mu.Unlock()
}

// UpdateStatus 按状态机迁移告警状态。id 不存在或迁移非法时返回 false，
// 状态保持不变；不抛错误，调用方检查布尔结果即可。
func (s *AlertStore) UpdateStatus(id string, newStatus AlertStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		if !CanTransition(s.alerts[i].Status, newStatus) {
			return false
		}
		s.alerts[i].Status = newStatus
		return true
	}
	return false
}

// Get 按 id 查找告警拷贝
func (s *AlertStore) Get(id string) (SecurityAlert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			return copyAlert(s.alerts[i]), true
		}
	}
	return SecurityAlert{}, false
}

// Snapshot 返回全部告警的防御性拷贝，过滤器在快照上工作。
func (s *AlertStore) Snapshot() []SecurityAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SecurityAlert, len(s.alerts))
	for i, a := range s.alerts {
		out[i] = copyAlert(a)
	}
	return out
}

// ClearAll 清空全部告警（管理操作）
func (s *AlertStore) ClearAll() {
	s.mu.Lock()
	s.alerts = nil
	s.mu.Unlock()
}

// Count 告警总数
func (s *AlertStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func copyAlert(a SecurityAlert) SecurityAlert {
	metadata := make(map[string]any, len(a.Metadata))
	for k, v := range a.Metadata {
		metadata[k] = v
	}
	a.Metadata = metadata
	return a
}

// eventSeverityFor 告警创建时关联事件的严重级别映射。low 提升为
// medium：告警本身的存在就值得关注，关联事件从不降到 low。
var eventSeverityFor = map[Severity]Severity{
	SeverityCritical: SeverityCritical,
	SeverityHigh:     SeverityHigh,
	SeverityMedium:   SeverityMedium,
	SeverityLow:      SeverityMedium,
}

// Archiver 告警归档接口。告警创建和状态变更时收到最新副本，
// 由持久化层实现留痕。
type Archiver interface {
	ArchiveAlert(alert SecurityAlert)
}

// AlertManager 组合告警工厂、存储与事件日志。创建告警时向事件日志发出
// 一条关联的 suspicious_activity 事件（单向调用，不反向持有告警锁）。
type AlertManager struct {
	store             *AlertStore
	events            *EventLog
	archiver          Archiver
	severityOverrides map[AlertType]Severity
}

// NewAlertManager 创建告警管理器。events 可为 nil（不发关联事件）。
func NewAlertManager(store *AlertStore, events *EventLog) *AlertManager {
	return &AlertManager{store: store, events: events}
}

// SetSeverityOverrides 按告警类型覆盖关联事件的严重级别。运营侧用来
// 把特定类型（如 data_breach）强制升到更高级别。非法级别被忽略。
func (m *AlertManager) SetSeverityOverrides(overrides map[string]string) {
	if len(overrides) == 0 {
		return
	}
	m.severityOverrides = make(map[AlertType]Severity, len(overrides))
	for alertType, severity := range overrides {
		if _, ok := validAlertTypes[AlertType(alertType)]; !ok {
			continue
		}
		if _, ok := validSeverities[Severity(severity)]; !ok {
			continue
		}
		m.severityOverrides[AlertType(alertType)] = Severity(severity)
	}
}

// SetArchiver 挂接归档实现，nil 表示不归档
func (m *AlertManager) SetArchiver(a Archiver) {
	m.archiver = a
}

// CreateAlert 创建并入库告警，随后发出关联事件。
func (m *AlertManager) CreateAlert(alertType AlertType, severity Severity, description, userID string, metadata map[string]any) (SecurityAlert, error) {
	alert, err := NewAlert(alertType, severity, description, userID, metadata)
	if err != nil {
		return SecurityAlert{}, err
	}

	m.store.Add(alert)
	metrics.SecurityAlertsTotal.WithLabelValues(string(alertType), string(severity)).Inc()

	if m.events != nil {
		eventSeverity := eventSeverityFor[severity]
		if override, ok := m.severityOverrides[alertType]; ok {
			eventSeverity = override
		}
		m.events.LogEvent(EventSuspiciousActivity, userID, map[string]any{
			"alertId":   alert.ID,
			"alertType": string(alertType),
		}, "", eventSeverity)
	}

	if m.archiver != nil {
		m.archiver.ArchiveAlert(alert)
	}

	return alert, nil
}

// UpdateStatus 转发到存储层，迁移成功时同步归档
func (m *AlertManager) UpdateStatus(id string, newStatus AlertStatus) bool {
	ok := m.store.UpdateStatus(id, newStatus)
	if ok && m.archiver != nil {
		if alert, found := m.store.Get(id); found {
			m.archiver.ArchiveAlert(alert)
		}
	}
	return ok
}

// Store 暴露底层存储，供过滤与查询使用
func (m *AlertManager) Store() *AlertStore {
	return m.store
}
