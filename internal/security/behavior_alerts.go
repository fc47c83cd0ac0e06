package security

import "fmt"

// maxAlertActivities 关联事件中最多携带的活动条数，防止负载无界膨胀。
const maxAlertActivities = 5

// BehaviorAlertManager 把行为分析结果翻译为安全告警。
type BehaviorAlertManager struct {
	alerts *AlertManager
	events *EventLog
}

// NewBehaviorAlertManager 创建行为告警管理器
func NewBehaviorAlertManager(alerts *AlertManager, events *EventLog) *BehaviorAlertManager {
	return &BehaviorAlertManager{alerts: alerts, events: events}
}

// ShouldAlert 非 normal 模式都需要告警。
func (m *BehaviorAlertManager) ShouldAlert(pattern BehavioralPattern) bool {
	return pattern.Pattern != PatternNormal
}

// SeverityFor 根据分类与风险分映射告警严重级别。
func (m *BehaviorAlertManager) SeverityFor(pattern BehavioralPattern) Severity {
	switch pattern.Pattern {
	case PatternAnomalous:
		if pattern.RiskScore > 80 {
			return SeverityCritical
		}
		return SeverityHigh
	case PatternSuspicious:
		if pattern.RiskScore > 50 {
			return SeverityMedium
		}
		return SeverityLow
	default:
		return SeverityLow
	}
}

// HandlePattern 需要告警时创建 behavioral_anomaly 告警，并记录一条
// 包含前五条活动与风险分的可疑活动事件。返回创建的告警（若有）。
func (m *BehaviorAlertManager) HandlePattern(pattern BehavioralPattern) (SecurityAlert, bool, error) {
	if !m.ShouldAlert(pattern) {
		return SecurityAlert{}, false, nil
	}

	severity := m.SeverityFor(pattern)
	description := fmt.Sprintf("behavioral %s pattern detected (risk score %.0f)", pattern.Pattern, pattern.RiskScore)

	activities := pattern.Activities
	if len(activities) > maxAlertActivities {
		activities = activities[:maxAlertActivities]
	}

	alert, err := m.alerts.CreateAlert(AlertBehavioralAnomaly, severity, description, pattern.UserID, map[string]any{
		"pattern":   string(pattern.Pattern),
		"riskScore": pattern.RiskScore,
	})
	if err != nil {
		return SecurityAlert{}, false, err
	}

	if m.events != nil {
		m.events.LogSuspiciousActivity(pattern.UserID, map[string]any{
			"alertId":    alert.ID,
			"pattern":    string(pattern.Pattern),
			"riskScore":  pattern.RiskScore,
			"activities": append([]string(nil), activities...),
		})
	}

	return alert, true, nil
}
