package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAlertValidation(t *testing.T) {
	_, err := NewAlert("bogus", SeverityHigh, "d", "u1", nil)
	assert.ErrorIs(t, err, ErrInvalidAlertType)

	_, err = NewAlert(AlertThreatDetected, "extreme", "d", "u1", nil)
	assert.ErrorIs(t, err, ErrInvalidAlertSeverity)

	alert, err := NewAlert(AlertThreatDetected, SeverityHigh, "d", "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, alert.Status)
	assert.NotNil(t, alert.Metadata)
	assert.False(t, alert.Timestamp.IsZero())
}

func TestNewAlertIDFormat(t *testing.T) {
	id := NewAlertID()
	parts := strings.SplitN(id, "_", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "sec", parts[0])
	assert.Len(t, parts[2], 8)

	// 两次生成不碰撞
	assert.NotEqual(t, id, NewAlertID())
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AlertStatus
		ok       bool
	}{
		{StatusOpen, StatusInvestigating, true},
		{StatusOpen, StatusResolved, true},
		{StatusOpen, StatusFalsePositive, true},
		{StatusInvestigating, StatusResolved, true},
		{StatusInvestigating, StatusFalsePositive, true},
		{StatusInvestigating, StatusOpen, false},
		{StatusResolved, StatusInvestigating, false},
		{StatusResolved, StatusOpen, false},
		{StatusFalsePositive, StatusResolved, false},
		{StatusOpen, StatusOpen, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAlertStoreUpdateStatus(t *testing.T) {
	store := NewAlertStore()
	alert, err := NewAlert(AlertThreatDetected, SeverityHigh, "d", "u1", nil)
	require.NoError(t, err)
	store.Add(alert)

	assert.True(t, store.UpdateStatus(alert.ID, StatusInvestigating))
	assert.True(t, store.UpdateStatus(alert.ID, StatusResolved))

	// 终态不可迁出
	assert.False(t, store.UpdateStatus(alert.ID, StatusInvestigating))
	got, ok := store.Get(alert.ID)
	require.True(t, ok)
	assert.Equal(t, StatusResolved, got.Status)

	// 不存在的 id
	assert.False(t, store.UpdateStatus("sec_0_missing", StatusResolved))
}

func TestAlertStoreSnapshotIsolation(t *testing.T) {
	store := NewAlertStore()
	alert, err := NewAlert(AlertPolicyViolation, SeverityLow, "d", "u1", map[string]any{"k": "v"})
	require.NoError(t, err)
	store.Add(alert)

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Status = StatusResolved
	snap[0].Metadata["k"] = "tampered"

	fresh, ok := store.Get(alert.ID)
	require.True(t, ok)
	assert.Equal(t, StatusOpen, fresh.Status)
	assert.Equal(t, "v", fresh.Metadata["k"])
}

func TestAlertStoreClearAndCount(t *testing.T) {
	store := NewAlertStore()
	for i := 0; i < 3; i++ {
		alert, err := NewAlert(AlertDataBreach, SeverityCritical, "d", "u1", nil)
		require.NoError(t, err)
		store.Add(alert)
	}
	require.Equal(t, 3, store.Count())

	store.ClearAll()
	assert.Equal(t, 0, store.Count())
	assert.Empty(t, store.Snapshot())
}

func TestAlertManagerEmitsCorrelatedEvent(t *testing.T) {
	events := NewEventLog(10, nil)
	manager := NewAlertManager(NewAlertStore(), events)

	alert, err := manager.CreateAlert(AlertThreatDetected, SeverityLow, "d", "u1", nil)
	require.NoError(t, err)

	got := events.GetEventsByType(EventSuspiciousActivity)
	require.Len(t, got, 1)
	assert.Equal(t, alert.ID, got[0].Details["alertId"])
	// low 告警的关联事件至少 medium
	assert.Equal(t, SeverityMedium, got[0].Severity)
}

func TestAlertManagerSeverityOverrides(t *testing.T) {
	events := NewEventLog(10, nil)
	manager := NewAlertManager(NewAlertStore(), events)
	manager.SetSeverityOverrides(map[string]string{
		"data_breach":     "critical",
		"bogus_type":      "high", // 未知类型被忽略
		"threat_detected": "wild", // 非法级别被忽略
	})

	_, err := manager.CreateAlert(AlertDataBreach, SeverityLow, "d", "u1", nil)
	require.NoError(t, err)
	_, err = manager.CreateAlert(AlertThreatDetected, SeverityLow, "d", "u1", nil)
	require.NoError(t, err)

	got := events.GetEventsByType(EventSuspiciousActivity)
	require.Len(t, got, 2)
	assert.Equal(t, SeverityCritical, got[0].Severity)
	assert.Equal(t, SeverityMedium, got[1].Severity)
}

// recordingArchiver 收集归档调用
type recordingArchiver struct {
	archived []SecurityAlert
}

func (r *recordingArchiver) ArchiveAlert(alert SecurityAlert) {
	r.archived = append(r.archived, alert)
}

func TestAlertManagerArchivesLifecycle(t *testing.T) {
	archiver := &recordingArchiver{}
	manager := NewAlertManager(NewAlertStore(), nil)
	manager.SetArchiver(archiver)

	alert, err := manager.CreateAlert(AlertThreatDetected, SeverityHigh, "d", "u1", nil)
	require.NoError(t, err)
	require.True(t, manager.UpdateStatus(alert.ID, StatusResolved))
	// 非法迁移不触发归档
	require.False(t, manager.UpdateStatus(alert.ID, StatusInvestigating))

	require.Len(t, archiver.archived, 2)
	assert.Equal(t, StatusOpen, archiver.archived[0].Status)
	assert.Equal(t, StatusResolved, archiver.archived[1].Status)
}

func TestAlertFilters(t *testing.T) {
	now := time.Now()
	alerts := []SecurityAlert{
		{ID: "a1", Type: AlertThreatDetected, Severity: SeverityHigh, Status: StatusOpen, UserID: "u1", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "a2", Type: AlertBehavioralAnomaly, Severity: SeverityLow, Status: StatusResolved, UserID: "u2", Timestamp: now.Add(-time.Hour)},
		{ID: "a3", Type: AlertThreatDetected, Severity: SeverityHigh, Status: StatusOpen, UserID: "u2", Timestamp: now},
	}

	assert.Len(t, FilterByStatus(alerts, StatusOpen), 2)
	assert.Len(t, FilterByType(alerts, AlertBehavioralAnomaly), 1)
	assert.Len(t, FilterBySeverity(alerts, SeverityHigh), 2)
	assert.Len(t, FilterByUser(alerts, "u2"), 2)
	assert.Empty(t, FilterByUser(alerts, "ghost"))

	// 时间范围闭区间
	got := FilterByTimeRange(alerts, now.Add(-time.Hour), now)
	assert.Len(t, got, 2)
}

func TestBehaviorAlertSeverityMapping(t *testing.T) {
	m := NewBehaviorAlertManager(NewAlertManager(NewAlertStore(), nil), nil)

	cases := []struct {
		pattern Pattern
		score   float64
		want    Severity
	}{
		{PatternAnomalous, 90, SeverityCritical},
		{PatternAnomalous, 75, SeverityHigh},
		{PatternSuspicious, 60, SeverityMedium},
		{PatternSuspicious, 40, SeverityLow},
		{PatternNormal, 10, SeverityLow},
	}
	for _, tc := range cases {
		got := m.SeverityFor(BehavioralPattern{Pattern: tc.pattern, RiskScore: tc.score})
		assert.Equal(t, tc.want, got, "%s/%v", tc.pattern, tc.score)
	}
}

func TestHandlePatternNormalNoAlert(t *testing.T) {
	events := NewEventLog(10, nil)
	m := NewBehaviorAlertManager(NewAlertManager(NewAlertStore(), events), events)

	_, created, err := m.HandlePattern(BehavioralPattern{
		UserID: "u1", Pattern: PatternNormal, RiskScore: 0,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 0, events.Len())
}

func TestHandlePatternCreatesAlertAndEvent(t *testing.T) {
	events := NewEventLog(10, nil)
	store := NewAlertStore()
	m := NewBehaviorAlertManager(NewAlertManager(store, events), events)

	activities := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	alert, created, err := m.HandlePattern(BehavioralPattern{
		UserID:     "u1",
		Pattern:    PatternAnomalous,
		RiskScore:  85,
		Activities: activities,
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, AlertBehavioralAnomaly, alert.Type)
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Equal(t, 1, store.Count())

	// 事件负载只带前五条活动
	got := events.GetEventsByType(EventSuspiciousActivity)
	var behavioral []SecurityEvent
	for _, e := range got {
		if _, ok := e.Details["activities"]; ok {
			behavioral = append(behavioral, e)
		}
	}
	require.Len(t, behavioral, 1)
	carried, ok := behavioral[0].Details["activities"].([]string)
	require.True(t, ok)
	assert.Len(t, carried, 5)
}
