package security

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEscalator 收集升级事件供断言
type recordingEscalator struct {
	events []SecurityEvent
}

func (r *recordingEscalator) Escalate(event SecurityEvent) {
	r.events = append(r.events, event)
}

// panicEscalator 升级时 panic，验证日志写入不受影响
type panicEscalator struct{}

func (panicEscalator) Escalate(SecurityEvent) {
	panic("escalator down")
}

func TestLogEventDefaults(t *testing.T) {
	log := NewEventLog(10, nil)

	event := log.LogEvent(EventAuthSuccess, "u1", nil, "", SeverityLow)

	assert.NotNil(t, event.Details)
	assert.Equal(t, "server", event.UserAgent)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, 1, log.Len())
}

func TestEventLogEvictsOldest(t *testing.T) {
	log := NewEventLog(3, nil)

	for i := 0; i < 5; i++ {
		log.LogEvent(EventAuthAttempt, fmt.Sprintf("u%d", i), nil, "", SeverityLow)
	}

	events := log.GetEvents()
	require.Len(t, events, 3)
	assert.Equal(t, "u2", events[0].UserID)
	assert.Equal(t, "u4", events[2].UserID)
}

func TestEscalationOnHighAndCritical(t *testing.T) {
	rec := &recordingEscalator{}
	log := NewEventLog(10, rec)

	log.LogEvent(EventAuthAttempt, "u1", nil, "", SeverityLow)
	log.LogEvent(EventAuthAttempt, "u2", nil, "", SeverityMedium)
	log.LogEvent(EventSuspiciousActivity, "u3", nil, "", SeverityHigh)
	log.LogEvent(EventSuspiciousActivity, "u4", nil, "", SeverityCritical)

	require.Len(t, rec.events, 2)
	assert.Equal(t, "u3", rec.events[0].UserID)
	assert.Equal(t, "u4", rec.events[1].UserID)
}

func TestEscalatorPanicDoesNotLoseEvent(t *testing.T) {
	log := NewEventLog(10, panicEscalator{})

	assert.NotPanics(t, func() {
		log.LogEvent(EventSuspiciousActivity, "u1", nil, "", SeverityCritical)
	})
	assert.Equal(t, 1, log.Len())
}

func TestGetEventsReturnsCopies(t *testing.T) {
	log := NewEventLog(10, nil)
	log.LogEvent(EventAuthSuccess, "u1", map[string]any{"k": "v"}, "", SeverityLow)

	events := log.GetEvents()
	events[0].Details["k"] = "tampered"
	events[0].UserID = "other"

	fresh := log.GetEvents()
	assert.Equal(t, "v", fresh[0].Details["k"])
	assert.Equal(t, "u1", fresh[0].UserID)
}

func TestFilterByTypeAndSeverity(t *testing.T) {
	log := NewEventLog(10, nil)
	log.LogAuthAttempt("alice@example.com", true, "ua")
	log.LogAuthAttempt("bob@example.com", false, "ua")
	log.LogSessionTimeout("u1")

	assert.Len(t, log.GetEventsByType(EventAuthSuccess), 1)
	assert.Len(t, log.GetEventsByType(EventAuthFailure), 1)
	assert.Len(t, log.GetEventsBySeverity(SeverityLow), 2)
	assert.Len(t, log.GetEventsBySeverity(SeverityMedium), 1)
	assert.Empty(t, log.GetEventsByType(EventRateLimitExceeded))
}

func TestAuthAttemptMasksEmailBeforeStorage(t *testing.T) {
	log := NewEventLog(10, nil)
	log.LogAuthAttempt("alice@example.com", false, "ua")

	events := log.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "al***@example.com", events[0].Details["email"])
}

func TestClearEvents(t *testing.T) {
	log := NewEventLog(10, nil)
	log.LogSessionTimeout("u1")
	require.Equal(t, 1, log.Len())

	log.ClearEvents()
	assert.Equal(t, 0, log.Len())
	assert.Empty(t, log.GetEvents())
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "al***@example.com"},
		{"ab@example.com", "a***@example.com"},
		{"a@example.com", "a***@example.com"},
		{"not-an-email", "***"},
		{"", "***"},
		{"@example.com", "***"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MaskEmail(tc.in), "输入 %q", tc.in)
	}
}
