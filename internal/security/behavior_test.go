package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyEmptyActions(t *testing.T) {
	_, err := Classify("u1", nil)
	assert.ErrorIs(t, err, ErrEmptyActivityList)

	_, err = Classify("u1", []string{})
	assert.ErrorIs(t, err, ErrEmptyActivityList)
}

func TestClassifyScoring(t *testing.T) {
	cases := []struct {
		name      string
		actions   []string
		wantScore float64
		wantType  Pattern
	}{
		{
			name:      "全部正常",
			actions:   []string{"login", "view_document", "logout"},
			wantScore: 0,
			wantType:  PatternNormal,
		},
		{
			name:      "四分之一可疑仍属正常",
			actions:   []string{"login", "view_document", "logout", "rapid_file_uploads"},
			wantScore: 25,
			wantType:  PatternNormal,
		},
		{
			name:      "一半可疑",
			actions:   []string{"login", "bulk_data_access", "logout", "large_data_downloads"},
			wantScore: 50,
			wantType:  PatternSuspicious,
		},
		{
			name:      "四分之三可疑",
			actions:   []string{"login", "bulk_data_access", "multiple_failed_logins", "admin_privilege_escalation"},
			wantScore: 75,
			wantType:  PatternAnomalous,
		},
		{
			name:      "全部可疑",
			actions:   []string{"unusual_access_times", "bulk_data_access"},
			wantScore: 100,
			wantType:  PatternAnomalous,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pattern, err := Classify("u1", tc.actions)
			require.NoError(t, err)
			assert.InDelta(t, tc.wantScore, pattern.RiskScore, 0.001)
			assert.Equal(t, tc.wantType, pattern.Pattern)
			assert.Equal(t, "u1", pattern.UserID)
		})
	}
}

func TestClassifyBoundaries(t *testing.T) {
	// 恰好 30 分不算可疑，恰好 70 分不算异常
	actions30 := make([]string, 10)
	for i := range actions30 {
		actions30[i] = "view_document"
	}
	actions30[0] = "bulk_data_access"
	actions30[1] = "bulk_data_access"
	actions30[2] = "bulk_data_access"

	pattern, err := Classify("u1", actions30)
	require.NoError(t, err)
	assert.InDelta(t, 30, pattern.RiskScore, 0.001)
	assert.Equal(t, PatternNormal, pattern.Pattern)

	actions70 := make([]string, 10)
	for i := range actions70 {
		if i < 7 {
			actions70[i] = "unusual_access_times"
		} else {
			actions70[i] = "view_document"
		}
	}
	pattern, err = Classify("u1", actions70)
	require.NoError(t, err)
	assert.InDelta(t, 70, pattern.RiskScore, 0.001)
	assert.Equal(t, PatternSuspicious, pattern.Pattern)
}

func TestClassifySubstringMatch(t *testing.T) {
	// 动作标签带上下文前后缀时按子串匹配
	pattern, err := Classify("u1", []string{"api:rapid_file_uploads:batch-7"})
	require.NoError(t, err)
	assert.Equal(t, PatternAnomalous, pattern.Pattern)
	assert.InDelta(t, 100, pattern.RiskScore, 0.001)
}

func TestAnalyzerKeepsHistory(t *testing.T) {
	a := NewAnalyzer()

	_, err := a.Analyze("u1", []string{"login"})
	require.NoError(t, err)
	_, err = a.Analyze("u2", []string{"bulk_data_access"})
	require.NoError(t, err)
	_, err = a.Analyze("u1", []string{"logout"})
	require.NoError(t, err)

	assert.Len(t, a.History("u1"), 2)
	assert.Len(t, a.History("u2"), 1)
	assert.Len(t, a.History(""), 3)
	assert.Empty(t, a.History("ghost"))

	// 历史返回的是拷贝
	history := a.History("u1")
	history[0].Activities[0] = "tampered"
	assert.Equal(t, "login", a.History("u1")[0].Activities[0])
}

func TestAnalyzeEmptyDoesNotPolluteHistory(t *testing.T) {
	a := NewAnalyzer()
	_, err := a.Analyze("u1", nil)
	require.Error(t, err)
	assert.Empty(t, a.History(""))
}
