package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/advisor"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ai"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/auth"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/cache"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/config"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ratelimit"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/security"
)

type routerFixture struct {
	router    *gin.Engine
	jwt       *auth.JWTService
	authority *auth.Authority
	alerts    *security.AlertManager
}

func setupTestRouter(t *testing.T) *routerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Mode = gin.TestMode

	events := security.NewEventLog(100, nil)
	alerts := security.NewAlertManager(security.NewAlertStore(), events)
	analyzer := security.NewAnalyzer()
	behaviorAlerts := security.NewBehaviorAlertManager(alerts, events)

	authority := auth.NewAuthority()
	jwtService := auth.NewJWTService("test-secret", "advisor-test", time.Hour)

	limiter := ratelimit.NewWindowLimiter(time.Minute, 1000)
	resultCache := cache.New[*advisor.AnalysisResult](time.Minute, time.Minute)
	t.Cleanup(resultCache.Stop)

	aiClient := ai.NewResilientClient(ai.UnavailableClient{}, nil,
		ai.WithBackoffBase(time.Millisecond))
	advisorService := advisor.NewService(db, aiClient, limiter, resultCache, events, nil)
	require.NoError(t, advisorService.Migrate())
	alerts.SetArchiver(advisorService)

	router := SetupRouter(&Container{
		Config:         cfg,
		DB:             db,
		JWTService:     jwtService,
		Authority:      authority,
		Events:         events,
		Alerts:         alerts,
		Analyzer:       analyzer,
		BehaviorAlerts: behaviorAlerts,
		AdvisorService: advisorService,
		APILimiter:     limiter,
	})

	return &routerFixture{router: router, jwt: jwtService, authority: authority, alerts: alerts}
}

func (f *routerFixture) tokenFor(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	_, err := f.authority.AssignRole(userID, role, "test")
	require.NoError(t, err)
	token, err := f.jwt.GenerateToken(userID, role)
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	f := setupTestRouter(t)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := setupTestRouter(t)

	w := f.do(t, http.MethodGet, "/api/security/alerts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/security/alerts", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuardDeniesWithGenericMessage(t *testing.T) {
	f := setupTestRouter(t)
	// user 角色没有 admin:security 权限
	token := f.tokenFor(t, "plain-user", auth.RoleUser)

	w := f.do(t, http.MethodPost, "/api/security/alerts", token, map[string]any{
		"type": "threat_detected", "severity": "high", "description": "d",
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	// 拒绝原因不外泄，只返回通用提示
	assert.Equal(t, "access denied", body["error"])
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	f := setupTestRouter(t)
	admin := f.tokenFor(t, "admin-1", auth.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/security/alerts", admin, map[string]any{
		"type":        "threat_detected",
		"severity":    "high",
		"description": "异常登录",
		"userId":      "u1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Alert security.SecurityAlert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Alert.ID)

	// 非法告警类型
	w = f.do(t, http.MethodPost, "/api/security/alerts", admin, map[string]any{
		"type": "bogus", "severity": "high", "description": "d",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 列表可按状态过滤
	w = f.do(t, http.MethodGet, "/api/security/alerts?status=open", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.Alert.ID)

	// open -> resolved
	w = f.do(t, http.MethodPatch, "/api/security/alerts/"+created.Alert.ID+"/status", admin, map[string]any{
		"status": "resolved",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// 终态迁出被拒
	w = f.do(t, http.MethodPatch, "/api/security/alerts/"+created.Alert.ID+"/status", admin, map[string]any{
		"status": "investigating",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// 归档记录落库
	w = f.do(t, http.MethodGet, "/api/advisor/alerts/archive?status=resolved", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.Alert.ID)
}

func TestBehaviorAnalyzeOverHTTP(t *testing.T) {
	f := setupTestRouter(t)
	analyst := f.tokenFor(t, "analyst-1", auth.RoleAnalyst)

	w := f.do(t, http.MethodPost, "/api/security/behavior/analyze", analyst, map[string]any{
		"activities": []string{"bulk_data_access", "admin_privilege_escalation", "unusual_access_times", "login"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Pattern security.BehavioralPattern `json:"pattern"`
		Alert   *security.SecurityAlert    `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, security.PatternAnomalous, body.Pattern.Pattern)
	assert.Equal(t, "analyst-1", body.Pattern.UserID)
	require.NotNil(t, body.Alert)
	assert.Equal(t, security.AlertBehavioralAnomaly, body.Alert.Type)

	// 空活动列表报错
	w = f.do(t, http.MethodPost, "/api/security/behavior/analyze", analyst, map[string]any{
		"activities": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdvisorAnalyzeDegradedOverHTTP(t *testing.T) {
	f := setupTestRouter(t)
	analyst := f.tokenFor(t, "analyst-2", auth.RoleAnalyst)

	w := f.do(t, http.MethodPost, "/api/advisor/analyses", analyst, map[string]any{
		"documentName": "contract.txt",
		"content":      "合同正文",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Result advisor.AnalysisResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	// 未配置模型凭证时走降级链路
	assert.True(t, body.Result.Analysis.Degraded)
}

func TestRBACAdminEndpoints(t *testing.T) {
	f := setupTestRouter(t)
	admin := f.tokenFor(t, "admin-1", auth.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/admin/roles", admin, map[string]any{
		"userId": "new-user", "role": "analyst",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/admin/roles/new-user", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run:analysis")

	// 未知角色
	w = f.do(t, http.MethodPost, "/api/admin/roles", admin, map[string]any{
		"userId": "x", "role": "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 追加/移除单项权限
	w = f.do(t, http.MethodPost, "/api/admin/roles/new-user/permissions", admin, map[string]any{
		"permission": "export:reports",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "export:reports")

	w = f.do(t, http.MethodDelete, "/api/admin/roles/new-user/permissions", admin, map[string]any{
		"permission": "export:reports",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "export:reports")

	// 撤销角色
	w = f.do(t, http.MethodDelete, "/api/admin/roles/new-user", admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, "/api/admin/roles/new-user", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalystCannotManageRoles(t *testing.T) {
	f := setupTestRouter(t)
	analyst := f.tokenFor(t, "analyst-1", auth.RoleAnalyst)

	w := f.do(t, http.MethodPost, "/api/admin/roles", analyst, map[string]any{
		"userId": "x", "role": "user",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
