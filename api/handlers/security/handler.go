package security

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/auth"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/security"
)

// Handler 安全遥测 API 处理器
type Handler struct {
	alerts   *security.AlertManager
	events   *security.EventLog
	analyzer *security.Analyzer
	behavior *security.BehaviorAlertManager
}

// NewHandler 创建处理器
func NewHandler(
	alerts *security.AlertManager,
	events *security.EventLog,
	analyzer *security.Analyzer,
	behavior *security.BehaviorAlertManager,
) *Handler {
	return &Handler{
		alerts:   alerts,
		events:   events,
		analyzer: analyzer,
		behavior: behavior,
	}
}

// ========== 告警 ==========

// ListAlerts 获取告警列表，支持按状态/类型/严重级别/用户/时间范围过滤
// @Summary 获取安全告警列表
// @Tags Security
// @Produce json
// @Param status query string false "状态过滤"
// @Param type query string false "类型过滤"
// @Param severity query string false "严重级别过滤"
// @Param userId query string false "用户过滤"
// @Success 200 {object} map[string]any
// @Router /api/security/alerts [get]
func (h *Handler) ListAlerts(c *gin.Context) {
	alerts := h.alerts.Store().Snapshot()

	if status := c.Query("status"); status != "" {
		alerts = security.FilterByStatus(alerts, security.AlertStatus(status))
	}
	if alertType := c.Query("type"); alertType != "" {
		alerts = security.FilterByType(alerts, security.AlertType(alertType))
	}
	if severity := c.Query("severity"); severity != "" {
		alerts = security.FilterBySeverity(alerts, security.Severity(severity))
	}
	if userID := c.Query("userId"); userID != "" {
		alerts = security.FilterByUser(alerts, userID)
	}
	if fromStr, toStr := c.Query("from"), c.Query("to"); fromStr != "" && toStr != "" {
		from, err1 := time.Parse(time.RFC3339, fromStr)
		to, err2 := time.Parse(time.RFC3339, toStr)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "时间范围格式错误，需要 RFC3339"})
			return
		}
		alerts = security.FilterByTimeRange(alerts, from, to)
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// GetAlert 获取单条告警
// @Summary 获取告警详情
// @Tags Security
// @Produce json
// @Param id path string true "告警 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/security/alerts/{id} [get]
func (h *Handler) GetAlert(c *gin.Context) {
	alert, ok := h.alerts.Store().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "告警不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

// CreateAlertRequest 手工创建告警请求
type CreateAlertRequest struct {
	Type        string         `json:"type" binding:"required"`
	Severity    string         `json:"severity" binding:"required"`
	Description string         `json:"description" binding:"required"`
	UserID      string         `json:"userId"`
	Metadata    map[string]any `json:"metadata"`
}

// CreateAlert 手工创建告警（管理操作）
// @Summary 创建安全告警
// @Tags Security
// @Accept json
// @Produce json
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/security/alerts [post]
func (h *Handler) CreateAlert(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.alerts.CreateAlert(
		security.AlertType(req.Type),
		security.Severity(req.Severity),
		req.Description,
		req.UserID,
		req.Metadata,
	)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"alert": alert})
}

// UpdateAlertStatusRequest 告警状态变更请求
type UpdateAlertStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateAlertStatus 按状态机迁移告警状态
// @Summary 更新告警状态
// @Tags Security
// @Accept json
// @Produce json
// @Param id path string true "告警 ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /api/security/alerts/{id}/status [patch]
func (h *Handler) UpdateAlertStatus(c *gin.Context) {
	var req UpdateAlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if !h.alerts.UpdateStatus(id, security.AlertStatus(req.Status)) {
		// 不存在或迁移非法统一返回冲突，不向调用方区分
		c.JSON(http.StatusConflict, gin.H{"error": "状态变更被拒绝"})
		return
	}

	alert, _ := h.alerts.Store().Get(id)
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

// ========== 事件 ==========

// ListEvents 获取安全事件，支持按类型或严重级别过滤
// @Summary 获取安全事件列表
// @Tags Security
// @Produce json
// @Param type query string false "事件类型过滤"
// @Param severity query string false "严重级别过滤"
// @Success 200 {object} map[string]any
// @Router /api/security/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	var events []security.SecurityEvent
	switch {
	case c.Query("type") != "":
		events = h.events.GetEventsByType(security.EventType(c.Query("type")))
	case c.Query("severity") != "":
		events = h.events.GetEventsBySeverity(security.Severity(c.Query("severity")))
	default:
		events = h.events.GetEvents()
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  len(events),
	})
}

// ClearEvents 清空事件日志（管理操作）
// @Summary 清空安全事件
// @Tags Security
// @Success 204
// @Router /api/security/events [delete]
func (h *Handler) ClearEvents(c *gin.Context) {
	h.events.ClearEvents()
	c.Status(http.StatusNoContent)
}

// ========== 行为分析 ==========

// AnalyzeBehaviorRequest 行为分析请求
type AnalyzeBehaviorRequest struct {
	UserID     string   `json:"userId"`
	Activities []string `json:"activities" binding:"required"`
}

// AnalyzeBehavior 对活动序列做行为画像，命中阈值时自动产生告警
// @Summary 用户行为分析
// @Tags Security
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/security/behavior/analyze [post]
func (h *Handler) AnalyzeBehavior(c *gin.Context) {
	var req AnalyzeBehaviorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 默认分析调用者自己的行为；指定他人需要管理权限，由路由守卫保证
	userID := req.UserID
	if userID == "" {
		if userCtx, ok := auth.GetUserContext(c); ok {
			userID = userCtx.UserID
		}
	}

	pattern, err := h.analyzer.Analyze(userID, req.Activities)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, created, err := h.behavior.HandlePattern(pattern)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"pattern": pattern}
	if created {
		resp["alert"] = alert
	}
	c.JSON(http.StatusOK, resp)
}

// GetBehaviorHistory 获取用户的行为画像历史
// @Summary 行为画像历史
// @Tags Security
// @Produce json
// @Param userId path string true "用户 ID"
// @Success 200 {object} map[string]any
// @Router /api/security/behavior/{userId}/history [get]
func (h *Handler) GetBehaviorHistory(c *gin.Context) {
	userID := c.Param("userId")
	history := h.analyzer.History(userID)
	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"history": history,
	})
}
