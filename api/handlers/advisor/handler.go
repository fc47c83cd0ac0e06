package advisor

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GachokiR/far-clarity-advisor-sub001/api/handlers/common"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/advisor"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/auth"
)

// Handler 合规顾问 API 处理器
type Handler struct {
	service *advisor.Service
}

// NewHandler 创建处理器
func NewHandler(service *advisor.Service) *Handler {
	return &Handler{service: service}
}

// AnalyzeRequest 文档分析请求
type AnalyzeRequest struct {
	DocumentName string `json:"documentName"`
	Content      string `json:"content" binding:"required"`
}

// Analyze 对文档做合规分析
// @Summary 文档合规分析
// @Tags Advisor
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 429 {object} map[string]string
// @Router /api/advisor/analyses [post]
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	result, err := h.service.AnalyzeDocument(c.Request.Context(), userCtx.UserID, req.DocumentName, req.Content)
	if err != nil {
		var limited *advisor.RateLimitedError
		switch {
		case errors.As(err, &limited):
			retryAfter := int(time.Until(limited.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后重试"})
		case errors.Is(err, advisor.ErrEmptyDocument):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "分析失败"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// GetAnalysis 获取分析详情
// @Summary 获取分析详情
// @Tags Advisor
// @Produce json
// @Param id path string true "分析 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/advisor/analyses/{id} [get]
func (h *Handler) GetAnalysis(c *gin.Context) {
	result, err := h.service.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, advisor.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ListAnalyses 获取当前用户的分析历史
// @Summary 分析历史
// @Tags Advisor
// @Produce json
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Success 200 {object} common.ListResponse
// @Router /api/advisor/analyses [get]
func (h *Handler) ListAnalyses(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	records, total, err := h.service.ListAnalyses(c.Request.Context(), userCtx.UserID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, common.ListResponse{
		Items:      records,
		Pagination: common.NewPagination(page, pageSize, total),
	})
}

// ListRecommendations 获取整改建议
// @Summary 获取整改建议
// @Tags Advisor
// @Produce json
// @Param status query string false "状态过滤"
// @Success 200 {object} map[string]any
// @Router /api/advisor/recommendations [get]
func (h *Handler) ListRecommendations(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	recs, err := h.service.ListRecommendations(c.Request.Context(), userCtx.UserID, advisor.RecommendationStatus(c.Query("status")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recommendations": recs, "total": len(recs)})
}

// UpdateRecommendationRequest 建议状态变更请求
type UpdateRecommendationRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateRecommendation 更新建议状态
// @Summary 更新整改建议状态
// @Tags Advisor
// @Accept json
// @Produce json
// @Param id path string true "建议 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/advisor/recommendations/{id} [patch]
func (h *Handler) UpdateRecommendation(c *gin.Context) {
	var req UpdateRecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.service.UpdateRecommendationStatus(c.Request.Context(), c.Param("id"), advisor.RecommendationStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, advisor.ErrRecommendationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, advisor.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"recommendation": rec})
}

// ListArchivedAlerts 查询归档到数据库的历史告警
// @Summary 历史告警查询
// @Tags Advisor
// @Produce json
// @Param status query string false "状态过滤"
// @Success 200 {object} common.ListResponse
// @Router /api/advisor/alerts/archive [get]
func (h *Handler) ListArchivedAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	records, total, err := h.service.ListArchivedAlerts(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, common.ListResponse{
		Items:      records,
		Pagination: common.NewPagination(page, pageSize, total),
	})
}

// GetUsage 获取当前用户的用量统计
// @Summary 用量统计
// @Tags Advisor
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/advisor/usage [get]
func (h *Handler) GetUsage(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	totalTokens, callCount, err := h.service.GetUsageSummary(c.Request.Context(), userCtx.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalTokens": totalTokens,
		"callCount":   callCount,
	})
}
