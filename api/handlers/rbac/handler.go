package rbac

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/auth"
)

// Handler 角色与权限管理 API 处理器（仅管理员可达，由路由守卫保证）
type Handler struct {
	authority *auth.Authority
}

// NewHandler 创建处理器
func NewHandler(authority *auth.Authority) *Handler {
	return &Handler{authority: authority}
}

// AssignRoleRequest 角色指派请求
type AssignRoleRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// AssignRole 给用户指派角色，重复指派覆盖原角色
// @Summary 指派角色
// @Tags RBAC
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/admin/roles [post]
func (h *Handler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignedBy := ""
	if userCtx, ok := auth.GetUserContext(c); ok {
		assignedBy = userCtx.UserID
	}

	assignment, err := h.authority.AssignRole(req.UserID, auth.Role(req.Role), assignedBy)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownRole) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":      assignment.UserID,
		"role":        assignment.Role,
		"permissions": assignment.PermissionList(),
	})
}

// RevokeRole 撤销用户的角色指派
// @Summary 撤销角色
// @Tags RBAC
// @Produce json
// @Param userId path string true "用户 ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/admin/roles/{userId} [delete]
func (h *Handler) RevokeRole(c *gin.Context) {
	if !h.authority.RevokeRole(c.Param("userId")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "用户未指派角色"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetAssignment 查询用户的角色与权限
// @Summary 查询角色指派
// @Tags RBAC
// @Produce json
// @Param userId path string true "用户 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/admin/roles/{userId} [get]
func (h *Handler) GetAssignment(c *gin.Context) {
	assignment, ok := h.authority.GetAssignment(c.Param("userId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "用户未指派角色"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":      assignment.UserID,
		"role":        assignment.Role,
		"permissions": assignment.PermissionList(),
		"assignedAt":  assignment.AssignedAt,
		"assignedBy":  assignment.AssignedBy,
	})
}

// PermissionRequest 单项权限调整请求
type PermissionRequest struct {
	Permission string `json:"permission" binding:"required"`
}

// AddPermission 给已指派角色的用户追加单项权限
// @Summary 追加权限
// @Tags RBAC
// @Accept json
// @Produce json
// @Param userId path string true "用户 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/admin/roles/{userId}/permissions [post]
func (h *Handler) AddPermission(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.Param("userId")
	if !h.authority.AddPermission(userID, auth.Permission(req.Permission)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "用户未指派角色"})
		return
	}

	assignment, _ := h.authority.GetAssignment(userID)
	c.JSON(http.StatusOK, gin.H{
		"userId":      userID,
		"permissions": assignment.PermissionList(),
	})
}

// RemovePermission 移除用户的单项权限
// @Summary 移除权限
// @Tags RBAC
// @Accept json
// @Produce json
// @Param userId path string true "用户 ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /api/admin/roles/{userId}/permissions [delete]
func (h *Handler) RemovePermission(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.Param("userId")
	if !h.authority.RemovePermission(userID, auth.Permission(req.Permission)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "用户未指派角色"})
		return
	}

	assignment, _ := h.authority.GetAssignment(userID)
	c.JSON(http.StatusOK, gin.H{
		"userId":      userID,
		"permissions": assignment.PermissionList(),
	})
}
