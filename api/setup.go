package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	advisorHandlers "github.com/GachokiR/far-clarity-advisor-sub001/api/handlers/advisor"
	rbacHandlers "github.com/GachokiR/far-clarity-advisor-sub001/api/handlers/rbac"
	securityHandlers "github.com/GachokiR/far-clarity-advisor-sub001/api/handlers/security"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/advisor"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/auth"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/config"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/logger"
	middlewarepkg "github.com/GachokiR/far-clarity-advisor-sub001/internal/middleware"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ratelimit"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/security"
)

// Container 应用容器，集中持有路由需要的全部已构建依赖。
// 所有组件在 cmd/server 显式构造后注入，路由层不做任何构造。
type Container struct {
	Config     *config.Config
	DB         *gorm.DB
	JWTService *auth.JWTService
	Authority  *auth.Authority

	Events         *security.EventLog
	Alerts         *security.AlertManager
	Analyzer       *security.Analyzer
	BehaviorAlerts *security.BehaviorAlertManager
	AdvisorService *advisor.Service
	APILimiter     ratelimit.Limiter
}

// SetupRouter 装配全部路由和中间件
func SetupRouter(c *Container) *gin.Engine {
	gin.SetMode(c.Config.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())

	// 健康检查与指标
	router.GET("/health", HealthCheck(c.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	securityHandler := securityHandlers.NewHandler(c.Alerts, c.Events, c.Analyzer, c.BehaviorAlerts)
	advisorHandler := advisorHandlers.NewHandler(c.AdvisorService)
	rbacHandler := rbacHandlers.NewHandler(c.Authority)

	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(c.JWTService))
	api.Use(middlewarepkg.RateLimitMiddleware(c.APILimiter, c.Events))

	// 安全遥测。看板读取要求 view:dashboard，管理操作要求 admin:security。
	sec := api.Group("/security")
	{
		view := auth.GuardMiddleware(auth.RequirePermission(c.Authority, auth.PermViewDashboard))
		admin := auth.GuardMiddleware(auth.RequirePermission(c.Authority, auth.PermAdminSecurity))

		sec.GET("/alerts", view, securityHandler.ListAlerts)
		sec.GET("/alerts/:id", view, securityHandler.GetAlert)
		sec.POST("/alerts", admin, securityHandler.CreateAlert)
		sec.PATCH("/alerts/:id/status", admin, securityHandler.UpdateAlertStatus)

		sec.GET("/events", view, securityHandler.ListEvents)
		sec.DELETE("/events", admin, securityHandler.ClearEvents)

		sec.POST("/behavior/analyze", view, securityHandler.AnalyzeBehavior)
		sec.GET("/behavior/:userId/history", admin, securityHandler.GetBehaviorHistory)
	}

	// 合规顾问
	adv := api.Group("/advisor")
	{
		analyze := auth.GuardMiddleware(auth.RequirePermission(c.Authority, auth.PermRunAnalysis))
		reports := auth.GuardMiddleware(auth.RequirePermission(c.Authority, auth.PermViewReports))
		admin := auth.GuardMiddleware(auth.RequirePermission(c.Authority, auth.PermAdminSecurity))

		adv.POST("/analyses", analyze, advisorHandler.Analyze)
		adv.GET("/analyses", reports, advisorHandler.ListAnalyses)
		adv.GET("/analyses/:id", reports, advisorHandler.GetAnalysis)
		adv.GET("/recommendations", reports, advisorHandler.ListRecommendations)
		adv.PATCH("/recommendations/:id", analyze, advisorHandler.UpdateRecommendation)
		adv.GET("/alerts/archive", admin, advisorHandler.ListArchivedAlerts)
		adv.GET("/usage", reports, advisorHandler.GetUsage)
	}

	// 角色与权限管理
	adminGroup := api.Group("/admin")
	adminGroup.Use(auth.GuardMiddleware(auth.RequirePermission(c.Authority, auth.PermManageUsers)))
	{
		adminGroup.POST("/roles", rbacHandler.AssignRole)
		adminGroup.GET("/roles/:userId", rbacHandler.GetAssignment)
		adminGroup.DELETE("/roles/:userId", rbacHandler.RevokeRole)
		adminGroup.POST("/roles/:userId/permissions", rbacHandler.AddPermission)
		adminGroup.DELETE("/roles/:userId/permissions", rbacHandler.RemovePermission)
	}

	return router
}

// RequestLogger 请求日志中间件
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.WithContext(c.Request.Context()).Info("http 请求",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIp", c.ClientIP()),
		)
	}
}

// HealthCheck 健康检查，探测数据库连通性
func HealthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK

		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status": status,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
