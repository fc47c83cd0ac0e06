package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 访问控制指标
var (
	// PermissionChecksTotal 权限检查总数
	PermissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_permission_checks_total",
			Help: "权限检查总数",
		},
		[]string{"result"}, // allowed / denied
	)

	// RoleAssignmentsTotal 角色分配总数
	RoleAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_role_assignments_total",
			Help: "角色分配总数",
		},
		[]string{"role"},
	)
)

// 安全遥测指标
var (
	// SecurityEventsTotal 安全事件总数
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_security_events_total",
			Help: "安全事件总数",
		},
		[]string{"type", "severity"},
	)

	// SecurityAlertsTotal 安全告警创建总数
	SecurityAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_security_alerts_total",
			Help: "安全告警创建总数",
		},
		[]string{"type", "severity"},
	)

	// BehaviorAnalysesTotal 行为分析总数
	BehaviorAnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_behavior_analyses_total",
			Help: "行为分析总数",
		},
		[]string{"pattern"}, // normal / suspicious / anomalous
	)
)

// 资源防护指标
var (
	// CacheOpsTotal 缓存操作总数
	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_cache_ops_total",
			Help: "TTL 缓存操作总数",
		},
		[]string{"result"}, // hit / miss
	)

	// RateLimitRejectionsTotal 限流拒绝总数
	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "advisor_rate_limit_rejections_total",
			Help: "限流拒绝总数",
		},
	)
)

// 外部调用指标
var (
	// AIRequestsTotal AI 调用总数
	AIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisor_ai_requests_total",
			Help: "AI 推理调用总数",
		},
		[]string{"status"}, // success / fallback
	)

	// AIRequestDuration AI 调用耗时（秒）
	AIRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "advisor_ai_request_duration_seconds",
			Help:    "AI 推理调用耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)
