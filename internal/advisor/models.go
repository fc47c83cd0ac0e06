package advisor

import (
	"time"
)

// ============================================================================
// 合规分析
// ============================================================================

// GapSeverity 合规缺口严重级别
type GapSeverity string

const (
	GapSeverityLow      GapSeverity = "low"
	GapSeverityMedium   GapSeverity = "medium"
	GapSeverityHigh     GapSeverity = "high"
	GapSeverityCritical GapSeverity = "critical"
)

// ComplianceGap 合规缺口记录，来自 AI 对文档的分析结果
type ComplianceGap struct {
	ID         string      `json:"id" gorm:"primaryKey;type:uuid"`
	AnalysisID string      `json:"analysisId" gorm:"type:uuid;not null;index"`
	UserID     string      `json:"userId" gorm:"size:64;not null;index"`
	Regulation string      `json:"regulation" gorm:"size:100"` // 涉及的法规条款
	Severity   GapSeverity `json:"severity" gorm:"size:20;not null;default:medium"`
	Title      string      `json:"title" gorm:"size:200;not null"`
	Detail     string      `json:"detail" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (ComplianceGap) TableName() string {
	return "compliance_gaps"
}

// RecommendationStatus 整改建议状态
type RecommendationStatus string

const (
	RecommendationPending    RecommendationStatus = "pending"
	RecommendationInProgress RecommendationStatus = "in_progress"
	RecommendationCompleted  RecommendationStatus = "completed"
	RecommendationDismissed  RecommendationStatus = "dismissed"
)

// Recommendation 整改建议
type Recommendation struct {
	ID         string               `json:"id" gorm:"primaryKey;type:uuid"`
	AnalysisID string               `json:"analysisId" gorm:"type:uuid;not null;index"`
	UserID     string               `json:"userId" gorm:"size:64;not null;index"`
	GapID      string               `json:"gapId" gorm:"type:uuid;index"` // 关联的缺口，可为空
	Priority   int                  `json:"priority" gorm:"default:3"`    // 1 最高
	Status     RecommendationStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	Title      string               `json:"title" gorm:"size:200;not null"`
	Action     string               `json:"action" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}

// AnalysisRecord 一次文档分析的汇总记录
type AnalysisRecord struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       string `json:"userId" gorm:"size:64;not null;index"`
	DocumentName string `json:"documentName" gorm:"size:255"`
	ContentHash  string `json:"contentHash" gorm:"size:64;not null;index"` // sha256，用于缓存命中
	Summary      string `json:"summary" gorm:"type:text"`
	Degraded     bool   `json:"degraded"` // AI 降级时为 true，结果需人工复核
	GapCount     int    `json:"gapCount"`
	FromCache    bool   `json:"fromCache" gorm:"-"` // 仅响应用，不落库

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// ============================================================================
// 用量统计
// ============================================================================

// UsageRecord AI 调用用量记录，按次落库用于成本核算
type UsageRecord struct {
	ID               string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID           string `json:"userId" gorm:"size:64;not null;index"`
	AnalysisID       string `json:"analysisId" gorm:"type:uuid;index"`
	Model            string `json:"model" gorm:"size:64"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	TotalTokens      int    `json:"totalTokens"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// ============================================================================
// 安全告警归档
// ============================================================================

// SecurityAlertRecord 安全告警的持久化副本。内存中的告警存储提供
// 实时查询，这里保留审计留痕用的落库记录。
type SecurityAlertRecord struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"` // 复用告警 ID
	AlertType   string    `json:"alertType" gorm:"size:40;not null;index"`
	Severity    string    `json:"severity" gorm:"size:20;not null;index"`
	Status      string    `json:"status" gorm:"size:20;not null;index"`
	Description string    `json:"description" gorm:"type:text"`
	UserID      string    `json:"userId" gorm:"size:64;index"`
	Metadata    string    `json:"metadata" gorm:"type:text"` // JSON 序列化
	TriggeredAt time.Time `json:"triggeredAt"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (SecurityAlertRecord) TableName() string {
	return "security_alert_records"
}
