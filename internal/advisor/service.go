package advisor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ai"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/cache"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ratelimit"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/security"
)

var (
	ErrEmptyDocument          = errors.New("文档内容不能为空")
	ErrAnalysisNotFound       = errors.New("分析记录不存在")
	ErrRecommendationNotFound = errors.New("整改建议不存在")
	ErrInvalidStatus          = errors.New("无效的建议状态")
)

// RateLimitedError 触发限流，携带窗口清零时刻供调用方返回 Retry-After
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("请求过于频繁，请在 %s 后重试", e.ResetAt.Format(time.RFC3339))
}

// AnalysisResult 一次分析的完整结果
type AnalysisResult struct {
	Analysis        AnalysisRecord   `json:"analysis"`
	Gaps            []ComplianceGap  `json:"gaps"`
	Recommendations []Recommendation `json:"recommendations"`
}

// aiAnalysisPayload 模型返回内容的预期结构
type aiAnalysisPayload struct {
	Gaps []struct {
		Regulation string `json:"regulation"`
		Severity   string `json:"severity"`
		Title      string `json:"title"`
		Detail     string `json:"detail"`
	} `json:"gaps"`
	Recommendations []struct {
		Priority int    `json:"priority"`
		Title    string `json:"title"`
		Action   string `json:"action"`
	} `json:"recommendations"`
	Summary  string `json:"summary"`
	Degraded bool   `json:"degraded"`
}

const analysisSystemPrompt = `你是合规审查助手。分析用户提供的采购合同或政策文档，找出与联邦采购法规的合规缺口。
只返回 JSON，结构为 {"gaps":[{"regulation","severity","title","detail"}],"recommendations":[{"priority","title","action"}],"summary"}。
severity 取 low/medium/high/critical，priority 取 1-5（1 最高）。`

// Service 合规顾问服务，串联限流、缓存、AI 分析和持久化
type Service struct {
	db       *gorm.DB
	aiClient ai.Client
	limiter  ratelimit.Limiter
	cache    *cache.TTLCache[*AnalysisResult]
	events   *security.EventLog
	logger   *zap.Logger
}

// NewService 创建服务。limiter/cache/events 均为必传，aiClient 通常为
// ResilientClient 包装后的实例。
func NewService(
	db *gorm.DB,
	aiClient ai.Client,
	limiter ratelimit.Limiter,
	resultCache *cache.TTLCache[*AnalysisResult],
	events *security.EventLog,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		aiClient: aiClient,
		limiter:  limiter,
		cache:    resultCache,
		events:   events,
		logger:   logger,
	}
}

// Migrate 建表
func (s *Service) Migrate() error {
	return s.db.AutoMigrate(
		&AnalysisRecord{},
		&ComplianceGap{},
		&Recommendation{},
		&UsageRecord{},
		&SecurityAlertRecord{},
	)
}

// AnalyzeDocument 分析文档并返回合规缺口和整改建议。
// 流程: 限流 -> 缓存命中 -> AI 调用 -> 结果解析 -> 落库 -> 写缓存。
func (s *Service) AnalyzeDocument(ctx context.Context, userID, documentName, content string) (*AnalysisResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDocument
	}

	// 限流检查。限流器自身故障时放行，避免基础设施抖动阻断业务。
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		s.logger.Warn("限流检查失败，本次放行", zap.Error(err))
	}
	if !allowed {
		resetAt, rerr := s.limiter.ResetTime(ctx, userID)
		if rerr != nil {
			resetAt = time.Now().Add(time.Minute)
		}
		s.events.LogRateLimitExceeded(userID, "advisor.analyze")
		return nil, &RateLimitedError{ResetAt: resetAt}
	}

	// 相同用户的相同文档内容直接复用缓存结果
	hash := contentHash(content)
	cacheKey := userID + ":" + hash
	if cached, ok := s.cache.Get(cacheKey); ok {
		result := *cached
		result.Analysis.FromCache = true
		return &result, nil
	}

	resp, err := s.aiClient.ChatCompletion(ctx, &ai.ChatRequest{
		Messages: []ai.Message{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: content},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("合规分析调用失败: %w", err)
	}

	payload := parseAnalysisPayload(resp.Content)
	result := s.buildResult(userID, documentName, hash, payload)

	if err := s.persistResult(ctx, result, resp); err != nil {
		// 落库失败不吞掉分析结果，记日志后照常返回
		s.logger.Error("分析结果落库失败", zap.Error(err), zap.String("userId", userID))
	}

	s.cache.Set(cacheKey, result)
	return result, nil
}

// parseAnalysisPayload 解析模型输出。模型偶尔在 JSON 外带说明文字或
// 返回非 JSON 内容，解析失败时降级为仅含摘要的结果而不是报错。
func parseAnalysisPayload(content string) *aiAnalysisPayload {
	var payload aiAnalysisPayload

	trimmed := strings.TrimSpace(content)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}

	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return &aiAnalysisPayload{
			Summary:  content,
			Degraded: true,
		}
	}
	return &payload
}

func (s *Service) buildResult(userID, documentName, hash string, payload *aiAnalysisPayload) *AnalysisResult {
	analysisID := uuid.New().String()

	result := &AnalysisResult{
		Analysis: AnalysisRecord{
			ID:           analysisID,
			UserID:       userID,
			DocumentName: documentName,
			ContentHash:  hash,
			Summary:      payload.Summary,
			Degraded:     payload.Degraded,
			GapCount:     len(payload.Gaps),
		},
	}

	for _, g := range payload.Gaps {
		severity := GapSeverity(g.Severity)
		switch severity {
		case GapSeverityLow, GapSeverityMedium, GapSeverityHigh, GapSeverityCritical:
		default:
			severity = GapSeverityMedium
		}
		result.Gaps = append(result.Gaps, ComplianceGap{
			ID:         uuid.New().String(),
			AnalysisID: analysisID,
			UserID:     userID,
			Regulation: g.Regulation,
			Severity:   severity,
			Title:      g.Title,
			Detail:     g.Detail,
		})
	}

	for _, r := range payload.Recommendations {
		priority := r.Priority
		if priority < 1 || priority > 5 {
			priority = 3
		}
		result.Recommendations = append(result.Recommendations, Recommendation{
			ID:         uuid.New().String(),
			AnalysisID: analysisID,
			UserID:     userID,
			Priority:   priority,
			Status:     RecommendationPending,
			Title:      r.Title,
			Action:     r.Action,
		})
	}

	return result
}

func (s *Service) persistResult(ctx context.Context, result *AnalysisResult, resp *ai.ChatResponse) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&result.Analysis).Error; err != nil {
			return err
		}
		if len(result.Gaps) > 0 {
			if err := tx.Create(&result.Gaps).Error; err != nil {
				return err
			}
		}
		if len(result.Recommendations) > 0 {
			if err := tx.Create(&result.Recommendations).Error; err != nil {
				return err
			}
		}
		usage := &UsageRecord{
			ID:               uuid.New().String(),
			UserID:           result.Analysis.UserID,
			AnalysisID:       result.Analysis.ID,
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		return tx.Create(usage).Error
	})
}

// GetAnalysis 获取分析记录及其缺口和建议
func (s *Service) GetAnalysis(ctx context.Context, analysisID string) (*AnalysisResult, error) {
	var record AnalysisRecord
	if err := s.db.WithContext(ctx).Where("id = ?", analysisID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, err
	}

	result := &AnalysisResult{Analysis: record}
	if err := s.db.WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("created_at").
		Find(&result.Gaps).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("priority").
		Find(&result.Recommendations).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// ListAnalyses 获取用户的分析历史
func (s *Service) ListAnalyses(ctx context.Context, userID string, page, pageSize int) ([]AnalysisRecord, int64, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}

	query := s.db.WithContext(ctx).Model(&AnalysisRecord{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []AnalysisRecord
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListRecommendations 按状态过滤用户的整改建议，状态为空时返回全部
func (s *Service) ListRecommendations(ctx context.Context, userID string, status RecommendationStatus) ([]Recommendation, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var recs []Recommendation
	if err := query.Order("priority, created_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// UpdateRecommendationStatus 更新建议状态
func (s *Service) UpdateRecommendationStatus(ctx context.Context, recommendationID string, status RecommendationStatus) (*Recommendation, error) {
	switch status {
	case RecommendationPending, RecommendationInProgress, RecommendationCompleted, RecommendationDismissed:
	default:
		return nil, ErrInvalidStatus
	}

	var rec Recommendation
	if err := s.db.WithContext(ctx).Where("id = ?", recommendationID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecommendationNotFound
		}
		return nil, err
	}

	rec.Status = status
	if err := s.db.WithContext(ctx).Model(&rec).Update("status", status).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetUsageSummary 统计用户的 token 用量
func (s *Service) GetUsageSummary(ctx context.Context, userID string) (totalTokens int64, callCount int64, err error) {
	row := s.db.WithContext(ctx).Model(&UsageRecord{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(total_tokens), 0), COUNT(*)").
		Row()
	if err := row.Scan(&totalTokens, &callCount); err != nil {
		return 0, 0, err
	}
	return totalTokens, callCount, nil
}

// ============================================================================
// 告警归档
// ============================================================================

// ArchiveAlert 将告警落库留痕。实现 security 包的归档接口，
// 由 AlertManager 在创建和状态变更时调用。
func (s *Service) ArchiveAlert(alert security.SecurityAlert) {
	metadata := ""
	if len(alert.Metadata) > 0 {
		if b, err := json.Marshal(alert.Metadata); err == nil {
			metadata = string(b)
		}
	}

	record := &SecurityAlertRecord{
		ID:          alert.ID,
		AlertType:   string(alert.Type),
		Severity:    string(alert.Severity),
		Status:      string(alert.Status),
		Description: alert.Description,
		UserID:      alert.UserID,
		Metadata:    metadata,
		TriggeredAt: alert.Timestamp,
	}

	// 同一告警状态变更时更新原记录
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		s.logger.Error("告警归档失败", zap.Error(err), zap.String("alertId", alert.ID))
	}
}

// ListArchivedAlerts 查询归档告警
func (s *Service) ListArchivedAlerts(ctx context.Context, status string, page, pageSize int) ([]SecurityAlertRecord, int64, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}

	query := s.db.WithContext(ctx).Model(&SecurityAlertRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []SecurityAlertRecord
	if err := query.
		Order("triggered_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// contentHash 文档内容指纹
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
