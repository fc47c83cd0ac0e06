package security

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/GachokiR/far-clarity-advisor-sub001/internal/metrics"
)

// Pattern 行为分类
type Pattern string

const (
	PatternNormal     Pattern = "normal"
	PatternSuspicious Pattern = "suspicious"
	PatternAnomalous  Pattern = "anomalous"
)

// BehavioralPattern 一次行为分析的结果，派生数据，不单独修改。
type BehavioralPattern struct {
	UserID     string    `json:"userId"`
	Pattern    Pattern   `json:"pattern"`
	RiskScore  float64   `json:"riskScore"` // 0-100
	Activities []string  `json:"activities"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrEmptyActivityList 空活动列表无法计算风险分（除零）。
var ErrEmptyActivityList = errors.New("activity list is empty")

// suspiciousActions 可疑动作子串目录。动作标签包含任一子串即计为可疑。
var suspiciousActions = []string{
	"rapid_file_uploads",
	"multiple_failed_logins",
	"unusual_access_times",
	"large_data_downloads",
	"admin_privilege_escalation",
	"bulk_data_access",
}

// 风险分分类阈值
const (
	anomalousThreshold  = 70.0 // riskScore > 70 → anomalous
	suspiciousThreshold = 30.0 // 30 < riskScore <= 70 → suspicious
)

// Analyzer 行为模式分析器。分析本身是输入的纯函数；Analyzer 只额外维护
// 一份分析历史，供仪表盘回溯。
type Analyzer struct {
	mu      sync.Mutex
	history []BehavioralPattern
}

// NewAnalyzer 创建分析器
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze 对用户最近的动作序列打分并分类。actions 为空时返回
// ErrEmptyActivityList，调用方必须处理而不是吞掉。
func (a *Analyzer) Analyze(userID string, actions []string) (BehavioralPattern, error) {
	pattern, err := Classify(userID, actions)
	if err != nil {
		return BehavioralPattern{}, err
	}

	a.mu.Lock()
	a.history = append(a.history, pattern)
	a.mu.Unlock()

	metrics.BehaviorAnalysesTotal.WithLabelValues(string(pattern.Pattern)).Inc()

	return pattern, nil
}

// History 返回指定用户的分析历史拷贝；userID 为空时返回全部。
func (a *Analyzer) History(userID string) []BehavioralPattern {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]BehavioralPattern, 0)
	for _, p := range a.history {
		if userID == "" || p.UserID == userID {
			cp := p
			cp.Activities = append([]string(nil), p.Activities...)
			out = append(out, cp)
		}
	}
	return out
}

// Classify 纯函数版本的行为打分，无任何隐藏状态，可安全并发调用。
// riskScore = min(100, 100 * 可疑动作数 / 总动作数)。
func Classify(userID string, actions []string) (BehavioralPattern, error) {
	if len(actions) == 0 {
		return BehavioralPattern{}, ErrEmptyActivityList
	}

	suspicious := 0
	for _, action := range actions {
		if isSuspiciousAction(action) {
			suspicious++
		}
	}

	score := 100 * float64(suspicious) / float64(len(actions))
	if score > 100 {
		score = 100
	}

	pattern := PatternNormal
	switch {
	case score > anomalousThreshold:
		pattern = PatternAnomalous
	case score > suspiciousThreshold:
		pattern = PatternSuspicious
	}

	return BehavioralPattern{
		UserID:     userID,
		Pattern:    pattern,
		RiskScore:  score,
		Activities: append([]string(nil), actions...),
		Timestamp:  time.Now(),
	}, nil
}

func isSuspiciousAction(action string) bool {
	for _, marker := range suspiciousActions {
		if strings.Contains(action, marker) {
			return true
		}
	}
	return false
}
