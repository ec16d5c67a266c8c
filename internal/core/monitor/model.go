package monitor

import "github.com/ixugo/goddd/pkg/orm"

// 会话状态
const (
	StatusIdle         = "idle"
	StatusCapturing    = "capturing"
	StatusSynthesizing = "synthesizing"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusCancelled    = "cancelled"
)

// 结果来源：AI 提供商 或 本地降级生成
const (
	SourceAIProvider = "ai_provider"
	SourceFallback   = "fallback"
)

// 风险级别
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// 时序趋势
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// Frame 从视频源抓取的一帧静态图
type Frame struct {
	SourceID   string   `json:"source_id"`
	Bytes      []byte   `json:"-"`
	MIME       string   `json:"mime"`
	CapturedAt orm.Time `json:"captured_at"`
}

// Scores 各维度评分，范围 0-10
type Scores struct {
	Mobility  float64 `json:"mobility"`  // 活动能力
	Alertness float64 `json:"alertness"` // 清醒程度
	Comfort   float64 `json:"comfort"`   // 舒适度
	Posture   float64 `json:"posture"`   // 体位安全
}

// Assessment 单帧的结构化评估结果
type Assessment struct {
	Detected     bool     `json:"detected"`     // 画面中是否检测到看护对象
	Confidence   float64  `json:"confidence"`   // 置信度 0.0 - 1.0
	Posture      string   `json:"posture"`      // 体位描述，如 lying / sitting / standing
	Activity     string   `json:"activity"`     // 行为描述，如 resting / moving / eating
	Observations []string `json:"observations"` // 分类观察条目
	Scores       Scores   `json:"scores"`
}

// FrameResult 一帧的分析结果
type FrameResult struct {
	FrameIndex  int        `json:"frame_index"` // 1 起始，<= 会话目标帧数
	CapturedAt  orm.Time   `json:"captured_at"`
	RawFrameRef string     `json:"raw_frame_ref,omitempty"` // 落盘后的相对路径，由存档层填充
	RawFrame    []byte     `json:"-"`                       // 仅会话期间驻留内存
	Analysis    Assessment `json:"analysis"`
	Source      string     `json:"analysis_source"` // ai_provider / fallback
	Err         string     `json:"error,omitempty"` // fallback 时记录 AI 调用失败原因
}

// Recommendations 分时效的建议列表
type Recommendations struct {
	Immediate []string `json:"immediate"`
	ShortTerm []string `json:"short_term"`
	LongTerm  []string `json:"long_term"`
}

// MetaReport 对完整帧序列的聚合分析报告，生成后不可变
type MetaReport struct {
	SourceSessionID string          `json:"source_session_id"`
	GeneratedAt     orm.Time        `json:"generated_at"`
	Source          string          `json:"synthesis_source"` // ai_provider / fallback
	AggregateScores Scores          `json:"aggregate_scores"`
	RiskLevel       string          `json:"risk_level"`     // low / medium / high / critical
	TemporalTrend   string          `json:"temporal_trend"` // improving / stable / declining
	Summary         string          `json:"summary"`
	KeyFindings     []string        `json:"key_findings"`
	Recommendations Recommendations `json:"recommendations"`
}

// CaptureSession 一次完整的采集会话：从首帧抓取到元报告归档
//
// 不变量：Completed 时 len(Frames) == Target 且 MetaReport 非空；
// Failed/Cancelled 时 MetaReport 为空。
type CaptureSession struct {
	ID         string        `json:"id"`
	SourceID   string        `json:"source_id"`
	Status     string        `json:"status"`
	Target     int           `json:"target_sequence_length"`
	StartedAt  orm.Time      `json:"started_at"`
	EndedAt    *orm.Time     `json:"ended_at,omitempty"`
	Frames     []FrameResult `json:"frames"`
	MetaReport *MetaReport   `json:"meta_report,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// FallbackFrames 统计降级帧数量
func (s *CaptureSession) FallbackFrames() int {
	var n int
	for _, f := range s.Frames {
		if f.Source == SourceFallback {
			n++
		}
	}
	return n
}

// SessionOutcome 会话结果审计记录
// 所有终态会话（含 Failed/Cancelled）都会落一条最小记录，
// 完整数据只有 Completed/Failed 会话才进入存档层
type SessionOutcome struct {
	ID         int64    `gorm:"primaryKey" json:"id"`
	SessionID  string   `gorm:"column:session_id;index" json:"session_id"`
	SourceID   string   `gorm:"column:source_id" json:"source_id"`
	Status     string   `gorm:"column:status" json:"status"`
	FrameCount int      `gorm:"column:frame_count" json:"frame_count"`
	Fallbacks  int      `gorm:"column:fallbacks" json:"fallbacks"` // 降级帧数量
	RiskLevel  string   `gorm:"column:risk_level" json:"risk_level"`
	Err        string   `gorm:"column:err" json:"err,omitempty"`
	StartedAt  orm.Time `gorm:"column:started_at" json:"started_at"`
	EndedAt    orm.Time `gorm:"column:ended_at" json:"ended_at"`
	CreatedAt  orm.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName implements gorm.Tabler.
func (*SessionOutcome) TableName() string {
	return "session_outcomes"
}
