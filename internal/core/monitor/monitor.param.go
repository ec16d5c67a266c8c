package monitor

import (
	"github.com/ixugo/goddd/pkg/web"
)

// FindOutcomeInput 会话审计记录查询参数
type FindOutcomeInput struct {
	web.PagerFilter
	Status   string `form:"status"`
	SourceID string `form:"source_id"`
}

// StatusOutput 调度器状态快照
type StatusOutput struct {
	State           string    `json:"state"` // stopped / running / session_active
	ActiveSessionID string    `json:"active_session_id,omitempty"`
	ActiveFrames    int       `json:"active_frames"`
	TargetFrames    int       `json:"target_frames,omitempty"`
	DroppedTicks    int64     `json:"dropped_ticks"`
	SuccessRate     float64   `json:"success_rate"`
	Recent          []Outcome `json:"recent"` // 最近会话，新的在前
}

// TriggerOutput 手动触发返回
type TriggerOutput struct {
	SessionID string `json:"session_id"`
}

// StopInput 停止调度参数
type StopInput struct {
	Force bool `json:"force"` // true 时取消在途会话
}
