package archive

import (
	"github.com/ixugo/goddd/pkg/web"
)

// FindRecordInput 归档记录查询参数
type FindRecordInput struct {
	web.PagerFilter
	Status         string `form:"status"`
	RiskLevel      string `form:"risk_level"`
	SourceID       string `form:"source_id"`
	RetentionClass string `form:"retention_class"`
}

// ExportInput 导出参数
type ExportInput struct {
	FindRecordInput
	Redact bool `form:"redact"` // 导出目标不可信时脱敏帧内容
}

// PurgeOutput 手动清理返回
type PurgeOutput struct {
	Purged int `json:"purged"`
}

// StatsOutput 存储占用概览
type StatsOutput struct {
	UsageBytes int64 `json:"usage_bytes"`
	QuotaBytes int64 `json:"quota_bytes"`
	Records    int64 `json:"records"`
}
