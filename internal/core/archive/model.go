package archive

import "github.com/ixugo/goddd/pkg/orm"

// 保留级别
const (
	RetentionNormal   = "normal"   // 按常规天数保留
	RetentionCritical = "critical" // 高风险会话延长保留
)

// Record 一次会话的归档记录
// Payload 是完整会话 JSON（不含帧原始字节），
// 帧图片落盘在 FrameDir 下，SizeBytes 统计两者之和
type Record struct {
	ID             int64    `gorm:"primaryKey" json:"id"`
	SessionID      string   `gorm:"column:session_id;uniqueIndex" json:"session_id"`
	SourceID       string   `gorm:"column:source_id" json:"source_id"`
	Status         string   `gorm:"column:status" json:"status"`
	RiskLevel      string   `gorm:"column:risk_level" json:"risk_level"`
	RetentionClass string   `gorm:"column:retention_class;index" json:"retention_class"`
	Payload        []byte   `gorm:"column:payload" json:"-"`
	FrameDir       string   `gorm:"column:frame_dir" json:"frame_dir"`
	FrameCount     int      `gorm:"column:frame_count" json:"frame_count"`
	SizeBytes      int64    `gorm:"column:size_bytes" json:"size_bytes"`
	CreatedAt      orm.Time `gorm:"column:created_at;index" json:"created_at"`
	ExpiresAt      orm.Time `gorm:"column:expires_at;index" json:"expires_at"`
}

// TableName implements gorm.Tabler.
func (*Record) TableName() string {
	return "archive_records"
}
