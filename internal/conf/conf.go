package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration 支持 toml 字符串形式的时长，如 "30s"、"5m"
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration 转换为标准库时长
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Bootstrap 全局配置
type Bootstrap struct {
	BuildVersion string  `toml:"-"` // 编译时注入
	Debug        bool    `toml:"debug"`
	Server       Server  `toml:"server"`
	Data         Data    `toml:"data"`
	Monitor      Monitor `toml:"monitor"`
	Vision       Vision  `toml:"vision"`
	Media        Media   `toml:"media"`
	Onvif        Onvif   `toml:"onvif"`
	Archive      Archive `toml:"archive"`
}

type Server struct {
	HTTP HTTP `toml:"http"`
}

type HTTP struct {
	Port  int   `toml:"port"`
	PProf PProf `toml:"pprof"`
}

type PProf struct {
	Enabled   bool     `toml:"enabled"`
	AccessIps []string `toml:"access_ips"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	// Dsn 以 postgres/mysql 开头时使用对应驱动，否则按 sqlite 文件路径处理
	Dsn             string   `toml:"dsn"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
}

// Monitor 采集调度配置
type Monitor struct {
	AutoStart       bool    `toml:"auto_start"`        // 启动进程时自动开启采集循环
	SourceID        string  `toml:"source_id"`         // 采集的视频源
	SourceType      string  `toml:"source_type"`       // media / onvif
	DayIntervalMs   int     `toml:"day_interval_ms"`   // 白天采集间隔
	NightIntervalMs int     `toml:"night_interval_ms"` // 夜间采集间隔
	DayStart        string  `toml:"day_start"`         // 白天窗口起点 HH:MM
	NightStart      string  `toml:"night_start"`       // 夜间窗口起点 HH:MM
	SequenceLength  int     `toml:"sequence_length"`   // 每个会话的帧数
	FrameTimeoutMs  int     `toml:"frame_timeout_ms"`  // 单帧抓取超时
	HistorySize     int     `toml:"history_size"`      // 状态接口保留的最近会话数
	Subject         Subject `toml:"subject"`
}

// Subject 被看护对象信息，用于构建分析提示词
type Subject struct {
	Name       string   `toml:"name"`
	Conditions []string `toml:"conditions"` // 已知状况
	Priority   string   `toml:"priority"`   // low / normal / high
}

// Media lalmax 流媒体服务器，source_type=media 时使用
type Media struct {
	URL     string `toml:"url"`
	Secret  string `toml:"secret"`
	PullURL string `toml:"pull_url"` // 可选，启动时把该地址回源拉流进媒体服务器
}

// Onvif 相机直连配置，source_type=onvif 时使用
type Onvif struct {
	Addr     string `toml:"addr"` // host:port
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Vision AI 提供商配置
type Vision struct {
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// Archive 存档配额与保留策略
type Archive struct {
	Dir                string `toml:"dir"`                  // 帧文件存放目录
	QuotaBytes         int64  `toml:"quota_bytes"`          // 存储配额
	RetainDaysNormal   int    `toml:"retain_days_normal"`   // 普通会话保留天数
	RetainDaysCritical int    `toml:"retain_days_critical"` // 高风险会话保留天数
	JPEGQuality        int    `toml:"jpeg_quality"`         // 帧落盘前的压缩质量 1-100
	PurgeIntervalMin   int    `toml:"purge_interval_min"`   // 过期清理周期（分钟）
}

// SetupConfig 读取配置文件并填充默认值
// 文件不存在时写出默认配置再返回，方便首次部署
func SetupConfig(path string) (*Bootstrap, error) {
	bc := defaultBootstrap()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := writeDefault(path, bc); err != nil {
			return nil, err
		}
		return bc, nil
	}

	if err := toml.Unmarshal(data, bc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(bc)
	return bc, nil
}

func defaultBootstrap() *Bootstrap {
	bc := Bootstrap{
		Server: Server{HTTP: HTTP{Port: 8080}},
		Data: Data{Database: Database{
			Dsn:             "configs/vigil.db",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: Duration(time.Hour),
			SlowThreshold:   Duration(200 * time.Millisecond),
		}},
	}
	applyDefaults(&bc)
	return &bc
}

func applyDefaults(bc *Bootstrap) {
	m := &bc.Monitor
	if m.DayIntervalMs <= 0 {
		m.DayIntervalMs = 30000
	}
	if m.NightIntervalMs <= 0 {
		m.NightIntervalMs = 60000
	}
	if m.DayStart == "" {
		m.DayStart = "07:00"
	}
	if m.NightStart == "" {
		m.NightStart = "22:00"
	}
	if m.SequenceLength <= 0 {
		m.SequenceLength = 10
	}
	if m.FrameTimeoutMs <= 0 {
		m.FrameTimeoutMs = 5000
	}
	if m.HistorySize <= 0 {
		m.HistorySize = 20
	}
	if m.SourceType == "" {
		m.SourceType = "media"
	}
	if m.Subject.Priority == "" {
		m.Subject.Priority = "normal"
	}

	if bc.Media.URL == "" {
		bc.Media.URL = "http://localhost:8080"
	}

	v := &bc.Vision
	if v.Model == "" {
		v.Model = "qwen2.5-vl"
	}
	if v.TimeoutMs <= 0 {
		v.TimeoutMs = 30000
	}

	a := &bc.Archive
	if a.Dir == "" {
		a.Dir = "configs/archive"
	}
	if a.QuotaBytes <= 0 {
		a.QuotaBytes = 2 << 30 // 2GB
	}
	if a.RetainDaysNormal <= 0 {
		a.RetainDaysNormal = 7
	}
	if a.RetainDaysCritical <= 0 {
		a.RetainDaysCritical = 30
	}
	if a.JPEGQuality <= 0 || a.JPEGQuality > 100 {
		a.JPEGQuality = 80
	}
	if a.PurgeIntervalMin <= 0 {
		a.PurgeIntervalMin = 60
	}
}

func writeDefault(path string, bc *Bootstrap) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(bc)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
