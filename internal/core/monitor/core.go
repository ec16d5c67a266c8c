package monitor

import (
	"context"
	"errors"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// 管线控制流错误，调用方用 errors.Is 判断
var (
	// ErrBusy 已有会话在进行中，手动触发被拒绝
	ErrBusy = errors.New("monitor: capture session already active")
	// ErrSequence 帧序号乱序或重复，属于编程错误
	ErrSequence = errors.New("monitor: frame out of sequence")
)

// Storer data persistence
type Storer interface {
	Outcome() OutcomeStorer
}

// OutcomeStorer 会话结果审计存储
type OutcomeStorer interface {
	Find(context.Context, *[]*SessionOutcome, orm.Pager, ...orm.QueryOption) (int64, error)
	Add(context.Context, *SessionOutcome) error
	Count(context.Context, ...orm.QueryOption) (int64, error)
	Session(context.Context, ...func(*gorm.DB) error) error
}

// FrameSource 视频源抓帧端口（端口在领域包内定义，适配器实现）
//
// 实现约定：可重复调用；阻塞不得超过传入 ctx 的期限，
// 超时或源不可用返回错误，由调度器把会话标记为 Failed。
type FrameSource interface {
	Capture(ctx context.Context, sourceID string) (*Frame, error)
}

// FrameAnalyzer 单帧分析端口
//
// 实现约定：永不因 AI 失败而返回错误——提供商调用失败时
// 返回 Source=fallback 的结果并在 Err 字段记录原因，
// 单帧失败不能拖垮整个序列。
type FrameAnalyzer interface {
	Analyze(ctx context.Context, frame *Frame, actx AnalyzeContext) FrameResult
}

// Synthesizer 序列合成端口
//
// 实现约定：必须总能产出 MetaReport（可能是降级版本），
// 完成的序列缺少元报告属于管线 bug 而非可恢复错误。
type Synthesizer interface {
	Synthesize(ctx context.Context, session *CaptureSession) *MetaReport
}

// Archiver 会话归档端口，由存档领域实现
type Archiver interface {
	SaveSession(ctx context.Context, session *CaptureSession) error
}

// AnalyzeContext 分析上下文，用于构建提供商提示词
type AnalyzeContext struct {
	SessionID  string
	FrameIndex int
	Subject    conf.Subject
}

// Core business domain
type Core struct {
	store    Storer
	conf     *conf.Monitor
	frames   FrameSource
	analyzer FrameAnalyzer
	synth    Synthesizer
	archiver Archiver
	sched    *Scheduler
}

type Option func(*Core)

// WithConfig 注入采集调度配置
func WithConfig(c *conf.Monitor) Option {
	return func(core *Core) {
		core.conf = c
	}
}

// WithFrameSource 注入视频源适配器
func WithFrameSource(fs FrameSource) Option {
	return func(core *Core) {
		core.frames = fs
	}
}

// WithAnalyzer 注入单帧分析器
func WithAnalyzer(a FrameAnalyzer) Option {
	return func(core *Core) {
		core.analyzer = a
	}
}

// WithSynthesizer 注入序列合成器
func WithSynthesizer(s Synthesizer) Option {
	return func(core *Core) {
		core.synth = s
	}
}

// WithArchiver 注入归档服务
func WithArchiver(a Archiver) Option {
	return func(core *Core) {
		core.archiver = a
	}
}

// NewCore create business domain
func NewCore(store Storer, opts ...Option) Core {
	c := Core{store: store}
	for _, opt := range opts {
		opt(&c)
	}
	historySize := 20
	if c.conf != nil && c.conf.HistorySize > 0 {
		historySize = c.conf.HistorySize
	}
	c.sched = newScheduler(&c, historySize)
	c.warmHistory()
	return c
}

// warmHistory 启动时回填最近的会话结果，重启后状态接口仍有历史可查
func (c *Core) warmHistory() {
	if c.store == nil {
		return
	}
	var rows []*SessionOutcome
	pager := &defaultPager{limit: c.sched.historySize}
	if _, err := c.store.Outcome().Find(context.Background(), &rows, pager,
		orm.OrderBy("created_at DESC"),
	); err != nil {
		return
	}
	// 倒序写入，ring 内保持时间升序
	for i := len(rows) - 1; i >= 0; i-- {
		c.sched.pushHistory(outcomeFromRow(rows[i]))
	}
}

// FindOutcomes 分页查询会话审计记录
func (c Core) FindOutcomes(ctx context.Context, in *FindOutcomeInput) ([]*SessionOutcome, int64, error) {
	query := orm.NewQuery(3).OrderBy("created_at DESC")
	if in.Status != "" {
		query.Where("status = ?", in.Status)
	}
	if in.SourceID != "" {
		query.Where("source_id = ?", in.SourceID)
	}

	items := make([]*SessionOutcome, 0, in.Limit())
	total, err := c.store.Outcome().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// defaultPager 内部使用的分页器，避免传入 nil 导致空指针
type defaultPager struct {
	limit int
}

func (p *defaultPager) Offset() int { return 0 }
func (p *defaultPager) Limit() int  { return p.limit }
