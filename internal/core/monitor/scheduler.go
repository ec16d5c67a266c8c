package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
)

// 调度器状态
const (
	StateStopped       = "stopped"
	StateRunning       = "running"
	StateSessionActive = "session_active"
)

// Scheduler 采集调度器，唯一持有可变的会话状态
//
// 活跃会话是单槽寄存器：全系统同一时刻至多一个会话在进行，
// 这是设计约束而非实现限制——视频源是一路物理相机，无法被
// 并发会话共享。所有访问都经过公开方法，不暴露共享可变量。
type Scheduler struct {
	mu            sync.Mutex
	running       bool
	loopCancel    context.CancelFunc
	active        *CaptureSession
	acc           *sequenceAccumulator
	busy          bool // 当前帧是否在抓取/分析中
	drain         bool // 连续驱动模式：手动触发或停机排空时不等 tick
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	droppedTicks  int64
	historySize   int
	history       []Outcome
	now           func() time.Time // 测试注入
}

func newScheduler(_ *Core, historySize int) *Scheduler {
	return &Scheduler{
		historySize: historySize,
		history:     make([]Outcome, 0, historySize),
		now:         time.Now,
	}
}

// Outcome 会话结果摘要，供状态接口展示
type Outcome struct {
	SessionID string   `json:"session_id"`
	SourceID  string   `json:"source_id"`
	Status    string   `json:"status"`
	Frames    int      `json:"frames"`
	Fallbacks int      `json:"fallbacks"`
	RiskLevel string   `json:"risk_level,omitempty"`
	Err       string   `json:"error,omitempty"`
	EndedAt   orm.Time `json:"ended_at"`
}

func outcomeFromRow(r *SessionOutcome) Outcome {
	return Outcome{
		SessionID: r.SessionID,
		SourceID:  r.SourceID,
		Status:    r.Status,
		Frames:    r.FrameCount,
		Fallbacks: r.Fallbacks,
		RiskLevel: r.RiskLevel,
		Err:       r.Err,
		EndedAt:   r.EndedAt,
	}
}

func (s *Scheduler) pushHistory(o Outcome) {
	s.history = append(s.history, o)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// validateSchedule 校验调度参数，错误即 ConfigError
func validateSchedule(m *conf.Monitor) error {
	if m == nil {
		return reason.ErrBadRequest.Withf("monitor config is required")
	}
	if m.SequenceLength < 1 {
		return reason.ErrBadRequest.Withf("sequence_length must be >= 1, got %d", m.SequenceLength)
	}
	if m.DayIntervalMs <= 0 || m.NightIntervalMs <= 0 {
		return reason.ErrBadRequest.Withf("intervals must be > 0, got day[%d] night[%d]", m.DayIntervalMs, m.NightIntervalMs)
	}
	if m.SourceID == "" {
		return reason.ErrBadRequest.Withf("source_id is required")
	}
	if _, err := parseClock(m.DayStart); err != nil {
		return reason.ErrBadRequest.Withf("day_start[%s]: %s", m.DayStart, err.Error())
	}
	if _, err := parseClock(m.NightStart); err != nil {
		return reason.ErrBadRequest.Withf("night_start[%s]: %s", m.NightStart, err.Error())
	}
	return nil
}

// parseClock 解析 HH:MM，返回当天分钟数
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("want HH:MM")
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour")
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute")
	}
	return h*60 + m, nil
}

// Start 启动调度循环
// 配置不合法返回 ConfigError（reason.ErrBadRequest），重复启动同样报错
func (c Core) Start(ctx context.Context) error {
	if err := validateSchedule(c.conf); err != nil {
		return err
	}
	s := c.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return reason.ErrBadRequest.Withf("scheduler already running")
	}
	lctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.loopCancel = cancel
	go c.runLoop(lctx)
	slog.Info("监控调度已启动",
		"source_id", c.conf.SourceID,
		"sequence_length", c.conf.SequenceLength,
		"day_interval_ms", c.conf.DayIntervalMs,
		"night_interval_ms", c.conf.NightIntervalMs,
	)
	return nil
}

// runLoop 定时循环
// 间隔在每次 tick 之后重新计算：跨越昼夜边界结束的会话，
// 下一次 tick 使用边界之后的间隔，而不是会话开始时的间隔
func (c Core) runLoop(ctx context.Context) {
	s := c.sched
	for {
		timer := time.NewTimer(s.nextInterval(c.conf))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.onTick(ctx)
		}
	}
}

func (s *Scheduler) nextInterval(m *conf.Monitor) time.Duration {
	if s.inDayWindow(m) {
		return time.Duration(m.DayIntervalMs) * time.Millisecond
	}
	return time.Duration(m.NightIntervalMs) * time.Millisecond
}

// inDayWindow 墙上时钟是否落在白天窗口内，窗口允许跨午夜
func (s *Scheduler) inDayWindow(m *conf.Monitor) bool {
	day, _ := parseClock(m.DayStart)
	night, _ := parseClock(m.NightStart)
	now := s.now()
	cur := now.Hour()*60 + now.Minute()
	if day <= night {
		return cur >= day && cur < night
	}
	return cur >= day || cur < night
}

// onTick 一次 tick 驱动一帧：没有会话则创建，上一帧未完成则丢弃本次 tick（不排队）
func (c Core) onTick(_ context.Context) {
	s := c.sched
	s.mu.Lock()
	if s.active == nil {
		c.beginSessionLocked(false)
	}
	if s.busy {
		s.droppedTicks++
		slog.Debug("上一帧仍在处理，丢弃本次 tick", "session_id", s.active.ID)
		s.mu.Unlock()
		return
	}
	s.busy = true
	sess := s.active
	idx := s.acc.Len() + 1
	sctx := s.sessionCtx
	s.mu.Unlock()

	go func() {
		c.processFrame(sctx, sess, idx)
		s.mu.Lock()
		s.busy = false
		cont := s.drain && s.active != nil && s.active.ID == sess.ID
		s.mu.Unlock()
		if cont {
			c.driveRemaining(sctx, sess)
		}
	}()
}

// beginSessionLocked 创建新会话，调用方必须持有锁
// 会话上下文独立于调度循环，停机排空时在途会话仍可完成
func (c Core) beginSessionLocked(drain bool) {
	s := c.sched
	sctx, cancel := context.WithCancel(context.Background())
	s.sessionCtx = sctx
	s.sessionCancel = cancel
	s.drain = drain
	s.active = &CaptureSession{
		ID:        uuid.NewString(),
		SourceID:  c.conf.SourceID,
		Status:    StatusCapturing,
		Target:    c.conf.SequenceLength,
		StartedAt: orm.Now(),
	}
	s.acc = NewSequenceAccumulator(c.conf.SequenceLength)
	slog.Info("采集会话开始", "session_id", s.active.ID, "source_id", s.active.SourceID, "target", s.active.Target)
}

// TriggerNow 手动触发一次完整会话，不受调度窗口限制
// 已有会话在进行中时返回 ErrBusy，不影响进行中的会话
func (c Core) TriggerNow() (string, error) {
	if err := validateSchedule(c.conf); err != nil {
		return "", err
	}
	s := c.sched
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return "", ErrBusy
	}
	c.beginSessionLocked(true)
	sess := s.active
	sctx := s.sessionCtx
	s.mu.Unlock()

	go c.driveRemaining(sctx, sess)
	return sess.ID, nil
}

// driveRemaining 连续驱动剩余帧，直到会话终态或被取消
func (c Core) driveRemaining(ctx context.Context, sess *CaptureSession) {
	s := c.sched
	for {
		s.mu.Lock()
		if s.active == nil || s.active.ID != sess.ID || s.busy {
			s.mu.Unlock()
			return
		}
		s.busy = true
		idx := s.acc.Len() + 1
		s.mu.Unlock()

		c.processFrame(ctx, sess, idx)

		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop 停止调度
// force=false 不打断在途会话，转入排空模式让其收尾；
// force=true 取消在途 AI 调用，会话标记为 Cancelled（仅保留审计记录）
func (c Core) Stop(force bool) {
	s := c.sched
	s.mu.Lock()
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	s.running = false
	sess := s.active
	if sess == nil {
		s.mu.Unlock()
		slog.Info("监控调度已停止")
		return
	}

	if force {
		if s.sessionCancel != nil {
			s.sessionCancel()
		}
		now := orm.Now()
		sess.Status = StatusCancelled
		sess.EndedAt = &now
		s.active = nil
		s.acc = nil
		s.mu.Unlock()
		c.recordOutcome(sess)
		slog.Info("监控调度已停止，在途会话取消", "session_id", sess.ID)
		return
	}

	s.drain = true
	busy := s.busy
	sctx := s.sessionCtx
	s.mu.Unlock()
	slog.Info("监控调度停止中，等待在途会话完成", "session_id", sess.ID)
	if !busy {
		go c.driveRemaining(sctx, sess)
	}
}

// processFrame 抓取并分析一帧，序列满后进入合成阶段
func (c Core) processFrame(ctx context.Context, sess *CaptureSession, idx int) {
	s := c.sched

	fctx, cancel := context.WithTimeout(ctx, time.Duration(c.conf.FrameTimeoutMs)*time.Millisecond)
	frame, err := c.frames.Capture(fctx, sess.SourceID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return // 会话已被取消，丢弃结果
		}
		c.failSession(sess, fmt.Sprintf("frame unavailable: %s", err.Error()))
		return
	}

	result := c.analyzer.Analyze(ctx, frame, AnalyzeContext{
		SessionID:  sess.ID,
		FrameIndex: idx,
		Subject:    c.conf.Subject,
	})
	result.FrameIndex = idx
	result.Analysis.Confidence = clamp01(result.Analysis.Confidence)

	s.mu.Lock()
	if s.active == nil || s.active.ID != sess.ID {
		s.mu.Unlock()
		return // 会话已被取消，丢弃结果
	}
	complete, err := s.acc.Append(result)
	if err != nil {
		s.mu.Unlock()
		c.failSession(sess, err.Error())
		return
	}
	sess.Frames = s.acc.Frames()
	if !complete {
		s.mu.Unlock()
		return
	}
	sess.Status = StatusSynthesizing
	s.mu.Unlock()

	c.finalizeSession(ctx, sess)
}

// finalizeSession 合成元报告并归档，合成永远成功（可能降级）
func (c Core) finalizeSession(ctx context.Context, sess *CaptureSession) {
	meta := c.synth.Synthesize(ctx, sess)

	// 合成期间会话可能被强制停止：槽位已清、Cancelled 已入账，
	// 此时丢弃合成结果，不能把会话改回 Completed 再记一次
	cancel, ok := c.takeActive(sess.ID)
	if !ok {
		return
	}
	defer cancel()
	now := orm.Now()
	sess.MetaReport = meta
	sess.Status = StatusCompleted
	sess.EndedAt = &now

	if c.archiver != nil {
		// 会话已终态，归档不随会话上下文取消
		if err := c.archiver.SaveSession(context.Background(), sess); err != nil {
			// 配额耗尽只告警，会话本身仍是 Completed
			slog.Warn("会话归档失败", "session_id", sess.ID, "err", err)
		}
	}
	c.recordOutcome(sess)
	slog.Info("采集会话完成",
		"session_id", sess.ID,
		"frames", len(sess.Frames),
		"fallbacks", sess.FallbackFrames(),
		"risk_level", meta.RiskLevel,
		"synthesis_source", meta.Source,
	)
}

// failSession 会话失败：记录后等待下一次 tick 重新开始，不在本次 tick 内重试
func (c Core) failSession(sess *CaptureSession, msg string) {
	cancel, ok := c.takeActive(sess.ID)
	if !ok {
		return
	}
	defer cancel()
	now := orm.Now()
	sess.Status = StatusFailed
	sess.Err = msg
	sess.EndedAt = &now

	if c.archiver != nil && len(sess.Frames) > 0 {
		if err := c.archiver.SaveSession(context.Background(), sess); err != nil {
			slog.Warn("失败会话归档失败", "session_id", sess.ID, "err", err)
		}
	}
	c.recordOutcome(sess)
	slog.Warn("采集会话失败", "session_id", sess.ID, "frames", len(sess.Frames), "err", msg)
}

// takeActive 认领并释放活跃槽位
// 返回 ok=false 表示会话已不在槽位上（被强制停止），调用方必须放弃终态处理。
// 认领成功后 Stop 再也碰不到该会话，返回的 cancel 由调用方在收尾后执行
func (c Core) takeActive(sessionID string) (context.CancelFunc, bool) {
	s := c.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ID != sessionID {
		return nil, false
	}
	cancel := s.sessionCancel
	s.sessionCancel = nil
	s.active = nil
	s.acc = nil
	s.drain = false
	if cancel == nil {
		cancel = func() {}
	}
	return cancel, true
}

// recordOutcome 写入审计记录并更新内存环
func (c Core) recordOutcome(sess *CaptureSession) {
	var endedAt orm.Time
	if sess.EndedAt != nil {
		endedAt = *sess.EndedAt
	}
	row := SessionOutcome{
		SessionID:  sess.ID,
		SourceID:   sess.SourceID,
		Status:     sess.Status,
		FrameCount: len(sess.Frames),
		Fallbacks:  sess.FallbackFrames(),
		Err:        sess.Err,
		StartedAt:  sess.StartedAt,
		EndedAt:    endedAt,
		CreatedAt:  orm.Now(),
	}
	if sess.MetaReport != nil {
		row.RiskLevel = sess.MetaReport.RiskLevel
	}
	if c.store != nil {
		if err := c.store.Outcome().Add(context.Background(), &row); err != nil {
			slog.Error("审计记录写入失败", "session_id", sess.ID, "err", err)
		}
	}

	s := c.sched
	s.mu.Lock()
	s.pushHistory(outcomeFromRow(&row))
	s.mu.Unlock()
}

// Status 调度器运行状态快照
func (c Core) Status() StatusOutput {
	s := c.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	out := StatusOutput{
		State:        StateStopped,
		DroppedTicks: s.droppedTicks,
		Recent:       make([]Outcome, len(s.history)),
	}
	if s.running {
		out.State = StateRunning
	}
	if s.active != nil {
		out.State = StateSessionActive
		out.ActiveSessionID = s.active.ID
		out.ActiveFrames = s.acc.Len()
		out.TargetFrames = s.active.Target
	}
	// 最近的排前面
	for i, o := range s.history {
		out.Recent[len(s.history)-1-i] = o
	}

	var completed int
	for _, o := range s.history {
		if o.Status == StatusCompleted {
			completed++
		}
	}
	if len(s.history) > 0 {
		out.SuccessRate = float64(completed) / float64(len(s.history))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
