package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
)

type stubSource struct {
	mu       sync.Mutex
	err      error
	captured int
}

func (s *stubSource) Capture(_ context.Context, sourceID string) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.captured++
	return &Frame{SourceID: sourceID, Bytes: []byte{0xFF, 0xD8}, MIME: "image/jpeg", CapturedAt: orm.Now()}, nil
}

type stubAnalyzer struct {
	block      chan struct{} // 非空时阻塞，模拟慢速 AI 调用
	confidence float64
}

func (a *stubAnalyzer) Analyze(ctx context.Context, _ *Frame, actx AnalyzeContext) FrameResult {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return FrameResult{FrameIndex: actx.FrameIndex, Source: SourceFallback, Err: ctx.Err().Error()}
		}
	}
	return FrameResult{
		FrameIndex: actx.FrameIndex,
		CapturedAt: orm.Now(),
		Source:     SourceAIProvider,
		Analysis:   Assessment{Detected: true, Confidence: a.confidence},
	}
}

type stubSynth struct{}

func (stubSynth) Synthesize(_ context.Context, sess *CaptureSession) *MetaReport {
	return &MetaReport{
		SourceSessionID: sess.ID,
		GeneratedAt:     orm.Now(),
		Source:          SourceAIProvider,
		RiskLevel:       RiskLow,
		TemporalTrend:   TrendStable,
		Summary:         "subject resting, no concerns",
	}
}

type stubArchiver struct {
	mu       sync.Mutex
	sessions []*CaptureSession
}

func (a *stubArchiver) SaveSession(_ context.Context, sess *CaptureSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, sess)
	return nil
}

func (a *stubArchiver) saved() []*CaptureSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*CaptureSession(nil), a.sessions...)
}

func testMonitorConf(seq int) *conf.Monitor {
	return &conf.Monitor{
		SourceID:        "cam01",
		SourceType:      "media",
		DayIntervalMs:   20,
		NightIntervalMs: 40,
		DayStart:        "07:00",
		NightStart:      "22:00",
		SequenceLength:  seq,
		FrameTimeoutMs:  1000,
		HistorySize:     5,
		Subject:         conf.Subject{Name: "Mrs. Chen", Priority: "high"},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestTriggerNowCompletesSession(t *testing.T) {
	src := &stubSource{}
	arc := &stubArchiver{}
	core := NewCore(nil,
		WithConfig(testMonitorConf(3)),
		WithFrameSource(src),
		WithAnalyzer(&stubAnalyzer{confidence: 1.5}), // 超界置信度应被钳到 1
		WithSynthesizer(stubSynth{}),
		WithArchiver(arc),
	)

	id, err := core.TriggerNow()
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(arc.saved()) == 1 })

	sess := arc.saved()[0]
	if sess.ID != id {
		t.Fatalf("archived session id = %s, want %s", sess.ID, id)
	}
	if sess.Status != StatusCompleted {
		t.Fatalf("status = %s", sess.Status)
	}
	if len(sess.Frames) != 3 {
		t.Fatalf("frames = %d", len(sess.Frames))
	}
	if sess.MetaReport == nil || sess.MetaReport.SourceSessionID != id {
		t.Fatal("completed session must carry a meta report for itself")
	}
	for i, fr := range sess.Frames {
		if fr.FrameIndex != i+1 {
			t.Fatalf("frame %d has index %d", i, fr.FrameIndex)
		}
		if fr.Analysis.Confidence != 1 {
			t.Fatalf("confidence not clamped: %v", fr.Analysis.Confidence)
		}
	}

	st := core.Status()
	if st.State != StateStopped {
		t.Fatalf("state after completion = %s", st.State)
	}
	if len(st.Recent) != 1 || st.Recent[0].Status != StatusCompleted {
		t.Fatalf("recent = %+v", st.Recent)
	}
	if st.SuccessRate != 1 {
		t.Fatalf("success rate = %v", st.SuccessRate)
	}
}

func TestTriggerNowBusy(t *testing.T) {
	block := make(chan struct{})
	core := NewCore(nil,
		WithConfig(testMonitorConf(2)),
		WithFrameSource(&stubSource{}),
		WithAnalyzer(&stubAnalyzer{block: block, confidence: 0.8}),
		WithSynthesizer(stubSynth{}),
		WithArchiver(&stubArchiver{}),
	)

	if _, err := core.TriggerNow(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return core.Status().State == StateSessionActive })

	if _, err := core.TriggerNow(); !errors.Is(err, ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	close(block)
}

func TestCaptureFailureFailsSession(t *testing.T) {
	src := &stubSource{err: errors.New("rtsp timeout")}
	arc := &stubArchiver{}
	core := NewCore(nil,
		WithConfig(testMonitorConf(3)),
		WithFrameSource(src),
		WithAnalyzer(&stubAnalyzer{confidence: 0.8}),
		WithSynthesizer(stubSynth{}),
		WithArchiver(arc),
	)

	if _, err := core.TriggerNow(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		st := core.Status()
		return len(st.Recent) == 1
	})

	st := core.Status()
	if st.Recent[0].Status != StatusFailed {
		t.Fatalf("outcome status = %s", st.Recent[0].Status)
	}
	if st.Recent[0].Err == "" {
		t.Fatal("failed outcome should carry the error")
	}
	// 没抓到任何帧的失败会话不进入存档
	if len(arc.saved()) != 0 {
		t.Fatalf("archived = %d", len(arc.saved()))
	}
	// 失败后槽位释放，可再次触发
	if core.Status().State != StateStopped {
		t.Fatal("slot should be free after failure")
	}
}

func TestStopForceCancelsSession(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	arc := &stubArchiver{}
	core := NewCore(nil,
		WithConfig(testMonitorConf(5)),
		WithFrameSource(&stubSource{}),
		WithAnalyzer(&stubAnalyzer{block: block, confidence: 0.8}),
		WithSynthesizer(stubSynth{}),
		WithArchiver(arc),
	)

	if err := core.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return core.Status().State == StateSessionActive })

	core.Stop(true)

	st := core.Status()
	if st.State != StateStopped {
		t.Fatalf("state = %s", st.State)
	}
	waitFor(t, time.Second, func() bool { return len(core.Status().Recent) == 1 })
	if got := core.Status().Recent[0].Status; got != StatusCancelled {
		t.Fatalf("outcome status = %s", got)
	}
	// 取消的会话只留审计记录，不归档
	if len(arc.saved()) != 0 {
		t.Fatalf("archived = %d", len(arc.saved()))
	}
}

type blockingSynth struct {
	entered chan struct{} // 合成开始时关闭
	release chan struct{} // 收到信号后才返回
}

func (s *blockingSynth) Synthesize(_ context.Context, sess *CaptureSession) *MetaReport {
	close(s.entered)
	<-s.release
	return &MetaReport{
		SourceSessionID: sess.ID,
		GeneratedAt:     orm.Now(),
		Source:          SourceAIProvider,
		RiskLevel:       RiskLow,
		TemporalTrend:   TrendStable,
		Summary:         "subject resting, no concerns",
	}
}

// 合成阶段强制停止：已入账的 Cancelled 不能被迟到的合成结果改写成 Completed
func TestStopForceDuringSynthesis(t *testing.T) {
	synth := &blockingSynth{entered: make(chan struct{}), release: make(chan struct{})}
	arc := &stubArchiver{}
	core := NewCore(nil,
		WithConfig(testMonitorConf(1)),
		WithFrameSource(&stubSource{}),
		WithAnalyzer(&stubAnalyzer{confidence: 0.8}),
		WithSynthesizer(synth),
		WithArchiver(arc),
	)

	if _, err := core.TriggerNow(); err != nil {
		t.Fatal(err)
	}
	<-synth.entered

	core.Stop(true)
	close(synth.release)

	// 给合成收尾路径留出发现会话已取消的时间
	time.Sleep(100 * time.Millisecond)

	st := core.Status()
	if len(st.Recent) != 1 {
		t.Fatalf("want exactly one outcome, got %+v", st.Recent)
	}
	if st.Recent[0].Status != StatusCancelled {
		t.Fatalf("outcome status = %s", st.Recent[0].Status)
	}
	if len(arc.saved()) != 0 {
		t.Fatalf("cancelled session must not reach the archive, got %d", len(arc.saved()))
	}
	if st.State != StateStopped {
		t.Fatalf("state = %s", st.State)
	}
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*conf.Monitor)
	}{
		{"zero sequence", func(m *conf.Monitor) { m.SequenceLength = 0 }},
		{"bad interval", func(m *conf.Monitor) { m.DayIntervalMs = -1 }},
		{"missing source", func(m *conf.Monitor) { m.SourceID = "" }},
		{"bad day start", func(m *conf.Monitor) { m.DayStart = "25:00" }},
		{"bad night start", func(m *conf.Monitor) { m.NightStart = "aa:bb" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testMonitorConf(3)
			tt.mutate(cfg)
			core := NewCore(nil, WithConfig(cfg),
				WithFrameSource(&stubSource{}),
				WithAnalyzer(&stubAnalyzer{}),
				WithSynthesizer(stubSynth{}),
			)
			if err := core.Start(context.Background()); err == nil {
				core.Stop(true)
				t.Fatal("want config error")
			}
		})
	}
}

func TestStartTwice(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	core := NewCore(nil,
		WithConfig(testMonitorConf(3)),
		WithFrameSource(&stubSource{}),
		WithAnalyzer(&stubAnalyzer{block: block}),
		WithSynthesizer(stubSynth{}),
	)
	if err := core.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer core.Stop(true)
	if err := core.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
}

func TestDayNightInterval(t *testing.T) {
	cfg := testMonitorConf(3)
	s := newScheduler(nil, 5)

	at := func(h, m int) func() time.Time {
		return func() time.Time {
			return time.Date(2026, 8, 25, h, m, 0, 0, time.Local)
		}
	}

	tests := []struct {
		name string
		now  func() time.Time
		want time.Duration
	}{
		{"midday", at(12, 0), 20 * time.Millisecond},
		{"day start boundary", at(7, 0), 20 * time.Millisecond},
		{"night start boundary", at(22, 0), 40 * time.Millisecond},
		{"small hours", at(3, 30), 40 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.now = tt.now
			if got := s.nextInterval(cfg); got != tt.want {
				t.Fatalf("interval = %v, want %v", got, tt.want)
			}
		})
	}

	// 窗口跨午夜：夜间 22:00 起、白天 07:00 起等价于白天窗口 07:00-22:00，
	// 把两者对调则白天窗口跨午夜
	cfg.DayStart = "22:00"
	cfg.NightStart = "07:00"
	s.now = at(23, 0)
	if got := s.nextInterval(cfg); got != 20*time.Millisecond {
		t.Fatalf("cross-midnight day window = %v", got)
	}
	s.now = at(12, 0)
	if got := s.nextInterval(cfg); got != 40*time.Millisecond {
		t.Fatalf("cross-midnight night window = %v", got)
	}
}

func TestScheduledTicksDriveSession(t *testing.T) {
	src := &stubSource{}
	arc := &stubArchiver{}
	core := NewCore(nil,
		WithConfig(testMonitorConf(3)),
		WithFrameSource(src),
		WithAnalyzer(&stubAnalyzer{confidence: 0.8}),
		WithSynthesizer(stubSynth{}),
		WithArchiver(arc),
	)

	if err := core.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer core.Stop(true)

	// 间隔 20ms、序列长度 3，完整会话应在数百毫秒内完成
	waitFor(t, 3*time.Second, func() bool { return len(arc.saved()) >= 1 })
	sess := arc.saved()[0]
	if sess.Status != StatusCompleted || len(sess.Frames) != 3 {
		t.Fatalf("status=%s frames=%d", sess.Status, len(sess.Frames))
	}
}
