package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/gowvp/vigil/pkg/visionai"
)

var _ monitor.FrameAnalyzer = Analyzer{}

// Analyzer 单帧分析器
// 提供商调用失败、超时或响应不合模式时一律走本地降级，
// 永不返回错误，单帧失败不能拖垮整个序列
type Analyzer struct {
	engine visionai.Engine
}

func NewAnalyzer(engine visionai.Engine) Analyzer {
	return Analyzer{engine: engine}
}

// Analyze implements monitor.FrameAnalyzer.
func (a Analyzer) Analyze(ctx context.Context, frame *monitor.Frame, actx monitor.AnalyzeContext) monitor.FrameResult {
	text, err := a.engine.AnalyzeImage(ctx, frame.Bytes, frame.MIME, framePrompt(actx))
	if err != nil {
		slog.Warn("帧分析降级", "session_id", actx.SessionID, "frame_index", actx.FrameIndex, "err", err)
		return fallbackFrameResult(frame, actx, err)
	}

	var schema frameSchema
	if err := visionai.DecodeJSON(text, &schema); err != nil {
		slog.Warn("帧分析响应不可解析，降级", "session_id", actx.SessionID, "frame_index", actx.FrameIndex, "err", err)
		return fallbackFrameResult(frame, actx, err)
	}
	assessment, err := schema.toAssessment()
	if err != nil {
		slog.Warn("帧分析响应不合模式，降级", "session_id", actx.SessionID, "frame_index", actx.FrameIndex, "err", err)
		return fallbackFrameResult(frame, actx, err)
	}

	return monitor.FrameResult{
		FrameIndex: actx.FrameIndex,
		CapturedAt: frame.CapturedAt,
		RawFrame:   frame.Bytes,
		Analysis:   assessment,
		Source:     monitor.SourceAIProvider,
	}
}

// frameSchema 提供商单帧响应的预期结构
type frameSchema struct {
	Detected     *bool    `json:"detected"`
	Confidence   float64  `json:"confidence"`
	Posture      string   `json:"posture"`
	Activity     string   `json:"activity"`
	Observations []string `json:"observations"`
	Scores       struct {
		Mobility  float64 `json:"mobility"`
		Alertness float64 `json:"alertness"`
		Comfort   float64 `json:"comfort"`
		Posture   float64 `json:"posture"`
	} `json:"scores"`
}

func (s *frameSchema) toAssessment() (monitor.Assessment, error) {
	if s.Detected == nil {
		return monitor.Assessment{}, fmt.Errorf("%w: missing detected field", visionai.ErrBadResponse)
	}
	return monitor.Assessment{
		Detected:     *s.Detected,
		Confidence:   s.Confidence,
		Posture:      s.Posture,
		Activity:     s.Activity,
		Observations: s.Observations,
		Scores: monitor.Scores{
			Mobility:  clampScore(s.Scores.Mobility),
			Alertness: clampScore(s.Scores.Alertness),
			Comfort:   clampScore(s.Scores.Comfort),
			Posture:   clampScore(s.Scores.Posture),
		},
	}, nil
}

func clampScore(v float64) float64 {
	return math.Min(10, math.Max(0, v))
}
