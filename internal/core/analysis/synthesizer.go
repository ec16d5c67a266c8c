package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/gowvp/vigil/pkg/sanitize"
	"github.com/gowvp/vigil/pkg/visionai"
	"github.com/ixugo/goddd/pkg/orm"
)

var _ monitor.Synthesizer = Synthesizer{}

// Synthesizer 序列合成器
// 合成必须总能产出报告：提供商失败时退回确定性本地合成，
// 完成的序列缺少元报告属于管线 bug
type Synthesizer struct {
	engine  visionai.Engine
	subject conf.Subject
}

func NewSynthesizer(engine visionai.Engine, subject conf.Subject) Synthesizer {
	return Synthesizer{engine: engine, subject: subject}
}

// Synthesize implements monitor.Synthesizer.
func (s Synthesizer) Synthesize(ctx context.Context, sess *monitor.CaptureSession) *monitor.MetaReport {
	text, err := s.engine.Complete(ctx, synthesisPrompt(sess, s.subject))
	if err != nil {
		slog.Warn("序列合成降级", "session_id", sess.ID, "err", err)
		return fallbackReport(sess)
	}

	var schema metaSchema
	if err := visionai.DecodeJSON(text, &schema); err != nil {
		slog.Warn("合成响应不可解析，降级", "session_id", sess.ID, "err", err)
		return fallbackReport(sess)
	}
	report, err := schema.toReport(sess.ID)
	if err != nil {
		slog.Warn("合成响应不合模式，降级", "session_id", sess.ID, "err", err)
		return fallbackReport(sess)
	}
	return report
}

// metaSchema 提供商合成响应的预期结构
type metaSchema struct {
	AggregateScores struct {
		Mobility  float64 `json:"mobility"`
		Alertness float64 `json:"alertness"`
		Comfort   float64 `json:"comfort"`
		Posture   float64 `json:"posture"`
	} `json:"aggregate_scores"`
	RiskLevel       string   `json:"risk_level"`
	TemporalTrend   string   `json:"temporal_trend"`
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations struct {
		Immediate []string `json:"immediate"`
		ShortTerm []string `json:"short_term"`
		LongTerm  []string `json:"long_term"`
	} `json:"recommendations"`
}

func (m *metaSchema) toReport(sessionID string) (*monitor.MetaReport, error) {
	switch m.RiskLevel {
	case monitor.RiskLow, monitor.RiskMedium, monitor.RiskHigh, monitor.RiskCritical:
	default:
		return nil, fmt.Errorf("%w: unknown risk_level %q", visionai.ErrBadResponse, m.RiskLevel)
	}
	if m.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", visionai.ErrBadResponse)
	}
	trend := m.TemporalTrend
	if trend == "" {
		trend = monitor.TrendStable
	}
	return &monitor.MetaReport{
		SourceSessionID: sessionID,
		GeneratedAt:     orm.Now(),
		Source:          monitor.SourceAIProvider,
		AggregateScores: monitor.Scores{
			Mobility:  clampScore(m.AggregateScores.Mobility),
			Alertness: clampScore(m.AggregateScores.Alertness),
			Comfort:   clampScore(m.AggregateScores.Comfort),
			Posture:   clampScore(m.AggregateScores.Posture),
		},
		RiskLevel:       m.RiskLevel,
		TemporalTrend:   trend,
		Summary:         sanitize.Text(m.Summary),
		KeyFindings:     sanitize.Lines(m.KeyFindings),
		Recommendations: monitor.Recommendations{
			Immediate: sanitize.Lines(m.Recommendations.Immediate),
			ShortTerm: sanitize.Lines(m.Recommendations.ShortTerm),
			LongTerm:  sanitize.Lines(m.Recommendations.LongTerm),
		},
	}, nil
}
