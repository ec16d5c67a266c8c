package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/monitor"
)

func testSession(frames ...monitor.FrameResult) *monitor.CaptureSession {
	return &monitor.CaptureSession{
		ID:       "sess-1",
		SourceID: "cam01",
		Status:   monitor.StatusSynthesizing,
		Target:   len(frames),
		Frames:   frames,
	}
}

func frameWithScores(idx int, mobility, alertness, comfort, posture float64, obs ...string) monitor.FrameResult {
	return monitor.FrameResult{
		FrameIndex: idx,
		Source:     monitor.SourceAIProvider,
		Analysis: monitor.Assessment{
			Detected:     true,
			Confidence:   0.9,
			Observations: obs,
			Scores:       monitor.Scores{Mobility: mobility, Alertness: alertness, Comfort: comfort, Posture: posture},
		},
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	content := `{
		"aggregate_scores": {"mobility": 7, "alertness": 8, "comfort": 7.5, "posture": 8},
		"risk_level": "low",
		"temporal_trend": "stable",
		"summary": "Subject remained comfortable throughout. No concerns observed.",
		"key_findings": ["stable posture across frames"],
		"recommendations": {"immediate": [], "short_term": ["continue routine checks"], "long_term": []}
	}`
	srv := chatServer(t, http.StatusOK, content)
	s := NewSynthesizer(testEngine(srv), conf.Subject{Name: "Mrs. Chen"})

	report := s.Synthesize(context.Background(), testSession(frameWithScores(1, 7, 8, 7, 8)))
	if report == nil {
		t.Fatal("synthesis must always produce a report")
	}
	if report.Source != monitor.SourceAIProvider {
		t.Fatalf("source = %s", report.Source)
	}
	if report.SourceSessionID != "sess-1" || report.RiskLevel != monitor.RiskLow {
		t.Fatalf("report = %+v", report)
	}
}

func TestSynthesizeFallbackOnUnparsable(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "I could not produce JSON today.")
	s := NewSynthesizer(testEngine(srv), conf.Subject{})

	sess := testSession(
		frameWithScores(1, 6, 6, 6, 6, "finding a"),
		frameWithScores(2, 8, 8, 8, 8, "finding a", "finding b"),
	)
	report := s.Synthesize(context.Background(), sess)
	if report == nil || report.Source != monitor.SourceFallback {
		t.Fatalf("report = %+v", report)
	}
	if got := report.AggregateScores.Mobility; got != 7 {
		t.Fatalf("aggregate mobility = %v", got)
	}
	// 关键发现去重串联
	if len(report.KeyFindings) != 2 {
		t.Fatalf("key findings = %v", report.KeyFindings)
	}
}

func TestSynthesizeFallbackOnBadRisk(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"risk_level": "catastrophic", "summary": "x"}`)
	s := NewSynthesizer(testEngine(srv), conf.Subject{})

	report := s.Synthesize(context.Background(), testSession(frameWithScores(1, 5, 5, 5, 5)))
	if report.Source != monitor.SourceFallback {
		t.Fatalf("source = %s", report.Source)
	}
}

// 发往提供商的合成提示词不得携带 emoji 等非 ASCII 字符
func TestSynthesisPromptSanitized(t *testing.T) {
	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = string(body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "not json"}}},
		})
	}))
	t.Cleanup(srv.Close)

	s := NewSynthesizer(testEngine(srv), conf.Subject{Name: "Mrs. Chen"})
	sess := testSession(frameWithScores(1, 6, 6, 6, 6, "subject smiling \U0001F600 at camera"))
	_ = s.Synthesize(context.Background(), sess)

	if captured == "" {
		t.Fatal("no request captured")
	}
	if strings.Contains(captured, "\U0001F600") {
		t.Fatal("emoji leaked into the synthesis prompt")
	}
	if !strings.Contains(captured, "subject smiling") {
		t.Fatal("sanitized observation should survive")
	}
}

func TestFallbackReportTrend(t *testing.T) {
	improving := testSession(
		frameWithScores(1, 4, 4, 4, 4),
		frameWithScores(2, 5, 5, 5, 5),
		frameWithScores(3, 8, 8, 8, 8),
		frameWithScores(4, 9, 9, 9, 9),
	)
	if got := fallbackReport(improving).TemporalTrend; got != monitor.TrendImproving {
		t.Fatalf("trend = %s", got)
	}

	declining := testSession(
		frameWithScores(1, 9, 9, 9, 9),
		frameWithScores(2, 8, 8, 8, 8),
		frameWithScores(3, 4, 4, 4, 4),
		frameWithScores(4, 3, 3, 3, 3),
	)
	if got := fallbackReport(declining).TemporalTrend; got != monitor.TrendDeclining {
		t.Fatalf("trend = %s", got)
	}
}

func TestModalRiskTieBreaksHigher(t *testing.T) {
	// 一帧 low(avg 8)，一帧 high(avg 4)，平局取更高风险
	sess := testSession(
		frameWithScores(1, 8, 8, 8, 8),
		frameWithScores(2, 4, 4, 4, 4),
	)
	if got := fallbackReport(sess).RiskLevel; got != monitor.RiskHigh {
		t.Fatalf("risk = %s", got)
	}
}

func TestAverageScores(t *testing.T) {
	frames := []monitor.FrameResult{
		frameWithScores(1, 1, 2, 3, 4),
		frameWithScores(2, 3, 4, 5, 6),
	}
	avg := averageScores(frames)
	want := monitor.Scores{Mobility: 2, Alertness: 3, Comfort: 4, Posture: 5}
	if avg != want {
		t.Fatalf("avg = %+v", avg)
	}
}
