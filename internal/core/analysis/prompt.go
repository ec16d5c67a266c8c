package analysis

import (
	"fmt"
	"strings"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/gowvp/vigil/pkg/sanitize"
)

// framePrompt 单帧分析提示词
// 要求提供商返回裸 JSON，字段与 frameSchema 对齐
func framePrompt(actx monitor.AnalyzeContext) string {
	var b strings.Builder
	b.WriteString("You are a care monitoring assistant reviewing a still frame from a home camera.\n")
	fmt.Fprintf(&b, "Subject: %s. Priority: %s.\n", orUnknown(actx.Subject.Name), orUnknown(actx.Subject.Priority))
	if len(actx.Subject.Conditions) > 0 {
		fmt.Fprintf(&b, "Known conditions: %s.\n", strings.Join(actx.Subject.Conditions, ", "))
	}
	fmt.Fprintf(&b, "This is frame %d of an observation sequence.\n", actx.FrameIndex)
	b.WriteString(`Respond with a single JSON object and nothing else:
{
  "detected": bool,
  "confidence": number (0.0-1.0),
  "posture": "lying|sitting|standing|unknown",
  "activity": short phrase,
  "observations": [short factual statements],
  "scores": {"mobility": 0-10, "alertness": 0-10, "comfort": 0-10, "posture": 0-10}
}`)
	return b.String()
}

// synthesisPrompt 序列合成提示词
// 每帧的文本观察先过 sanitize，提供商返回的 emoji 等字符
// 会破坏下游 JSON 编码，必须在重新序列化前剔除
func synthesisPrompt(sess *monitor.CaptureSession, subject conf.Subject) string {
	var b strings.Builder
	b.WriteString("You are a care monitoring assistant. Below are sequential frame assessments from one observation session.\n")
	fmt.Fprintf(&b, "Subject: %s. Priority: %s.\n", orUnknown(subject.Name), orUnknown(subject.Priority))
	if len(subject.Conditions) > 0 {
		fmt.Fprintf(&b, "Known conditions: %s.\n", strings.Join(subject.Conditions, ", "))
	}
	b.WriteString("\n")
	for _, fr := range sess.Frames {
		fmt.Fprintf(&b, "Frame %d [%s]: detected=%t posture=%s activity=%s scores(mobility=%.1f alertness=%.1f comfort=%.1f posture=%.1f)\n",
			fr.FrameIndex, fr.Source, fr.Analysis.Detected,
			orUnknown(fr.Analysis.Posture), orUnknown(fr.Analysis.Activity),
			fr.Analysis.Scores.Mobility, fr.Analysis.Scores.Alertness,
			fr.Analysis.Scores.Comfort, fr.Analysis.Scores.Posture,
		)
		for _, line := range sanitize.Lines(fr.Analysis.Observations) {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}
	b.WriteString(`
Synthesize the whole sequence. Respond with a single JSON object and nothing else:
{
  "aggregate_scores": {"mobility": 0-10, "alertness": 0-10, "comfort": 0-10, "posture": 0-10},
  "risk_level": "low|medium|high|critical",
  "temporal_trend": "improving|stable|declining",
  "summary": 2-3 sentences,
  "key_findings": [ordered statements],
  "recommendations": {"immediate": [...], "short_term": [...], "long_term": [...]}
}`)
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
