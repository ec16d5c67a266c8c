// Package report 纯文本渲染，无副作用
// 数据缺失的段落整段省略，绝不输出空占位符
package report

import (
	"fmt"
	"strings"

	"github.com/gowvp/vigil/internal/core/monitor"
)

// Summarize 两三句话的简报
func Summarize(sess *monitor.CaptureSession) string {
	if sess == nil {
		return ""
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("Session %s on source %s %s with %d of %d frames.",
		sess.ID, sess.SourceID, statusVerb(sess.Status), len(sess.Frames), sess.Target))

	if m := sess.MetaReport; m != nil {
		parts = append(parts, fmt.Sprintf("Assessed risk is %s with a %s trend.", m.RiskLevel, m.TemporalTrend))
		if m.Summary != "" {
			parts = append(parts, m.Summary)
		}
	} else if sess.Err != "" {
		parts = append(parts, fmt.Sprintf("Reason: %s.", sess.Err))
	}
	return strings.Join(parts, " ")
}

// Detail 多段结构化文本
func Detail(sess *monitor.CaptureSession) string {
	if sess == nil {
		return ""
	}
	var b strings.Builder

	fmt.Fprintf(&b, "# Observation Session %s\n", sess.ID)
	fmt.Fprintf(&b, "Source: %s | Status: %s | Frames: %d/%d\n",
		sess.SourceID, sess.Status, len(sess.Frames), sess.Target)
	if n := sess.FallbackFrames(); n > 0 {
		fmt.Fprintf(&b, "Degraded frames: %d (analyzed without provider assistance)\n", n)
	}

	writeSceneSection(&b, sess)

	if m := sess.MetaReport; m != nil {
		b.WriteString("\n## Assessment\n")
		if m.Summary != "" {
			b.WriteString(m.Summary + "\n")
		}
		fmt.Fprintf(&b, "Scores: mobility %.1f, alertness %.1f, comfort %.1f, posture %.1f (0-10)\n",
			m.AggregateScores.Mobility, m.AggregateScores.Alertness,
			m.AggregateScores.Comfort, m.AggregateScores.Posture)

		b.WriteString("\n## Risk\n")
		fmt.Fprintf(&b, "Level: %s | Trend: %s", m.RiskLevel, m.TemporalTrend)
		if m.Source == monitor.SourceFallback {
			b.WriteString(" (degraded synthesis, confirm by direct review)")
		}
		b.WriteString("\n")

		writeList(&b, "\n## Key Findings\n", m.KeyFindings)
		writeRecommendations(&b, m.Recommendations)
	}

	if sess.Err != "" {
		fmt.Fprintf(&b, "\n## Error\n%s\n", sess.Err)
	}
	return b.String()
}

func writeSceneSection(b *strings.Builder, sess *monitor.CaptureSession) {
	var lines []string
	for _, fr := range sess.Frames {
		a := fr.Analysis
		if !a.Detected && a.Posture == "" && a.Activity == "" {
			continue
		}
		var desc []string
		if a.Posture != "" {
			desc = append(desc, a.Posture)
		}
		if a.Activity != "" {
			desc = append(desc, a.Activity)
		}
		if len(desc) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("Frame %d: %s (confidence %.2f)",
			fr.FrameIndex, strings.Join(desc, ", "), a.Confidence))
	}
	writeList(b, "\n## Scene\n", lines)
}

func writeRecommendations(b *strings.Builder, r monitor.Recommendations) {
	if len(r.Immediate)+len(r.ShortTerm)+len(r.LongTerm) == 0 {
		return
	}
	b.WriteString("\n## Recommendations\n")
	writeList(b, "Immediate:\n", r.Immediate)
	writeList(b, "Short term:\n", r.ShortTerm)
	writeList(b, "Long term:\n", r.LongTerm)
}

func writeList(b *strings.Builder, header string, items []string) {
	var kept []string
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return
	}
	b.WriteString(header)
	for _, it := range kept {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func statusVerb(status string) string {
	switch status {
	case monitor.StatusCompleted:
		return "completed"
	case monitor.StatusFailed:
		return "failed"
	case monitor.StatusCancelled:
		return "was cancelled"
	default:
		return "is " + status
	}
}
