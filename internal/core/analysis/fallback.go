package analysis

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/orm"
)

// fallbackConfidence 降级结果的固定置信度，提示下游信任度降低
const fallbackConfidence = 0.5

// fallbackRand 以 (会话 ID, 帧序号) 播种的确定性随机源
// 同一会话内各帧输出有差异，重放同一会话结果完全一致
func fallbackRand(sessionID string, frameIndex int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	return rand.New(rand.NewPCG(h.Sum64(), uint64(frameIndex)))
}

// fallbackAssessment 本地生成的替代评估
func fallbackAssessment(sessionID string, frameIndex int) monitor.Assessment {
	r := fallbackRand(sessionID, frameIndex)
	jitter := func(base, spread float64) float64 {
		v := base + (r.Float64()*2-1)*spread
		return math.Round(math.Min(10, math.Max(0, v))*10) / 10
	}
	postures := []string{"lying", "sitting", "standing"}
	activities := []string{"resting", "light movement", "stationary"}
	return monitor.Assessment{
		Detected:   true,
		Confidence: fallbackConfidence,
		Posture:    postures[r.IntN(len(postures))],
		Activity:   activities[r.IntN(len(activities))],
		Observations: []string{
			"automated placeholder assessment, vision provider unavailable",
		},
		Scores: monitor.Scores{
			Mobility:  jitter(6, 1.5),
			Alertness: jitter(6, 1.5),
			Comfort:   jitter(6.5, 1),
			Posture:   jitter(7, 1),
		},
	}
}

// fallbackFrameResult 降级帧结果，Err 记录 AI 调用被绕过的原因
func fallbackFrameResult(frame *monitor.Frame, actx monitor.AnalyzeContext, cause error) monitor.FrameResult {
	return monitor.FrameResult{
		FrameIndex: actx.FrameIndex,
		CapturedAt: frame.CapturedAt,
		RawFrame:   frame.Bytes,
		Analysis:   fallbackAssessment(actx.SessionID, actx.FrameIndex),
		Source:     monitor.SourceFallback,
		Err:        cause.Error(),
	}
}

// fallbackReport 确定性降级合成：
// 各维度评分取均值，风险级别取众数，关键发现去重串联
func fallbackReport(sess *monitor.CaptureSession) *monitor.MetaReport {
	avg := averageScores(sess.Frames)
	return &monitor.MetaReport{
		SourceSessionID: sess.ID,
		GeneratedAt:     orm.Now(),
		Source:          monitor.SourceFallback,
		AggregateScores: avg,
		RiskLevel:       modalRisk(sess.Frames),
		TemporalTrend:   scoreTrend(sess.Frames),
		Summary: fmt.Sprintf(
			"Automated synthesis over %d frames without provider assistance. Aggregate wellbeing averages %.1f/10 across scored dimensions. Direct review is advised to confirm.",
			len(sess.Frames), (avg.Mobility+avg.Alertness+avg.Comfort+avg.Posture)/4,
		),
		KeyFindings: dedupFindings(sess.Frames),
		Recommendations: monitor.Recommendations{
			Immediate: []string{"verify subject status with a direct check"},
			ShortTerm: []string{"re-run analysis once the vision provider recovers"},
			LongTerm:  []string{"review provider connectivity and error logs"},
		},
	}
}

func averageScores(frames []monitor.FrameResult) monitor.Scores {
	if len(frames) == 0 {
		return monitor.Scores{}
	}
	var s monitor.Scores
	for _, fr := range frames {
		s.Mobility += fr.Analysis.Scores.Mobility
		s.Alertness += fr.Analysis.Scores.Alertness
		s.Comfort += fr.Analysis.Scores.Comfort
		s.Posture += fr.Analysis.Scores.Posture
	}
	n := float64(len(frames))
	s.Mobility /= n
	s.Alertness /= n
	s.Comfort /= n
	s.Posture /= n
	return s
}

// riskFromScores 按均分映射风险级别
func riskFromScores(s monitor.Scores) string {
	avg := (s.Mobility + s.Alertness + s.Comfort + s.Posture) / 4
	switch {
	case avg >= 7:
		return monitor.RiskLow
	case avg >= 5:
		return monitor.RiskMedium
	case avg >= 3:
		return monitor.RiskHigh
	default:
		return monitor.RiskCritical
	}
}

// modalRisk 逐帧推导风险级别后取众数，平局取更高风险
func modalRisk(frames []monitor.FrameResult) string {
	if len(frames) == 0 {
		return monitor.RiskMedium
	}
	counts := make(map[string]int, 4)
	for _, fr := range frames {
		counts[riskFromScores(fr.Analysis.Scores)]++
	}
	order := []string{monitor.RiskCritical, monitor.RiskHigh, monitor.RiskMedium, monitor.RiskLow}
	best := monitor.RiskMedium
	bestCount := -1
	for _, level := range order {
		if counts[level] > bestCount {
			best = level
			bestCount = counts[level]
		}
	}
	return best
}

// scoreTrend 前后半段均分对比，差值超过 0.5 视为有趋势
func scoreTrend(frames []monitor.FrameResult) string {
	if len(frames) < 2 {
		return monitor.TrendStable
	}
	half := len(frames) / 2
	first := averageScores(frames[:half])
	last := averageScores(frames[len(frames)-half:])
	mean := func(s monitor.Scores) float64 {
		return (s.Mobility + s.Alertness + s.Comfort + s.Posture) / 4
	}
	switch delta := mean(last) - mean(first); {
	case delta > 0.5:
		return monitor.TrendImproving
	case delta < -0.5:
		return monitor.TrendDeclining
	default:
		return monitor.TrendStable
	}
}

func dedupFindings(frames []monitor.FrameResult) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(frames))
	for _, fr := range frames {
		for _, obs := range fr.Analysis.Observations {
			key := strings.ToLower(strings.TrimSpace(obs))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, strings.TrimSpace(obs))
		}
	}
	return out
}
