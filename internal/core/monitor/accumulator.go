package monitor

import "fmt"

// sequenceAccumulator 维护一个会话的有序帧结果
// 只接受严格递增的帧序号，达到目标长度时报告完成，
// 完成信号是触发元分析的唯一入口
type sequenceAccumulator struct {
	target int
	frames []FrameResult
}

// NewSequenceAccumulator 创建固定长度的帧序列累积器
func NewSequenceAccumulator(target int) *sequenceAccumulator {
	return &sequenceAccumulator{
		target: target,
		frames: make([]FrameResult, 0, target),
	}
}

// Append 追加一帧结果
// 返回 complete=true 表示序列已满，可以进入合成阶段。
// 乱序或重复的帧序号返回 ErrSequence 且不改变内部状态。
func (a *sequenceAccumulator) Append(fr FrameResult) (complete bool, err error) {
	want := len(a.frames) + 1
	if fr.FrameIndex != want {
		return false, fmt.Errorf("%w: got index %d, want %d", ErrSequence, fr.FrameIndex, want)
	}
	if want > a.target {
		return false, fmt.Errorf("%w: index %d exceeds target %d", ErrSequence, fr.FrameIndex, a.target)
	}
	a.frames = append(a.frames, fr)
	return len(a.frames) == a.target, nil
}

// Len 当前已累积的帧数
func (a *sequenceAccumulator) Len() int {
	return len(a.frames)
}

// Frames 返回有序结果副本
func (a *sequenceAccumulator) Frames() []FrameResult {
	out := make([]FrameResult, len(a.frames))
	copy(out, a.frames)
	return out
}
