package monitor

import (
	"errors"
	"testing"
)

func TestSequenceAccumulatorOrder(t *testing.T) {
	acc := NewSequenceAccumulator(3)

	complete, err := acc.Append(FrameResult{FrameIndex: 1})
	if err != nil || complete {
		t.Fatalf("first append: complete=%v err=%v", complete, err)
	}

	// 重复序号
	if _, err := acc.Append(FrameResult{FrameIndex: 1}); !errors.Is(err, ErrSequence) {
		t.Fatalf("duplicate index want ErrSequence, got %v", err)
	}
	// 跳号
	if _, err := acc.Append(FrameResult{FrameIndex: 3}); !errors.Is(err, ErrSequence) {
		t.Fatalf("skipped index want ErrSequence, got %v", err)
	}
	// 拒绝之后状态不变
	if acc.Len() != 1 {
		t.Fatalf("len after rejects = %d", acc.Len())
	}

	if _, err := acc.Append(FrameResult{FrameIndex: 2}); err != nil {
		t.Fatal(err)
	}
	complete, err = acc.Append(FrameResult{FrameIndex: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Fatal("sequence should be complete at target length")
	}
}

func TestSequenceAccumulatorFramesCopy(t *testing.T) {
	acc := NewSequenceAccumulator(2)
	if _, err := acc.Append(FrameResult{FrameIndex: 1, Source: SourceAIProvider}); err != nil {
		t.Fatal(err)
	}

	frames := acc.Frames()
	frames[0].Source = SourceFallback
	if acc.Frames()[0].Source != SourceAIProvider {
		t.Fatal("Frames must return a copy")
	}
}
