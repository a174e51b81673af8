package dedup

import "time"

// Similarity is the part of an identity bank the guard needs.
type Similarity interface {
	MaxSimilarity(query []float32) (float32, bool)
}

// Reason names the layer that flagged a duplicate.
type Reason string

const (
	ReasonNone   Reason = ""
	ReasonGlobal Reason = "global"
	ReasonBuffer Reason = "buffer"
)

// Verdict is the outcome of one guard check.
type Verdict struct {
	Duplicate  bool
	Reason     Reason
	Similarity float32
}

// Guard runs the two duplicate checks that precede an auto-registration.
// It holds no lock; the caller serializes check and register.
type Guard struct {
	GlobalThreshold float32
	BufferThreshold float32
}

func NewGuard(globalThreshold, bufferThreshold float32) Guard {
	return Guard{GlobalThreshold: globalThreshold, BufferThreshold: bufferThreshold}
}

// Check runs the global bank re-check first, then the camera buffer.
// A nil buffer skips the second layer.
func (g Guard) Check(bank Similarity, buffer *Buffer, query []float32, now time.Time) Verdict {
	if bank != nil {
		if sim, ok := bank.MaxSimilarity(query); ok && sim >= g.GlobalThreshold {
			return Verdict{Duplicate: true, Reason: ReasonGlobal, Similarity: sim}
		}
	}
	if buffer != nil {
		if sim, ok := buffer.Match(query, now, g.BufferThreshold); ok {
			return Verdict{Duplicate: true, Reason: ReasonBuffer, Similarity: sim}
		}
	}
	return Verdict{}
}
