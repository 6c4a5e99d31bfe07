// Package align matches decoded video frames against an annotation index and
// decides, frame by frame, what the output stream should contain.
package align

import (
	"fmt"
	"math"

	"github.com/iverona/face-detect/internal/annotation"
)

// DefaultMissThreshold is the number of consecutive misses that may be
// skipped before an unmodified frame is emitted.
const DefaultMissThreshold = 2

// Action is the fate of one frame.
type Action int

const (
	// Skip drops the frame from the output.
	Skip Action = iota
	// Plain emits the frame unmodified.
	Plain
	// Overlay emits the frame with its detections drawn on it.
	Overlay
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case Plain:
		return "plain"
	case Overlay:
		return "overlay"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decision is the aligner's verdict on one frame.
type Decision struct {
	Frame  int
	Offset string
	Action Action
	Events []annotation.Event // set only for Overlay
}

// Aligner walks frames in order and applies the retention policy. It holds a
// single counter of misses since the last emitted frame, so decisions depend
// on every earlier call and must be requested in frame order.
type Aligner struct {
	index         *annotation.Index
	fps           float64
	missThreshold int
	sinceHit      int
}

// New builds an aligner for a stream decoded at fps.
func New(index *annotation.Index, fps float64, missThreshold int) (*Aligner, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}
	if missThreshold < 0 {
		return nil, fmt.Errorf("miss threshold must be >= 0, got %d", missThreshold)
	}
	return &Aligner{index: index, fps: fps, missThreshold: missThreshold}, nil
}

// Decide returns the decision for zero-based frame n.
func (a *Aligner) Decide(n int) Decision {
	offset := annotation.FrameOffset(n, a.fps)
	d := Decision{Frame: n, Offset: offset}

	if events, ok := a.index.Lookup(offset); ok {
		a.sinceHit = 0
		d.Action = Overlay
		d.Events = events
		return d
	}

	if a.sinceHit <= a.missThreshold {
		a.sinceHit++
		d.Action = Skip
		return d
	}

	a.sinceHit = 0
	d.Action = Plain
	return d
}

// Reset clears the retention state, e.g. before re-walking a stream.
func (a *Aligner) Reset() {
	a.sinceHit = 0
}
