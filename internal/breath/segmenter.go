// Package breath turns a threshold-crossing flow signal into discrete breath
// segments.
package breath

import (
	"time"

	"github.com/chrissnell/capnograph/internal/types"
)

// VolumeFactor converts one flow reading (SLPM) into the volume, in liters,
// attributed to a single sample at the meter's fixed 50ms cadence.
const VolumeFactor = 5.0 / 6000.0

// Segmenter detects breaths as runs of flow samples at or above the trigger.
// A single sample above the trigger is enough to open a breath and a single
// sample below is enough to close it; there is no minimum duration.
type Segmenter struct {
	trigger float64

	open        bool
	start       time.Time
	volume      float64
	sampleCount int
}

// NewSegmenter creates a Segmenter with the given flow trigger in SLPM
func NewSegmenter(trigger float64) *Segmenter {
	return &Segmenter{trigger: trigger}
}

// SetTrigger changes the flow trigger. An open breath is kept and judged
// against the new trigger from the next sample on.
func (s *Segmenter) SetTrigger(trigger float64) {
	s.trigger = trigger
}

// Trigger returns the current flow trigger
func (s *Segmenter) Trigger() float64 {
	return s.trigger
}

// Open reports whether a breath is currently in progress
func (s *Segmenter) Open() bool {
	return s.open
}

// Process feeds one flow sample. When the sample closes a breath the
// completed segment is returned with ok set.
func (s *Segmenter) Process(ts time.Time, value float64) (seg types.BreathSegment, ok bool) {
	above := value >= s.trigger

	switch {
	case !s.open && above:
		s.open = true
		s.start = ts
		s.volume = value * VolumeFactor
		s.sampleCount = 1
	case s.open && above:
		s.volume += value * VolumeFactor
		s.sampleCount++
	case s.open && !above:
		seg = types.BreathSegment{
			StartTime:   s.start,
			EndTime:     ts,
			Volume:      s.volume,
			SampleCount: s.sampleCount,
		}
		s.Reset()
		return seg, true
	}

	return types.BreathSegment{}, false
}

// Reset discards any breath in progress
func (s *Segmenter) Reset() {
	s.open = false
	s.start = time.Time{}
	s.volume = 0
	s.sampleCount = 0
}
