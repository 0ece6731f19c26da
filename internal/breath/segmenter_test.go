package breath

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/capnograph/internal/types"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(i int) time.Time {
	return t0.Add(time.Duration(i) * 50 * time.Millisecond)
}

// feed runs values through s and collects every closed segment
func feed(s *Segmenter, values []float64) []types.BreathSegment {
	var out []types.BreathSegment
	for i, v := range values {
		if seg, ok := s.Process(at(i), v); ok {
			out = append(out, seg)
		}
	}
	return out
}

func TestSingleCrossing(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		trigger float64
		above   []float64
	}{
		{
			name:    "ramp up and down",
			values:  []float64{0, 5, 12, 30, 45, 30, 11, 4, 0},
			trigger: 10,
			above:   []float64{12, 30, 45, 30, 11},
		},
		{
			name:    "value equal to trigger counts as above",
			values:  []float64{9.9, 10, 10, 9.9},
			trigger: 10,
			above:   []float64{10, 10},
		},
		{
			name:    "starts above trigger",
			values:  []float64{20, 20, 20, 1},
			trigger: 10,
			above:   []float64{20, 20, 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSegmenter(tt.trigger)
			segs := feed(s, tt.values)
			require.Len(t, segs, 1)

			var want float64
			for _, v := range tt.above {
				want += v * 5 / 6000
			}
			assert.InDelta(t, want, segs[0].Volume, 1e-12)
			assert.Equal(t, len(tt.above), segs[0].SampleCount)
			assert.False(t, s.Open())
		})
	}
}

func TestSegmentTimestamps(t *testing.T) {
	s := NewSegmenter(10)
	segs := feed(s, []float64{0, 15, 15, 15, 0})
	require.Len(t, segs, 1)

	assert.Equal(t, at(1), segs[0].StartTime)
	assert.Equal(t, at(4), segs[0].EndTime)
	assert.Equal(t, 150*time.Millisecond, segs[0].Duration())
}

// A lone sample above the trigger is its own breath. Noisy signals can
// therefore produce very short spurious breaths.
func TestSingleSampleBreath(t *testing.T) {
	s := NewSegmenter(10)
	segs := feed(s, []float64{2, 3, 25, 3, 2})
	require.Len(t, segs, 1)

	assert.Equal(t, 1, segs[0].SampleCount)
	assert.InDelta(t, 25*VolumeFactor, segs[0].Volume, 1e-12)
	assert.Equal(t, at(2), segs[0].StartTime)
	assert.Equal(t, at(3), segs[0].EndTime)
}

func TestNoisyThresholdProducesSpuriousBreaths(t *testing.T) {
	s := NewSegmenter(10)
	segs := feed(s, []float64{11, 9, 11, 9, 11, 9})
	assert.Len(t, segs, 3)
	for _, seg := range segs {
		assert.Equal(t, 1, seg.SampleCount)
	}
}

func TestBelowTriggerIsNoop(t *testing.T) {
	s := NewSegmenter(10)
	segs := feed(s, []float64{0, 1, 2, 9.999, -3})
	assert.Empty(t, segs)
	assert.False(t, s.Open())
}

func TestUnterminatedBreathStaysOpen(t *testing.T) {
	s := NewSegmenter(10)
	segs := feed(s, []float64{0, 20, 20})
	assert.Empty(t, segs)
	assert.True(t, s.Open())

	s.Reset()
	assert.False(t, s.Open())
	_, ok := s.Process(at(10), 0)
	assert.False(t, ok, "reset must discard the open breath")
}

func TestTriggerChangeAppliesToNextSample(t *testing.T) {
	s := NewSegmenter(10)
	_, ok := s.Process(at(0), 15)
	assert.False(t, ok)

	s.SetTrigger(20)
	seg, ok := s.Process(at(1), 15)
	require.True(t, ok)
	assert.Equal(t, 1, seg.SampleCount)
	assert.InDelta(t, 15*VolumeFactor, seg.Volume, 1e-12)
	assert.Equal(t, 20.0, s.Trigger())
}

func TestVolumeFactor(t *testing.T) {
	// 60 SLPM for one second (20 samples at 50ms) is one liter
	s := NewSegmenter(10)
	values := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		values = append(values, 60)
	}
	values = append(values, 0)

	segs := feed(s, values)
	require.Len(t, segs, 1)
	assert.True(t, math.Abs(segs[0].Volume-1.0) < 1e-9)
}
