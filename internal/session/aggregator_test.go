package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chrissnell/capnograph/internal/types"
)

func breath(v float64) types.BreathSegment {
	return types.BreathSegment{Volume: v, SampleCount: 1}
}

func TestAverageVolume(t *testing.T) {
	a := NewAggregator(DefaultVolumeCapacity)
	assert.Equal(t, 0.0, a.AverageVolume())

	for _, v := range []float64{1.0, 2.0, 3.0} {
		a.OnBreathClosed(breath(v))
	}
	assert.InDelta(t, 2.0, a.AverageVolume(), 1e-12)
	assert.InDelta(t, 1.0, a.VolumeStdDev(), 1e-12)
	assert.Equal(t, 3.0, a.LastVolume())

	a.Reset()
	assert.Equal(t, 0.0, a.AverageVolume())
	assert.Equal(t, 0.0, a.VolumeStdDev())
	assert.Equal(t, 0.0, a.LastVolume())
	assert.Equal(t, 0, a.BreathCount())
}

func TestCapacityEviction(t *testing.T) {
	a := NewAggregator(100)
	for i := 1; i <= 101; i++ {
		a.OnBreathClosed(breath(float64(i)))
	}

	vols := a.Volumes()
	assert.Len(t, vols, 100)
	assert.Equal(t, 2.0, vols[0])
	assert.Equal(t, 101.0, vols[99])
	for i := 1; i < len(vols); i++ {
		assert.Less(t, vols[i-1], vols[i], "arrival order must be preserved")
	}
	assert.InDelta(t, 51.5, a.AverageVolume(), 1e-9)
	assert.Equal(t, 101, a.BreathCount())
}

func TestPeakIsMonotonicUntilReset(t *testing.T) {
	a := NewAggregator(10)
	tests := []struct {
		value  float64
		raised bool
		peak   float64
	}{
		{30000, true, 30000},
		{45000, true, 45000},
		{20000, false, 45000},
		{45000, false, 45000},
		{46000, true, 46000},
		{0, false, 46000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.raised, a.OnCoSample(tt.value))
		assert.Equal(t, tt.peak, a.PeakCO2())
	}

	a.Reset()
	assert.Equal(t, 0.0, a.PeakCO2())
	assert.True(t, a.OnCoSample(400))
}

func TestSingleBreathStdDev(t *testing.T) {
	a := NewAggregator(0)
	a.OnBreathClosed(breath(0.5))
	assert.Equal(t, 0.0, a.VolumeStdDev())
	assert.Equal(t, 0.5, a.AverageVolume())
}
