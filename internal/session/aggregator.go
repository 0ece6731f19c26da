// Package session keeps the rolling breath-volume statistics and peak CO2
// for the current measurement session.
package session

import (
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/capnograph/internal/ring"
	"github.com/chrissnell/capnograph/internal/types"
)

// DefaultVolumeCapacity is how many breath volumes the rolling average covers
const DefaultVolumeCapacity = 100

// Aggregator tracks the most recent breath volumes and the peak CO2
// concentration since the last reset. It is not safe for concurrent use.
type Aggregator struct {
	volumes     *ring.Buffer[float64]
	peakCO2     float64
	breathCount int
}

// NewAggregator creates an Aggregator retaining up to capacity breath volumes
func NewAggregator(capacity int) *Aggregator {
	if capacity < 1 {
		capacity = DefaultVolumeCapacity
	}
	return &Aggregator{volumes: ring.New[float64](capacity)}
}

// OnBreathClosed records the volume of a completed breath, evicting the
// oldest volume once the capacity is reached
func (a *Aggregator) OnBreathClosed(seg types.BreathSegment) {
	a.volumes.Push(seg.Volume)
	a.breathCount++
}

// OnCoSample updates the peak concentration. It reports whether v raised
// the peak.
func (a *Aggregator) OnCoSample(v float64) bool {
	if v > a.peakCO2 {
		a.peakCO2 = v
		return true
	}
	return false
}

// AverageVolume is the arithmetic mean of the retained breath volumes, or 0
// when no breath has been recorded since the last reset
func (a *Aggregator) AverageVolume() float64 {
	if a.volumes.Len() == 0 {
		return 0
	}
	return stat.Mean(a.volumes.Values(), nil)
}

// VolumeStdDev is the sample standard deviation of the retained volumes, or
// 0 with fewer than two breaths
func (a *Aggregator) VolumeStdDev() float64 {
	if a.volumes.Len() < 2 {
		return 0
	}
	return stat.StdDev(a.volumes.Values(), nil)
}

// LastVolume returns the most recent breath volume, or 0 if there is none
func (a *Aggregator) LastVolume() float64 {
	v, _ := a.volumes.Last()
	return v
}

// PeakCO2 returns the highest concentration seen since the last reset
func (a *Aggregator) PeakCO2() float64 {
	return a.peakCO2
}

// Volumes returns the retained breath volumes, oldest first
func (a *Aggregator) Volumes() []float64 {
	return a.volumes.Values()
}

// BreathCount is the number of breaths recorded since the last reset,
// including those evicted from the rolling window
func (a *Aggregator) BreathCount() int {
	return a.breathCount
}

// Reset clears the breath volumes and the peak
func (a *Aggregator) Reset() {
	a.volumes.Clear()
	a.peakCO2 = 0
	a.breathCount = 0
}
