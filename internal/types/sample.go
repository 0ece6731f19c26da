// Package types holds the value types shared between the instruments, the
// metric pipeline and the storage backends.
package types

import (
	"fmt"
	"math"
	"time"
)

// Channel identifies which instrument a sample came from
type Channel int

const (
	// Flow is the volumetric flow meter, reporting SLPM
	Flow Channel = iota
	// CO2 is the CO2 meter, reporting ppm
	CO2
)

func (c Channel) String() string {
	switch c {
	case Flow:
		return "flow"
	case CO2:
		return "co2"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseChannel converts a channel name as used in configuration and URLs
func ParseChannel(s string) (Channel, error) {
	switch s {
	case "flow":
		return Flow, nil
	case "co2":
		return CO2, nil
	default:
		return 0, fmt.Errorf("unknown channel %q", s)
	}
}

// Sample is a single timestamped instrument reading
type Sample struct {
	Channel   Channel
	Timestamp time.Time
	Value     float64
}

// Point is a (timestamp, value) pair kept for display histories
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeFromEpoch converts fractional epoch seconds to a time.Time
func TimeFromEpoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}

// BreathSegment is one continuous interval during which flow stayed at or
// above the flow trigger.
type BreathSegment struct {
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Volume      float64   `json:"volume"`
	SampleCount int       `json:"sample_count"`
}

// Duration returns the elapsed time between the first sample and the closing sample
func (b BreathSegment) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}
