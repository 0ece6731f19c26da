package pipeline

import (
	"github.com/google/uuid"

	"github.com/chrissnell/capnograph/internal/co2"
	"github.com/chrissnell/capnograph/internal/types"
)

// Snapshot is a point-in-time copy of everything the display shows
type Snapshot struct {
	SessionID uuid.UUID `json:"session_id"`
	Settings  Settings  `json:"settings"`

	LastFlow *types.Point `json:"last_flow,omitempty"`
	LastCO2  *types.Point `json:"last_co2,omitempty"`

	BreathOpen          bool                 `json:"breath_open"`
	LastBreath          *types.BreathSegment `json:"last_breath,omitempty"`
	LastBreathVolume    float64              `json:"last_breath_volume"`
	AverageBreathVolume float64              `json:"average_breath_volume"`
	BreathVolumeStdDev  float64              `json:"breath_volume_stddev"`
	BreathCount         int                  `json:"breath_count"`

	PeakCO2        float64 `json:"peak_co2_ppm"`
	PeakCO2Percent float64 `json:"peak_co2_percent"`

	VEOverVCO2  *float64  `json:"ve_over_vco2,omitempty"`
	VEUndefined bool      `json:"ve_undefined"`
	CO2Integral co2.State `json:"co2_integral"`

	FlowSamples uint64 `json:"flow_samples"`
	CO2Samples  uint64 `json:"co2_samples"`
}

// Snapshot copies the current state
func (c *Core) Snapshot() Snapshot {
	s := Snapshot{
		SessionID:           c.sessionID,
		Settings:            c.settings,
		BreathOpen:          c.segmenter.Open(),
		LastBreathVolume:    c.aggregator.LastVolume(),
		AverageBreathVolume: c.aggregator.AverageVolume(),
		BreathVolumeStdDev:  c.aggregator.VolumeStdDev(),
		BreathCount:         c.aggregator.BreathCount(),
		PeakCO2:             c.aggregator.PeakCO2(),
		PeakCO2Percent:      c.aggregator.PeakCO2() / 10000,
		VEUndefined:         c.ratioUndefined,
		CO2Integral:         c.integrator.State(),
		FlowSamples:         c.flowSamples,
		CO2Samples:          c.co2Samples,
	}

	if c.lastFlow != nil {
		p := *c.lastFlow
		s.LastFlow = &p
	}
	if c.lastCO2 != nil {
		p := *c.lastCO2
		s.LastCO2 = &p
	}
	if c.lastBreath != nil {
		b := *c.lastBreath
		s.LastBreath = &b
	}
	if !c.ratioUndefined && c.integrator.State().PointCount > 0 {
		s.VEOverVCO2 = types.Float(c.lastRatio)
	}

	return s
}
