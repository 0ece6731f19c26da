package pipeline

import (
	"errors"
	"math"
	"time"

	"github.com/chrissnell/capnograph/internal/co2"
	"github.com/chrissnell/capnograph/internal/session"
)

// ErrInvalidSetting is returned when a configuration update is rejected.
// The previous configuration stays in effect.
var ErrInvalidSetting = errors.New("invalid setting")

// Settings holds the tunables of the metric pipeline
type Settings struct {
	FlowTrigger       float64       `json:"flow_trigger_slpm"`
	CO2Trigger        float64       `json:"co2_trigger_ppm"`
	NominalInterval   time.Duration `json:"nominal_interval"`
	IntervalTolerance time.Duration `json:"interval_tolerance"`
	HistoryCapacity   int           `json:"history_capacity"`
	VolumeCapacity    int           `json:"volume_capacity"`
	QueueDepth        int           `json:"queue_depth"`
}

// DefaultSettings returns the settings the breath sensor shipped with
func DefaultSettings() Settings {
	return Settings{
		FlowTrigger:       10.0,
		CO2Trigger:        20000.0,
		NominalInterval:   co2.DefaultNominalInterval,
		IntervalTolerance: co2.DefaultIntervalTolerance,
		HistoryCapacity:   500,
		VolumeCapacity:    session.DefaultVolumeCapacity,
		QueueDepth:        64,
	}
}

// withDefaults fills zero fields from DefaultSettings
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.NominalInterval <= 0 {
		s.NominalInterval = d.NominalInterval
	}
	if s.IntervalTolerance < 0 {
		s.IntervalTolerance = d.IntervalTolerance
	}
	if s.HistoryCapacity <= 0 {
		s.HistoryCapacity = d.HistoryCapacity
	}
	if s.VolumeCapacity <= 0 {
		s.VolumeCapacity = d.VolumeCapacity
	}
	if s.QueueDepth <= 0 {
		s.QueueDepth = d.QueueDepth
	}
	return s
}

func validTrigger(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
