// Package co2 integrates CO2 concentration over time and derives the
// VE/VCO2 ratio from the running integral.
package co2

import (
	"errors"
	"math"
	"time"
)

// ErrDivisionByZero is returned when the ratio is requested while the
// integral is zero. The accompanying ratio is +Inf.
var ErrDivisionByZero = errors.New("co2: VE/VCO2 undefined, CO2 integral is zero")

const (
	// DefaultNominalInterval is the meters' sample cadence
	DefaultNominalInterval = 50 * time.Millisecond
	// DefaultIntervalTolerance bounds how far a measured delta may stray from
	// the nominal interval before the nominal interval is used instead
	DefaultIntervalTolerance = 10 * time.Millisecond
)

// State is a copy of the integrator's accumulated values
type State struct {
	Integral   float64 `json:"integral"`
	PointCount int     `json:"point_count"`
}

// Integrator accumulates CO2 fraction × seconds while the concentration is
// above the trigger. The integral is never reset when the concentration
// falls back below the trigger; it accumulates across breaths until Reset is
// called, making the ratio a cumulative session metric.
type Integrator struct {
	trigger   float64
	nominal   time.Duration
	tolerance time.Duration

	integral float64
	points   int
	// timestamps of the last two integrated samples, oldest first
	times [2]time.Time
	seen  int
}

// NewIntegrator creates an Integrator with the given trigger in ppm and the
// default 50ms nominal interval with ±10ms tolerance
func NewIntegrator(trigger float64) *Integrator {
	return &Integrator{
		trigger:   trigger,
		nominal:   DefaultNominalInterval,
		tolerance: DefaultIntervalTolerance,
	}
}

// SetTrigger changes the CO2 trigger in ppm, effective from the next sample
func (g *Integrator) SetTrigger(trigger float64) {
	g.trigger = trigger
}

// Trigger returns the current CO2 trigger in ppm
func (g *Integrator) Trigger() float64 {
	return g.trigger
}

// SetInterval changes the nominal sample interval and tolerance band.
// Non-positive nominal intervals and negative tolerances are ignored.
func (g *Integrator) SetInterval(nominal, tolerance time.Duration) {
	if nominal > 0 {
		g.nominal = nominal
	}
	if tolerance >= 0 {
		g.tolerance = tolerance
	}
}

// NominalInterval returns the nominal sample interval
func (g *Integrator) NominalInterval() time.Duration {
	return g.nominal
}

// Process integrates one CO2 sample and returns the VE/VCO2 ratio. Samples
// at or below the trigger return 0 and leave the integrator untouched. If
// the integral is zero the ratio is +Inf and ErrDivisionByZero is returned.
func (g *Integrator) Process(ts time.Time, value float64) (float64, error) {
	if value <= g.trigger {
		return 0, nil
	}

	g.pushTime(ts)
	g.integral += (value / 1e6) * g.effectiveInterval().Seconds()
	g.points++

	return g.Ratio()
}

// Ratio computes VE/VCO2 from the current state without integrating anything
func (g *Integrator) Ratio() (float64, error) {
	if g.integral == 0 {
		return math.Inf(1), ErrDivisionByZero
	}
	return 1 / (g.integral / (float64(g.points) * g.nominal.Seconds())), nil
}

// State returns a copy of the accumulated values
func (g *Integrator) State() State {
	return State{Integral: g.integral, PointCount: g.points}
}

// Reset zeroes the integral, the point count and the timestamp history
func (g *Integrator) Reset() {
	g.integral = 0
	g.points = 0
	g.times = [2]time.Time{}
	g.seen = 0
}

func (g *Integrator) pushTime(ts time.Time) {
	g.times[0] = g.times[1]
	g.times[1] = ts
	if g.seen < 2 {
		g.seen++
	}
}

// effectiveInterval is the measured delta between the last two integrated
// samples when it lies within the tolerance band, else the nominal interval
func (g *Integrator) effectiveInterval() time.Duration {
	if g.seen < 2 {
		return g.nominal
	}
	delta := g.times[1].Sub(g.times[0])
	if delta < g.nominal-g.tolerance || delta > g.nominal+g.tolerance {
		return g.nominal
	}
	return delta
}
