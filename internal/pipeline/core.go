// Package pipeline ingests flow and CO2 samples, runs them through the
// breath segmenter, the CO2 integrator and the session aggregator, and
// produces one MetricRecord per sample for the storage backends.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/breath"
	"github.com/chrissnell/capnograph/internal/co2"
	"github.com/chrissnell/capnograph/internal/ring"
	"github.com/chrissnell/capnograph/internal/session"
	"github.com/chrissnell/capnograph/internal/types"
)

// Core owns all per-session state. It is not safe for concurrent use; the
// Pipeline confines it to a single goroutine.
type Core struct {
	logger    *zap.SugaredLogger
	settings  Settings
	sessionID uuid.UUID

	segmenter  *breath.Segmenter
	integrator *co2.Integrator
	aggregator *session.Aggregator

	flowHistory  *ring.Buffer[types.Point]
	co2History   *ring.Buffer[types.Point]
	ratioHistory *ring.Buffer[types.Point]

	lastFlow       *types.Point
	lastCO2        *types.Point
	lastBreath     *types.BreathSegment
	lastRatio      float64
	ratioUndefined bool

	flowSamples uint64
	co2Samples  uint64
}

// NewCore creates a Core with a fresh session
func NewCore(settings Settings, logger *zap.SugaredLogger) *Core {
	settings = settings.withDefaults()

	integrator := co2.NewIntegrator(settings.CO2Trigger)
	integrator.SetInterval(settings.NominalInterval, settings.IntervalTolerance)

	return &Core{
		logger:       logger,
		settings:     settings,
		sessionID:    uuid.New(),
		segmenter:    breath.NewSegmenter(settings.FlowTrigger),
		integrator:   integrator,
		aggregator:   session.NewAggregator(settings.VolumeCapacity),
		flowHistory:  ring.New[types.Point](settings.HistoryCapacity),
		co2History:   ring.New[types.Point](settings.HistoryCapacity),
		ratioHistory: ring.New[types.Point](settings.HistoryCapacity),
	}
}

// Ingest processes one sample and returns the record describing it
func (c *Core) Ingest(s types.Sample) types.MetricRecord {
	switch s.Channel {
	case types.Flow:
		return c.ingestFlow(s)
	case types.CO2:
		return c.ingestCO2(s)
	default:
		c.logger.Warnw("dropping sample from unknown channel", "channel", s.Channel.String())
		return types.MetricRecord{SessionID: c.sessionID}
	}
}

func (c *Core) ingestFlow(s types.Sample) types.MetricRecord {
	p := types.Point{Timestamp: s.Timestamp, Value: s.Value}
	c.flowHistory.Push(p)
	c.lastFlow = &p
	c.flowSamples++

	rec := types.MetricRecord{
		SessionID:     c.sessionID,
		FlowTimestamp: types.Time(s.Timestamp),
		FlowValue:     types.Float(s.Value),
	}

	seg, closed := c.segmenter.Process(s.Timestamp, s.Value)
	if !closed {
		return rec
	}

	c.aggregator.OnBreathClosed(seg)
	c.lastBreath = &seg
	rec.BreathTimestamp = types.Time(seg.EndTime)
	rec.BreathVolume = types.Float(seg.Volume)
	rec.Breath = &seg

	c.logger.Debugw("breath closed",
		"volume_l", seg.Volume,
		"samples", seg.SampleCount,
		"duration", seg.Duration(),
		"average_l", c.aggregator.AverageVolume())

	return rec
}

func (c *Core) ingestCO2(s types.Sample) types.MetricRecord {
	p := types.Point{Timestamp: s.Timestamp, Value: s.Value}
	c.co2History.Push(p)
	c.lastCO2 = &p
	c.co2Samples++

	rec := types.MetricRecord{
		SessionID:    c.sessionID,
		CO2Timestamp: types.Time(s.Timestamp),
		CO2Value:     types.Float(s.Value),
	}

	integrated := s.Value > c.integrator.Trigger()
	ratio, err := c.integrator.Process(s.Timestamp, s.Value)
	switch {
	case errors.Is(err, co2.ErrDivisionByZero):
		c.ratioUndefined = true
		rec.VETimestamp = types.Time(s.Timestamp)
		rec.VEUndefined = true
		c.logger.Debugw("VE/VCO2 undefined", "co2_ppm", s.Value, "points", c.integrator.State().PointCount)
	case err != nil:
		c.logger.Errorf("CO2 integration failed: %v", err)
	case integrated:
		c.lastRatio = ratio
		c.ratioUndefined = false
		c.ratioHistory.Push(types.Point{Timestamp: s.Timestamp, Value: ratio})
		rec.VETimestamp = types.Time(s.Timestamp)
		rec.VEOverVCO2 = types.Float(ratio)
	default:
		c.ratioHistory.Push(types.Point{Timestamp: s.Timestamp, Value: 0})
	}

	if c.aggregator.OnCoSample(s.Value) {
		rec.PeakTimestamp = types.Time(s.Timestamp)
		rec.PeakCO2 = types.Float(s.Value)
	}

	return rec
}

// SetFlowTrigger changes the breath trigger in SLPM
func (c *Core) SetFlowTrigger(v float64) error {
	if !validTrigger(v) {
		c.logger.Warnf("rejected flow trigger %v", v)
		return fmt.Errorf("flow trigger %v: %w", v, ErrInvalidSetting)
	}
	c.settings.FlowTrigger = v
	c.segmenter.SetTrigger(v)
	c.logger.Infof("flow trigger set to %v SLPM", v)
	return nil
}

// SetCo2Trigger changes the CO2 integration trigger in ppm
func (c *Core) SetCo2Trigger(v float64) error {
	if !validTrigger(v) {
		c.logger.Warnf("rejected CO2 trigger %v", v)
		return fmt.Errorf("CO2 trigger %v: %w", v, ErrInvalidSetting)
	}
	c.settings.CO2Trigger = v
	c.integrator.SetTrigger(v)
	c.logger.Infof("CO2 trigger set to %v ppm", v)
	return nil
}

// SetHistoryCapacity resizes the display histories, keeping the newest points
func (c *Core) SetHistoryCapacity(n int) error {
	if n < 1 {
		c.logger.Warnf("rejected history capacity %d", n)
		return fmt.Errorf("history capacity %d: %w", n, ErrInvalidSetting)
	}
	c.settings.HistoryCapacity = n
	c.flowHistory.Resize(n)
	c.co2History.Resize(n)
	c.ratioHistory.Resize(n)
	c.logger.Infof("display history capacity set to %d", n)
	return nil
}

// ResetSession clears the breath statistics, the peak and the CO2 integral,
// discards an open breath and starts a new session id. Display histories
// and sample counters are kept.
func (c *Core) ResetSession() uuid.UUID {
	c.segmenter.Reset()
	c.integrator.Reset()
	c.aggregator.Reset()
	c.lastBreath = nil
	c.lastRatio = 0
	c.ratioUndefined = false
	c.sessionID = uuid.New()
	c.logger.Infof("session reset, new session %s", c.sessionID)
	return c.sessionID
}

// Settings returns the settings currently in effect
func (c *Core) Settings() Settings {
	return c.settings
}

// SessionID returns the id stamped onto every record of the current session
func (c *Core) SessionID() uuid.UUID {
	return c.sessionID
}

// History returns the display history for a channel, oldest first
func (c *Core) History(ch types.Channel) []types.Point {
	switch ch {
	case types.Flow:
		return c.flowHistory.Values()
	case types.CO2:
		return c.co2History.Values()
	}
	return nil
}

// RatioHistory returns the display history of VE/VCO2 values. Samples below
// the CO2 trigger appear as 0; undefined ratios are not recorded.
func (c *Core) RatioHistory() []types.Point {
	return c.ratioHistory.Values()
}
