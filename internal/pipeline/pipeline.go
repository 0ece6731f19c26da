package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/types"
)

// ErrQueueFull is returned by TryDeliver when the channel's queue has no room
var ErrQueueFull = errors.New("sample queue full")

// ErrStopped is returned by commands issued after the pipeline has stopped
var ErrStopped = errors.New("metric pipeline stopped")

// Publisher receives the record produced for every processed sample.
// Publish must not block.
type Publisher interface {
	Publish(types.MetricRecord)
}

type command struct {
	fn   func(*Core) error
	done chan error
}

// Pipeline confines a Core to one goroutine. Each instrument channel gets
// its own bounded queue so a stalled or flooding instrument never blocks
// the other one. Configuration changes and queries run on the same
// goroutine between samples.
type Pipeline struct {
	core      *Core
	publisher Publisher
	logger    *zap.SugaredLogger

	flowQ chan types.Sample
	co2Q  chan types.Sample
	cmds  chan command

	stopped chan struct{}
}

// New creates a Pipeline. publisher may be nil.
func New(settings Settings, publisher Publisher, logger *zap.SugaredLogger) *Pipeline {
	settings = settings.withDefaults()
	return &Pipeline{
		core:      NewCore(settings, logger),
		publisher: publisher,
		logger:    logger,
		flowQ:     make(chan types.Sample, settings.QueueDepth),
		co2Q:      make(chan types.Sample, settings.QueueDepth),
		cmds:      make(chan command),
		stopped:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine
func (p *Pipeline) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()
}

// Run consumes samples and commands until ctx is cancelled. It must be
// called only once.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("starting metric pipeline")
	defer close(p.stopped)
	for {
		select {
		case s := <-p.flowQ:
			p.process(s)
		case s := <-p.co2Q:
			p.process(s)
		case cmd := <-p.cmds:
			cmd.done <- cmd.fn(p.core)
		case <-ctx.Done():
			p.logger.Info("cancellation request received. Stopping metric pipeline")
			return
		}
	}
}

func (p *Pipeline) process(s types.Sample) {
	rec := p.core.Ingest(s)
	if p.publisher != nil {
		p.publisher.Publish(rec)
	}
}

func (p *Pipeline) queue(ch types.Channel) (chan types.Sample, error) {
	switch ch {
	case types.Flow:
		return p.flowQ, nil
	case types.CO2:
		return p.co2Q, nil
	default:
		return nil, fmt.Errorf("no queue for %v", ch)
	}
}

// Deliver queues a sample, waiting for room in its channel's queue. Only the
// calling producer waits; the other channel is unaffected.
func (p *Pipeline) Deliver(ctx context.Context, s types.Sample) error {
	q, err := p.queue(s.Channel)
	if err != nil {
		return err
	}
	select {
	case q <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryDeliver queues a sample without waiting
func (p *Pipeline) TryDeliver(s types.Sample) error {
	q, err := p.queue(s.Channel)
	if err != nil {
		return err
	}
	select {
	case q <- s:
		return nil
	default:
		return fmt.Errorf("%v: %w", s.Channel, ErrQueueFull)
	}
}

// do runs fn on the consumer goroutine and waits for its result
func (p *Pipeline) do(ctx context.Context, fn func(*Core) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case p.cmds <- cmd:
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-p.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetFlowTrigger changes the flow trigger between samples
func (p *Pipeline) SetFlowTrigger(ctx context.Context, v float64) error {
	return p.do(ctx, func(c *Core) error { return c.SetFlowTrigger(v) })
}

// SetCo2Trigger changes the CO2 trigger between samples
func (p *Pipeline) SetCo2Trigger(ctx context.Context, v float64) error {
	return p.do(ctx, func(c *Core) error { return c.SetCo2Trigger(v) })
}

// SetHistoryCapacity resizes the display histories between samples
func (p *Pipeline) SetHistoryCapacity(ctx context.Context, n int) error {
	return p.do(ctx, func(c *Core) error { return c.SetHistoryCapacity(n) })
}

// ResetSession resets the session statistics and returns the new session id
func (p *Pipeline) ResetSession(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.do(ctx, func(c *Core) error {
		id = c.ResetSession()
		return nil
	})
	return id, err
}

// Snapshot returns a copy of the current display state
func (p *Pipeline) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := p.do(ctx, func(c *Core) error {
		s = c.Snapshot()
		return nil
	})
	return s, err
}

// History returns the display history of a channel
func (p *Pipeline) History(ctx context.Context, ch types.Channel) ([]types.Point, error) {
	var pts []types.Point
	err := p.do(ctx, func(c *Core) error {
		pts = c.History(ch)
		return nil
	})
	return pts, err
}

// RatioHistory returns the display history of VE/VCO2 values
func (p *Pipeline) RatioHistory(ctx context.Context) ([]types.Point, error) {
	var pts []types.Point
	err := p.do(ctx, func(c *Core) error {
		pts = c.RatioHistory()
		return nil
	})
	return pts, err
}
