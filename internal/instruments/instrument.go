// Package instruments reads flow and CO2 readings from TCP, serial or
// recorded sources and delivers them to the metric pipeline.
package instruments

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/config"
)

// Instrument is an acquisition source for one channel
type Instrument interface {
	StartInstrument() error
	InstrumentName() string
	Channel() types.Channel
}

// Deliverer accepts samples from instruments. Deliver may block the calling
// instrument until there is room for the sample.
type Deliverer interface {
	Deliver(ctx context.Context, s types.Sample) error
}

// base carries what every instrument implementation shares
type base struct {
	ctx       context.Context
	config    config.InstrumentData
	channel   types.Channel
	deliverer Deliverer
	decoder   *Decoder
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func newBase(ctx context.Context, cfg config.InstrumentData, deliverer Deliverer, logger *zap.SugaredLogger) (base, error) {
	ch, err := types.ParseChannel(cfg.Channel)
	if err != nil {
		return base{}, fmt.Errorf("instrument [%s]: %w", cfg.Name, err)
	}
	return base{
		ctx:       ctx,
		config:    cfg,
		channel:   ch,
		deliverer: deliverer,
		decoder:   NewDecoder(cfg.TokenIndex, cfg.Scale),
		logger:    logger.With("instrument", cfg.Name, "channel", ch.String()),
		now:       time.Now,
	}, nil
}

func (b *base) InstrumentName() string {
	return b.config.Name
}

func (b *base) Channel() types.Channel {
	return b.channel
}

// handleLine decodes one line and delivers the reading. Lines that do not
// decode are replaced by the last good reading.
func (b *base) handleLine(line string) error {
	v, err := b.decoder.Decode(line)
	if err != nil {
		b.logger.Warnf("bad reading %q, substituting last good value %v: %v", line, v, err)
	}
	return b.deliver(v)
}

// repeatLastGood delivers the last good reading again, standing in for a
// reading the instrument failed to send.
func (b *base) repeatLastGood() error {
	return b.deliver(b.decoder.LastGood())
}

func (b *base) deliver(v float64) error {
	return b.deliverer.Deliver(b.ctx, types.Sample{
		Channel:   b.channel,
		Timestamp: b.now(),
		Value:     v,
	})
}
