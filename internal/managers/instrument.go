package managers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/instruments"
	"github.com/chrissnell/capnograph/pkg/config"
)

// InstrumentManager owns the configured acquisition sources
type InstrumentManager struct {
	instruments map[string]instruments.Instrument
	logger      *zap.SugaredLogger
}

// NewInstrumentManager creates an InstrumentManager populated with every enabled instrument
func NewInstrumentManager(ctx context.Context, wg *sync.WaitGroup, cfgs []config.InstrumentData, deliverer instruments.Deliverer, logger *zap.SugaredLogger) (*InstrumentManager, error) {
	im := &InstrumentManager{
		instruments: make(map[string]instruments.Instrument),
		logger:      logger,
	}

	for _, cfg := range cfgs {
		if !cfg.Enabled {
			logger.Infof("Skipping disabled instrument [%s]", cfg.Name)
			continue
		}
		in, err := createInstrumentFromConfig(ctx, wg, cfg, deliverer, logger)
		if err != nil {
			return nil, fmt.Errorf("error creating instrument [%s]: %w", cfg.Name, err)
		}
		im.instruments[cfg.Name] = in
	}

	return im, nil
}

// StartInstruments starts every instrument
func (im *InstrumentManager) StartInstruments() error {
	for name, in := range im.instruments {
		im.logger.Infof("Starting instrument [%v] on channel %v...", name, in.Channel())
		if err := in.StartInstrument(); err != nil {
			return fmt.Errorf("failed to start instrument [%s]: %w", name, err)
		}
	}
	return nil
}

// Instruments returns the names of the managed instruments
func (im *InstrumentManager) Instruments() []string {
	names := make([]string, 0, len(im.instruments))
	for name := range im.instruments {
		names = append(names, name)
	}
	return names
}

func createInstrumentFromConfig(ctx context.Context, wg *sync.WaitGroup, cfg config.InstrumentData, deliverer instruments.Deliverer, logger *zap.SugaredLogger) (instruments.Instrument, error) {
	switch cfg.Type {
	case "network", "serial":
		return instruments.NewStreamInstrument(ctx, wg, cfg, deliverer, logger)
	case "replay":
		return instruments.NewReplayInstrument(ctx, wg, cfg, deliverer, logger)
	default:
		return nil, fmt.Errorf("unknown instrument type: %s", cfg.Type)
	}
}
