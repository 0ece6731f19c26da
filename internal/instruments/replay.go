package instruments

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/config"
)

// ReplayInstrument plays back one column of a recorded session at a fixed
// cadence, stamping each value with the time it is replayed
type ReplayInstrument struct {
	base
	wg       *sync.WaitGroup
	interval time.Duration
	values   []float64
}

// NewReplayInstrument loads cfg.ReplayFile and creates an instrument replaying it
func NewReplayInstrument(ctx context.Context, wg *sync.WaitGroup, cfg config.InstrumentData, deliverer Deliverer, logger *zap.SugaredLogger) (*ReplayInstrument, error) {
	f, err := os.Open(cfg.ReplayFile)
	if err != nil {
		return nil, fmt.Errorf("instrument [%s]: %w", cfg.Name, err)
	}
	defer f.Close()

	return newReplayInstrument(ctx, wg, cfg, f, deliverer, logger)
}

func newReplayInstrument(ctx context.Context, wg *sync.WaitGroup, cfg config.InstrumentData, r io.Reader, deliverer Deliverer, logger *zap.SugaredLogger) (*ReplayInstrument, error) {
	b, err := newBase(ctx, cfg, deliverer, logger)
	if err != nil {
		return nil, err
	}

	interval, err := config.ParseDuration(cfg.ReplayInterval, config.DefaultReplayInterval)
	if err != nil {
		return nil, fmt.Errorf("instrument [%s]: %w", cfg.Name, err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("instrument [%s]: replay interval must be positive", cfg.Name)
	}

	values, err := ReadColumn(r, cfg.ReplayColumn)
	if err != nil {
		return nil, fmt.Errorf("instrument [%s]: %w", cfg.Name, err)
	}

	return &ReplayInstrument{
		base:     b,
		wg:       wg,
		interval: interval,
		values:   values,
	}, nil
}

func (ri *ReplayInstrument) StartInstrument() error {
	ri.logger.Infof("replaying %d readings from %s every %v", len(ri.values), ri.config.ReplayFile, ri.interval)

	ri.wg.Add(1)
	go ri.replay()

	return nil
}

func (ri *ReplayInstrument) replay() {
	defer ri.wg.Done()

	ticker := time.NewTicker(ri.interval)
	defer ticker.Stop()

	for {
		for _, v := range ri.values {
			select {
			case <-ri.ctx.Done():
				ri.logger.Info("cancellation request received. Stopping replay")
				return
			case <-ticker.C:
			}

			err := ri.deliverer.Deliver(ri.ctx, types.Sample{
				Channel:   ri.channel,
				Timestamp: ri.now(),
				Value:     v,
			})
			if err != nil {
				return
			}
		}

		if !ri.config.ReplayLoop || len(ri.values) == 0 {
			ri.logger.Info("replay finished")
			return
		}
	}
}

// ReadColumn reads the named column of a CSV file with a header row. Blank
// and NaN cells are skipped.
func ReadColumn(r io.Reader, column string) ([]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV header: %w", err)
	}

	idx := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", column)
	}

	var values []float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		if idx >= len(rec) {
			continue
		}

		cell := strings.TrimSpace(rec[idx])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s value %q", line, column, cell)
		}
		if math.IsNaN(v) {
			continue
		}
		values = append(values, v)
	}

	return values, nil
}
