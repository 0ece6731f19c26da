package managers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/storage"
	"github.com/chrissnell/capnograph/internal/storage/csvlog"
	"github.com/chrissnell/capnograph/internal/storage/sqlite"
	"github.com/chrissnell/capnograph/internal/storage/timescaledb"
	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/config"
)

// StorageManager holds our active storage backends and fans records out to them
type StorageManager struct {
	Engines []*StorageEngine
	csv     *csvlog.Storage
	sqlite  *sqlite.Storage
	logger  *zap.SugaredLogger
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing records to the engine
type StorageEngine struct {
	Name    string
	Engine  storage.StorageEngineInterface
	C       chan<- types.MetricRecord
	dropped atomic.Uint64
}

// Dropped returns the number of records discarded because the engine fell behind
func (e *StorageEngine) Dropped() uint64 {
	return e.dropped.Load()
}

// NewStorageManager creates a StorageManager object, populated with all configured StorageEngines
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	s := &StorageManager{logger: logger}

	if c.CSV != nil {
		if err := s.AddEngine(ctx, wg, "csv", c); err != nil {
			return s, fmt.Errorf("could not add CSV storage backend: %w", err)
		}
	}

	if c.SQLite != nil && c.SQLite.Path != "" {
		if err := s.AddEngine(ctx, wg, "sqlite", c); err != nil {
			return s, fmt.Errorf("could not add SQLite storage backend: %w", err)
		}
	}

	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString != "" {
		if err := s.AddEngine(ctx, wg, "timescaledb", c); err != nil {
			return s, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
	}

	return s, nil
}

// AddEngine adds a new StorageEngine of name engineName to our Storage object
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, engineName string, c config.StorageData) error {
	switch engineName {
	case "csv":
		engine, err := csvlog.New(c.CSV.Path, s.logger.With("storage", "csv"))
		if err != nil {
			return err
		}
		s.csv = engine
		s.addEngine(ctx, wg, engineName, engine)
	case "sqlite":
		engine, err := sqlite.New(ctx, c.SQLite.Path, s.logger.With("storage", "sqlite"))
		if err != nil {
			return err
		}
		s.sqlite = engine
		s.addEngine(ctx, wg, engineName, engine)
	case "timescaledb":
		engine, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString, s.logger.With("storage", "timescaledb"))
		if err != nil {
			return err
		}
		s.addEngine(ctx, wg, engineName, engine)
	default:
		return fmt.Errorf("unknown storage engine %q", engineName)
	}

	return nil
}

func (s *StorageManager) addEngine(ctx context.Context, wg *sync.WaitGroup, name string, engine storage.StorageEngineInterface) {
	s.Engines = append(s.Engines, &StorageEngine{
		Name:   name,
		Engine: engine,
		C:      engine.StartStorageEngine(ctx, wg),
	})
}

// Publish hands r to every engine without blocking. An engine whose queue
// is full loses the record.
func (s *StorageManager) Publish(r types.MetricRecord) {
	for _, e := range s.Engines {
		select {
		case e.C <- r:
		default:
			n := e.dropped.Add(1)
			s.logger.Warnf("storage engine %s is falling behind, dropped record (%d dropped so far)", e.Name, n)
		}
	}
}

// CSVLog returns the CSV backend, or nil if it is not configured
func (s *StorageManager) CSVLog() *csvlog.Storage {
	return s.csv
}

// SessionStore returns the SQLite backend, or nil if it is not configured
func (s *StorageManager) SessionStore() *sqlite.Storage {
	return s.sqlite
}
