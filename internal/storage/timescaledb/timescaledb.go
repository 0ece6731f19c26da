// Package timescaledb stores metric records in a TimescaleDB hypertable.
package timescaledb

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chrissnell/capnograph/internal/database"
	"github.com/chrissnell/capnograph/internal/storage"
	"github.com/chrissnell/capnograph/internal/types"
)

// Storage holds the connection for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

// New connects to TimescaleDB and prepares the breath_metrics hypertable
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Storage, error) {
	db, err := database.CreateConnection(connectionString, logger)
	if err != nil {
		return nil, err
	}

	t := &Storage{TimescaleDBConn: db, logger: logger}

	steps := []struct {
		desc string
		sql  string
	}{
		{"database table", createTableSQL},
		{"TimescaleDB extension", createExtensionSQL},
		{"hypertable", createHypertableSQL},
		{"session index", createSessionIndexSQL},
	}
	for _, step := range steps {
		logger.Infof("creating %s...", step.desc)
		if err := db.WithContext(ctx).Exec(step.sql).Error; err != nil {
			return nil, fmt.Errorf("could not create %s: %w", step.desc, err)
		}
	}

	return t, nil
}

// StartStorageEngine creates a goroutine loop to receive records and send
// them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.MetricRecord {
	t.logger.Info("starting TimescaleDB storage engine...")
	recordChan := make(chan types.MetricRecord, storage.DefaultQueueDepth)

	wg.Add(1)
	go storage.ProcessRecords(ctx, wg, recordChan, t.StoreRecord, "timescaledb", t.logger)

	return recordChan
}

// StoreRecord stores a record in TimescaleDB
func (t *Storage) StoreRecord(r types.MetricRecord) error {
	row := database.NewMetricRow(r)
	if err := t.TimescaleDBConn.Create(&row).Error; err != nil {
		return fmt.Errorf("could not store record: %w", err)
	}
	return nil
}
