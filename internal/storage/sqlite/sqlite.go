// Package sqlite stores metric records in a local SQLite database so that
// sessions can be listed and reviewed after the fact.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/capnograph/internal/storage"
	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

const insertSQL = `INSERT INTO metric_records (
	session_id, recorded_at,
	flow_ts, flow_slpm,
	co2_ts, co2_ppm,
	breath_ts, breath_start, breath_samples, breath_volume,
	ve_ts, ve_over_vco2, ve_undefined,
	peak_ts, peak_co2_ppm
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const sessionsSQL = `SELECT session_id, MIN(recorded_at), MAX(recorded_at), COUNT(*),
	COUNT(breath_volume), AVG(breath_volume), MAX(peak_co2_ppm)
FROM metric_records
GROUP BY session_id
ORDER BY MIN(recorded_at)`

// Session summarizes the records stored for one session
type Session struct {
	ID            uuid.UUID `json:"id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Records       int       `json:"records"`
	Breaths       int       `json:"breaths"`
	AverageVolume float64   `json:"average_volume"`
	PeakCO2       float64   `json:"peak_co2_ppm"`
}

// Storage is a SQLite-backed record store
type Storage struct {
	db     *sql.DB
	path   string
	closer sync.Once
	logger *zap.SugaredLogger
}

// New opens or creates the database at path
func New(ctx context.Context, path string, logger *zap.SugaredLogger) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas below are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Storage{db: db, path: path, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// StartStorageEngine creates a goroutine loop to receive records and insert
// them into the database
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.MetricRecord {
	s.logger.Infof("starting SQLite storage engine at %s", s.path)
	recordChan := make(chan types.MetricRecord, storage.DefaultQueueDepth)

	wg.Add(1)
	go func() {
		storage.ProcessRecords(ctx, wg, recordChan, func(r types.MetricRecord) error {
			return s.StoreRecord(context.Background(), r)
		}, "sqlite", s.logger)
		if err := s.Close(); err != nil {
			s.logger.Errorf("error closing %s: %v", s.path, err)
		}
	}()

	return recordChan
}

// StoreRecord inserts one record
func (s *Storage) StoreRecord(ctx context.Context, r types.MetricRecord) error {
	var breathStart, breathSamples any
	if r.Breath != nil {
		breathStart = r.Breath.StartTime.UnixNano()
		breathSamples = r.Breath.SampleCount
	}

	_, err := s.db.ExecContext(ctx, insertSQL,
		r.SessionID.String(), recordedAt(r).UnixNano(),
		nanos(r.FlowTimestamp), value(r.FlowValue),
		nanos(r.CO2Timestamp), value(r.CO2Value),
		nanos(r.BreathTimestamp), breathStart, breathSamples, value(r.BreathVolume),
		nanos(r.VETimestamp), value(r.VEOverVCO2), r.VEUndefined,
		nanos(r.PeakTimestamp), value(r.PeakCO2),
	)
	if err != nil {
		return fmt.Errorf("insert metric record: %w", err)
	}
	return nil
}

// Sessions lists every session in the database, oldest first
func (s *Storage) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, sessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			id         string
			start, end int64
			avg, peak  sql.NullFloat64
			sess       Session
		)
		if err := rows.Scan(&id, &start, &end, &sess.Records, &sess.Breaths, &avg, &peak); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse session id %q: %w", id, err)
		}
		sess.Start = time.Unix(0, start)
		sess.End = time.Unix(0, end)
		sess.AverageVolume = avg.Float64
		sess.PeakCO2 = peak.Float64
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	var err error
	s.closer.Do(func() {
		err = s.db.Close()
	})
	return err
}

// migrate brings the schema up to the latest embedded migration
func (s *Storage) migrate() error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	m := migrate.NewMigrator(s.db, migrate.NewFSProvider(sub, "", "sqlite"), s.logger)
	if err := m.MigrateUp(); err != nil {
		return fmt.Errorf("migrate %s: %w", s.path, err)
	}
	return nil
}

// recordedAt is the timestamp of the sample that produced the record
func recordedAt(r types.MetricRecord) time.Time {
	for _, t := range []*time.Time{r.FlowTimestamp, r.CO2Timestamp} {
		if t != nil {
			return *t
		}
	}
	return time.Now()
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func value(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
