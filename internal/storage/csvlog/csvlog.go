// Package csvlog writes metric records to a flat CSV file, one row per
// processed sample.
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/constants"
	"github.com/chrissnell/capnograph/internal/storage"
	"github.com/chrissnell/capnograph/internal/types"
)

// TimeLayout is the format of the Datetime columns
const TimeLayout = "2006-01-02 15:04:05.000000"

// Undefined is written in place of a VE/VCO2 ratio that could not be computed
const Undefined = "undefined"

// Header is the first row of every new log file
var Header = []string{"Datetime1", "Flow SLPM", "Datetime2", "CO2 ppm", "Datetime3", "VE", "Datetime3", "VE over VCO2", "Datetime4", "CO2Peak"}

// Storage holds the open log file
type Storage struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *csv.Writer
	logger *zap.SugaredLogger
}

// New opens the log at path, or the default log when path is empty
func New(path string, logger *zap.SugaredLogger) (*Storage, error) {
	s := &Storage{logger: logger}
	if err := s.open(path); err != nil {
		return nil, err
	}
	return s, nil
}

// StartStorageEngine creates a goroutine loop to receive records and write
// them to the log
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.MetricRecord {
	s.logger.Infof("starting CSV storage engine, logging to %s", s.Path())
	recordChan := make(chan types.MetricRecord, storage.DefaultQueueDepth)

	wg.Add(1)
	go func() {
		storage.ProcessRecords(ctx, wg, recordChan, s.StoreRecord, "csv", s.logger)
		if err := s.Close(); err != nil {
			s.logger.Errorf("error closing %s: %v", s.Path(), err)
		}
	}()

	return recordChan
}

// StoreRecord appends one row to the log
func (s *Storage) StoreRecord(r types.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return errors.New("log file is closed")
	}
	if err := s.w.Write(Row(r)); err != nil {
		return fmt.Errorf("could not write record to %s: %w", s.path, err)
	}
	s.w.Flush()
	return s.w.Error()
}

// Rotate switches the log to path. An empty path goes back to the default
// log, which is always started fresh. If path cannot be opened the current
// log stays active.
func (s *Storage) Rotate(path string) error {
	path, f, w, err := openFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.path
	if err := s.closeFile(); err != nil {
		s.logger.Warnf("error closing %s: %v", old, err)
	}
	s.path, s.file, s.w = path, f, w
	s.logger.Infof("log switched from %s to %s", old, s.path)
	return nil
}

// Path returns the file currently being written
func (s *Storage) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Close flushes and closes the log
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFile()
}

func (s *Storage) open(path string) error {
	path, f, w, err := openFile(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path, s.file, s.w = path, f, w
	return nil
}

// openFile truncates the file and writes a header if it is new or is the
// default log. Any other existing file is appended to.
func openFile(path string) (string, *os.File, *csv.Writer, error) {
	if path == "" {
		path = constants.DefaultLogFile
	}

	_, err := os.Stat(path)
	fresh := errors.Is(err, fs.ErrNotExist) || path == constants.DefaultLogFile

	var f *os.File
	if fresh {
		f, err = os.Create(path)
	} else {
		f, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	}
	if err != nil {
		return "", nil, nil, fmt.Errorf("could not open log file %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if fresh {
		w.Write(Header)
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return "", nil, nil, fmt.Errorf("could not write header to %s: %w", path, err)
		}
	}
	return path, f, w, nil
}

func (s *Storage) closeFile() error {
	if s.file == nil {
		return nil
	}
	s.w.Flush()
	err := errors.Join(s.w.Error(), s.file.Close())
	s.file = nil
	s.w = nil
	return err
}

// Row converts a record to its ten CSV cells. Unused fields are left empty.
func Row(r types.MetricRecord) []string {
	var ratio string
	if r.HasVE() {
		ratio = formatFloat(r.VEOverVCO2)
		if r.VEUndefined {
			ratio = Undefined
		}
	}
	return []string{
		formatTime(r.FlowTimestamp), formatFloat(r.FlowValue),
		formatTime(r.CO2Timestamp), formatFloat(r.CO2Value),
		formatTime(r.BreathTimestamp), formatFloat(r.BreathVolume),
		formatTime(r.VETimestamp), ratio,
		formatTime(r.PeakTimestamp), formatFloat(r.PeakCO2),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(TimeLayout)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
