package managers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/config"
)

// stalledEngine never reads from its queue
type stalledEngine struct {
	depth int
}

func (e stalledEngine) StartStorageEngine(context.Context, *sync.WaitGroup) chan<- types.MetricRecord {
	return make(chan types.MetricRecord, e.depth)
}

type recordingEngine struct {
	c chan types.MetricRecord
}

func (e recordingEngine) StartStorageEngine(context.Context, *sync.WaitGroup) chan<- types.MetricRecord {
	return e.c
}

func TestPublishDropsForSlowEngineOnly(t *testing.T) {
	ctx := context.Background()
	var wg sync.WaitGroup
	s := &StorageManager{logger: zaptest.NewLogger(t).Sugar()}

	fast := recordingEngine{c: make(chan types.MetricRecord, 10)}
	s.addEngine(ctx, &wg, "stalled", stalledEngine{depth: 2})
	s.addEngine(ctx, &wg, "fast", fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			s.Publish(types.MetricRecord{FlowValue: types.Float(float64(i))})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a stalled engine")
	}

	assert.Equal(t, uint64(3), s.Engines[0].Dropped())
	assert.Equal(t, uint64(0), s.Engines[1].Dropped())
	assert.Len(t, fast.c, 5)
}

func TestNewStorageManager(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	s, err := NewStorageManager(ctx, &wg, config.StorageData{
		CSV:    &config.CSVData{Path: filepath.Join(dir, "log.csv")},
		SQLite: &config.SQLiteData{Path: filepath.Join(dir, "sessions.db")},
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.Len(t, s.Engines, 2)
	assert.NotNil(t, s.CSVLog())
	assert.NotNil(t, s.SessionStore())

	assert.Error(t, s.AddEngine(ctx, &wg, "influxdb", config.StorageData{}))

	cancel()
	wg.Wait()
}
