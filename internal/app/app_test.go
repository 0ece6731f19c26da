package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/capnograph/internal/pipeline"
	"github.com/chrissnell/capnograph/pkg/config"
)

const appConfig = `
instruments:
  - name: flow-replay
    channel: flow
    replay-file: %[1]s
    replay-interval: 2ms
  - name: co2-replay
    channel: co2
    replay-file: %[1]s
    replay-interval: 2ms
pipeline:
  flow-trigger-slpm: %[3]v
storage:
  csv:
    path: %[2]s
`

const recording = `Datetime,Flow SLPM,CO2 ppm
0,1,10000
1,12,30000
2,15,45000
3,2,40000
`

func TestAppRecordsReplayAndReloadsTriggers(t *testing.T) {
	dir := t.TempDir()
	replay := filepath.Join(dir, "breaths.csv")
	logPath := filepath.Join(dir, "session.csv")
	cfgPath := filepath.Join(dir, "capnograph.yaml")

	require.NoError(t, os.WriteFile(replay, []byte(recording), 0644))
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(appConfig, replay, logPath, 10)), 0644))

	a := New(config.NewYAMLProvider(cfgPath), zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	require.NoError(t, a.start(ctx, &wg))

	// header plus one row per replayed sample
	assert.Eventually(t, func() bool {
		b, err := os.ReadFile(logPath)
		return err == nil && strings.Count(string(b), "\n") == 9
	}, 5*time.Second, 10*time.Millisecond)

	snap, err := a.pipeline.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.BreathCount)
	assert.Equal(t, 45000.0, snap.PeakCO2)

	// Give the watcher time to start before changing the file
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(appConfig, replay, logPath, 14.5)), 0644))

	assert.Eventually(t, func() bool {
		snap, err := a.pipeline.Snapshot(ctx)
		return err == nil && snap.Settings.FlowTrigger == 14.5
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartFailsOnBadInstrument(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "capnograph.yaml")
	missing := filepath.Join(dir, "missing.csv")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(appConfig, missing, filepath.Join(dir, "log.csv"), 10)), 0644))

	a := New(config.NewYAMLProvider(cfgPath), zaptest.NewLogger(t).Sugar())
	assert.Error(t, a.Run(context.Background()))
}

func TestSettingsFromConfig(t *testing.T) {
	flow, co2 := 12.5, 18000.0

	s, err := SettingsFromConfig(config.PipelineData{
		FlowTrigger:     &flow,
		CO2Trigger:      &co2,
		NominalInterval: "40ms",
		HistoryCapacity: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, 12.5, s.FlowTrigger)
	assert.Equal(t, 18000.0, s.CO2Trigger)
	assert.Equal(t, 40*time.Millisecond, s.NominalInterval)
	assert.Equal(t, pipeline.DefaultSettings().IntervalTolerance, s.IntervalTolerance)
	assert.Equal(t, 300, s.HistoryCapacity)
	assert.Equal(t, pipeline.DefaultSettings().VolumeCapacity, s.VolumeCapacity)

	zero := 0.0
	s, err = SettingsFromConfig(config.PipelineData{FlowTrigger: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.FlowTrigger)

	nan := math.NaN()
	_, err = SettingsFromConfig(config.PipelineData{CO2Trigger: &nan})
	assert.ErrorIs(t, err, pipeline.ErrInvalidSetting)

	_, err = SettingsFromConfig(config.PipelineData{NominalInterval: "-5ms"})
	assert.Error(t, err)
}
