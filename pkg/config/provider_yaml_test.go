package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleConfig = `
instruments:
  - name: tsi5300
    channel: flow
    hostname: 192.168.1.50
    port: "3607"
    init-commands: ["BREAK", "SSR0050"]
    poll-command: DAFxx0475
    poll-every: 250
  - name: sprintir6s
    channel: co2
    serial-device: /dev/ttyUSB0
    token-index: 1
    scale: 10
  - name: bench
    channel: flow
    enabled: false
    replay-file: testdata/breaths.csv
pipeline:
  flow-trigger-slpm: 12.5
  co2-trigger-ppm: 18000
  nominal-interval: 50ms
  history-capacity: 300
storage:
  csv:
    path: SaveLog.csv
  sqlite:
    path: /var/lib/capnograph/metrics.db
controllers:
  - type: rest
    rest:
      port: 8090
`

func writeConfig(t *testing.T, dir, body string) string {
	path := filepath.Join(dir, "capnograph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	p := NewYAMLProvider(writeConfig(t, t.TempDir(), sampleConfig))
	cfg, err := p.LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Instruments, 3)
	flow := cfg.Instruments[0]
	assert.Equal(t, "network", flow.Type)
	assert.True(t, flow.Enabled)
	assert.Equal(t, []string{"BREAK", "SSR0050"}, flow.InitCommands)
	assert.Equal(t, 250, flow.PollEvery)
	assert.Equal(t, 1.0, flow.Scale)

	co2 := cfg.Instruments[1]
	assert.Equal(t, "serial", co2.Type)
	assert.Equal(t, DefaultSerialBaud, co2.Baud)
	assert.Equal(t, 1, co2.TokenIndex)
	assert.Equal(t, 10.0, co2.Scale)

	bench := cfg.Instruments[2]
	assert.Equal(t, "replay", bench.Type)
	assert.False(t, bench.Enabled)
	assert.Equal(t, "Flow SLPM", bench.ReplayColumn)

	require.NotNil(t, cfg.Pipeline.FlowTrigger)
	assert.Equal(t, 12.5, *cfg.Pipeline.FlowTrigger)
	assert.Equal(t, 18000.0, *cfg.Pipeline.CO2Trigger)
	assert.Equal(t, 300, cfg.Pipeline.HistoryCapacity)

	require.NotNil(t, cfg.Storage.CSV)
	assert.Equal(t, "SaveLog.csv", cfg.Storage.CSV.Path)
	assert.Nil(t, cfg.Storage.TimescaleDB)

	controllers, err := p.GetControllers()
	require.NoError(t, err)
	require.Len(t, controllers, 1)
	assert.Equal(t, 8090, controllers[0].RESTServer.Port)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown channel", "instruments:\n  - name: a\n    channel: o2\n    hostname: h\n    port: \"1\"\n"},
		{"network without port", "instruments:\n  - name: a\n    channel: flow\n    hostname: h\n"},
		{"duplicate names", "instruments:\n  - name: a\n    channel: flow\n    replay-file: x.csv\n  - name: a\n    channel: co2\n    replay-file: x.csv\n"},
		{"bad duration", "pipeline:\n  nominal-interval: fast\n"},
		{"unknown controller", "controllers:\n  - type: aprs\n"},
		{"unknown key", "pipeline:\n  flow-trigger: 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewYAMLProvider(writeConfig(t, t.TempDir(), tt.body))
			_, err := p.LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = ParseDuration("75ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 75*time.Millisecond, d)

	_, err = ParseDuration("soon", 0)
	assert.Error(t, err)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)
	p := NewYAMLProvider(path)
	_, err := p.LoadConfig()
	require.NoError(t, err)

	changes := make(chan *ConfigData, 4)
	w := NewWatcher(p, func(c *ConfigData) { changes <- c }, zaptest.NewLogger(t).Sugar())
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "pipeline:\n  flow-trigger-slpm: 7\n")

	select {
	case c := <-changes:
		require.NotNil(t, c.Pipeline.FlowTrigger)
		assert.Equal(t, 7.0, *c.Pipeline.FlowTrigger)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcherFinishesReloadBeforeReturning(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)
	p := NewYAMLProvider(path)
	_, err := p.LoadConfig()
	require.NoError(t, err)

	started := make(chan struct{})
	var once sync.Once
	var applied atomic.Bool
	w := NewWatcher(p, func(*ConfigData) {
		once.Do(func() { close(started) })
		time.Sleep(200 * time.Millisecond)
		applied.Store(true)
	}, zaptest.NewLogger(t).Sugar())
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "pipeline:\n  flow-trigger-slpm: 7\n")

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	cancel()
	assert.NoError(t, <-done)
	assert.True(t, applied.Load(), "Watch returned while a reload was still running")
}
