// Package app wires the instruments, the metric pipeline, the storage
// backends and the controllers together and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/controllers/restserver"
	"github.com/chrissnell/capnograph/internal/managers"
	"github.com/chrissnell/capnograph/internal/pipeline"
	"github.com/chrissnell/capnograph/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
	pipeline       *pipeline.Pipeline
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.start(ctx, &wg); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	a.logger.Info("Application started successfully")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}

// start builds and launches every component. Storage comes up first so
// that no record is produced before there is somewhere to put it.
func (a *App) start(ctx context.Context, wg *sync.WaitGroup) error {
	cfgData, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	settings, err := SettingsFromConfig(cfgData.Pipeline)
	if err != nil {
		return err
	}

	storageManager, err := managers.NewStorageManager(ctx, wg, cfgData.Storage, a.logger)
	if err != nil {
		return err
	}

	a.pipeline = pipeline.New(settings, storageManager, a.logger.With("component", "pipeline"))
	a.pipeline.Start(ctx, wg)

	im, err := managers.NewInstrumentManager(ctx, wg, cfgData.Instruments, a.pipeline, a.logger)
	if err != nil {
		return err
	}
	if err := im.StartInstruments(); err != nil {
		return err
	}

	backends := restserver.Backends{Pipeline: a.pipeline}
	if csvLog := storageManager.CSVLog(); csvLog != nil {
		backends.Log = csvLog
	}
	if store := storageManager.SessionStore(); store != nil {
		backends.Sessions = store
	}

	cm, err := managers.NewControllerManager(ctx, wg, cfgData.Controllers, backends, a.logger)
	if err != nil {
		return err
	}
	if err := cm.StartControllers(); err != nil {
		return err
	}

	if yp, ok := a.configProvider.(*config.YAMLProvider); ok {
		watcher := config.NewWatcher(yp, func(c *config.ConfigData) {
			a.applyPipelineConfig(ctx, c.Pipeline)
		}, a.logger.With("component", "config"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Watch(ctx); err != nil {
				a.logger.Errorf("config watcher stopped: %v", err)
			}
		}()
	}

	return nil
}

// applyPipelineConfig pushes the runtime-adjustable settings of a changed
// configuration to the pipeline. Rejected values are logged and the
// previous value stays in effect.
func (a *App) applyPipelineConfig(ctx context.Context, pd config.PipelineData) {
	if pd.FlowTrigger != nil {
		if err := a.pipeline.SetFlowTrigger(ctx, *pd.FlowTrigger); err != nil {
			a.logger.Warnf("could not apply flow trigger: %v", err)
		}
	}
	if pd.CO2Trigger != nil {
		if err := a.pipeline.SetCo2Trigger(ctx, *pd.CO2Trigger); err != nil {
			a.logger.Warnf("could not apply CO2 trigger: %v", err)
		}
	}
	if pd.HistoryCapacity != 0 {
		if err := a.pipeline.SetHistoryCapacity(ctx, pd.HistoryCapacity); err != nil {
			a.logger.Warnf("could not apply history capacity: %v", err)
		}
	}
}

// SettingsFromConfig converts the pipeline section of the configuration,
// falling back to the defaults for anything left unset
func SettingsFromConfig(pd config.PipelineData) (pipeline.Settings, error) {
	s := pipeline.DefaultSettings()

	if pd.FlowTrigger != nil {
		s.FlowTrigger = *pd.FlowTrigger
	}
	if pd.CO2Trigger != nil {
		s.CO2Trigger = *pd.CO2Trigger
	}
	for _, v := range []float64{s.FlowTrigger, s.CO2Trigger} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return s, fmt.Errorf("pipeline trigger %v: %w", v, pipeline.ErrInvalidSetting)
		}
	}

	var err error
	if s.NominalInterval, err = parseInterval(pd.NominalInterval, s.NominalInterval); err != nil {
		return s, fmt.Errorf("pipeline nominal interval: %w", err)
	}
	if s.IntervalTolerance, err = parseInterval(pd.IntervalTolerance, s.IntervalTolerance); err != nil {
		return s, fmt.Errorf("pipeline interval tolerance: %w", err)
	}

	if pd.HistoryCapacity > 0 {
		s.HistoryCapacity = pd.HistoryCapacity
	}
	if pd.VolumeCapacity > 0 {
		s.VolumeCapacity = pd.VolumeCapacity
	}
	if pd.QueueDepth > 0 {
		s.QueueDepth = pd.QueueDepth
	}

	return s, nil
}

func parseInterval(s string, def time.Duration) (time.Duration, error) {
	d, err := config.ParseDuration(s, def)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("%v must not be negative", d)
	}
	return d, nil
}
