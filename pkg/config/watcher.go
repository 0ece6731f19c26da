package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a YAML configuration file whenever it changes on disk and
// hands the new configuration to a callback
type Watcher struct {
	provider *YAMLProvider
	onChange func(*ConfigData)
	logger   *zap.SugaredLogger
	debounce time.Duration
}

// NewWatcher creates a Watcher for the provider's file
func NewWatcher(provider *YAMLProvider, onChange func(*ConfigData), logger *zap.SugaredLogger) *Watcher {
	return &Watcher{
		provider: provider,
		onChange: onChange,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// Watch blocks until ctx is cancelled, reloading on every write to the file.
// Invalid configurations are logged and ignored.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory so editors that replace the file are caught too
	path := w.provider.Filename()
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	// Reloads run on this goroutine, so none is in flight once Watch returns
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			pending = nil
			w.reload()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.provider.LoadConfig()
	if err != nil {
		w.logger.Errorf("ignoring changed configuration: %v", err)
		return
	}
	w.logger.Infof("configuration file %s changed, applying", w.provider.Filename())
	w.onChange(cfg)
}
