package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the configuration file and reloads it on change. An
// invalid new file is logged and ignored, keeping the current config.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *Config
	mu       sync.RWMutex
	onChange []func(*Config)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewWatcher creates a watcher seeded with the already-loaded config.
func NewWatcher(configPath string, current *Config, logger *zap.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	// Also watch the directory for atomic saves (rename operations)
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("Failed to watch config directory", zap.Error(err))
	}

	return &Watcher{
		path:    configPath,
		watcher: watcher,
		current: current,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching for configuration changes
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching for configuration changes
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.logger.Info("Configuration watcher stopped")
}

// watchLoop is the main loop that watches for file changes
func (w *Watcher) watchLoop() {
	// Debounce timer to avoid multiple reloads
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only handle write and create events for our config file
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Reset debounce timer
				if debounceTimer != nil {
					debounceTimer.Stop()
				}

				debounceTimer = time.AfterFunc(debounceDuration, func() {
					w.handleConfigChange()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// handleConfigChange reloads and validates the file, then notifies
// listeners.
func (w *Watcher) handleConfigChange() {
	w.logger.Info("Configuration file changed, reloading", zap.String("path", w.path))

	newConfig, err := Load(w.path)
	if err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	oldConfig := w.current
	w.current = newConfig
	handlers := w.onChange
	w.mu.Unlock()

	w.logChanges(oldConfig, newConfig)

	for _, handler := range handlers {
		go handler(newConfig)
	}

	w.logger.Info("Configuration reloaded successfully")
}

// logChanges logs the runtime-relevant differences between configs.
func (w *Watcher) logChanges(oldConfig, newConfig *Config) {
	changes := []string{}

	if oldConfig.Refresh.Interval != newConfig.Refresh.Interval {
		changes = append(changes, fmt.Sprintf("refresh.interval: %s -> %s",
			oldConfig.Refresh.Interval, newConfig.Refresh.Interval))
	}
	if oldConfig.Cache.StrictAuthority != newConfig.Cache.StrictAuthority {
		changes = append(changes, fmt.Sprintf("cache.strictAuthority: %v -> %v (applies on restart)",
			oldConfig.Cache.StrictAuthority, newConfig.Cache.StrictAuthority))
	}
	if oldConfig.Logging.Level != newConfig.Logging.Level {
		changes = append(changes, fmt.Sprintf("logging.level: %s -> %s (applies on restart)",
			oldConfig.Logging.Level, newConfig.Logging.Level))
	}

	if len(changes) > 0 {
		w.logger.Info("Configuration changes detected",
			zap.Strings("changes", changes),
		)
	}
}

// OnChange registers a callback for configuration changes
func (w *Watcher) OnChange(handler func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// GetCurrent returns the current configuration
func (w *Watcher) GetCurrent() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
