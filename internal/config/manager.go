package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Format represents supported configuration file formats
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ChangeEvent represents a configuration change event
type ChangeEvent struct {
	File      string                 `json:"file"`
	Action    string                 `json:"action"` // create, modify, delete, rename, initial_load, manual_reload, polling_detected
	Config    map[string]interface{} `json:"config"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChangeHandler is called when configuration changes
type ChangeHandler func(event ChangeEvent) error

// Manager watches a configuration directory and hot-reloads JSON and YAML
// files. Handlers for one file run in registration order on a background
// goroutine, never under the manager lock.
type Manager struct {
	configDir  string
	configs    map[string]map[string]interface{}
	handlers   map[string][]ChangeHandler
	validators map[string]func(map[string]interface{}) error
	watcher    *fsnotify.Watcher
	started    bool
	stopCh     chan struct{}
	logger     *zap.Logger
	mu         sync.RWMutex
	watcherMu  sync.Mutex

	// Polling fallback for when fsnotify isn't reliable
	pollInterval  time.Duration
	enablePolling bool

	current   *Config
	currentMu sync.RWMutex
}

// NewManager creates a manager for configDir.
func NewManager(configDir string, logger *zap.Logger) (*Manager, error) {
	if configDir == "" {
		return nil, fmt.Errorf("config directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Manager{
		configDir:    configDir,
		configs:      make(map[string]map[string]interface{}),
		handlers:     make(map[string][]ChangeHandler),
		validators:   make(map[string]func(map[string]interface{}) error),
		watcher:      watcher,
		stopCh:       make(chan struct{}),
		logger:       logger,
		pollInterval: 10 * time.Second,
	}, nil
}

// Start loads every config file and begins watching for changes.
func (cm *Manager) Start(ctx context.Context) error {
	cm.mu.Lock()
	if cm.started {
		cm.mu.Unlock()
		return nil
	}
	cm.mu.Unlock()

	if err := cm.watcher.Add(cm.configDir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	if err := cm.loadAllConfigs(); err != nil {
		return fmt.Errorf("failed to load initial configs: %w", err)
	}

	cm.mu.Lock()
	cm.started = true
	loaded := len(cm.configs)
	polling := cm.enablePolling
	cm.mu.Unlock()

	go cm.watchLoop()
	if polling {
		go cm.pollLoop()
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = cm.Stop()
		case <-cm.stopCh:
		}
	}()

	cm.logger.Info("Configuration manager started",
		zap.String("config_dir", cm.configDir),
		zap.Int("loaded_configs", loaded),
		zap.Bool("polling_enabled", polling),
	)
	return nil
}

// Stop stops watching for configuration changes
func (cm *Manager) Stop() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if !cm.started {
		return nil
	}
	close(cm.stopCh)
	if err := cm.watcher.Close(); err != nil {
		cm.logger.Error("Error closing file watcher", zap.Error(err))
	}
	cm.started = false
	cm.logger.Info("Configuration manager stopped")
	return nil
}

// RegisterHandler registers a change handler for a specific config file
func (cm *Manager) RegisterHandler(filename string, handler ChangeHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.handlers[filename] = append(cm.handlers[filename], handler)
	cm.logger.Debug("Configuration handler registered",
		zap.String("filename", filename),
		zap.Int("total_handlers", len(cm.handlers[filename])),
	)
}

// RegisterValidator registers a configuration validator for a specific file.
// A document failing validation is not applied.
func (cm *Manager) RegisterValidator(filename string, validator func(map[string]interface{}) error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.validators[filename] = validator
}

// OnConfig decodes FileName into a Config on every change and passes it to
// fn. Documents that fail to decode or validate are rejected before any
// handler runs, so fn only ever sees a usable Config.
func (cm *Manager) OnConfig(fn func(*Config)) {
	cm.RegisterValidator(FileName, func(m map[string]interface{}) error {
		_, err := FromMap(m)
		return err
	})
	cm.RegisterHandler(FileName, func(ev ChangeEvent) error {
		if ev.Action == "delete" || ev.Action == "rename" {
			cm.logger.Warn("Research configuration removed; keeping last applied values")
			return nil
		}
		cfg, err := FromMap(ev.Config)
		if err != nil {
			return err
		}
		cm.currentMu.Lock()
		cm.current = cfg
		cm.currentMu.Unlock()
		fn(cfg)
		return nil
	})
}

// Current returns the last Config applied through OnConfig, or nil.
func (cm *Manager) Current() *Config {
	cm.currentMu.RLock()
	defer cm.currentMu.RUnlock()
	return cm.current
}

// GetConfig returns a copy of the current document for a file
func (cm *Manager) GetConfig(filename string) (map[string]interface{}, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	config, exists := cm.configs[filename]
	if !exists {
		return nil, false
	}
	return copyMap(config), true
}

// ReloadConfig manually reloads a specific configuration file
func (cm *Manager) ReloadConfig(filename string) error {
	return cm.loadConfigFile(filepath.Join(cm.configDir, filename), "manual_reload")
}

// SetConfig programmatically sets a configuration (useful for testing)
func (cm *Manager) SetConfig(filename string, config map[string]interface{}) error {
	if err := cm.validate(filename, config); err != nil {
		return err
	}
	cm.apply(filename, config, "programmatic_set")
	return nil
}

// EnablePolling enables polling fallback for unreliable filesystems. It must
// be called before Start.
func (cm *Manager) EnablePolling(interval time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.enablePolling = true
	if interval > 0 {
		cm.pollInterval = interval
	}
}

func (cm *Manager) validate(filename string, config map[string]interface{}) error {
	cm.mu.RLock()
	validator := cm.validators[filename]
	cm.mu.RUnlock()
	if validator == nil {
		return nil
	}
	if err := validator(config); err != nil {
		return fmt.Errorf("configuration validation failed for %s: %w", filename, err)
	}
	return nil
}

// apply stores config and notifies handlers. A nil config records removal.
func (cm *Manager) apply(filename string, config map[string]interface{}, action string) {
	cm.mu.Lock()
	last := cm.configs[filename]
	if config == nil {
		delete(cm.configs, filename)
	} else {
		cm.configs[filename] = config
	}
	handlers := append([]ChangeHandler(nil), cm.handlers[filename]...)
	cm.mu.Unlock()

	payload := config
	if payload == nil {
		payload = last
	}
	cm.notify(filename, action, copyMap(payload), handlers)
}

func (cm *Manager) notify(filename, action string, config map[string]interface{}, handlers []ChangeHandler) {
	if len(handlers) == 0 {
		return
	}
	event := ChangeEvent{
		File:      filename,
		Action:    action,
		Config:    config,
		Timestamp: time.Now(),
	}
	go func() {
		for _, h := range handlers {
			if err := h(event); err != nil {
				cm.logger.Error("Configuration handler error",
					zap.String("filename", filename),
					zap.String("action", action),
					zap.Error(err),
				)
			}
		}
	}()
}

// watchLoop handles file system events
func (cm *Manager) watchLoop() {
	defer func() {
		if r := recover(); r != nil {
			cm.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()
	for {
		select {
		case <-cm.stopCh:
			return
		case event, ok := <-cm.watcher.Events:
			if !ok {
				return
			}
			cm.handleWatchEvent(event)
		case err, ok := <-cm.watcher.Errors:
			if !ok {
				return
			}
			cm.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// pollLoop provides polling fallback for file changes
func (cm *Manager) pollLoop() {
	ticker := time.NewTicker(cm.pollInterval)
	defer ticker.Stop()
	lastModTimes := make(map[string]time.Time)
	for {
		select {
		case <-cm.stopCh:
			return
		case <-ticker.C:
			cm.checkForChanges(lastModTimes)
		}
	}
}

// checkForChanges reloads files whose modification time advanced.
func (cm *Manager) checkForChanges(lastModTimes map[string]time.Time) {
	err := filepath.WalkDir(cm.configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !cm.isConfigFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		filename := filepath.Base(path)
		if info.ModTime().After(lastModTimes[filename]) {
			lastModTimes[filename] = info.ModTime()
			return cm.loadConfigFile(path, "polling_detected")
		}
		return nil
	})
	if err != nil {
		cm.logger.Error("Error during polling check", zap.Error(err))
	}
}

// handleWatchEvent processes file system watch events
func (cm *Manager) handleWatchEvent(event fsnotify.Event) {
	cm.watcherMu.Lock()
	defer cm.watcherMu.Unlock()

	if !cm.isConfigFile(event.Name) {
		return
	}
	filename := filepath.Base(event.Name)

	var action string
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		action = "create"
	case event.Op&fsnotify.Write == fsnotify.Write:
		action = "modify"
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		action = "delete"
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		action = "rename"
	default:
		// chmod and friends
		return
	}

	if action == "delete" || action == "rename" {
		cm.apply(filename, nil, action)
		cm.logger.Info("Configuration file removed", zap.String("filename", filename))
		return
	}

	// Small delay to coalesce rapid successive writes
	time.Sleep(50 * time.Millisecond)
	if err := cm.loadConfigFile(event.Name, action); err != nil {
		cm.logger.Error("Failed to load config file",
			zap.String("file", filename),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// loadAllConfigs loads all configuration files in the directory
func (cm *Manager) loadAllConfigs() error {
	return filepath.WalkDir(cm.configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !cm.isConfigFile(path) {
			return nil
		}
		return cm.loadConfigFile(path, "initial_load")
	})
}

// loadConfigFile parses and validates a file before applying it.
func (cm *Manager) loadConfigFile(filePath, action string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	filename := filepath.Base(filePath)
	config := make(map[string]interface{})

	format := cm.detectFormat(filename)
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &config)
	case FormatYAML:
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s config %s: %w", format, filename, err)
	}
	if err := cm.validate(filename, config); err != nil {
		return err
	}

	cm.apply(filename, config, action)
	cm.logger.Info("Configuration loaded",
		zap.String("filename", filename),
		zap.String("action", action),
		zap.String("format", string(format)),
		zap.Int("keys", len(config)),
	)
	return nil
}

func (cm *Manager) isConfigFile(filename string) bool {
	ext := filepath.Ext(filename)
	return ext == ".json" || ext == ".yaml" || ext == ".yml"
}

func (cm *Manager) detectFormat(filename string) Format {
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
