package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDebounce coalesces the bursts of events editors produce on save.
const reloadDebounce = 100 * time.Millisecond

// Load reads configuration from path. A missing file yields the defaults.
// The format is chosen by extension (.toml, .yaml/.yml, .json; TOML
// otherwise). Environment overrides are applied; the result is not
// validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Loader handles configuration loading, watching, and hot-reloading.
type Loader struct {
	path     string
	config   *Config
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc
	errChan  chan error
}

// NewLoader creates a new configuration loader.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:    path,
		errChan: make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Path returns the watched config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, overrides and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Watch starts watching the configuration file for changes. Valid changes
// replace the current configuration and are passed to OnChange callbacks;
// invalid ones are reported on Errors and otherwise ignored.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors often replace the file rather than
	// write it in place.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = watcher

	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-l.ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.sendErr(err)
		}
	}
}

func (l *Loader) reload() {
	if l.ctx.Err() != nil {
		return
	}

	newCfg, err := Load(l.path)
	if err != nil {
		l.sendErr(fmt.Errorf("reload config: %w", err))
		return
	}
	if err := newCfg.Validate(); err != nil {
		l.sendErr(fmt.Errorf("validate new config: %w", err))
		return
	}

	l.mu.Lock()
	l.config = newCfg
	callbacks := append(([]func(*Config))(nil), l.onChange...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(newCfg)
	}
}

func (l *Loader) sendErr(err error) {
	select {
	case l.errChan <- err:
	default:
	}
}

// OnChange registers a callback to be invoked when the configuration changes.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, cb)
}

// Errors returns a channel for receiving errors that occur during watching.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Close stops the watcher and releases resources.
func (l *Loader) Close() error {
	l.cancel()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unmarshals data into v according to the extension of path.
func decode(path string, data []byte, v any) error {
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	}
	return nil
}

// SaveConfig writes cfg to path in the format implied by its extension,
// creating the directory with 0700 and the file with 0600.
func SaveConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		buf.WriteString("# keymeter configuration\n\n")
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
