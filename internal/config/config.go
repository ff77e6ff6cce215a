// Package config handles configuration loading, validation, and management for keymeter.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"keymeter/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// File names placed in the capture directory unless configured otherwise.
const (
	LogFileName     = "keymeter.log"
	PidFileName     = "keymeter.pid"
	CatalogFileName = "sessions.db"
)

// Config holds the complete keymeter configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Capture controls where and how key events are persisted.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`

	// Logging configuration for the application log (never key contents).
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Daemon configuration for background mode.
	Daemon DaemonConfig `toml:"daemon" json:"daemon" yaml:"daemon"`

	// Catalog configuration for the session index.
	Catalog CatalogConfig `toml:"catalog" json:"catalog" yaml:"catalog"`
}

// CaptureConfig holds capture-file settings.
type CaptureConfig struct {
	// Dir is the output directory for capture files. "~/" is expanded.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`

	// Sync fsyncs the capture file after every record.
	Sync bool `toml:"sync" json:"sync" yaml:"sync"`

	// Devices lists explicit input device paths. Empty means autodetect.
	Devices []string `toml:"devices" json:"devices" yaml:"devices"`
}

// LoggingConfig holds application log settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the output format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file, or both (stderr and file).
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file. Empty means <capture dir>/keymeter.log.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// DaemonConfig holds background-mode settings.
type DaemonConfig struct {
	// PidFile is the PID file path. Empty means <capture dir>/keymeter.pid.
	PidFile string `toml:"pid_file" json:"pid_file" yaml:"pid_file"`
}

// CatalogConfig holds session catalog settings.
type CatalogConfig struct {
	// Enabled records each capture session in a SQLite catalog.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the catalog database. Empty means <capture dir>/sessions.db.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Capture: CaptureConfig{
			Dir:     DataDir(),
			Sync:    true,
			Devices: []string{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "both",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Catalog: CatalogConfig{
			Enabled: true,
		},
	}
}

// ApplyEnvOverrides applies KEYMETER_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KEYMETER_OUTPUT_DIR"); v != "" {
		c.Capture.Dir = v
	}
	if v := os.Getenv("KEYMETER_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("KEYMETER_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Capture.Devices = append([]string(nil), c.Capture.Devices...)
	return &clone
}

// CaptureDir returns the expanded capture directory.
func (c *Config) CaptureDir() string {
	return expandPath(c.Capture.Dir)
}

// LogPath returns the expanded application log path.
func (c *Config) LogPath() string {
	if c.Logging.FilePath != "" {
		return expandPath(c.Logging.FilePath)
	}
	return filepath.Join(c.CaptureDir(), LogFileName)
}

// PidPath returns the expanded PID file path.
func (c *Config) PidPath() string {
	if c.Daemon.PidFile != "" {
		return expandPath(c.Daemon.PidFile)
	}
	return filepath.Join(c.CaptureDir(), PidFileName)
}

// CatalogPath returns the expanded catalog database path.
func (c *Config) CatalogPath() string {
	if c.Catalog.Path != "" {
		return expandPath(c.Catalog.Path)
	}
	return filepath.Join(c.CaptureDir(), CatalogFileName)
}

// LoggerConfig converts the logging section into a logging.Config.
func (c *Config) LoggerConfig() *logging.Config {
	lc := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = lvl
	}
	if f, err := logging.ParseFormat(c.Logging.Format); err == nil {
		lc.Format = f
	}
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	lc.FilePath = c.LogPath()
	if c.Logging.MaxSizeMB > 0 {
		lc.MaxSize = int64(c.Logging.MaxSizeMB)
	}
	lc.MaxBackups = c.Logging.MaxBackups
	return lc
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
