package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"keymeter/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if !strings.HasSuffix(cfg.Capture.Dir, "keymeter_logs") {
		t.Errorf("capture dir should end with keymeter_logs: %s", cfg.Capture.Dir)
	}
	if !cfg.Capture.Sync {
		t.Error("sync should default to true")
	}
	if !cfg.Catalog.Enabled {
		t.Error("catalog should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Dir = "/data/keys"

	if got := cfg.LogPath(); got != filepath.Join("/data/keys", LogFileName) {
		t.Errorf("LogPath = %s", got)
	}
	if got := cfg.PidPath(); got != filepath.Join("/data/keys", PidFileName) {
		t.Errorf("PidPath = %s", got)
	}
	if got := cfg.CatalogPath(); got != filepath.Join("/data/keys", CatalogFileName) {
		t.Errorf("CatalogPath = %s", got)
	}

	cfg.Logging.FilePath = "/var/log/km.log"
	cfg.Daemon.PidFile = "/run/km.pid"
	cfg.Catalog.Path = "/data/catalog.db"
	if cfg.LogPath() != "/var/log/km.log" || cfg.PidPath() != "/run/km.pid" || cfg.CatalogPath() != "/data/catalog.db" {
		t.Error("explicit paths should win over the capture dir")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := DefaultConfig()
	cfg.Capture.Dir = "~/captures"
	if got := cfg.CaptureDir(); got != filepath.Join(home, "captures") {
		t.Errorf("CaptureDir = %s", got)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("KEYMETER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, "keymeter") {
		t.Errorf("config path should contain keymeter: %s", path)
	}

	t.Setenv("KEYMETER_CONFIG", "/etc/keymeter.yaml")
	if got := ConfigPath(); got != "/etc/keymeter.yaml" {
		t.Errorf("KEYMETER_CONFIG not honored: %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `
version = 1

[capture]
dir = "/tmp/captures"
sync = false
devices = ["/dev/input/event3"]

[logging]
level = "debug"
format = "json"
`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
version: 1
capture:
  dir: /tmp/captures
  sync: false
  devices: [/dev/input/event3]
logging:
  level: debug
  format: json
`,
		},
		{
			name: "json",
			file: "config.json",
			content: `{
  "version": 1,
  "capture": {"dir": "/tmp/captures", "sync": false, "devices": ["/dev/input/event3"]},
  "logging": {"level": "debug", "format": "json"}
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("write config: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Capture.Dir != "/tmp/captures" {
				t.Errorf("dir = %s", cfg.Capture.Dir)
			}
			if cfg.Capture.Sync {
				t.Error("sync should be false")
			}
			if len(cfg.Capture.Devices) != 1 || cfg.Capture.Devices[0] != "/dev/input/event3" {
				t.Errorf("devices = %v", cfg.Capture.Devices)
			}
			if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
				t.Errorf("logging = %+v", cfg.Logging)
			}
			// Untouched keys keep their defaults.
			if cfg.Logging.Output != "both" || cfg.Logging.MaxSizeMB != 10 {
				t.Errorf("defaults lost: %+v", cfg.Logging)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[capture\ndir = "), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEYMETER_OUTPUT_DIR", "/env/out")
	t.Setenv("KEYMETER_LOG_LEVEL", "WARN")
	t.Setenv("KEYMETER_LOG_FILE", "/env/km.log")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capture.Dir != "/env/out" {
		t.Errorf("dir = %s", cfg.Capture.Dir)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	if cfg.LogPath() != "/env/km.log" {
		t.Errorf("log path = %s", cfg.LogPath())
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 7
	cfg.Capture.Dir = " "
	cfg.Capture.Devices = []string{""}
	cfg.Logging.Level = "verbose"
	cfg.Logging.Format = "xml"
	cfg.Logging.Output = "syslog"
	cfg.Logging.MaxSizeMB = 0
	cfg.Logging.MaxBackups = -1

	err := cfg.Validate()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}

	for _, field := range []string{
		"version",
		"capture.dir",
		"capture.devices[0]",
		"logging.level",
		"logging.format",
		"logging.output",
		"logging.max_size_mb",
		"logging.max_backups",
	} {
		if !verrs.Has(field) {
			t.Errorf("missing error for %s in %v", field, verrs)
		}
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Dir = "/data"
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "file"
	cfg.Logging.MaxBackups = 7

	lc := cfg.LoggerConfig()
	if lc.Level != logging.LevelDebug {
		t.Errorf("level = %v", lc.Level)
	}
	if lc.Format != logging.FormatJSON {
		t.Errorf("format = %v", lc.Format)
	}
	if lc.Output != "file" || lc.FilePath != filepath.Join("/data", LogFileName) {
		t.Errorf("output = %s %s", lc.Output, lc.FilePath)
	}
	if lc.MaxSize != 10 || lc.MaxBackups != 7 {
		t.Errorf("rotation = %d/%d", lc.MaxSize, lc.MaxBackups)
	}
}

func TestSaveAndReload(t *testing.T) {
	for _, ext := range SupportedConfigFormats() {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", "config."+ext)
			cfg := DefaultConfig()
			cfg.Capture.Dir = "/saved"
			cfg.Catalog.Enabled = false

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("config mode = %v", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.Capture.Dir != "/saved" || loaded.Catalog.Enabled {
				t.Errorf("round trip lost values: %+v", loaded)
			}
			if err := ValidateSchema(path); err != nil {
				t.Errorf("saved config fails schema: %v", err)
			}
		})
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Devices = []string{"/dev/input/event0"}
	clone := cfg.Clone()
	clone.Capture.Devices[0] = "changed"
	if cfg.Capture.Devices[0] != "/dev/input/event0" {
		t.Error("Clone shares the devices slice")
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(path)
	defer loader.Close()

	if _, err := loader.Load(); err == nil {
		t.Fatal("expected validation error")
	}
	if loader.Config() != nil {
		t.Error("invalid config must not be stored")
	}
}

func TestLoaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	defer loader.Close()

	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := make(chan *Config, 4)
	loader.OnChange(func(c *Config) { changed <- c })
	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changed:
		if c.Logging.Level != "debug" {
			t.Errorf("reloaded level = %s", c.Logging.Level)
		}
		if loader.Config().Logging.Level != "debug" {
			t.Error("loader did not keep the new config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config change")
	}
}
