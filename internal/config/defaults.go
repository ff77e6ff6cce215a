package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDirName is the capture directory created under the user's home.
const DataDirName = "keymeter_logs"

// DataDir returns ~/keymeter_logs.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), DataDirName)
	}
	return filepath.Join(home, DataDirName)
}

// ConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/keymeter/
//   - Linux:   $XDG_CONFIG_HOME/keymeter/ or ~/.config/keymeter/
//   - Windows: %APPDATA%\keymeter\
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "keymeter")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "keymeter")
		}
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "keymeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "keymeter")
}

// ConfigPath returns the default config file path. KEYMETER_CONFIG overrides it.
func ConfigPath() string {
	if p := os.Getenv("KEYMETER_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// SupportedConfigFormats returns the config file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{"toml", "yaml", "yml", "json"}
}

// FindConfigFile returns the first config.<ext> found in the config
// directory, or "" if there is none.
func FindConfigFile() string {
	if p := os.Getenv("KEYMETER_CONFIG"); p != "" {
		return p
	}
	dir := ConfigDir()
	for _, ext := range SupportedConfigFormats() {
		path := filepath.Join(dir, "config."+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
