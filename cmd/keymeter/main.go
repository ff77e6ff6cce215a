// Command keymeter records key presses to timestamped plaintext files in the
// user's home directory.
//
// Files are created owner-only (0600) under ~/keymeter_logs and nothing
// leaves the machine. See "keymeter help" for the commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keymeter/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keymeter:", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	outputDir  string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "keymeter",
		Short: "Record key presses to timestamped files in ~/keymeter_logs",
		Long: `keymeter listens for keyboard input and appends every key press, with a
timestamp, to a plaintext file readable only by you. Each run creates a new
keystrokes_YYYYMMDD_HHMMSS.txt framed by start and stop markers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: "+config.ConfigPath()+")")
	root.PersistentFlags().StringVarP(&opts.outputDir, "output", "o", "", "capture directory (default: ~/keymeter_logs)")

	root.AddCommand(
		runCmd(opts),
		stopCmd(opts),
		statusCmd(opts),
		listCmd(opts),
		showCmd(opts),
		devicesCmd(),
		configCmd(opts),
	)
	return root
}

// resolveConfigPath returns the explicit --config path, else the first
// config file found, else the default location.
func (o *globalOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if p := config.FindConfigFile(); p != "" {
		return p
	}
	return config.ConfigPath()
}

// load reads and validates the configuration and applies --output.
func (o *globalOptions) load() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(o.resolveConfigPath())
	cfg, err := loader.Load()
	if err != nil {
		loader.Close()
		return nil, nil, fmt.Errorf("load config %s: %w", loader.Path(), err)
	}
	if o.outputDir != "" {
		cfg.Capture.Dir = o.outputDir
	}
	return cfg, loader, nil
}
