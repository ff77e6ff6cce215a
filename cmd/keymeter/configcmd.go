package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"keymeter/internal/config"
)

func configCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the configuration file",
	}
	cmd.AddCommand(
		configValidateCmd(opts),
		configInitCmd(opts),
		configShowCmd(opts),
		configPathCmd(opts),
	)
	return cmd
}

func configValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a config file against the schema and value rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.resolveConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("config %s: %w", path, err)
			}
			if err := config.ValidateSchema(path); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
}

func configInitCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigPath()
			if opts.configPath != "" {
				path = opts.configPath
			}
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := config.DefaultConfig()
			if opts.outputDir != "" {
				cfg.Capture.Dir = opts.outputDir
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func configShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			defer loader.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# source: %s\n", loader.Path())
			return toml.NewEncoder(out).Encode(cfg)
		},
	}
}

func configPathCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), opts.resolveConfigPath())
			return nil
		},
	}
}
