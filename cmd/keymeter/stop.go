package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"keymeter/internal/daemon"
)

func stopCmd(opts *globalOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			loader.Close()

			out := cmd.OutOrStdout()
			mgr := daemon.NewManager(cfg.PidPath())
			pid, err := mgr.SignalStop()
			if errors.Is(err, daemon.ErrNotRunning) {
				if pid != 0 {
					if err := mgr.Cleanup(); err != nil {
						return fmt.Errorf("remove stale pid file: %w", err)
					}
					fmt.Fprintf(out, "keymeter is not running (removed stale pid file for %d)\n", pid)
					return nil
				}
				fmt.Fprintln(out, "keymeter is not running")
				return nil
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := mgr.WaitForStop(ctx, pid); err != nil {
				return err
			}
			fmt.Fprintf(out, "keymeter stopped (pid %d)\n", pid)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the capture to finish")
	return cmd
}
