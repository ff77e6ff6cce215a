package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"keymeter/internal/capture"
	"keymeter/internal/daemon"
	"keymeter/internal/store"
)

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a capture is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			loader.Close()

			out := cmd.OutOrStdout()
			mgr := daemon.NewManager(cfg.PidPath())
			status, err := mgr.Status()
			if err != nil {
				return err
			}

			switch {
			case status.Running:
				fmt.Fprintln(out, render(out, styleTitle, "keymeter is running"))
			case status.Stale:
				fmt.Fprintln(out, render(out, styleWarn, "keymeter is not running (stale pid file; run 'keymeter stop' to clean up)"))
			default:
				fmt.Fprintln(out, "keymeter is not running")
			}
			field(out, "Directory:", cfg.CaptureDir())
			if status.PID != 0 {
				field(out, "PID:", strconv.Itoa(status.PID))
			}
			if cfg.Catalog.Enabled {
				catalogStatus(cmd, cfg.CatalogPath())
			}
			if !status.Running {
				return nil
			}

			if !status.StartedAt.IsZero() {
				field(out, "Started:", fmt.Sprintf("%s (%s)", status.StartedAt.Format("2006-01-02 15:04:05"), formatAgo(status.StartedAt)))
				field(out, "Uptime:", formatDuration(status.Uptime))
			}
			if status.Source != "" {
				field(out, "Source:", status.Source)
			}
			if status.CaptureFile != "" {
				field(out, "File:", status.CaptureFile)
				if f, err := os.Open(status.CaptureFile); err == nil {
					sum, err := capture.Summarize(f)
					f.Close()
					if err == nil {
						field(out, "Key presses:", formatCount(uint64(sum.Keystrokes)))
					}
				}
				if info, err := os.Stat(status.CaptureFile); err == nil {
					field(out, "Size:", formatSize(info.Size()))
				}
			}
			return nil
		},
	}
}

// catalogStatus prints the session count and schema version of the
// catalog, if one exists.
func catalogStatus(cmd *cobra.Command, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	out := cmd.OutOrStdout()
	st, err := store.Open(path)
	if err != nil {
		field(out, "Catalog:", render(out, styleWarn, err.Error()))
		return
	}
	defer st.Close()

	totals, err := st.Totals()
	if err != nil {
		field(out, "Catalog:", render(out, styleWarn, err.Error()))
		return
	}
	schema, err := st.SchemaStatus()
	if err != nil {
		field(out, "Catalog:", render(out, styleWarn, err.Error()))
		return
	}
	value := fmt.Sprintf("%d sessions, schema v%d", totals.Sessions, schema.CurrentVersion)
	if n := len(schema.Pending); n > 0 {
		value = render(out, styleWarn, fmt.Sprintf("%s (%d migrations pending)", value, n))
	}
	field(out, "Catalog:", value)
}
