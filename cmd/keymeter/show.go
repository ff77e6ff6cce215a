package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"keymeter/internal/capture"
	"keymeter/internal/security"
	"keymeter/internal/store"
)

func showCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Summarize a capture file without printing its contents",
		Long: `Summarize a capture file: start and stop markers, number of key presses and
any malformed lines. A missing stop marker means the capture was interrupted
or is still running. A bare file name is looked up in the capture directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			loader.Close()

			path := args[0]
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && filepath.Base(path) == path {
				path = filepath.Join(cfg.CaptureDir(), path)
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}
			sum, err := capture.Summarize(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, render(out, styleTitle, filepath.Base(path)))
			field(out, "Path:", path)
			field(out, "Size:", formatSize(info.Size()))
			mode := info.Mode().Perm().String()
			if err := security.CheckPrivate(path); errors.Is(err, security.ErrInsecurePermissions) {
				mode = render(out, styleWarn, mode+" (readable by others)")
			}
			field(out, "Mode:", mode)

			if sum.Headers > 0 {
				field(out, "Started:", sum.StartedAt.Format(capture.TimeLayout))
			} else {
				field(out, "Started:", render(out, styleWarn, "no start marker"))
			}
			if sum.Footers > 0 {
				field(out, "Stopped:", sum.StoppedAt.Format(capture.TimeLayout))
				if sum.Headers > 0 {
					field(out, "Duration:", formatDuration(sum.StoppedAt.Sub(sum.StartedAt)))
				}
			} else {
				field(out, "Stopped:", render(out, styleWarn, "no stop marker (interrupted or still running)"))
			}
			field(out, "Key presses:", formatCount(uint64(sum.Keystrokes)))
			if sum.Malformed > 0 {
				field(out, "Malformed:", render(out, styleWarn, fmt.Sprintf("%d lines", sum.Malformed)))
			}
			if !sum.Clean() {
				field(out, "Markers:", render(out, styleWarn, fmt.Sprintf("%d start, %d stop", sum.Headers, sum.Footers)))
			}

			if cfg.Catalog.Enabled {
				showCatalogEntry(cmd, cfg.CatalogPath(), path)
			}
			return nil
		},
	}
}

func showCatalogEntry(cmd *cobra.Command, catalogPath, path string) {
	if _, err := os.Stat(catalogPath); err != nil {
		return
	}
	st, err := store.Open(catalogPath)
	if err != nil {
		return
	}
	defer st.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rec, err := st.FindByPath(abs)
	if err != nil {
		rec, err = st.FindByPath(path)
		if err != nil {
			return
		}
	}

	out := cmd.OutOrStdout()
	field(out, "Session:", rec.ID)
	field(out, "Source:", rec.Source)
	if rec.Dropped > 0 {
		field(out, "Dropped:", render(out, styleWarn, formatCount(rec.Dropped)))
	}
}
