package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keymeter/internal/keystroke"
)

func devicesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List keyboard devices and whether they can be read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			src := keystroke.New()
			ok, reason := src.Available()
			status := "available"
			if !ok {
				status = "unavailable"
			}
			fmt.Fprintf(out, "Source %s: %s (%s)\n", src.Name(), status, reason)

			devices, err := keystroke.Devices()
			if errors.Is(err, keystroke.ErrNotAvailable) {
				return nil
			}
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "  the kernel reports no input devices")
				return nil
			}
			if err != nil {
				return fmt.Errorf("list devices: %w", err)
			}

			shown := 0
			for _, d := range devices {
				if !all && !d.IsKeyboard() {
					continue
				}
				readable := "no access"
				if d.Readable {
					readable = "readable"
				}
				path := d.Path
				if path == "" {
					path = "-"
				}
				fmt.Fprintf(out, "  %-20s %-10s %s\n", path, readable, d.Name)
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(out, "  no keyboards found")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include input devices that are not keyboards")
	return cmd
}
