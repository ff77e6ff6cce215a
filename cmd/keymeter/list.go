package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"keymeter/internal/store"
)

func listCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded capture sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			loader.Close()

			out := cmd.OutOrStdout()
			path := cfg.CatalogPath()
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "No sessions recorded yet.")
				return nil
			}

			st, err := store.Open(path)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.List(limit)
			if err != nil {
				return err
			}
			totals, err := st.Totals()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet.")
				return nil
			}

			now := time.Now()
			headers := []string{"STARTED", "DURATION", "KEYS", "DROPPED", "SOURCE", "FILE"}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				duration := formatDuration(s.Duration(now))
				if s.Active() {
					duration += " (active)"
				}
				rows = append(rows, []string{
					s.StartedAt.Format("2006-01-02 15:04:05"),
					duration,
					formatCount(s.Keystrokes),
					strconv.FormatUint(s.Dropped, 10),
					s.Source,
					filepath.Base(s.Path),
				})
			}

			if isTerminal(out) {
				active := func(row int) bool { return row >= 0 && row < len(sessions) && sessions[row].Active() }
				fmt.Fprintln(out, newTable(headers, rows, active).Render())
			} else {
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, strings.Join(headers, "\t"))
				for _, r := range rows {
					fmt.Fprintln(tw, strings.Join(r, "\t"))
				}
				tw.Flush()
			}

			fmt.Fprintf(out, "%d sessions, %s key presses", totals.Sessions, formatCount(totals.Keystrokes))
			if totals.Active > 0 {
				fmt.Fprintf(out, ", %d active", totals.Active)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to show (0 = all)")
	return cmd
}
