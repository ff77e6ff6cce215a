package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"keymeter/internal/capture"
	"keymeter/internal/config"
	"keymeter/internal/daemon"
	"keymeter/internal/keystroke"
	"keymeter/internal/logging"
	"keymeter/internal/store"
)

// progressInterval is how often the catalog is updated during a capture.
const progressInterval = 10 * time.Second

type runOptions struct {
	logFile  string
	detach   bool
	simulate bool
	noSync   bool
}

func runCmd(opts *globalOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture key presses until interrupted",
		Long: `Capture key presses into a new file in the capture directory until
SIGINT or SIGTERM. With --daemon the capture runs in the background; stop it
with "keymeter stop".

On Linux keymeter reads /dev/input/event*, which requires membership in the
"input" group or root. --simulate reads lines from standard input instead of
the keyboard.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := opts.load()
			if err != nil {
				return err
			}
			defer loader.Close()

			if ro.logFile != "" {
				cfg.Logging.FilePath = ro.logFile
			}
			if ro.detach && !daemon.IsChild() {
				return startDaemon(cmd, opts, ro, cfg)
			}
			return runCapture(cmd, ro, cfg, loader)
		},
	}

	cmd.Flags().StringVarP(&ro.logFile, "log-file", "l", "", "application log file (default: <capture dir>/keymeter.log)")
	cmd.Flags().BoolVarP(&ro.detach, "daemon", "d", false, "run in the background")
	cmd.Flags().BoolVar(&ro.simulate, "simulate", false, "read key presses from stdin instead of the keyboard")
	cmd.Flags().BoolVar(&ro.noSync, "no-sync", false, "skip fsync after each key press")
	return cmd
}

// startDaemon re-executes keymeter in the background and waits until the
// child has taken the PID file.
func startDaemon(cmd *cobra.Command, opts *globalOptions, ro *runOptions, cfg *config.Config) error {
	mgr := daemon.NewManager(cfg.PidPath())
	if mgr.IsRunning() {
		pid, _ := mgr.ReadPID()
		return fmt.Errorf("%w (pid %d); run 'keymeter stop' first", daemon.ErrAlreadyRunning, pid)
	}

	dir, err := filepath.Abs(cfg.CaptureDir())
	if err != nil {
		return err
	}
	logPath, err := filepath.Abs(cfg.LogPath())
	if err != nil {
		return err
	}

	args := []string{"run", "--daemon", "--output", dir, "--log-file", logPath}
	if p := opts.resolveConfigPath(); p != "" {
		if abs, err := filepath.Abs(p); err == nil {
			args = append(args, "--config", abs)
		}
	}
	if ro.simulate {
		args = append(args, "--simulate")
	}
	if ro.noSync {
		args = append(args, "--no-sync")
	}

	pid, err := daemon.Detach(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if err := waitForPID(ctx, mgr, pid); err != nil {
		return fmt.Errorf("daemon failed to start (see %s): %w", logPath, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "keymeter started in the background (pid %d)\n", pid)
	fmt.Fprintf(out, "Capture directory: %s\n", dir)
	fmt.Fprintf(out, "Log file:          %s\n", logPath)
	fmt.Fprintln(out, "Run 'keymeter stop' to end the capture.")
	return nil
}

func waitForPID(ctx context.Context, mgr *daemon.Manager, pid int) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if got, err := mgr.ReadPID(); err == nil && got == pid {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCapture runs one capture session in this process.
func runCapture(cmd *cobra.Command, ro *runOptions, cfg *config.Config, loader *config.Loader) error {
	background := daemon.IsChild()

	lc := cfg.LoggerConfig()
	if background {
		lc.Output = "file"
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logger.Close()

	mgr := daemon.NewManager(cfg.PidPath())
	if err := mgr.Acquire(); err != nil {
		logger.Error("cannot take pid file", "path", mgr.PidFile(), "error", err)
		return err
	}
	defer func() {
		if err := mgr.Release(); err != nil {
			logger.Warn("release pid file", "error", err)
		}
	}()

	watchConfig(loader, logger)

	var src keystroke.Source
	var sim *keystroke.SimulatedSource
	if ro.simulate {
		sim = keystroke.NewSimulated()
		src = sim
	} else {
		src = keystroke.NewWithDevices(cfg.Capture.Devices)
	}
	if ok, reason := src.Available(); !ok {
		logger.Error("keyboard source unavailable", "source", src.Name(), "reason", reason)
		return fmt.Errorf("%w: %s", keystroke.ErrNotAvailable, reason)
	}

	ctx, cancel := notifyContext(cmd.Context(), logger)
	defer cancel()

	session := capture.New(capture.Options{
		Dir:    cfg.CaptureDir(),
		Logger: logger.WithComponent("capture"),
		NoSync: ro.noSync || !cfg.Capture.Sync,
	})
	if err := session.Start(); err != nil {
		logger.Error("start capture", "dir", cfg.CaptureDir(), "error", err)
		return err
	}
	logger.Info("capture started",
		"dir", session.Dir(),
		"file", session.Path(),
		"source", src.Name(),
		"pid", os.Getpid(),
	)

	if err := mgr.WriteState(&daemon.State{
		PID:         os.Getpid(),
		StartedAt:   session.StartedAt(),
		CaptureFile: session.Path(),
		Source:      src.Name(),
		Version:     version,
	}); err != nil {
		logger.Warn("write daemon state", "error", err)
	}

	catalog := openCatalog(cfg, logger)
	if catalog != nil {
		defer catalog.close()
		catalog.begin(session, src.Name())
	}

	if !background {
		fmt.Fprintf(cmd.OutOrStdout(), "Capturing to %s\n", session.Path())
		if sim != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Type lines on stdin; end with Ctrl+D.")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop.")
		}
	}

	runErr := session.Run(ctx, func(ctx context.Context, s *capture.Session) error {
		ctx, stopTracking := context.WithCancel(ctx)
		var wg sync.WaitGroup
		defer func() {
			stopTracking()
			wg.Wait()
		}()

		if catalog != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				catalog.track(ctx, s)
			}()
		}
		if sim != nil && !background {
			go func() {
				feedLines(ctx, sim, cmd.InOrStdin())
				cancel()
			}()
		}
		return src.Listen(ctx, s)
	})

	stats := session.Stats()
	if catalog != nil {
		catalog.finish(stats)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("capture ended with error", "file", session.Path(), "error", runErr)
	}
	logger.Info("capture stopped",
		"file", session.Path(),
		"keystrokes", stats.Keystrokes,
		"dropped", stats.Dropped,
	)

	if !background {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped. %d key presses written to %s", stats.Keystrokes, session.Path())
		if stats.Dropped > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " (%d dropped, see %s)", stats.Dropped, cfg.LogPath())
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// watchConfig applies log level changes from the config file while
// capturing. Other settings take effect on the next run.
func watchConfig(loader *config.Loader, logger *logging.Logger) {
	if _, err := os.Stat(loader.Path()); err != nil {
		return
	}
	loader.OnChange(func(c *config.Config) {
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return
		}
		if level != logger.Level() {
			logger.SetLevel(level)
			logger.Info("log level changed", "level", logging.LevelString(level))
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "path", loader.Path(), "error", err)
		return
	}
	go func() {
		for err := range loader.Errors() {
			logger.Warn("config reload rejected", "path", loader.Path(), "error", err)
		}
	}()
}

// feedLines types each line read from r, followed by enter, into src.
func feedLines(ctx context.Context, src *keystroke.SimulatedSource, r io.Reader) {
	for !src.Listening() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		src.Type(scanner.Text())
		src.Press(keystroke.Symbolic("enter"))
	}
}

// catalogSession ties a capture session to its catalog record. Catalog
// failures are logged and never interrupt the capture.
type catalogSession struct {
	store  *store.Store
	logger *logging.Logger
	id     string
}

func openCatalog(cfg *config.Config, logger *logging.Logger) *catalogSession {
	if !cfg.Catalog.Enabled {
		return nil
	}
	logger = logger.WithComponent("catalog")
	st, err := store.Open(cfg.CatalogPath())
	if err != nil {
		logger.Warn("session catalog unavailable", "path", cfg.CatalogPath(), "error", err)
		return nil
	}
	return &catalogSession{store: st, logger: logger}
}

func (c *catalogSession) begin(s *capture.Session, source string) {
	id, err := c.store.Begin(&store.SessionRecord{
		Path:      s.Path(),
		Source:    source,
		PID:       os.Getpid(),
		StartedAt: s.StartedAt(),
	})
	if err != nil {
		c.logger.Warn("record session", "error", err)
		return
	}
	c.id = id
	c.logger.Debug("session recorded", "session_id", id)
}

func (c *catalogSession) track(ctx context.Context, s *capture.Session) {
	if c.id == "" {
		return
	}
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Stats()
			if err := c.store.Progress(c.id, st.Keystrokes, st.Dropped); err != nil {
				c.logger.Warn("update session progress", "session_id", c.id, "error", err)
			}
		}
	}
}

func (c *catalogSession) finish(stats capture.Stats) {
	if c.id == "" {
		return
	}
	if err := c.store.Finish(c.id, time.Now(), stats.Keystrokes, stats.Dropped); err != nil {
		c.logger.Warn("finish session", "session_id", c.id, "error", err)
	}
}

func (c *catalogSession) close() {
	if err := c.store.Close(); err != nil {
		c.logger.Warn("close catalog", "error", err)
	}
}
