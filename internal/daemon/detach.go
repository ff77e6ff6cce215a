package daemon

import (
	"fmt"
	"os"
	"os/exec"
)

// ChildEnv marks a process started by Detach.
const ChildEnv = "KEYMETER_DAEMON"

// IsChild reports whether this process was started by Detach.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// Detach re-executes the current binary with args in a new session,
// detached from the terminal, and returns the child's PID. The child's
// standard streams go to the null device; it is expected to log to a file.
func Detach(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("find executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), ChildEnv+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = detachedSysProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release daemon: %w", err)
	}
	return pid, nil
}
