//go:build !windows

package daemon

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// detachedSysProcAttr starts the child in its own session.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}

// processAlive sends signal 0. EPERM means the process exists but belongs
// to someone else.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
