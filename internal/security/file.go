// Package security holds the file-permission and locking helpers used for
// capture, log and pid files.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// File permission constants
const (
	// PermSecretFile is the permission for capture and pid files (owner read/write only)
	PermSecretFile os.FileMode = 0600

	// PermSecretDir is the permission for the capture directory
	PermSecretDir os.FileMode = 0700
)

// maxPathLength bounds paths accepted by the helpers below.
const maxPathLength = 4096

// File operation errors
var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrInvalidPath         = errors.New("security: invalid path")
	ErrLocked              = errors.New("security: file is locked by another process")
)

// CleanPath rejects empty paths, NUL bytes and oversized paths, and returns
// the cleaned absolute form.
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: null byte", ErrInvalidPath)
	}
	if len(path) > maxPathLength {
		return "", fmt.Errorf("%w: length %d exceeds maximum %d", ErrInvalidPath, len(path), maxPathLength)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return abs, nil
}

// CreateSecretFile creates a new file opened for appending. The mode is
// passed to open(2), so the file never exists with wider permissions.
// It fails if the file already exists.
func CreateSecretFile(path string) (*os.File, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, PermSecretFile)
}

// EnsureSecureDir creates path and any missing parents with PermSecretDir.
// An existing directory is left exactly as it is.
func EnsureSecureDir(path string) error {
	clean, err := CleanPath(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(clean, PermSecretDir)
		}
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, clean)
	}
	return nil
}

// CheckPrivate returns ErrInsecurePermissions when group or others have any
// access to path.
func CheckPrivate(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrInsecurePermissions, path, mode)
	}
	return nil
}

// TryLockFile acquires an exclusive advisory lock on f without blocking.
// It returns ErrLocked if another process holds the lock.
func TryLockFile(f *os.File) error {
	return tryLockFile(f)
}

// UnlockFile releases the exclusive lock on a file.
func UnlockFile(f *os.File) error {
	return unlockFile(f)
}
