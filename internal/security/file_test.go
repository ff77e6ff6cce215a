package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	_, err := CleanPath("")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = CleanPath("bad\x00path")
	assert.ErrorIs(t, err, ErrInvalidPath)

	got, err := CleanPath("a/../b")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "b", filepath.Base(got))
}

func TestCreateSecretFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "secret.txt")

	f, err := CreateSecretFile(path)
	require.NoError(t, err)
	defer f.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, PermSecretFile, info.Mode().Perm())
	require.NoError(t, CheckPrivate(path))

	_, err = CreateSecretFile(path)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestEnsureSecureDirCreatesPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, EnsureSecureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Zero(t, info.Mode().Perm()&0077)
}

func TestEnsureSecureDirLeavesExistingAlone(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := filepath.Join(t.TempDir(), "shared")
	require.NoError(t, os.Mkdir(dir, 0755))
	require.NoError(t, os.Chmod(dir, 0o777|os.ModeSticky))
	before, err := os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, EnsureSecureDir(dir))

	after, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, before.Mode(), after.Mode())
}

func TestEnsureSecureDirRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	assert.ErrorIs(t, EnsureSecureDir(path), ErrInvalidPath)
}

func TestCheckPrivateDetectsWorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "open.txt")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	require.NoError(t, os.Chmod(path, 0644))
	assert.ErrorIs(t, CheckPrivate(path), ErrInsecurePermissions)
}

func TestTryLockFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("flock semantics")
	}
	path := filepath.Join(t.TempDir(), "lock")
	a, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	require.NoError(t, err)
	defer a.Close()
	b, err := os.OpenFile(path, os.O_RDWR, 0600)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, TryLockFile(a))
	assert.ErrorIs(t, TryLockFile(b), ErrLocked)
	require.NoError(t, UnlockFile(a))
	require.NoError(t, TryLockFile(b))
}
