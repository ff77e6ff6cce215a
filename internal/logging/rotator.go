package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator handles size-based log file rotation.
type FileRotator struct {
	config *Config
	mu     sync.Mutex
	file   *os.File
	size   int64
}

// NewFileRotator creates a new FileRotator.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	r := &FileRotator{
		config: cfg,
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	if err := r.openFile(); err != nil {
		return nil, err
	}

	return r, nil
}

// openFile opens or creates the log file.
func (r *FileRotator) openFile() error {
	file, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = file
	r.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.shouldRotate(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) shouldRotate(writeSize int64) bool {
	if r.config.MaxSize <= 0 {
		return false
	}
	return r.size > 0 && r.size+writeSize > r.config.MaxSize*1024*1024
}

func (r *FileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log: %w", err)
		}
		r.file = nil
	}

	timestamp := time.Now().Format("20060102-150405.000")
	dir, name, ext := r.split()
	rotatedPath := filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, timestamp, ext))

	if err := os.Rename(r.config.FilePath, rotatedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.openFile(); err != nil {
		return err
	}

	r.cleanup()
	return nil
}

func (r *FileRotator) split() (dir, name, ext string) {
	base := filepath.Base(r.config.FilePath)
	ext = filepath.Ext(base)
	return filepath.Dir(r.config.FilePath), strings.TrimSuffix(base, ext), ext
}

// cleanup removes the oldest rotated files beyond MaxBackups.
func (r *FileRotator) cleanup() {
	if r.config.MaxBackups <= 0 {
		return
	}
	rotated, err := r.rotatedFiles()
	if err != nil || len(rotated) <= r.config.MaxBackups {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(rotated))
	for _, match := range rotated {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: match, modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	for i := 0; i < len(files)-r.config.MaxBackups; i++ {
		os.Remove(files[i].path)
	}
}

func (r *FileRotator) rotatedFiles() ([]string, error) {
	dir, name, ext := r.split()
	return filepath.Glob(filepath.Join(dir, name+"-*"+ext))
}

// Close closes the rotator and its underlying file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Sync flushes any buffered data to the file.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// GetLogFiles returns the current log file followed by rotated ones.
func (r *FileRotator) GetLogFiles() ([]string, error) {
	files := []string{r.config.FilePath}
	rotated, err := r.rotatedFiles()
	if err != nil {
		return files, err
	}
	return append(files, rotated...), nil
}
