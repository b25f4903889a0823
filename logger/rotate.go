package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// rotatingFile is a zapcore.WriteSyncer that renames the log file once it
// grows past maxSize and keeps at most maxBackups renamed copies.
type rotatingFile struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	maxSize     int64 // bytes
	maxBackups  int
	currentSize int64
	now         func() time.Time
}

func openRotatingFile(path string, maxSizeMB, maxBackups int) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rf := &rotatingFile{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		now:        time.Now,
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) open() error {
	file, err := os.OpenFile(rf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to get log file info: %w", err)
	}

	rf.file = file
	rf.currentSize = info.Size()
	return nil
}

// Write implements io.Writer
func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}

	n, err := rf.file.Write(p)
	rf.currentSize += int64(n)
	if err != nil {
		return n, err
	}

	if rf.maxSize > 0 && rf.currentSize >= rf.maxSize {
		if rerr := rf.rotate(); rerr != nil {
			fmt.Fprintf(os.Stderr, "failed to rotate log file: %v\n", rerr)
		}
	}
	return n, nil
}

// Sync implements zapcore.WriteSyncer
func (rf *rotatingFile) Sync() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	return rf.file.Sync()
}

func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

func (rf *rotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}
	rf.file = nil

	if err := os.Rename(rf.path, rf.backupName()); err != nil {
		return err
	}

	rf.cleanOldLogs()
	return rf.open()
}

// backupName yields app.20250301-101500.000.log for app.log
func (rf *rotatingFile) backupName() string {
	dir := filepath.Dir(rf.path)
	base := filepath.Base(rf.path)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, rf.now().Format("20060102-150405.000"), ext))
}

func (rf *rotatingFile) cleanOldLogs() {
	dir := filepath.Dir(rf.path)
	base := filepath.Base(rf.path)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	matches, err := filepath.Glob(filepath.Join(dir, name+".*"+ext))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find old log files: %v\n", err)
		return
	}
	if len(matches) <= rf.maxBackups {
		return
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		backups = append(backups, backup{m, info.ModTime()})
	}

	// oldest first; names sort by timestamp when mod times tie
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime.Equal(backups[j].modTime) {
			return backups[i].path < backups[j].path
		}
		return backups[i].modTime.Before(backups[j].modTime)
	})

	for i := 0; i < len(backups)-rf.maxBackups; i++ {
		os.Remove(backups[i].path)
	}
}
