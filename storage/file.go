package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/eddielth/air-monitor/logger"
)

// FileStorage archives each record as a JSON file under basePath/<kind>/
type FileStorage struct {
	basePath string
	seq      atomic.Uint64
	now      func() time.Time
}

// NewFileStorage creates basePath if needed
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create dir %s failed: %w", basePath, err)
	}

	logger.Info("init file archive: %s", basePath)
	return &FileStorage{
		basePath: basePath,
		now:      time.Now,
	}, nil
}

// Store implements StorageBackend
func (fs *FileStorage) Store(kind string, data interface{}) error {
	dir := filepath.Join(fs.basePath, kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %s failed: %w", dir, err)
	}

	// the sequence keeps names unique within one millisecond
	timestamp := fs.now().UTC().Format("20060102-150405.000")
	filename := filepath.Join(dir, fmt.Sprintf("%s-%06d.json", timestamp, fs.seq.Add(1)))

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s record failed: %w", kind, err)
	}

	if err := os.WriteFile(filename, jsonData, 0644); err != nil {
		return fmt.Errorf("write file %s failed: %w", filename, err)
	}

	logger.Debug("archived %s record to %s", kind, filename)
	return nil
}

// Close implements StorageBackend
func (fs *FileStorage) Close() error {
	return nil
}
