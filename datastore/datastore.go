// Package datastore is a small JSON-file key/value store: values live in
// memory, are saved atomically on an interval and on Close, and the previous
// file versions are kept as rotating backups.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var (
	ErrClosed      = errors.New("datastore is closed")
	ErrMemoryLimit = errors.New("datastore memory limit exceeded")
	ErrLocked      = errors.New("datastore is in use by another process")
)

// Config holds configuration options for the DataStore.
type Config struct {
	FilePath         string
	AutoSaveInterval time.Duration
	MaxMemorySize    int64 // bytes, 0 = unlimited
	BackupCount      int
	Logger           zerolog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
		MaxMemorySize:    100 * 1024 * 1024,
		BackupCount:      3,
		Logger:           zerolog.Nop(),
	}
}

type DataStore struct {
	data         map[string]json.RawMessage
	file         string
	lock         *flock.Flock
	mu           sync.RWMutex
	saveMu       sync.Mutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	config       *Config
	memorySize   int64
	lastChecksum string
	closed       bool
}

// New creates a DataStore with the default configuration.
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig creates a DataStore, loading filePath when it exists.
func NewWithConfig(config *Config) (*DataStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	lock := flock.New(config.FilePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", config.FilePath, ErrLocked)
	}

	ds := &DataStore{
		data:   make(map[string]json.RawMessage),
		file:   config.FilePath,
		lock:   lock,
		config: config,
	}
	if err := ds.init(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	if config.AutoSaveInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		ds.cancel = cancel
		ds.wg.Add(1)
		go ds.autoSave(ctx)
	}
	return ds, nil
}

func (ds *DataStore) init() error {
	switch _, err := os.Stat(ds.file); {
	case os.IsNotExist(err):
		if err := ds.writeFileAtomic([]byte("{}")); err != nil {
			return fmt.Errorf("create empty JSON file: %w", err)
		}
	case err == nil:
		if err := ds.loadFromFile(); err != nil {
			return fmt.Errorf("load data from file: %w", err)
		}
	default:
		return fmt.Errorf("check file existence: %w", err)
	}
	return nil
}

// Put stores value under key, encoded as JSON.
func (ds *DataStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.putLocked(key, raw)
}

func (ds *DataStore) putLocked(key string, raw json.RawMessage) error {
	if ds.closed {
		return ErrClosed
	}
	newSize := ds.memorySize - int64(len(ds.data[key])) + int64(len(raw))
	if ds.config.MaxMemorySize > 0 && newSize > ds.config.MaxMemorySize {
		return ErrMemoryLimit
	}
	ds.memorySize = newSize
	ds.data[key] = raw
	return nil
}

// Get decodes the value under key into dst. It returns false when the key is
// absent.
func (ds *DataStore) Get(key string, dst any) (bool, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.closed {
		return false, ErrClosed
	}
	raw, ok := ds.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Update runs fn on the current value of key (zero value when absent) and
// stores the result, holding the write lock for the whole read-modify-write.
func Update[T any](ds *DataStore, key string, fn func(v *T) error) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}
	var v T
	if raw, ok := ds.data[key]; ok {
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
	}
	if err := fn(&v); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return ds.putLocked(key, raw)
}

// Keys returns the keys starting with prefix, sorted.
func (ds *DataStore) Keys(prefix string) []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	var out []string
	for k := range ds.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// SaveToFile forces an immediate save.
func (ds *DataStore) SaveToFile() error {
	ds.mu.RLock()
	closed := ds.closed
	ds.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return ds.saveToFile()
}

// Close stops autosave and writes the final state.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return nil
	}
	ds.closed = true
	ds.mu.Unlock()

	if ds.cancel != nil {
		ds.cancel()
	}
	ds.wg.Wait()
	err := ds.saveToFile()
	if uerr := ds.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("release lock: %w", uerr)
	}
	return err
}

// saveToFile writes the data atomically, skipping unchanged content.
func (ds *DataStore) saveToFile() error {
	ds.saveMu.Lock()
	defer ds.saveMu.Unlock()

	ds.mu.RLock()
	data, err := json.MarshalIndent(ds.data, "", "  ")
	ds.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	checksum := checksum(data)
	if checksum == ds.lastChecksum {
		return nil
	}
	if ds.config.BackupCount > 0 {
		if err := ds.createBackup(); err != nil {
			ds.config.Logger.Warn().Err(err).Msg("failed to create backup")
		}
	}
	if err := ds.writeFileAtomic(data); err != nil {
		return err
	}
	if err := ds.verifyFile(checksum); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}
	ds.lastChecksum = checksum
	return nil
}

func (ds *DataStore) loadFromFile() error {
	data, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	var temp map[string]json.RawMessage
	if err := json.Unmarshal(data, &temp); err != nil {
		return fmt.Errorf("invalid JSON format: %w", err)
	}
	if temp == nil {
		temp = make(map[string]json.RawMessage)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.data = temp
	ds.memorySize = 0
	for _, raw := range temp {
		ds.memorySize += int64(len(raw))
	}
	ds.lastChecksum = checksum(data)
	return nil
}

// writeFileAtomic writes to a temp file, syncs it and renames it into place.
func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmpFile := ds.file + ".tmp"
	f, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("sync temp file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpFile, ds.file); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (ds *DataStore) verifyFile(expected string) error {
	actual, err := os.ReadFile(ds.file)
	if err != nil {
		return fmt.Errorf("read file for verification: %w", err)
	}
	if checksum(actual) != expected {
		return fmt.Errorf("file checksum mismatch")
	}
	return nil
}

func (ds *DataStore) createBackup() error {
	src, err := os.Open(ds.file)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	backupFile := fmt.Sprintf("%s.backup.%s", ds.file, time.Now().Format("20060102_150405.000"))
	dst, err := os.Create(backupFile)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	ds.cleanupOldBackups()
	return nil
}

// cleanupOldBackups keeps only the newest BackupCount backups.
func (ds *DataStore) cleanupOldBackups() {
	matches, err := filepath.Glob(ds.file + ".backup.*")
	if err != nil || len(matches) <= ds.config.BackupCount {
		return
	}
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			files = append(files, fileInfo{m, info.ModTime()})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for i := 0; i < len(files)-ds.config.BackupCount; i++ {
		os.Remove(files[i].path)
	}
}

func (ds *DataStore) autoSave(ctx context.Context) {
	defer ds.wg.Done()
	ticker := time.NewTicker(ds.config.AutoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ds.saveToFile(); err != nil {
				ds.config.Logger.Error().Err(err).Msg("auto-save failed")
			}
		}
	}
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
