package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists values as a JSON document on disk, one object per
// partition. Writes go through a temp file and rename so a crash never
// leaves a half-written document behind. The file is created with 0600
// permissions since it may carry the unlock password mirror.
type FileStore struct {
	path      string
	partition string
	logger    *slog.Logger

	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewFileStore opens (or creates) the JSON store at path, scoped to the
// given partition. An empty partition name falls back to DefaultPartition.
func NewFileStore(path, partition string, logger *slog.Logger) (*FileStore, error) {
	if partition == "" {
		partition = DefaultPartition
	}
	if logger == nil {
		logger = slog.Default()
	}

	fs := &FileStore{
		path:      path,
		partition: partition,
		logger:    logger.With(slog.String("component", "file_store")),
		values:    make(map[string]map[string]string),
	}

	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	return nil
}

// flush writes the full document. Callers must hold the write lock.
func (f *FileStore) flush() {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		f.logger.Error("failed to marshal store file", slog.String("error", err.Error()))
		return
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".betagate-store-*")
	if err != nil {
		f.logger.Error("failed to create temp store file", slog.String("error", err.Error()))
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		f.logger.Error("failed to write store file", slog.String("error", err.Error()))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		f.logger.Error("failed to close store file", slog.String("error", err.Error()))
		return
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		f.logger.Warn("failed to restrict store file permissions", slog.String("error", err.Error()))
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		f.logger.Error("failed to replace store file", slog.String("error", err.Error()))
	}
}

func (f *FileStore) get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	part, ok := f.values[f.partition]
	if !ok {
		return "", false
	}
	v, ok := part[key]
	return v, ok
}

func (f *FileStore) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	part, ok := f.values[f.partition]
	if !ok {
		part = make(map[string]string)
		f.values[f.partition] = part
	}
	part[key] = value
	f.flush()
}

// GetBool returns the stored boolean for key, or absent.
func (f *FileStore) GetBool(key string) (bool, bool) {
	s, ok := f.get(key)
	if !ok {
		return false, false
	}
	return decodeBool(s)
}

// GetFloat returns the stored float for key, or absent.
func (f *FileStore) GetFloat(key string) (float64, bool) {
	s, ok := f.get(key)
	if !ok {
		return 0, false
	}
	return decodeFloat(s)
}

// GetTime returns the stored timestamp for key, or absent.
func (f *FileStore) GetTime(key string) (time.Time, bool) {
	s, ok := f.get(key)
	if !ok {
		return time.Time{}, false
	}
	return decodeTime(s)
}

// GetString returns the stored string for key, or absent.
func (f *FileStore) GetString(key string) (string, bool) {
	return f.get(key)
}

// SetBool stores a boolean value.
func (f *FileStore) SetBool(key string, value bool) { f.set(key, encodeBool(value)) }

// SetFloat stores a float value.
func (f *FileStore) SetFloat(key string, value float64) { f.set(key, encodeFloat(value)) }

// SetTime stores a timestamp value.
func (f *FileStore) SetTime(key string, value time.Time) { f.set(key, encodeTime(value)) }

// SetString stores a string value.
func (f *FileStore) SetString(key string, value string) { f.set(key, value) }

// Remove deletes a key from the partition. Removing an absent key is a
// no-op and does not rewrite the file.
func (f *FileStore) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	part, ok := f.values[f.partition]
	if !ok {
		return
	}
	if _, ok := part[key]; !ok {
		return
	}
	delete(part, key)
	f.flush()
}
