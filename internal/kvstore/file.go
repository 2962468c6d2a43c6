package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores all keys in a single JSON document on disk, mapping each key to its
// raw JSON value. The whole document is rewritten on every change (temp file + rename).
type FileBackend struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// NewFileBackend opens (or creates on first write) the document at path. An unreadable or
// corrupt document is treated as empty so the dashboard still starts with defaults.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("file backend: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file backend: create dir: %w", err)
	}
	fb := &FileBackend{path: path, data: make(map[string]json.RawMessage)}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &fb.data); jsonErr != nil {
			fb.data = make(map[string]json.RawMessage)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("file backend: read %s: %w", path, err)
	}
	return fb, nil
}

func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

// Set stores value. Values that are not valid JSON are stored as a JSON string so the
// document itself always stays parseable.
func (f *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if json.Valid(value) {
		f.data[key] = append(json.RawMessage(nil), value...)
	} else {
		quoted, err := json.Marshal(string(value))
		if err != nil {
			return err
		}
		f.data[key] = quoted
	}
	return f.flushLocked()
}

func (f *FileBackend) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.flushLocked()
}

func (f *FileBackend) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".skyweather-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
