package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Enabled   *bool     `yaml:"enabled"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// File stores settings in a small YAML document:
//
//	enabled: true
//	updated_at: 2026-01-02T15:04:05Z
type File struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFile returns a File store for path. The file is created on first Set.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

// Get implements Store.
func (f *File) Get(_ context.Context, def bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return def, unavailable("read", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return def, unavailable("parse", err)
	}
	if doc.Enabled == nil {
		return def, nil
	}
	return *doc.Enabled, nil
}

// Set implements Store. The file is replaced atomically.
func (f *File) Set(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(fileDoc{Enabled: &enabled, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return unavailable("encode", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return unavailable("mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return unavailable("write", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return unavailable("write", err)
	}
	if err := tmp.Close(); err != nil {
		return unavailable("write", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return unavailable("rename", err)
	}
	return nil
}

// Watch watches the file's directory and calls fn whenever the file is
// created, written or replaced.
func (f *File) Watch(ctx context.Context, fn func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings: watch: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: watch: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("settings: watch %s: %w", dir, err)
	}
	name := filepath.Clean(f.path)

	f.logger.Info("settings: watching file", "path", f.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if err := fn(); err != nil {
				f.logger.Warn("settings: change handler failed", "error", err)
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("settings: watch error", "error", werr)
		}
	}
}
