// Package settings persists the enabled flag.
//
// Every Store returns the caller's default with a nil error when the flag
// has never been written, and wraps ErrUnavailable when the backing storage
// cannot be read or written.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// KeyEnabled is the single persisted setting.
const KeyEnabled = "enabled"

// ErrUnavailable is wrapped by every storage failure.
var ErrUnavailable = errors.New("settings: unavailable")

// Store reads and writes the enabled flag.
type Store interface {
	Get(ctx context.Context, def bool) (bool, error)
	Set(ctx context.Context, enabled bool) error
}

// Watcher is implemented by stores that can report writes made by other
// processes. Watch blocks until ctx is done, calling fn after each change.
type Watcher interface {
	Watch(ctx context.Context, fn func() error) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("settings: %s: %w: %w", op, ErrUnavailable, err)
}

// Memory is an in-process Store.
type Memory struct {
	mu  sync.Mutex
	set bool
	val bool
	err error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory { return &Memory{} }

// Get returns the stored value, or def when nothing was stored.
func (m *Memory) Get(_ context.Context, def bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return def, unavailable("get", m.err)
	}
	if !m.set {
		return def, nil
	}
	return m.val, nil
}

// Set stores enabled.
func (m *Memory) Set(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return unavailable("set", m.err)
	}
	m.set, m.val = true, enabled
	return nil
}

// Fail makes every later call fail with err; nil restores normal behaviour.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
