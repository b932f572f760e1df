package settings

import (
	"fmt"
	"log/slog"
	"time"
)

// Backends accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Open returns the Store for backend. SQLite and File stores also implement
// Watcher; a SQLite store must be closed by the caller (see Close).
func Open(backend, path string, interval time.Duration, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQLite(path, interval, logger)
	case BackendFile:
		return NewFile(path, logger), nil
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("settings: unknown backend %q", backend)
}

// Close releases s when it holds resources.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
