// Package control is the control surface: it persists the enabled flag and
// broadcasts every change to the document contexts, over HTTP and MCP.
package control

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/unsuggest/notify"
	"github.com/hazyhaar/unsuggest/settings"
)

// Result reports what SetEnabled did.
type Result struct {
	Enabled   bool     `json:"enabled"`
	Persisted bool     `json:"persisted"`
	Delivered int      `json:"delivered"`
	Skipped   []string `json:"skipped,omitempty"`
}

// Sender writes the flag then notifies listeners.
type Sender struct {
	store  settings.Store
	hub    *notify.Hub
	site   string
	logger *slog.Logger

	mu      sync.Mutex
	last    bool
	hasLast bool
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) SenderOption { return func(s *Sender) { s.logger = l } }

// WithSite restricts broadcasts to listeners whose url matches the glob
// pattern, e.g. "https://www.linkedin.com/*".
func WithSite(pattern string) SenderOption { return func(s *Sender) { s.site = pattern } }

// NewSender creates a Sender.
func NewSender(store settings.Store, hub *notify.Hub, opts ...SenderOption) *Sender {
	s := &Sender{store: store, hub: hub, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enabled reads the persisted flag; true when absent or unreadable.
func (s *Sender) Enabled(ctx context.Context) bool {
	v, err := s.store.Get(ctx, true)
	if err != nil {
		s.logger.Warn("control: settings unavailable, reporting enabled", "error", err)
		return true
	}
	return v
}

// SetEnabled persists enabled and broadcasts it. A failed write is logged
// and the broadcast still happens.
func (s *Sender) SetEnabled(ctx context.Context, enabled bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Enabled: enabled, Persisted: true}
	if err := s.store.Set(ctx, enabled); err != nil {
		res.Persisted = false
		s.logger.Warn("control: persist failed, broadcasting anyway", "enabled", enabled, "error", err)
	}

	d := s.broadcast(enabled)
	res.Delivered, res.Skipped = len(d.Delivered), d.Skipped
	s.logger.Info("control: enabled set", "enabled", enabled, "delivered", res.Delivered, "skipped", len(res.Skipped))
	return res
}

// Sync re-reads the store and broadcasts when the value differs from the
// last one broadcast. Store watchers call it after external writes.
func (s *Sender) Sync(ctx context.Context) error {
	v, err := s.store.Get(ctx, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLast && s.last == v {
		return nil
	}
	d := s.broadcast(v)
	s.logger.Info("control: external change broadcast", "enabled", v, "delivered", len(d.Delivered))
	return nil
}

func (s *Sender) broadcast(enabled bool) notify.Delivery {
	s.last, s.hasLast = enabled, true
	msg := notify.EnabledChanged(enabled)
	if s.site != "" {
		return s.hub.BroadcastMatching(msg, s.site)
	}
	return s.hub.Broadcast(msg)
}
