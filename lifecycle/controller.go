// Package lifecycle owns the enabled state of one document and drives its
// mutation pipeline from a single event loop.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hazyhaar/unsuggest/filter"
	"github.com/hazyhaar/unsuggest/notify"
	"github.com/hazyhaar/unsuggest/pipeline"
	"github.com/hazyhaar/unsuggest/settings"
)

// ErrStopped is returned by Do once Run has returned.
var ErrStopped = errors.New("lifecycle: controller stopped")

// Status is a point-in-time view of a controller.
type Status struct {
	ID      string       `json:"id"`
	URL     string       `json:"url,omitempty"`
	Enabled bool         `json:"enabled"`
	State   string       `json:"state"`
	Stats   filter.Stats `json:"stats"`
}

// Controller serialises settings changes, mutation batches and posted tasks
// for one document. Document work happens only on the Run goroutine.
type Controller struct {
	id       string
	url      string
	pipeline *pipeline.Pipeline
	store    settings.Store
	messages <-chan notify.Message
	logger   *slog.Logger

	enabled atomic.Bool
	tasks   chan func()
	stopped chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore sets the settings store read by Start. Without one the filter
// starts enabled.
func WithStore(s settings.Store) Option { return func(c *Controller) { c.store = s } }

// WithMessages sets the notification channel, usually from notify.Hub.Listen.
func WithMessages(ch <-chan notify.Message) Option {
	return func(c *Controller) { c.messages = ch }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithPage labels the controller in logs and Status.
func WithPage(id, url string) Option {
	return func(c *Controller) { c.id, c.url = id, url }
}

// New creates a Controller for p.
func New(p *pipeline.Pipeline, opts ...Option) *Controller {
	c := &Controller{
		pipeline: p,
		logger:   slog.Default(),
		tasks:    make(chan func()),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("page", c.id)
	return c
}

// Start reads the persisted flag (true when absent or unreadable) and
// starts the pipeline when enabled.
func (c *Controller) Start(ctx context.Context) {
	enabled := true
	if c.store != nil {
		v, err := c.store.Get(ctx, true)
		if err != nil {
			c.logger.Warn("lifecycle: settings unavailable, defaulting to enabled", "error", err)
		} else {
			enabled = v
		}
	}
	c.enabled.Store(enabled)
	c.logger.Info("lifecycle: started", "enabled", enabled)
	if enabled {
		c.startPipeline()
	}
}

// ApplySettingChange stops the pipeline, records enabled and restarts the
// pipeline (with a full scan) when enabled. Must run on the Run goroutine
// once Run has started.
func (c *Controller) ApplySettingChange(enabled bool) {
	c.pipeline.Stop()
	c.enabled.Store(enabled)
	c.logger.Info("lifecycle: setting changed", "enabled", enabled)
	if enabled {
		c.startPipeline()
	}
}

func (c *Controller) startPipeline() {
	if err := c.pipeline.Start(); err != nil {
		c.logger.Error("lifecycle: pipeline start failed", "error", err)
	}
}

// Enabled reports the current enabled state. Safe from any goroutine.
func (c *Controller) Enabled() bool { return c.enabled.Load() }

// Status returns the controller's current status.
func (c *Controller) Status() Status {
	return Status{
		ID:      c.id,
		URL:     c.url,
		Enabled: c.enabled.Load(),
		State:   c.pipeline.State().String(),
		Stats:   c.pipeline.Stats(),
	}
}

// Run calls Start then handles notifications, mutation batches and posted
// tasks one at a time until ctx is cancelled. The pipeline is stopped on
// return. Run must be called once.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	c.Start(ctx)
	defer c.pipeline.Stop()

	messages := c.messages
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("lifecycle: stopped")
			return nil

		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if msg.Type != notify.TypeEnabledChanged {
				c.logger.Debug("lifecycle: ignoring message", "type", msg.Type)
				continue
			}
			c.ApplySettingChange(msg.Enabled)

		case b, ok := <-c.pipeline.Batches():
			if !ok {
				c.logger.Warn("lifecycle: observation closed by host")
				c.pipeline.Stop()
				continue
			}
			c.pipeline.Handle(b)

		case fn := <-c.tasks:
			fn()
		}
	}
}

// Do runs fn on the Run goroutine and waits for it to return.
func (c *Controller) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}

	select {
	case c.tasks <- task:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
