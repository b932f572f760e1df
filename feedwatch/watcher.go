// Package feedwatch keeps live feed pages free of "Suggested" items. It
// orchestrates Chrome as a disposable component: one tab per configured
// page, each mirrored through CDP and driven by its own lifecycle
// controller, with removal reports fanned out to sinks.
package feedwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/unsuggest/dom"
	"github.com/hazyhaar/unsuggest/feedwatch/internal/browser"
	"github.com/hazyhaar/unsuggest/feedwatch/internal/cdpdom"
	"github.com/hazyhaar/unsuggest/feedwatch/internal/sink"
	"github.com/hazyhaar/unsuggest/feedwatch/removal"
	"github.com/hazyhaar/unsuggest/filter"
	"github.com/hazyhaar/unsuggest/lifecycle"
	"github.com/hazyhaar/unsuggest/notify"
	"github.com/hazyhaar/unsuggest/pipeline"
	"github.com/hazyhaar/unsuggest/settings"
)

// reopenDelay is the pause before reopening a page whose tab failed.
const reopenDelay = 5 * time.Second

// Watcher is the top-level orchestrator. Create one per process.
type Watcher struct {
	cfg     *Config
	mgr     *browser.Manager
	hub     *notify.Hub
	store   settings.Store
	sinkR   *sink.Router
	reports chan removal.Removal
	logger  *slog.Logger

	mu    sync.RWMutex
	pages map[string]*lifecycle.Controller
}

// Sink is the output interface for removal reports.
type Sink = sink.Sink

// SinkFunc receives removal reports in process.
type SinkFunc = sink.Func

// NewStdoutSink creates a JSON-lines sink on w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink { return sink.NewStdout(w) }

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn SinkFunc) Sink { return sink.NewCallback(fn) }

// SinksFromConfig builds the sinks listed in cfg.
func SinksFromConfig(cfg *Config, stdout io.Writer, logger *slog.Logger) []Sink {
	var out []Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			out = append(out, NewStdoutSink(stdout))
		case "webhook":
			out = append(out, NewWebhookSink(sc.URL, sc.Retries, logger))
		}
	}
	return out
}

// New creates a Watcher. Every page controller listens on hub and reads its
// initial flag from store.
func New(cfg *Config, hub *notify.Hub, store settings.Store, logger *slog.Logger, sinks ...Sink) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		cfg:     cfg,
		mgr:     mgr,
		hub:     hub,
		store:   store,
		sinkR:   sink.NewRouter(logger, sinks...),
		reports: make(chan removal.Removal, 256),
		logger:  logger,
		pages:   make(map[string]*lifecycle.Controller),
	}, nil
}

// Run launches the browser and keeps every configured page observed until
// ctx is cancelled. A page whose tab fails is reopened; a browser recycle
// reopens every page.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("feedwatch: start browser: %w", err)
	}
	defer w.mgr.Close()
	defer w.sinkR.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.deliver(gctx)
		return nil
	})
	for _, pc := range w.cfg.Pages {
		g.Go(func() error { return w.runPage(gctx, pc) })
	}
	return g.Wait()
}

// Pages returns the status of every page currently observed, by ID.
func (w *Watcher) Pages() []lifecycle.Status {
	w.mu.RLock()
	out := make([]lifecycle.Status, 0, len(w.pages))
	for _, c := range w.pages {
		out = append(out, c.Status())
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Watcher) runPage(ctx context.Context, pc PageConfig) error {
	for {
		err := w.observePage(ctx, pc)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			w.logger.Info("feedwatch: reopening page after browser recycle", "id", pc.ID)
			continue
		}

		w.logger.Warn("feedwatch: page failed, reopening", "id", pc.ID, "url", pc.URL, "error", err)
		select {
		case <-time.After(reopenDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// observePage opens one tab and runs its controller until ctx is done or
// the browser is recycled.
func (w *Watcher) observePage(ctx context.Context, pc PageConfig) error {
	recycled := w.mgr.Recycled()
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-recycled:
			cancel()
		case <-pctx.Done():
		}
	}()

	tab, err := browser.OpenTab(pctx, w.mgr, pc.URL, pc.ID)
	if err != nil {
		return err
	}
	defer tab.Close()

	if info, err := tab.Info(); err == nil {
		w.logger.Info("feedwatch: page loaded", "id", pc.ID, "url", info.URL, "title", info.Title)
	}

	doc, err := cdpdom.Attach(pctx, tab.Page,
		cdpdom.WithLogger(w.logger),
		cdpdom.WithDebounce(w.cfg.Debounce.Window, w.cfg.Debounce.MaxBuffer))
	if err != nil {
		return err
	}

	ctrl, unlisten := w.controller(pc, doc)
	defer unlisten()

	w.mu.Lock()
	w.pages[pc.ID] = ctrl
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pages, pc.ID)
		w.mu.Unlock()
	}()

	w.logger.Info("feedwatch: observing page", "id", pc.ID, "url", pc.URL)
	return ctrl.Run(pctx)
}

// controller wires doc into an engine, a pipeline and a lifecycle
// controller listening on the hub.
func (w *Watcher) controller(pc PageConfig, doc dom.Observable) (*lifecycle.Controller, func()) {
	eng := filter.New(w.cfg.Rules,
		filter.WithLogger(w.logger),
		filter.WithOnRemove(w.report(pc)))
	p := pipeline.New(doc, eng, w.logger)

	msgs, unlisten := w.hub.Listen(pc.ID, pc.URL)
	ctrl := lifecycle.New(p,
		lifecycle.WithStore(w.store),
		lifecycle.WithMessages(msgs),
		lifecycle.WithLogger(w.logger),
		lifecycle.WithPage(pc.ID, pc.URL))
	return ctrl, unlisten
}

// report queues a removal report. It runs on the controller loop and never
// blocks it: reports are dropped when the queue is full.
func (w *Watcher) report(pc PageConfig) filter.RemoveFunc {
	idAttr := w.cfg.Rules.WithDefaults().IDAttr
	return func(n dom.Node, o filter.Outcome) {
		if w.sinkR.Len() == 0 {
			return
		}
		r := removal.New(pc.ID, pc.URL, idAttr, n, o)
		select {
		case w.reports <- r:
		default:
			w.logger.Warn("feedwatch: report queue full, dropping", "page", pc.ID, "id", r.ID)
		}
	}
}

func (w *Watcher) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-w.reports:
			if err := w.sinkR.Send(ctx, r); err != nil {
				w.logger.Debug("feedwatch: report not delivered", "id", r.ID, "error", err)
			}
		}
	}
}

func newManager(cfg *Config, logger *slog.Logger) (*browser.Manager, error) {
	level, err := browser.ParseLevel(cfg.Browser.Stealth)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: %w", err)
	}
	return browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		UserDataDir:      cfg.Browser.UserDataDir,
		NoSandbox:        cfg.Browser.NoSandbox,
		Display:          cfg.Browser.Display,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          level,
		Logger:           logger,
	}), nil
}
