// Package pipeline turns document mutation batches into incremental scans.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/unsuggest/dom"
	"github.com/hazyhaar/unsuggest/filter"
)

// ErrObserving is returned by Start when an observation is already active.
var ErrObserving = errors.New("pipeline: already observing")

// State of a Pipeline.
type State int

const (
	StateIdle State = iota
	StateObserving
)

func (s State) String() string {
	if s == StateObserving {
		return "observing"
	}
	return "idle"
}

// Pipeline owns at most one observation of a document.
type Pipeline struct {
	doc    dom.Observable
	engine *filter.Engine
	logger *slog.Logger

	mu    sync.Mutex
	state State
	obs   dom.Observation
}

// New creates an idle Pipeline. A nil logger uses slog.Default().
func New(doc dom.Observable, engine *filter.Engine, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{doc: doc, engine: engine, logger: logger}
}

// Start scans the whole document then begins observing it.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateObserving {
		return ErrObserving
	}

	p.engine.Scan(p.doc.Root())

	obs, err := p.doc.Observe()
	if err != nil {
		return fmt.Errorf("pipeline: observe: %w", err)
	}
	p.obs = obs
	p.state = StateObserving
	p.logger.Debug("pipeline: started")
	return nil
}

// Stop disconnects the active observation. Safe to call when idle.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateIdle {
		return
	}
	p.obs.Disconnect()
	p.obs = nil
	p.state = StateIdle
	p.logger.Debug("pipeline: stopped")
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Batches returns the active observation's channel, or nil when idle.
func (p *Pipeline) Batches() <-chan dom.Batch {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.obs == nil {
		return nil
	}
	return p.obs.Batches()
}

// Handle scans the nodes touched by b, in record order. No-op when idle.
func (p *Pipeline) Handle(b dom.Batch) {
	if p.State() != StateObserving {
		return
	}
	for _, r := range b.Records {
		switch r.Kind {
		case dom.RecordAdded:
			p.engine.Scan(r.Node)
		case dom.RecordText:
			p.engine.Scan(dom.ClosestElement(r.Node))
		}
	}
}

// Stats returns the underlying engine counters.
func (p *Pipeline) Stats() filter.Stats {
	return p.engine.Stats()
}
