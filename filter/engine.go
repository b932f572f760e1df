package filter

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/hazyhaar/unsuggest/dom"
)

// RemoveFunc is called for every container the engine detached or hid.
type RemoveFunc func(container dom.Node, outcome Outcome)

// Engine chains Matcher, Resolver and Remover over a subtree.
type Engine struct {
	matcher  *Matcher
	resolver *Resolver
	remover  *Remover
	logger   *slog.Logger
	onRemove RemoveFunc

	scans    atomic.Int64
	matches  atomic.Int64
	detached atomic.Int64
	hidden   atomic.Int64
	skipped  atomic.Int64
}

// Stats are point-in-time engine counters.
type Stats struct {
	Scans    int64 `json:"scans"`
	Matches  int64 `json:"matches"`
	Detached int64 `json:"detached"`
	Hidden   int64 `json:"hidden"`
	Skipped  int64 `json:"skipped"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithOnRemove registers a hook called after each detach or hide.
func WithOnRemove(fn RemoveFunc) Option {
	return func(e *Engine) { e.onRemove = fn }
}

// WithResolver replaces the rule-derived resolver.
func WithResolver(rv *Resolver) Option {
	return func(e *Engine) { e.resolver = rv }
}

// New creates an Engine for rules (defaults applied).
func New(rules Rules, opts ...Option) *Engine {
	rules = rules.WithDefaults()
	e := &Engine{logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	e.matcher = NewMatcher(rules, e.logger)
	e.remover = NewRemover(rules, e.logger)
	if e.resolver == nil {
		e.resolver = NewResolver(rules)
	}
	return e
}

// Scan removes the container of every marker found under root.
func (e *Engine) Scan(root dom.Node) {
	e.scans.Add(1)
	for _, m := range e.matcher.FindMatches(root) {
		if strings.TrimSpace(m.Text()) == "" {
			continue
		}
		e.matches.Add(1)

		container, rule := e.resolver.Resolve(m)
		out := e.remover.Remove(container)
		switch out {
		case OutcomeDetached:
			e.detached.Add(1)
		case OutcomeHidden:
			e.hidden.Add(1)
		case OutcomeSkipped:
			e.skipped.Add(1)
			continue
		default:
			continue
		}

		e.logger.Debug("filter: container removed",
			"tag", container.Tag(), "rule", rule, "outcome", out)
		if e.onRemove != nil {
			e.onRemove(container, out)
		}
	}
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Scans:    e.scans.Load(),
		Matches:  e.matches.Load(),
		Detached: e.detached.Load(),
		Hidden:   e.hidden.Load(),
		Skipped:  e.skipped.Load(),
	}
}
