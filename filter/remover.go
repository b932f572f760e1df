package filter

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/unsuggest/dom"
)

// Outcome is what Remove did to a container.
type Outcome int

const (
	// OutcomeUntouched: the host supports neither detaching nor attribute writes.
	OutcomeUntouched Outcome = iota
	// OutcomeSkipped: the container already carried the removed marker.
	OutcomeSkipped
	OutcomeDetached
	OutcomeHidden
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDetached:
		return "detached"
	case OutcomeHidden:
		return "hidden"
	default:
		return "untouched"
	}
}

const hideStyle = "display: none"

// Remover removes containers from their document, at most once each.
type Remover struct {
	attr   string
	logger *slog.Logger
}

// NewRemover builds a Remover from rules (defaults applied).
func NewRemover(r Rules, logger *slog.Logger) *Remover {
	r = r.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Remover{attr: r.RemovedAttr, logger: logger}
}

// Removed reports whether n carries the removed marker.
func (rm *Remover) Removed(n dom.Node) bool {
	v, ok := n.Attr(rm.attr)
	return ok && v != ""
}

// Remove marks then detaches n, hiding it when detaching is unsupported or
// fails. It never returns an error: every failure is logged at debug level.
func (rm *Remover) Remove(n dom.Node) Outcome {
	if n == nil {
		return OutcomeUntouched
	}
	if rm.Removed(n) {
		return OutcomeSkipped
	}

	mut, _ := n.(dom.Mutable)
	if mut != nil {
		if err := mut.SetAttr(rm.attr, "1"); err != nil {
			rm.logger.Debug("filter: set removed marker failed", "tag", n.Tag(), "error", err)
		}
	}

	if d, ok := n.(dom.Detacher); ok {
		err := safeDetach(d)
		if err == nil {
			return OutcomeDetached
		}
		rm.logger.Debug("filter: detach failed, hiding", "tag", n.Tag(), "error", err)
	}

	if mut != nil {
		style, _ := n.Attr("style")
		if err := mut.SetAttr("style", withHidden(style)); err != nil {
			rm.logger.Debug("filter: hide failed", "tag", n.Tag(), "error", err)
			return OutcomeUntouched
		}
		return OutcomeHidden
	}
	return OutcomeUntouched
}

// safeDetach converts a host panic into an error.
func safeDetach(d dom.Detacher) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("filter: detach panicked: %v", r)
		}
	}()
	return d.Detach()
}

func withHidden(style string) string {
	style = strings.TrimSpace(style)
	if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
		return style
	}
	if style == "" {
		return hideStyle
	}
	return strings.TrimRight(style, "; ") + "; " + hideStyle
}
