package sink

import (
	"context"

	"github.com/hazyhaar/unsuggest/feedwatch/removal"
)

// Func is called for each removal report, in process.
type Func func(ctx context.Context, r removal.Removal) error

// Callback delivers reports via a Go function call.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. A nil fn drops every report.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, r removal.Removal) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, r)
}

func (c *Callback) Close() error { return nil }
