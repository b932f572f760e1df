// Package sink defines output backends for removal reports.
package sink

import (
	"context"

	"github.com/hazyhaar/unsuggest/feedwatch/removal"
)

// Sink delivers removal reports to a backend (stdout, webhook, in-process
// callback).
type Sink interface {
	Send(ctx context.Context, r removal.Removal) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
