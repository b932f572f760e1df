package control

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hazyhaar/unsuggest/kit"
	"github.com/hazyhaar/unsuggest/lifecycle"
	"github.com/hazyhaar/unsuggest/notify"
	"github.com/hazyhaar/unsuggest/watch"
)

const endpointTimeout = 10 * time.Second

// PageLister reports the status of every controlled document.
type PageLister interface {
	Pages() []lifecycle.Status
}

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	Enabled bool               `json:"enabled"`
	Pages   []lifecycle.Status `json:"pages"`
	// Watch is set when the store polls for writes from other processes.
	Watch *watch.Stats `json:"watch,omitempty"`
}

// watchStatser is implemented by stores that watch for external writes.
type watchStatser interface {
	WatchStats() (watch.Stats, bool)
}

// SetEnabledRequest is the body of PUT /api/enabled and the MCP arguments
// of unsuggest_set_enabled.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// Validate implements validation.Validatable.
func (r SetEnabledRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Enabled, validation.NotNil),
	)
}

// Service exposes a Sender over HTTP and MCP.
type Service struct {
	sender *Sender
	pages  PageLister
	hub    *notify.Hub
	logger *slog.Logger

	status     kit.Endpoint
	setEnabled kit.Endpoint
}

// NewService wires the endpoints. pages and hub may be nil.
func NewService(sender *Sender, pages PageLister, hub *notify.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{sender: sender, pages: pages, hub: hub, logger: logger}
	s.status = kit.Chain(kit.Logging(logger, "status"), kit.Timeout(endpointTimeout))(s.statusEndpoint)
	s.setEnabled = kit.Chain(kit.Logging(logger, "set_enabled"), kit.Timeout(endpointTimeout))(s.setEnabledEndpoint)
	return s
}

func (s *Service) statusEndpoint(ctx context.Context, _ any) (any, error) {
	resp := StatusResponse{Enabled: s.sender.Enabled(ctx), Pages: s.listPages()}
	if ws, ok := s.sender.store.(watchStatser); ok {
		if st, ok := ws.WatchStats(); ok {
			resp.Watch = &st
		}
	}
	return resp, nil
}

func (s *Service) setEnabledEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*SetEnabledRequest)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return s.sender.SetEnabled(ctx, *r.Enabled), nil
}

func (s *Service) listPages() []lifecycle.Status {
	if s.pages == nil {
		return []lifecycle.Status{}
	}
	pages := s.pages.Pages()
	if pages == nil {
		pages = []lifecycle.Status{}
	}
	return pages
}
