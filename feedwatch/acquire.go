package feedwatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/unsuggest/feedwatch/internal/browser"
	"github.com/hazyhaar/unsuggest/feedwatch/internal/fetcher"
)

// AcquireOptions tunes Acquire.
type AcquireOptions struct {
	// Cookie is sent as a raw Cookie header on the HTTP path.
	Cookie string
	// Browser allows falling back to a rendered tab when the HTTP body is
	// a script shell. Without it the thin body is returned as is.
	Browser bool
	// Settle is how long the rendered tab runs scripts before capture.
	Settle time.Duration
}

// Acquire returns the HTML of pageURL: a plain GET when the body carries
// enough text, a rendered tab otherwise (when opts.Browser is set).
func Acquire(ctx context.Context, cfg *Config, pageURL string, opts AcquireOptions, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	f := fetcher.New(fetcher.WithCookie(opts.Cookie), fetcher.WithLogger(logger))
	res, err := f.Fetch(ctx, pageURL)
	if err == nil && (res.Sufficient || !opts.Browser) {
		if !res.Sufficient {
			logger.Warn("feedwatch: thin page, browser disabled", "url", pageURL, "size", len(res.HTML))
		}
		return res.HTML, nil
	}
	if !opts.Browser {
		return nil, err
	}
	if err != nil {
		logger.Info("feedwatch: fetch failed, rendering", "url", pageURL, "error", err)
	} else {
		logger.Info("feedwatch: thin page, rendering", "url", pageURL)
	}

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()
	if _, err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("feedwatch: start browser: %w", err)
	}

	settle := opts.Settle
	if settle <= 0 {
		settle = 3 * time.Second
	}
	html, err := browser.Render(ctx, mgr, pageURL, settle)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: render %s: %w", pageURL, err)
	}
	return html, nil
}
