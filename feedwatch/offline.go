package feedwatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/unsuggest/dom"
	"github.com/hazyhaar/unsuggest/dom/htmldom"
	"github.com/hazyhaar/unsuggest/feedwatch/removal"
	"github.com/hazyhaar/unsuggest/filter"
)

// Cleaned is the result of one offline pass over a saved or fetched page.
type Cleaned struct {
	Doc      *htmldom.Document
	Stats    filter.Stats
	Removals []removal.Removal
}

// Clean parses r and runs a single full scan over it, with the same
// rules the live watcher uses. pageURL labels the removal reports.
func Clean(r io.Reader, pageURL string, rules filter.Rules, logger *slog.Logger) (*Cleaned, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := htmldom.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: %w", err)
	}

	rules = rules.WithDefaults()
	out := &Cleaned{Doc: doc}
	eng := filter.New(rules,
		filter.WithLogger(logger),
		filter.WithOnRemove(func(n dom.Node, o filter.Outcome) {
			out.Removals = append(out.Removals, removal.New("offline", pageURL, rules.IDAttr, n, o))
		}),
	)
	eng.Scan(doc.Root())
	out.Stats = eng.Stats()

	logger.Info("feedwatch: offline scan done",
		"url", pageURL, "matches", out.Stats.Matches, "removed", len(out.Removals))
	return out, nil
}

// Markdown converts the cleaned document with the commonmark and table
// plugins. pageURL resolves relative links.
func (c *Cleaned) Markdown(ctx context.Context, pageURL string) (string, error) {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)

	var buf bytes.Buffer
	if err := c.Doc.Render(&buf); err != nil {
		return "", fmt.Errorf("feedwatch: render: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var md string
	var err error
	if pageURL != "" {
		md, err = conv.ConvertString(buf.String(), converter.WithDomain(pageURL))
	} else {
		md, err = conv.ConvertString(buf.String())
	}
	if err != nil {
		return "", fmt.Errorf("feedwatch: markdown: %w", err)
	}
	return md, nil
}
