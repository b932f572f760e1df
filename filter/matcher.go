package filter

import (
	"log/slog"
	"strings"

	"github.com/hazyhaar/unsuggest/dom"
)

// Matcher finds marker nodes in a subtree.
type Matcher struct {
	marker string
	class  string
	logger *slog.Logger
}

// NewMatcher builds a Matcher from rules (defaults applied).
func NewMatcher(r Rules, logger *slog.Logger) *Matcher {
	r = r.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{marker: r.Marker, class: r.MarkerClass, logger: logger}
}

// FindMatches returns root (when it is a marker-classed element) and every
// marker-classed descendant whose trimmed text equals the marker,
// case-insensitively. Roots that cannot be queried yield only the root
// check; a failing query is treated as an empty result.
func (m *Matcher) FindMatches(root dom.Node) []dom.Node {
	if root == nil {
		return nil
	}

	var candidates []dom.Node
	if root.Kind() == dom.KindElement && root.HasClass(m.class) {
		candidates = append(candidates, root)
	}
	if q, ok := root.(dom.Querier); ok {
		found, err := q.QueryClass(m.class)
		if err != nil {
			m.logger.Debug("filter: subtree query failed", "kind", root.Kind(), "error", err)
		} else {
			candidates = append(candidates, found...)
		}
	}

	var out []dom.Node
	for _, c := range candidates {
		if m.IsMarker(c) {
			out = append(out, c)
		}
	}
	return out
}

// IsMarker reports whether n's trimmed text equals the marker.
func (m *Matcher) IsMarker(n dom.Node) bool {
	return strings.EqualFold(strings.TrimSpace(n.Text()), m.marker)
}
