// Package filter implements the marker detection and container removal
// pipeline: Matcher, Container Resolver, Remover and the Scan Engine that
// chains them over any dom.Node subtree.
package filter

// Default rule values, taken from the LinkedIn feed markup.
const (
	DefaultMarker      = "Suggested"
	DefaultMarkerClass = "update-components-header__text-view"
	DefaultItemClass   = "feed-shared-update-v2"
	DefaultIDAttr      = "data-id"
	DefaultRemovedAttr = "data-suggested-removed"
	DefaultMaxDepth    = 12
)

// Rules parameterises matching and container resolution. The zero value is
// usable: WithDefaults fills every empty field.
type Rules struct {
	// Marker is compared case-insensitively with the trimmed text of each
	// marker-classed node.
	Marker      string `yaml:"marker"`
	MarkerClass string `yaml:"marker_class"`

	// ItemClass is the strong item wrapper preferred over any other signal.
	ItemClass string `yaml:"item_class"`
	// SignalClasses mark an ancestor as (part of) a top-level item.
	SignalClasses []string `yaml:"signal_classes"`
	// IDAttr is the distinguishing identifier attribute; non-empty value
	// counts as a signal.
	IDAttr string `yaml:"id_attr"`
	// FallbackTags are block/region tags tried, in order, when no signal is
	// found within MaxDepth.
	FallbackTags []string `yaml:"fallback_tags"`
	MaxDepth     int      `yaml:"max_depth"`

	// RemovedAttr marks containers already handled by the Remover.
	RemovedAttr string `yaml:"removed_attr"`
}

// DefaultRules returns the rules matching the LinkedIn feed.
func DefaultRules() Rules {
	return Rules{}.WithDefaults()
}

// WithDefaults returns a copy of r with empty fields set to defaults.
func (r Rules) WithDefaults() Rules {
	if r.Marker == "" {
		r.Marker = DefaultMarker
	}
	if r.MarkerClass == "" {
		r.MarkerClass = DefaultMarkerClass
	}
	if r.ItemClass == "" {
		r.ItemClass = DefaultItemClass
	}
	if len(r.SignalClasses) == 0 {
		r.SignalClasses = []string{DefaultItemClass, "relative", "update-components-header"}
	}
	if r.IDAttr == "" {
		r.IDAttr = DefaultIDAttr
	}
	if len(r.FallbackTags) == 0 {
		r.FallbackTags = []string{"article", "div"}
	}
	if r.MaxDepth <= 0 {
		r.MaxDepth = DefaultMaxDepth
	}
	if r.RemovedAttr == "" {
		r.RemovedAttr = DefaultRemovedAttr
	}
	return r
}
