package filter

import "github.com/hazyhaar/unsuggest/dom"

// Rule is one named structural predicate of the container heuristic.
type Rule struct {
	Name  string
	Match func(dom.Node) bool
}

// Resolver picks the container to remove for a matched marker node.
//
// The heuristic is three ordered rule lists. The signal and fallback walks
// are bounded by maxDepth nodes (the starting node included); the prefer
// walks go up to the document root:
//
//  1. signals: walking up from the match, the first node satisfying any
//     signal rule is the anchor.
//  2. prefer: from the anchor upward, the closest node satisfying the first
//     prefer rule, else the second, ...; the anchor itself when none does.
//  3. fallback (no anchor): from the match upward, the closest node
//     satisfying the first fallback rule, else the second, ...; the match
//     itself when none does.
type Resolver struct {
	maxDepth int
	signals  []Rule
	prefer   []Rule
	fallback []Rule
}

// NewResolver builds the rule lists from rules (defaults applied).
func NewResolver(r Rules) *Resolver {
	r = r.WithDefaults()

	rv := &Resolver{maxDepth: r.MaxDepth}
	for _, c := range r.SignalClasses {
		rv.signals = append(rv.signals, Rule{Name: "class:" + c, Match: hasClass(c)})
	}
	rv.signals = append(rv.signals, Rule{Name: "attr:" + r.IDAttr, Match: hasAttr(r.IDAttr)})

	rv.prefer = []Rule{
		{Name: "item:" + r.ItemClass, Match: hasClass(r.ItemClass)},
		{Name: "attr:" + r.IDAttr, Match: hasAttr(r.IDAttr)},
	}
	for _, tag := range r.FallbackTags {
		rv.fallback = append(rv.fallback, Rule{Name: "tag:" + tag, Match: hasTag(tag)})
	}
	return rv
}

// NewResolverFromRules builds a Resolver from explicit rule lists.
func NewResolverFromRules(maxDepth int, signals, prefer, fallback []Rule) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{maxDepth: maxDepth, signals: signals, prefer: prefer, fallback: fallback}
}

// ResolveContainer returns the container for match. It never returns nil
// for a non-nil match.
func (rv *Resolver) ResolveContainer(match dom.Node) dom.Node {
	n, _ := rv.Resolve(match)
	return n
}

// Resolve is ResolveContainer plus the name of the rule that decided.
func (rv *Resolver) Resolve(match dom.Node) (dom.Node, string) {
	if match == nil {
		return nil, ""
	}

	anchor := rv.closest(match, func(n dom.Node) bool {
		for _, s := range rv.signals {
			if s.Match(n) {
				return true
			}
		}
		return false
	})
	if anchor != nil {
		for _, p := range rv.prefer {
			if c := enclosing(anchor, p.Match); c != nil {
				return c, p.Name
			}
		}
		return anchor, "signal"
	}

	for _, f := range rv.fallback {
		if c := rv.closest(match, f.Match); c != nil {
			return c, f.Name
		}
	}
	return match, "self"
}

// closest walks from start upward through at most maxDepth nodes.
func (rv *Resolver) closest(start dom.Node, pred func(dom.Node) bool) dom.Node {
	n := start
	for i := 0; i < rv.maxDepth && n != nil; i++ {
		if pred(n) {
			return n
		}
		n = n.Parent()
	}
	return nil
}

// enclosing returns the closest node from start upward satisfying pred,
// with no depth bound.
func enclosing(start dom.Node, pred func(dom.Node) bool) dom.Node {
	for n := start; n != nil; n = n.Parent() {
		if pred(n) {
			return n
		}
	}
	return nil
}

func hasClass(name string) func(dom.Node) bool {
	return func(n dom.Node) bool {
		return n.Kind() == dom.KindElement && n.HasClass(name)
	}
}

func hasAttr(name string) func(dom.Node) bool {
	return func(n dom.Node) bool {
		if n.Kind() != dom.KindElement {
			return false
		}
		v, ok := n.Attr(name)
		return ok && v != ""
	}
}

func hasTag(tag string) func(dom.Node) bool {
	return func(n dom.Node) bool {
		return n.Kind() == dom.KindElement && n.Tag() == tag
	}
}
