// Package dom is the node model shared by the document hosts (htmldom,
// cdpdom) and the consumers that scan them (filter, pipeline).
//
// A Node is an opaque handle into a tree owned by the host. Hosts cache one
// handle per underlying node, so two handles for the same node compare equal
// with ==. Optional capabilities (subtree querying, attribute writes,
// detaching) are separate interfaces checked with a type assertion.
package dom

import "strings"

// Kind classifies a node.
type Kind int

const (
	KindOther Kind = iota
	KindElement
	KindText
	KindDocument
	KindFragment
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindDocument:
		return "document"
	case KindFragment:
		return "fragment"
	default:
		return "other"
	}
}

// Node is a read-only view of one node in a host tree.
type Node interface {
	Kind() Kind
	// Tag is the lower-case element name, "" for non-elements.
	Tag() string
	// Parent returns nil at the root or for detached nodes.
	Parent() Node
	HasClass(name string) bool
	Attr(name string) (string, bool)
	// Text is the concatenated character data of the subtree.
	Text() string
}

// Querier is implemented by nodes that support subtree querying.
// QueryClass returns descendants (never the receiver) in document order.
type Querier interface {
	QueryClass(class string) ([]Node, error)
}

// Mutable is implemented by nodes that accept attribute writes.
type Mutable interface {
	SetAttr(name, value string) error
}

// Detacher is implemented by nodes that can be removed from their tree.
type Detacher interface {
	Detach() error
}

// ClosestElement returns n when it is an element, otherwise its nearest
// element ancestor. Returns n itself when no element ancestor exists.
func ClosestElement(n Node) Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Kind() == KindElement {
			return cur
		}
	}
	return n
}

// HasClassToken reports whether the whitespace separated class attribute
// value contains name. Hosts use it to implement Node.HasClass.
func HasClassToken(classAttr, name string) bool {
	if name == "" {
		return false
	}
	for _, tok := range strings.Fields(classAttr) {
		if tok == name {
			return true
		}
	}
	return false
}
