package htmldom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/unsuggest/dom"
)

// Node is the htmldom handle for one *html.Node.
type Node struct {
	n   *html.Node
	doc *Document
}

var (
	_ dom.Node     = (*Node)(nil)
	_ dom.Querier  = (*Node)(nil)
	_ dom.Mutable  = (*Node)(nil)
	_ dom.Detacher = (*Node)(nil)
)

// HTML exposes the wrapped node.
func (w *Node) HTML() *html.Node { return w.n }

func (w *Node) Kind() dom.Kind {
	switch w.n.Type {
	case html.ElementNode:
		return dom.KindElement
	case html.TextNode:
		return dom.KindText
	case html.DocumentNode:
		return dom.KindDocument
	default:
		return dom.KindOther
	}
}

func (w *Node) Tag() string {
	if w.n.Type != html.ElementNode {
		return ""
	}
	return w.n.Data
}

func (w *Node) Parent() dom.Node {
	if w.n.Parent == nil {
		return nil
	}
	return w.doc.wrap(w.n.Parent)
}

func (w *Node) HasClass(name string) bool {
	if w.n.Type != html.ElementNode {
		return false
	}
	return dom.HasClassToken(getAttr(w.n, "class"), name)
}

func (w *Node) Attr(name string) (string, bool) {
	if w.n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range w.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// Text mirrors textContent: all descendant character data, untrimmed.
func (w *Node) Text() string {
	if w.n.Type == html.TextNode {
		return w.n.Data
	}
	var sb strings.Builder
	walk(w.n, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		return true
	})
	return sb.String()
}

// QueryClass returns descendant elements carrying class, in document order.
func (w *Node) QueryClass(class string) ([]dom.Node, error) {
	switch w.n.Type {
	case html.ElementNode, html.DocumentNode:
	default:
		return nil, ErrNotQueriable
	}
	var out []dom.Node
	for c := w.n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && dom.HasClassToken(getAttr(n, "class"), class) {
				out = append(out, w.doc.wrap(n))
			}
			return true
		})
	}
	return out, nil
}

func (w *Node) SetAttr(name, value string) error {
	if w.n.Type != html.ElementNode {
		return ErrNotElement
	}
	for i := range w.n.Attr {
		if w.n.Attr[i].Key == name {
			w.n.Attr[i].Val = value
			return nil
		}
	}
	w.n.Attr = append(w.n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

// Detach removes the node from its parent.
func (w *Node) Detach() error {
	if w.n.Parent == nil {
		return ErrDetached
	}
	w.n.Parent.RemoveChild(w.n)
	return nil
}

// Attached reports whether the node is still reachable from the document root.
func (w *Node) Attached() bool {
	for n := w.n; n != nil; n = n.Parent {
		if n == w.doc.root {
			return true
		}
	}
	return false
}
