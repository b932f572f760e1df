// Package htmldom is an in-memory document host backed by golang.org/x/net/html.
//
// The tree itself is not synchronised: like a browser document it must be
// touched from one goroutine at a time (the lifecycle controller loop, or a
// test). Mutations applied through AppendHTML and SetText are delivered to
// every active observation as dom.Batch values.
package htmldom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/unsuggest/dom"
)

var (
	// ErrNotQueriable is returned by QueryClass on nodes without children
	// semantics (text, comments, doctype).
	ErrNotQueriable = errors.New("htmldom: node does not support subtree queries")
	// ErrNotElement is returned by SetAttr on non-element nodes.
	ErrNotElement = errors.New("htmldom: node is not an element")
	// ErrDetached is returned by Detach on a node without a parent.
	ErrDetached = errors.New("htmldom: node is not attached")
	// ErrForeignNode is returned when a node from another host is passed in.
	ErrForeignNode = errors.New("htmldom: node does not belong to this document")
)

// Document owns a parsed HTML tree.
type Document struct {
	root *html.Node

	mu    sync.Mutex
	nodes map[*html.Node]*Node
	obs   map[*observation]struct{}
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// New wraps an already parsed tree.
func New(root *html.Node) *Document {
	return &Document{
		root:  root,
		nodes: make(map[*html.Node]*Node),
		obs:   make(map[*observation]struct{}),
	}
}

// Root returns the document node.
func (d *Document) Root() dom.Node { return d.wrap(d.root) }

// HTMLRoot exposes the underlying tree.
func (d *Document) HTMLRoot() *html.Node { return d.root }

// Wrap returns the cached handle for n. n must belong to this document.
func (d *Document) Wrap(n *html.Node) *Node { return d.wrap(n) }

func (d *Document) wrap(n *html.Node) *Node {
	if n == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &Node{n: n, doc: d}
	d.nodes[n] = w
	return w
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *Node {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			found = n
			return false
		}
		return true
	})
	return d.wrap(found)
}

// ByID returns the first element whose id attribute equals id, or nil.
func (d *Document) ByID(id string) *Node {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && getAttr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return d.wrap(found)
}

// AppendHTML parses fragment in the context of parent, appends the
// resulting nodes to parent and reports each inserted root as a
// dom.RecordAdded in a single batch.
func (d *Document) AppendHTML(parent dom.Node, fragment string) ([]dom.Node, error) {
	p, err := d.own(parent)
	if err != nil {
		return nil, err
	}
	if p.n.Type != html.ElementNode {
		return nil, fmt.Errorf("htmldom: append into %s node", p.Kind())
	}

	parsed, err := html.ParseFragment(strings.NewReader(fragment), p.n)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse fragment: %w", err)
	}

	added := make([]dom.Node, 0, len(parsed))
	batch := dom.Batch{Records: make([]dom.Record, 0, len(parsed))}
	for _, n := range parsed {
		p.n.AppendChild(n)
		w := d.wrap(n)
		added = append(added, w)
		batch.Records = append(batch.Records, dom.Record{Kind: dom.RecordAdded, Node: w})
	}
	if len(batch.Records) > 0 {
		d.emit(batch)
	}
	return added, nil
}

// SetText replaces the character data of a text node.
func (d *Document) SetText(target dom.Node, text string) error {
	t, err := d.own(target)
	if err != nil {
		return err
	}
	if t.n.Type != html.TextNode {
		return fmt.Errorf("htmldom: set text on %s node", t.Kind())
	}
	t.n.Data = text
	d.emit(dom.Batch{Records: []dom.Record{{Kind: dom.RecordText, Node: t}}})
	return nil
}

// Render serialises the current tree.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the tree, for logs and tests.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) own(n dom.Node) (*Node, error) {
	w, ok := n.(*Node)
	if !ok || w == nil || w.doc != d {
		return nil, ErrForeignNode
	}
	return w, nil
}

// walk visits n and its descendants in document order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
