// Package cdpdom mirrors the DOM of a live browser tab as a dom.Observable.
//
// The mirror is built from DOM.getDocument (depth -1) and kept current by
// the CDP DOM events (childNodeInserted, childNodeRemoved, setChildNodes,
// attributeModified, attributeRemoved, characterDataModified,
// documentUpdated). Inserted subtrees and character data changes are
// debounced into dom.Batch values. Writes go back through the Client:
// DOM.removeNode for Detach, DOM.setAttributeValue for SetAttr.
package cdpdom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/unsuggest/dom"
)

var (
	// ErrDetached is returned for operations on nodes no longer in the mirror.
	ErrDetached = errors.New("cdpdom: node detached")
	// ErrClosed is returned by Observe once Run has returned.
	ErrClosed = errors.New("cdpdom: document closed")
)

// Client is the subset of the CDP DOM domain the document drives.
type Client interface {
	GetDocument(ctx context.Context) (*proto.DOMNode, error)
	RemoveNode(id proto.DOMNodeID) error
	SetAttribute(id proto.DOMNodeID, name, value string) error
	RequestChildNodes(id proto.DOMNodeID) error
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) { d.logger = l }
}

// WithDebounce sets the batching window and the record count that forces
// an immediate flush.
func WithDebounce(window time.Duration, maxBuffer int) Option {
	return func(d *Document) { d.debounce = debounceConfig{Window: window, MaxBuffer: maxBuffer} }
}

// Document is the mirrored DOM of one tab.
type Document struct {
	client   Client
	logger   *slog.Logger
	debounce debounceConfig

	mu    sync.RWMutex
	root  *Node
	nodes map[proto.DOMNodeID]*Node

	obsMu sync.Mutex
	obs   map[*observation]struct{}

	raw  chan dom.Record
	done chan struct{}
	once sync.Once
}

// New creates an empty Document. Load fills it and Run starts batching.
func New(client Client, opts ...Option) *Document {
	d := &Document{
		client: client,
		logger: slog.Default(),
		nodes:  make(map[proto.DOMNodeID]*Node),
		obs:    make(map[*observation]struct{}),
		raw:    make(chan dom.Record, 256),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	d.debounce.defaults()
	return d
}

// Open is New, then Load, then Run in a goroutine until ctx is done.
func Open(ctx context.Context, client Client, opts ...Option) (*Document, error) {
	d := New(client, opts...)
	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	go d.Run(ctx)
	return d, nil
}

// Load replaces the mirror with a fresh DOM.getDocument snapshot. Handles
// taken from the previous mirror become detached.
func (d *Document) Load(ctx context.Context) error {
	root, err := d.client.GetDocument(ctx)
	if err != nil {
		return fmt.Errorf("cdpdom: get document: %w", err)
	}

	d.mu.Lock()
	for _, n := range d.nodes {
		n.parent = nil
	}
	d.nodes = make(map[proto.DOMNodeID]*Node)
	d.root = d.build(root, nil)
	count := len(d.nodes)
	d.mu.Unlock()

	d.logger.Debug("cdpdom: document loaded", "nodes", count)
	return nil
}

// Run batches pushed records until ctx is done, then flushes what is left
// and closes every observation.
func (d *Document) Run(ctx context.Context) {
	deb := newDebouncer(d.debounce, d.emit)

	for {
		select {
		case <-ctx.Done():
			d.once.Do(func() { close(d.done) })
			deb.flush()
			d.closeObservations()
			return
		case rec := <-d.raw:
			deb.add(rec)
		case <-deb.timerC():
			deb.flush()
		}
	}
}

// Root returns the document node, nil before Load.
func (d *Document) Root() dom.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return nil
	}
	return d.root
}

// Lookup returns the mirrored node for a CDP node id.
func (d *Document) Lookup(id proto.DOMNodeID) (*Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	return n, ok
}

// Len is the number of mirrored nodes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

func (d *Document) push(rec dom.Record) {
	select {
	case d.raw <- rec:
	case <-d.done:
	}
}

// build mirrors pn and its loaded children. Caller holds d.mu.
func (d *Document) build(pn *proto.DOMNode, parent *Node) *Node {
	if pn == nil {
		return nil
	}
	if old, ok := d.nodes[pn.NodeID]; ok {
		d.unlink(old)
	}

	n := &Node{doc: d, id: pn.NodeID, kind: kindOf(pn.NodeType), parent: parent}
	switch n.kind {
	case dom.KindElement:
		n.tag = strings.ToLower(pn.NodeName)
		n.attrs = make(map[string]string, len(pn.Attributes)/2)
		for i := 0; i+1 < len(pn.Attributes); i += 2 {
			n.attrs[pn.Attributes[i]] = pn.Attributes[i+1]
		}
	case dom.KindText:
		n.value = pn.NodeValue
	}
	d.nodes[n.id] = n

	for _, c := range pn.Children {
		if child := d.build(c, n); child != nil {
			n.children = append(n.children, child)
		}
	}
	return n
}

// unlink removes n from its parent and forgets its subtree. Caller holds d.mu.
func (d *Document) unlink(n *Node) {
	if p := n.parent; p != nil {
		for i, c := range p.children {
			if c == n {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
	}
	n.parent = nil
	d.forget(n)
}

func (d *Document) forget(n *Node) {
	if cur, ok := d.nodes[n.id]; ok && cur == n {
		delete(d.nodes, n.id)
	}
	for _, c := range n.children {
		d.forget(c)
	}
}

// attached reports whether n is the mirrored node for its id. Caller holds d.mu.
func (d *Document) attached(n *Node) bool {
	cur, ok := d.nodes[n.id]
	return ok && cur == n
}

// needsChildren reports whether CDP announced children it did not send.
func needsChildren(pn *proto.DOMNode) bool {
	return pn.ChildNodeCount != nil && *pn.ChildNodeCount > len(pn.Children)
}

func kindOf(nodeType int) dom.Kind {
	switch nodeType {
	case 1:
		return dom.KindElement
	case 3, 4: // text, CDATA
		return dom.KindText
	case 9:
		return dom.KindDocument
	case 11:
		return dom.KindFragment
	default:
		return dom.KindOther
	}
}
