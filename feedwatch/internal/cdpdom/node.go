package cdpdom

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/unsuggest/dom"
)

// Node is a mirrored DOM node. Reads take the document read lock; writes go
// through the CDP client first and update the mirror on success.
type Node struct {
	doc      *Document
	id       proto.DOMNodeID
	kind     dom.Kind
	tag      string
	value    string
	attrs    map[string]string
	parent   *Node
	children []*Node
}

// ID is the CDP node id.
func (n *Node) ID() proto.DOMNodeID { return n.id }

func (n *Node) Kind() dom.Kind { return n.kind }

func (n *Node) Tag() string { return n.tag }

func (n *Node) Parent() dom.Node {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) HasClass(name string) bool {
	v, ok := n.Attr("class")
	return ok && dom.HasClassToken(v, name)
}

func (n *Node) Attr(name string) (string, bool) {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	v, ok := n.attrs[name]
	return v, ok
}

func (n *Node) Text() string {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	var sb strings.Builder
	n.appendText(&sb)
	return sb.String()
}

func (n *Node) appendText(sb *strings.Builder) {
	if n.kind == dom.KindText {
		sb.WriteString(n.value)
		return
	}
	for _, c := range n.children {
		c.appendText(sb)
	}
}

// QueryClass returns element descendants carrying class, in document order.
func (n *Node) QueryClass(class string) ([]dom.Node, error) {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	if !n.doc.attached(n) {
		return nil, ErrDetached
	}
	var out []dom.Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.children {
			if c.kind == dom.KindElement && dom.HasClassToken(c.attrs["class"], class) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out, nil
}

// SetAttr writes the attribute in the page through DOM.setAttributeValue.
func (n *Node) SetAttr(name, value string) error {
	if n.kind != dom.KindElement {
		return fmt.Errorf("cdpdom: set attribute on %s node", n.kind)
	}
	if !n.Attached() {
		return ErrDetached
	}
	if err := n.doc.client.SetAttribute(n.id, name, value); err != nil {
		return fmt.Errorf("cdpdom: set attribute %s on node %d: %w", name, n.id, err)
	}
	n.doc.mu.Lock()
	n.attrs[name] = value
	n.doc.mu.Unlock()
	return nil
}

// Detach removes the node from the page through DOM.removeNode.
func (n *Node) Detach() error {
	n.doc.mu.RLock()
	ok := n.doc.attached(n) && n.parent != nil
	n.doc.mu.RUnlock()
	if !ok {
		return ErrDetached
	}
	if err := n.doc.client.RemoveNode(n.id); err != nil {
		return fmt.Errorf("cdpdom: remove node %d: %w", n.id, err)
	}
	n.doc.mu.Lock()
	if n.doc.attached(n) {
		n.doc.unlink(n)
	}
	n.doc.mu.Unlock()
	return nil
}

// Attached reports whether the node is still part of the mirror.
func (n *Node) Attached() bool {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return n.doc.attached(n)
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.tag, n.id)
}
