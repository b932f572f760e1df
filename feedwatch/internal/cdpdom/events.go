package cdpdom

import (
	"context"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/unsuggest/dom"
)

// childInserted mirrors an inserted node and records it. Children CDP did
// not send are requested; they arrive as setChildNodes.
func (d *Document) childInserted(e *proto.DOMChildNodeInserted) {
	if e.Node == nil {
		return
	}

	d.mu.Lock()
	parent, ok := d.nodes[e.ParentNodeID]
	if !ok {
		d.mu.Unlock()
		return
	}
	n := d.build(e.Node, parent)
	at := 0
	if e.PreviousNodeID != 0 {
		at = len(parent.children)
		for i, c := range parent.children {
			if c.id == e.PreviousNodeID {
				at = i + 1
				break
			}
		}
	}
	parent.children = append(parent.children, nil)
	copy(parent.children[at+1:], parent.children[at:])
	parent.children[at] = n
	d.mu.Unlock()

	if needsChildren(e.Node) {
		go d.requestChildren(e.Node.NodeID)
	}
	d.push(dom.Record{Kind: dom.RecordAdded, Node: n})
}

// setChildNodes fills in children requested earlier. The parent is recorded
// as added since its subtree was not scannable before.
func (d *Document) setChildNodes(e *proto.DOMSetChildNodes) {
	d.mu.Lock()
	parent, ok := d.nodes[e.ParentID]
	if !ok {
		d.mu.Unlock()
		return
	}
	for _, c := range parent.children {
		c.parent = nil
		d.forget(c)
	}
	parent.children = parent.children[:0]
	for _, pn := range e.Nodes {
		if c := d.build(pn, parent); c != nil {
			parent.children = append(parent.children, c)
		}
	}
	d.mu.Unlock()

	d.push(dom.Record{Kind: dom.RecordAdded, Node: parent})
}

func (d *Document) childRemoved(e *proto.DOMChildNodeRemoved) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.nodes[e.NodeID]; ok {
		d.unlink(n)
	}
}

func (d *Document) attributeModified(e *proto.DOMAttributeModified) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.nodes[e.NodeID]; ok && n.attrs != nil {
		n.attrs[e.Name] = e.Value
	}
}

func (d *Document) attributeRemoved(e *proto.DOMAttributeRemoved) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.nodes[e.NodeID]; ok {
		delete(n.attrs, e.Name)
	}
}

func (d *Document) characterDataModified(e *proto.DOMCharacterDataModified) {
	d.mu.Lock()
	n, ok := d.nodes[e.NodeID]
	if ok {
		n.value = e.CharacterData
	}
	d.mu.Unlock()
	if ok {
		d.push(dom.Record{Kind: dom.RecordText, Node: n})
	}
}

// documentUpdated reloads the mirror and records the new root as added.
func (d *Document) documentUpdated(ctx context.Context) {
	if err := d.Load(ctx); err != nil {
		d.logger.Warn("cdpdom: reload after document update failed", "error", err)
		return
	}
	if root := d.Root(); root != nil {
		d.push(dom.Record{Kind: dom.RecordAdded, Node: root})
	}
}

func (d *Document) requestChildren(id proto.DOMNodeID) {
	if err := d.client.RequestChildNodes(id); err != nil {
		d.logger.Debug("cdpdom: request child nodes failed", "node", id, "error", err)
	}
}
