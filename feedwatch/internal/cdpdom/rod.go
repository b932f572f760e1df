package cdpdom

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageClient drives the DOM domain of a rod page.
type PageClient struct {
	page *rod.Page
}

// NewPageClient wraps page.
func NewPageClient(page *rod.Page) *PageClient {
	return &PageClient{page: page}
}

// GetDocument calls DOM.getDocument with depth=-1 and pierce=true. Without
// the full depth, mutations on deep nodes are never reported.
func (c *PageClient) GetDocument(ctx context.Context) (*proto.DOMNode, error) {
	depth := -1
	res, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(c.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	return res.Root, nil
}

func (c *PageClient) RemoveNode(id proto.DOMNodeID) error {
	return proto.DOMRemoveNode{NodeID: id}.Call(c.page)
}

func (c *PageClient) SetAttribute(id proto.DOMNodeID, name, value string) error {
	return proto.DOMSetAttributeValue{NodeID: id, Name: name, Value: value}.Call(c.page)
}

func (c *PageClient) RequestChildNodes(id proto.DOMNodeID) error {
	depth := -1
	return proto.DOMRequestChildNodes{NodeID: id, Depth: &depth, Pierce: true}.Call(c.page)
}

// Attach enables the DOM domain on page, subscribes to its DOM events,
// loads the mirror and starts batching. Everything stops when ctx is done.
func Attach(ctx context.Context, page *rod.Page, opts ...Option) (*Document, error) {
	if err := (proto.DOMEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("cdpdom: DOM.enable: %w", err)
	}

	d := New(NewPageClient(page), opts...)

	// Subscribe before loading so no event between the snapshot and the
	// listener is lost; events queue until wait runs.
	wait := page.Context(ctx).EachEvent(
		d.childInserted,
		d.childRemoved,
		d.setChildNodes,
		d.attributeModified,
		d.attributeRemoved,
		d.characterDataModified,
		func(*proto.DOMDocumentUpdated) { go d.documentUpdated(ctx) },
	)

	if err := d.Load(ctx); err != nil {
		return nil, err
	}
	go wait()
	go d.Run(ctx)
	return d, nil
}
