package pipeline

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/unsuggest/dom"
	"github.com/hazyhaar/unsuggest/dom/htmldom"
	"github.com/hazyhaar/unsuggest/filter"
)

// plant inserts a suggested item under #feed straight into the html tree,
// so no mutation record is emitted for it.
func plant(t *testing.T, d *htmldom.Document, id string) *htmldom.Node {
	t.Helper()
	label := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span,
		Attr: []html.Attribute{{Key: "class", Val: "update-components-header__text-view"}}}
	label.AppendChild(&html.Node{Type: html.TextNode, Data: "Suggested"})
	item := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div,
		Attr: []html.Attribute{{Key: "class", Val: "feed-shared-update-v2"}, {Key: "id", Val: id}}}
	item.AppendChild(label)
	d.ByID("feed").HTML().AppendChild(item)
	return d.ByID(id)
}

func setup(t *testing.T, body string) (*htmldom.Document, *Pipeline) {
	t.Helper()
	d, err := htmldom.ParseString(`<html><body><main id="feed">` + body + `</main></body></html>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d, New(d, filter.New(filter.DefaultRules()), nil)
}

func next(t *testing.T, p *Pipeline) dom.Batch {
	t.Helper()
	select {
	case b := <-p.Batches():
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no batch")
		return dom.Batch{}
	}
}

func TestStartStop(t *testing.T) {
	d, p := setup(t, "")

	if p.State() != StateIdle || p.Batches() != nil {
		t.Fatal("new pipeline not idle")
	}
	p.Stop()

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); !errors.Is(err, ErrObserving) {
		t.Fatalf("second Start: got %v, want ErrObserving", err)
	}
	if d.Observers() != 1 {
		t.Errorf("Observers: got %d, want 1", d.Observers())
	}
	if p.State() != StateObserving || p.Batches() == nil {
		t.Error("pipeline not observing after Start")
	}

	p.Stop()
	p.Stop()
	if d.Observers() != 0 || p.State() != StateIdle {
		t.Errorf("after Stop: observers=%d state=%s", d.Observers(), p.State())
	}
}

func TestStartScansDocument(t *testing.T) {
	d, p := setup(t, `<div class="feed-shared-update-v2" id="a"><span class="update-components-header__text-view">Suggested</span></div>`)
	a := d.ByID("a")

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	if a.Attached() {
		t.Fatal("existing item not removed by Start")
	}
	if s := p.Stats(); s.Scans != 1 || s.Detached != 1 {
		t.Errorf("Stats: got %+v", s)
	}
}

func TestHandleAdded(t *testing.T) {
	d, p := setup(t, "")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	silent := plant(t, d, "silent")

	added, err := d.AppendHTML(d.ByID("feed"),
		`<div class="feed-shared-update-v2" id="b"><span class="update-components-header__text-view">Suggested </span></div>`+
			`<div class="feed-shared-update-v2" id="c"><span class="update-components-header__text-view">Promoted</span></div>`)
	if err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	b := next(t, p)
	p.Handle(b)

	if added[0].(*htmldom.Node).Attached() {
		t.Error("suggested insertion not removed")
	}
	if !added[1].(*htmldom.Node).Attached() {
		t.Error("promoted insertion removed")
	}
	// Only the inserted subtrees are scanned, not the document.
	if !silent.Attached() {
		t.Error("item outside the batch removed")
	}
	if s := p.Stats(); s.Scans != int64(1+len(b.Records)) || s.Detached != 1 {
		t.Errorf("Stats: got %+v, want %d scans and 1 detach", s, 1+len(b.Records))
	}
}

func TestHandleText(t *testing.T) {
	d, p := setup(t, `<div class="feed-shared-update-v2" id="a"><span class="update-components-header__text-view">Promoted</span></div>`)
	a := d.ByID("a")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	text := d.Wrap(a.HTML().FirstChild.FirstChild)
	if err := d.SetText(text, "Suggested"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	b := next(t, p)
	if len(b.Records) != 1 || b.Records[0].Kind != dom.RecordText {
		t.Fatalf("batch: got %+v, want one text record", b)
	}
	p.Handle(b)
	if a.Attached() {
		t.Error("item not removed after text change")
	}
}

func TestHandleIdleIsNoop(t *testing.T) {
	d, p := setup(t, "")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	added, err := d.AppendHTML(d.ByID("feed"),
		`<div class="feed-shared-update-v2"><span class="update-components-header__text-view">Suggested</span></div>`)
	if err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	b := next(t, p)
	p.Stop()

	p.Handle(b)
	if !added[0].(*htmldom.Node).Attached() {
		t.Error("Handle acted while idle")
	}
}
