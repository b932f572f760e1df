package htmldom

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/unsuggest/dom"
)

const fixture = `<!DOCTYPE html>
<html><head><title>t</title></head>
<body>
<main id="feed">
<div class="card a" id="c1"><span class="label">Suggested</span></div>
<div class="card" id="c2"><span class="label">Promoted</span></div>
</main>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func recvBatch(t *testing.T, obs dom.Observation) dom.Batch {
	t.Helper()
	select {
	case b := <-obs.Batches():
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
		return dom.Batch{}
	}
}

func TestHandlesAreCached(t *testing.T) {
	d := mustParse(t, fixture)
	c1 := d.ByID("c1")
	if c1 == nil {
		t.Fatal("ByID(c1) = nil")
	}
	if d.Wrap(c1.HTML()) != c1 {
		t.Error("Wrap returned a different handle for the same node")
	}
	if c1.Parent() != dom.Node(d.ByID("feed")) {
		t.Error("Parent handle differs from ByID handle")
	}
}

func TestNodeViews(t *testing.T) {
	d := mustParse(t, fixture)
	c1 := d.ByID("c1")

	if c1.Kind() != dom.KindElement {
		t.Errorf("Kind: got %s, want element", c1.Kind())
	}
	if c1.Tag() != "div" {
		t.Errorf("Tag: got %q, want div", c1.Tag())
	}
	if !c1.HasClass("card") || !c1.HasClass("a") || c1.HasClass("car") {
		t.Error("HasClass token matching is wrong")
	}
	if v, ok := c1.Attr("id"); !ok || v != "c1" {
		t.Errorf("Attr(id): got %q,%v", v, ok)
	}
	if got := c1.Text(); got != "Suggested" {
		t.Errorf("Text: got %q, want Suggested", got)
	}
	if d.Root().Kind() != dom.KindDocument {
		t.Errorf("Root kind: got %s", d.Root().Kind())
	}
}

func TestQueryClass(t *testing.T) {
	d := mustParse(t, fixture)
	labels, err := d.Root().(dom.Querier).QueryClass("label")
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 2 {
		t.Fatalf("QueryClass(label): got %d, want 2", len(labels))
	}

	// Receiver is never part of the result.
	cards, err := d.ByID("c1").QueryClass("card")
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 0 {
		t.Errorf("QueryClass included the receiver: %d results", len(cards))
	}

	text := labels[0].(*Node).HTML().FirstChild
	if _, err := d.Wrap(text).QueryClass("label"); !errors.Is(err, ErrNotQueriable) {
		t.Errorf("QueryClass on text: got %v, want ErrNotQueriable", err)
	}
}

func TestDetachAndSetAttr(t *testing.T) {
	d := mustParse(t, fixture)
	c2 := d.ByID("c2")

	if err := c2.SetAttr("style", "display: none"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c2.Attr("style"); v != "display: none" {
		t.Errorf("style: got %q", v)
	}

	if err := c2.Detach(); err != nil {
		t.Fatal(err)
	}
	if c2.Attached() {
		t.Error("node still attached after Detach")
	}
	if err := c2.Detach(); !errors.Is(err, ErrDetached) {
		t.Errorf("second Detach: got %v, want ErrDetached", err)
	}
	if strings.Contains(d.String(), `id="c2"`) {
		t.Error("rendered document still contains c2")
	}
}

func TestObserveAppendAndText(t *testing.T) {
	d := mustParse(t, fixture)
	obs, err := d.Observe()
	if err != nil {
		t.Fatal(err)
	}
	defer obs.Disconnect()

	feed := d.ByID("feed")
	added, err := d.AppendHTML(feed, `<div id="c3"><span class="label">Suggested </span></div><p>x</p>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 2 {
		t.Fatalf("added: got %d, want 2", len(added))
	}

	b := recvBatch(t, obs)
	if len(b.Records) != 2 || b.Records[0].Kind != dom.RecordAdded {
		t.Fatalf("batch: got %+v", b.Records)
	}
	if b.Records[0].Node != added[0] {
		t.Error("record node is not the inserted handle")
	}

	span := d.ByID("c3").HTML().FirstChild
	if err := d.SetText(d.Wrap(span.FirstChild), "Suggested"); err != nil {
		t.Fatal(err)
	}
	b = recvBatch(t, obs)
	if len(b.Records) != 1 || b.Records[0].Kind != dom.RecordText {
		t.Fatalf("text batch: got %+v", b.Records)
	}
}

func TestDisconnectStopsDelivery(t *testing.T) {
	d := mustParse(t, fixture)
	obs, _ := d.Observe()
	if d.Observers() != 1 {
		t.Fatalf("Observers: got %d, want 1", d.Observers())
	}
	obs.Disconnect()
	obs.Disconnect()
	if d.Observers() != 0 {
		t.Fatalf("Observers after Disconnect: got %d, want 0", d.Observers())
	}

	if _, err := d.AppendHTML(d.ByID("feed"), `<p>late</p>`); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-obs.Batches():
		t.Fatalf("batch delivered after Disconnect: %+v", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestForeignNodeRejected(t *testing.T) {
	a := mustParse(t, fixture)
	b := mustParse(t, fixture)
	if _, err := a.AppendHTML(b.ByID("feed"), "<p></p>"); !errors.Is(err, ErrForeignNode) {
		t.Errorf("got %v, want ErrForeignNode", err)
	}
}
