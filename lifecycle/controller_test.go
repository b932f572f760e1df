package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/unsuggest/dom"
	"github.com/hazyhaar/unsuggest/dom/htmldom"
	"github.com/hazyhaar/unsuggest/filter"
	"github.com/hazyhaar/unsuggest/notify"
	"github.com/hazyhaar/unsuggest/pipeline"
	"github.com/hazyhaar/unsuggest/settings"
)

const suggestedItem = `<div class="feed-shared-update-v2" data-id="urn:%s">` +
	`<div class="update-components-header"><span class="update-components-header__text-view">Suggested</span></div>` +
	`<p>post</p></div>`

type harness struct {
	doc    *htmldom.Document
	c      *Controller
	msgs   chan notify.Message
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, body string, store settings.Store) *harness {
	t.Helper()
	doc, err := htmldom.ParseString(`<html><body><main id="feed">` + body + `</main></body></html>`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	h := &harness{doc: doc, msgs: make(chan notify.Message), done: make(chan error, 1)}
	p := pipeline.New(doc, filter.New(filter.DefaultRules()), nil)
	opts := []Option{WithMessages(h.msgs), WithPage("pg_test", "https://www.linkedin.com/feed/")}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	h.c = New(p, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	h.do(t, func() {})
	return h
}

func (h *harness) do(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.c.Do(ctx, fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func (h *harness) send(t *testing.T, msg notify.Message) {
	t.Helper()
	select {
	case h.msgs <- msg:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not receive message")
	}
}

func (h *harness) eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var ok bool
		h.do(t, func() { ok = cond() })
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) appendHTML(t *testing.T, fragment string) []dom.Node {
	t.Helper()
	var added []dom.Node
	h.do(t, func() {
		var err error
		added, err = h.doc.AppendHTML(h.doc.ByID("feed"), fragment)
		if err != nil {
			t.Errorf("AppendHTML: %v", err)
		}
	})
	return added
}

// plantSilently adds a suggested item under #feed without emitting a
// mutation record; only a full scan can reach it.
func (h *harness) plantSilently(t *testing.T, id string) dom.Node {
	t.Helper()
	var n dom.Node
	h.do(t, func() {
		label := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span,
			Attr: []html.Attribute{{Key: "class", Val: "update-components-header__text-view"}}}
		label.AppendChild(&html.Node{Type: html.TextNode, Data: "Suggested"})
		item := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div,
			Attr: []html.Attribute{{Key: "class", Val: "feed-shared-update-v2"}, {Key: "id", Val: id}}}
		item.AppendChild(label)
		h.doc.ByID("feed").HTML().AppendChild(item)
		n = h.doc.ByID(id)
	})
	return n
}

func attached(n dom.Node) bool { return n.(*htmldom.Node).Attached() }

func TestStartEnabledScansAndObserves(t *testing.T) {
	h := start(t, `<div class="feed-shared-update-v2" id="p1">`+
		`<span class="update-components-header__text-view">Suggested</span></div>`, nil)

	h.do(t, func() {
		if h.doc.ByID("p1") != nil {
			t.Error("existing suggested item not removed")
		}
	})
	s := h.c.Status()
	if !s.Enabled || s.State != "observing" || s.Stats.Detached != 1 {
		t.Errorf("Status: got %+v", s)
	}
	if n := h.doc.Observers(); n != 1 {
		t.Errorf("Observers: got %d, want 1", n)
	}
}

func TestStartDisabled(t *testing.T) {
	store := settings.NewMemory()
	if err := store.Set(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	h := start(t, `<div class="feed-shared-update-v2" id="p1">`+
		`<span class="update-components-header__text-view">Suggested</span></div>`, store)

	h.do(t, func() {
		if h.doc.ByID("p1") == nil {
			t.Error("item removed while disabled")
		}
	})
	if h.c.Enabled() || h.doc.Observers() != 0 {
		t.Errorf("enabled=%v observers=%d, want false and 0", h.c.Enabled(), h.doc.Observers())
	}
}

func TestStartStoreUnavailable(t *testing.T) {
	store := settings.NewMemory()
	store.Fail(errors.New("storage gone"))
	h := start(t, "", store)
	if !h.c.Enabled() {
		t.Fatal("controller not enabled when settings are unavailable")
	}
}

func TestAtMostOneObservation(t *testing.T) {
	h := start(t, "", nil)

	for i, v := range []bool{false, true, true, false, false, true, false, true, true} {
		h.send(t, notify.EnabledChanged(v))
		h.do(t, func() {
			if n := h.doc.Observers(); n > 1 {
				t.Errorf("step %d: %d observations active", i, n)
			}
			want := 0
			if v {
				want = 1
			}
			if n := h.doc.Observers(); n != want {
				t.Errorf("step %d (enabled=%v): observers %d, want %d", i, v, n, want)
			}
		})
		if h.c.Enabled() != v {
			t.Errorf("step %d: Enabled() = %v, want %v", i, h.c.Enabled(), v)
		}
	}
}

func TestReenableRescans(t *testing.T) {
	h := start(t, "", nil)
	h.send(t, notify.EnabledChanged(false))

	added := h.appendHTML(t, fmtItem("a")+fmtItem("b"))
	if len(added) != 2 {
		t.Fatalf("added %d nodes, want 2", len(added))
	}
	h.do(t, func() {
		for i, n := range added {
			if !attached(n) {
				t.Errorf("item %d removed while disabled", i)
			}
		}
	})

	h.send(t, notify.EnabledChanged(true))
	h.do(t, func() {
		for i, n := range added {
			if attached(n) {
				t.Errorf("item %d still attached after re-enable", i)
			}
		}
	})
}

func TestIncrementalInsertionTrailingWhitespace(t *testing.T) {
	h := start(t, "", nil)
	silent := h.plantSilently(t, "silent")

	added := h.appendHTML(t, `<div class="feed-shared-update-v2" data-id="urn:late">`+
		`<span class="update-components-header__text-view">Suggested   
	</span></div>`+
		`<div class="feed-shared-update-v2" data-id="urn:keep">`+
		`<span class="update-components-header__text-view">Promoted</span></div>`)

	h.eventually(t, "late suggested item removal", func() bool { return !attached(added[0]) })
	h.do(t, func() {
		if !attached(added[1]) {
			t.Error("promoted item removed")
		}
		if !attached(silent) {
			t.Error("insertion triggered a full rescan")
		}
	})
}

func TestTextChangeDetected(t *testing.T) {
	h := start(t, `<div class="feed-shared-update-v2" id="p1">`+
		`<span class="update-components-header__text-view" id="label">Promoted</span></div>`, nil)

	var item dom.Node
	h.do(t, func() {
		item = h.doc.ByID("p1")
		label := h.doc.ByID("label")
		text := h.doc.Wrap(label.HTML().FirstChild)
		if err := h.doc.SetText(text, " Suggested "); err != nil {
			t.Errorf("SetText: %v", err)
		}
	})
	h.eventually(t, "removal after text change", func() bool { return !attached(item) })
}

func TestWrapperRemovedOuterKept(t *testing.T) {
	h := start(t, "", nil)

	var outer, wrapper dom.Node
	h.do(t, func() {
		added, err := h.doc.AppendHTML(h.doc.ByID("feed"), `<div data-id="urn:outer" id="outer">`+
			`<div class="feed-shared-update-v2" id="wrapper">`+
			`<div class="update-components-header"><span class="update-components-header__text-view">Suggested</span></div>`+
			`</div><div id="sibling">kept</div></div>`)
		if err != nil || len(added) != 1 {
			t.Errorf("AppendHTML: %v (%d nodes)", err, len(added))
			return
		}
		outer = added[0]
		wrapper = h.doc.Wrap(outer.(*htmldom.Node).HTML().FirstChild)
	})
	if outer == nil {
		t.FailNow()
	}
	h.eventually(t, "wrapper removal", func() bool { return !attached(wrapper) })
	h.do(t, func() {
		if !attached(outer) {
			t.Error("outer data-id container removed")
		}
		if h.doc.ByID("sibling") == nil {
			t.Error("sibling removed")
		}
	})
}

func TestIgnoresOtherMessages(t *testing.T) {
	h := start(t, "", nil)
	h.send(t, notify.Message{Type: "something-else", Enabled: false})
	h.do(t, func() {})
	if !h.c.Enabled() || h.doc.Observers() != 1 {
		t.Error("unrelated message changed state")
	}
}

func TestDoAfterStop(t *testing.T) {
	h := start(t, "", nil)
	h.cancel()
	if err := <-h.done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	h.done <- nil // consumed again by cleanup

	if err := h.c.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Do after stop: got %v, want ErrStopped", err)
	}
	if n := h.doc.Observers(); n != 0 {
		t.Errorf("Observers after Run returned: got %d, want 0", n)
	}
}

func fmtItem(id string) string {
	return fmt.Sprintf(suggestedItem, id)
}
