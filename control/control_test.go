package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/unsuggest/dbopen"
	"github.com/hazyhaar/unsuggest/lifecycle"
	"github.com/hazyhaar/unsuggest/notify"
	"github.com/hazyhaar/unsuggest/settings"
)

type fakePages []lifecycle.Status

func (f fakePages) Pages() []lifecycle.Status { return f }

func recv(t *testing.T, ch <-chan notify.Message) notify.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("no message broadcast")
		return notify.Message{}
	}
}

func assertSilent(t *testing.T, ch <-chan notify.Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected broadcast %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func newHub(t *testing.T) *notify.Hub {
	t.Helper()
	h := notify.NewHub()
	t.Cleanup(h.Close)
	return h
}

func TestSetEnabledPersistsThenBroadcasts(t *testing.T) {
	store := settings.NewMemory()
	hub := newHub(t)
	ch, cancel := hub.Listen("page", "")
	defer cancel()

	res := NewSender(store, hub).SetEnabled(context.Background(), false)
	if !res.Persisted || res.Enabled || res.Delivered != 1 {
		t.Fatalf("Result: got %+v", res)
	}
	if v, _ := store.Get(context.Background(), true); v {
		t.Error("value not persisted")
	}
	if m := recv(t, ch); m.Type != notify.TypeEnabledChanged || m.Enabled {
		t.Errorf("message: got %+v", m)
	}
}

func TestSetEnabledStoreFailureStillBroadcasts(t *testing.T) {
	store := settings.NewMemory()
	store.Fail(errors.New("quota exceeded"))
	hub := newHub(t)
	ch, cancel := hub.Listen("page", "")
	defer cancel()

	res := NewSender(store, hub).SetEnabled(context.Background(), false)
	if res.Persisted {
		t.Error("Persisted: got true on failing store")
	}
	if m := recv(t, ch); m.Enabled {
		t.Error("broadcast carried the wrong value")
	}
}

func TestSetEnabledScopedBySite(t *testing.T) {
	hub := newHub(t)
	feed, cancelFeed := hub.Listen("feed", "https://www.linkedin.com/feed/")
	defer cancelFeed()
	other, cancelOther := hub.Listen("other", "https://example.org/")
	defer cancelOther()

	s := NewSender(settings.NewMemory(), hub, WithSite("https://www.linkedin.com/*"))
	if res := s.SetEnabled(context.Background(), true); res.Delivered != 1 {
		t.Fatalf("Delivered: got %d, want 1", res.Delivered)
	}
	recv(t, feed)
	assertSilent(t, other)
}

func TestSyncBroadcastsOnlyChanges(t *testing.T) {
	store := settings.NewMemory()
	hub := newHub(t)
	ch, cancel := hub.Listen("page", "")
	defer cancel()
	s := NewSender(store, hub)
	ctx := context.Background()

	s.SetEnabled(ctx, true)
	recv(t, ch)

	// Own write seen again by a watcher: no duplicate.
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	assertSilent(t, ch)

	// Written by another process.
	if err := store.Set(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if m := recv(t, ch); m.Enabled {
		t.Error("Sync broadcast the wrong value")
	}

	store.Fail(errors.New("gone"))
	if err := s.Sync(ctx); !errors.Is(err, settings.ErrUnavailable) {
		t.Errorf("Sync on failing store: got %v", err)
	}
}

func testServer(t *testing.T, pages PageLister) (*httptest.Server, settings.Store, *notify.Hub) {
	t.Helper()
	store := settings.NewMemory()
	hub := newHub(t)
	svc := NewService(NewSender(store, hub), pages, hub, nil)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return srv, store, hub
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, url, err)
	}
	return resp, out
}

func TestHTTPEnabled(t *testing.T) {
	srv, store, hub := testServer(t, nil)
	ch, cancel := hub.Listen("page", "")
	defer cancel()

	resp, out := do(t, http.MethodGet, srv.URL+"/api/enabled", "")
	if resp.StatusCode != http.StatusOK || out["enabled"] != true {
		t.Fatalf("GET default: %d %v", resp.StatusCode, out)
	}

	resp, out = do(t, http.MethodPut, srv.URL+"/api/enabled", `{"enabled":false}`)
	if resp.StatusCode != http.StatusOK || out["enabled"] != false || out["persisted"] != true {
		t.Fatalf("PUT: %d %v", resp.StatusCode, out)
	}
	if m := recv(t, ch); m.Enabled {
		t.Error("PUT did not broadcast false")
	}
	if v, _ := store.Get(context.Background(), true); v {
		t.Error("PUT did not persist")
	}

	_, out = do(t, http.MethodGet, srv.URL+"/api/enabled", "")
	if out["enabled"] != false {
		t.Errorf("GET after PUT: %v", out)
	}
}

func TestHTTPBadRequests(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	for _, body := range []string{`{}`, `{"enabled":null}`, `not json`} {
		resp, out := do(t, http.MethodPut, srv.URL+"/api/enabled", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("PUT %q: status %d, want 400", body, resp.StatusCode)
		}
		if out["error"] == nil {
			t.Errorf("PUT %q: no error field", body)
		}
	}
}

func TestHTTPPagesAndStatus(t *testing.T) {
	pages := fakePages{{ID: "pg_1", URL: "https://www.linkedin.com/feed/", Enabled: true, State: "observing"}}
	srv, _, _ := testServer(t, pages)

	resp, err := http.Get(srv.URL + "/api/pages")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got []lifecycle.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "pg_1" || got[0].State != "observing" {
		t.Fatalf("pages: got %+v", got)
	}

	_, out := do(t, http.MethodGet, srv.URL+"/api/status", "")
	if out["enabled"] != true {
		t.Errorf("status: %v", out)
	}
	if ps, ok := out["pages"].([]any); !ok || len(ps) != 1 {
		t.Errorf("status pages: %v", out["pages"])
	}

	_, out = do(t, http.MethodGet, srv.URL+"/health", "")
	if out["status"] != "ok" {
		t.Errorf("health: %v", out)
	}
}

func TestStatusReportsStoreWatch(t *testing.T) {
	hub := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := NewService(NewSender(settings.NewMemory(), hub), nil, hub, nil)
	resp, err := mem.status(ctx, nil)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.(StatusResponse).Watch != nil {
		t.Error("memory store: unexpected watch stats")
	}

	store, err := settings.NewSQLite(dbopen.OpenMemory(t), 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	go store.Watch(ctx, func() error { return nil })

	svc := NewService(NewSender(store, hub), nil, hub, nil)
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := svc.status(ctx, nil)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st := resp.(StatusResponse).Watch; st != nil && st.Checks > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("status never reported the store watcher")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

var testMCPImpl = &mcp.Implementation{Name: "unsuggest-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, error) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	if result.IsError {
		return "", errors.New(tc.Text)
	}
	return tc.Text, nil
}

func TestMCPTools(t *testing.T) {
	store := settings.NewMemory()
	hub := newHub(t)
	ch, cancel := hub.Listen("page", "")
	defer cancel()
	svc := NewService(NewSender(store, hub), fakePages{{ID: "pg_1", State: "idle"}}, hub, nil)
	session := mcpSession(t, svc)

	text, err := callTool(t, session, "unsuggest_set_enabled", map[string]any{"enabled": false})
	if err != nil {
		t.Fatalf("set_enabled: %v", err)
	}
	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Enabled || !res.Persisted || res.Delivered != 1 {
		t.Errorf("Result: got %+v", res)
	}
	recv(t, ch)

	text, err = callTool(t, session, "unsuggest_status", map[string]any{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st StatusResponse
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Enabled || len(st.Pages) != 1 {
		t.Errorf("status: got %+v", st)
	}

	// Rejected either by schema validation or by the request validator.
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "unsuggest_set_enabled",
		Arguments: map[string]any{},
	})
	if err == nil && !result.IsError {
		t.Error("set_enabled without argument: expected an error")
	}
	if _, err := callTool(t, session, "unsuggest_set_enabled", map[string]any{}); err == nil {
		t.Error("callTool: tool error reported as success")
	} else if !strings.Contains(err.Error(), "enabled") {
		t.Errorf("callTool error: got %q, want it to name the enabled field", err)
	}
	if v, _ := store.Get(context.Background(), true); v {
		t.Error("rejected call changed the stored flag")
	}
}
