package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const staticPage = `<!DOCTYPE html>
<html>
<head><title>Feed</title><style>body { color: red; }</style></head>
<body>
<main>
<article>
<h1>Article Title</h1>
<p>Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur.</p>
</article>
</main>
</body>
</html>`

func TestIsSufficientStaticPage(t *testing.T) {
	if !IsSufficient([]byte(staticPage)) {
		t.Fatal("expected sufficient for static page with content")
	}
}

func TestIsSufficientSPAShell(t *testing.T) {
	page := []byte(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>App</title></head>
<body>
<div id="root"></div>
<script src="/static/js/main.chunk.js"></script>
</body>
</html>`)
	if IsSufficient(page) {
		t.Fatal("expected insufficient for SPA shell")
	}
}

func TestIsSufficientTooShort(t *testing.T) {
	if IsSufficient([]byte(`<html><body>hi</body></html>`)) {
		t.Fatal("expected insufficient for very short content")
	}
}

func TestIsSufficientScriptHeavy(t *testing.T) {
	page := "<html><body><p>short text here</p><script>" +
		strings.Repeat("var x = 'lots of script text that is not visible';", 50) +
		"</script></body></html>"
	if IsSufficient([]byte(page)) {
		t.Fatal("script bodies must not count as text")
	}
}

func TestTextMarkupRatio(t *testing.T) {
	text, markup := textMarkupRatio([]byte(`<div>Hello World</div><script>var a=1;</script>`))
	if text != len("HelloWorld") {
		t.Fatalf("text: got %d, want %d", text, len("HelloWorld"))
	}
	if markup == 0 {
		t.Fatal("expected non-zero markup count")
	}
}

func TestFetch(t *testing.T) {
	var gotUA, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(staticPage))
	}))
	defer srv.Close()

	f := New(WithUserAgent("test-agent"), WithCookie("li_at=abc"))
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != http.StatusOK || !res.Sufficient {
		t.Fatalf("result: got status %d sufficient %v", res.StatusCode, res.Sufficient)
	}
	if string(res.HTML) != staticPage {
		t.Fatal("body mismatch")
	}
	if gotUA != "test-agent" || gotCookie != "li_at=abc" {
		t.Fatalf("headers: got ua %q cookie %q", gotUA, gotCookie)
	}
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := New().Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error on 403")
	}
}
