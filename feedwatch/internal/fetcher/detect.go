package fetcher

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// spaShells are markers of a page that renders everything client-side.
var spaShells = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	"<noscript>you need to enable javascript",
	"<noscript>enable javascript",
}

// IsSufficient reports whether body has enough visible text relative to its
// markup to be scanned without a browser: at least 200 non-space text bytes,
// at least 10% of the document, and no SPA shell marker.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}

	text, markup := textMarkupRatio(body)
	total := text + markup
	if total == 0 || text < 200 {
		return false
	}
	if float64(text)/float64(total) < 0.10 {
		return false
	}

	lower := bytes.ToLower(body)
	for _, s := range spaShells {
		if bytes.Contains(lower, []byte(s)) {
			return false
		}
	}
	return true
}

// textMarkupRatio counts non-space bytes of visible text against every
// other byte of the document. Script and style bodies count as markup.
func textMarkupRatio(body []byte) (text, markup int) {
	z := html.NewTokenizer(bytes.NewReader(body))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return text, markup
		}
		raw := len(z.Raw())

		switch tt {
		case html.TextToken:
			if skip > 0 {
				markup += raw
				continue
			}
			n := len(strings.Join(strings.Fields(string(z.Text())), ""))
			text += n
			markup += raw - n
		case html.StartTagToken:
			markup += raw
			if isHidden(z) {
				skip++
			}
		case html.EndTagToken:
			markup += raw
			if isHidden(z) && skip > 0 {
				skip--
			}
		default:
			markup += raw
		}
	}
}

func isHidden(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}
	return false
}
