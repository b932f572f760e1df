// Package removal defines the report emitted for every feed item removed
// from a live page. Reports are observability only: nothing reads them
// back to decide what to remove.
package removal

import (
	"strings"
	"time"

	"github.com/hazyhaar/unsuggest/dom"
	"github.com/hazyhaar/unsuggest/filter"
	"github.com/hazyhaar/unsuggest/idgen"
)

// Removal describes one removed container.
type Removal struct {
	ID        string   `json:"id"`
	PageID    string   `json:"page_id"`
	PageURL   string   `json:"page_url"`
	Tag       string   `json:"tag"`
	Classes   []string `json:"classes,omitempty"`
	ItemID    string   `json:"item_id,omitempty"`
	Method    string   `json:"method"` // detached | hidden
	Timestamp int64    `json:"timestamp"`
}

// New builds the report for container removed with outcome. idAttr is the
// item identifier attribute copied into ItemID when present.
func New(pageID, pageURL, idAttr string, container dom.Node, outcome filter.Outcome) Removal {
	r := Removal{
		ID:        idgen.New(),
		PageID:    pageID,
		PageURL:   pageURL,
		Method:    outcome.String(),
		Timestamp: time.Now().UnixMilli(),
	}
	if container == nil {
		return r
	}
	r.Tag = container.Tag()
	if c, ok := container.Attr("class"); ok {
		r.Classes = strings.Fields(c)
	}
	if idAttr != "" {
		r.ItemID, _ = container.Attr(idAttr)
	}
	return r
}
