package notify

import (
	"net/http"

	"github.com/hazyhaar/unsuggest/idgen"
)

// ServeHTTP streams every message as Server-Sent Events (GET /api/events).
// The optional "url" query parameter is the listener url given to Listen.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := h.Listen(idgen.Listener(), r.URL.Query().Get("url"))
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			frame, err := Encode(msg)
			if err != nil {
				h.logger.Warn("notify: encode failed", "error", err)
				continue
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
