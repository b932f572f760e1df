// Package notify delivers enabled-state changes to every document context.
//
// A single internal goroutine owns the listener set. Public methods talk to
// it through channels, the same way an SSE broker owns its clients.
package notify

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// TypeEnabledChanged is the only message type sent by the control surface.
const TypeEnabledChanged = "enabled-changed"

// DefaultBuffer is the per-listener channel capacity.
const DefaultBuffer = 16

// Message is one notification.
type Message struct {
	Type    string    `json:"type"`
	Enabled bool      `json:"enabled"`
	At      time.Time `json:"at"`
}

// EnabledChanged builds a TypeEnabledChanged message stamped now.
func EnabledChanged(enabled bool) Message {
	return Message{Type: TypeEnabledChanged, Enabled: enabled, At: time.Now().UTC()}
}

// Delivery reports what a broadcast did, by listener id.
type Delivery struct {
	Delivered []string `json:"delivered"`
	Skipped   []string `json:"skipped,omitempty"`
}

type listener struct {
	id  string
	url string // "" receives every broadcast
	ch  chan Message
}

type broadcastReq struct {
	msg     Message
	pattern *regexp.Regexp // nil matches every URL
	resp    chan Delivery
}

// Hub fans messages out to registered listeners.
type Hub struct {
	buffer int
	logger *slog.Logger

	subscribeCh   chan *listener
	unsubscribeCh chan *listener
	broadcastCh   chan broadcastReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithBuffer sets the per-listener buffer size.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub starts a Hub. Close releases it.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		buffer:        DefaultBuffer,
		logger:        slog.Default(),
		subscribeCh:   make(chan *listener),
		unsubscribeCh: make(chan *listener),
		broadcastCh:   make(chan broadcastReq),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)

	listeners := make(map[*listener]struct{})

	for {
		select {
		case <-h.stopCh:
			for l := range listeners {
				close(l.ch)
			}
			return

		case l := <-h.subscribeCh:
			listeners[l] = struct{}{}

		case l := <-h.unsubscribeCh:
			if _, ok := listeners[l]; ok {
				delete(listeners, l)
				close(l.ch)
			}

		case req := <-h.broadcastCh:
			var d Delivery
			for l := range listeners {
				if req.pattern != nil && l.url != "" && !req.pattern.MatchString(l.url) {
					continue
				}
				select {
				case l.ch <- req.msg:
					d.Delivered = append(d.Delivered, l.id)
				default:
					d.Skipped = append(d.Skipped, l.id)
				}
			}
			req.resp <- d

		case resp := <-h.countReqCh:
			resp <- len(listeners)
		}
	}
}

// Close stops the hub and closes every listener channel.
func (h *Hub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}

// Listen registers a recipient living at url. A listener with an empty url
// receives every broadcast. The returned func unregisters the listener and
// closes its channel.
func (h *Hub) Listen(id, url string) (<-chan Message, func()) {
	l := &listener{id: id, url: url, ch: make(chan Message, h.buffer)}
	if h.closed.Load() {
		close(l.ch)
		return l.ch, func() {}
	}

	select {
	case h.subscribeCh <- l:
	case <-h.stopped:
		close(l.ch)
		return l.ch, func() {}
	}

	return l.ch, func() {
		if h.closed.Load() {
			return
		}
		select {
		case h.unsubscribeCh <- l:
		case <-h.stopped:
		}
	}
}

// Broadcast delivers msg to every listener at most once. Listeners whose
// buffer is full are skipped and reported; the broadcast never blocks on
// them.
func (h *Hub) Broadcast(msg Message) Delivery {
	return h.send(broadcastReq{msg: msg})
}

// BroadcastMatching delivers msg to listeners whose url matches pattern, a
// glob where * matches any run of characters. "" and "*" match every URL.
func (h *Hub) BroadcastMatching(msg Message, pattern string) Delivery {
	return h.send(broadcastReq{msg: msg, pattern: compileGlob(pattern)})
}

func (h *Hub) send(req broadcastReq) Delivery {
	if h.closed.Load() {
		return Delivery{}
	}
	req.resp = make(chan Delivery, 1)
	select {
	case h.broadcastCh <- req:
	case <-h.stopped:
		return Delivery{}
	}

	var d Delivery
	select {
	case d = <-req.resp:
	case <-h.stopped:
		return Delivery{}
	}
	for _, id := range d.Skipped {
		h.logger.Warn("notify: listener skipped", "id", id, "type", req.msg.Type)
	}
	return d
}

// Listeners returns the number of registered listeners.
func (h *Hub) Listeners() int {
	if h.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Encode renders msg as an SSE frame.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return []byte("event: " + msg.Type + "\ndata: " + string(payload) + "\n\n"), nil
}

func compileGlob(pattern string) *regexp.Regexp {
	if pattern == "" || pattern == "*" {
		return nil
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}
