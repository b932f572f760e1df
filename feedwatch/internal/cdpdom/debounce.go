package cdpdom

import (
	"time"

	"github.com/hazyhaar/unsuggest/dom"
)

// debounceConfig controls the batching behaviour.
type debounceConfig struct {
	// Window is the debounce time. Default: 250ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many records accumulate. Default: 1000.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// debouncer collects records and emits compressed batches when the window
// expires or the buffer fills.
type debouncer struct {
	cfg     debounceConfig
	records []dom.Record
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func(dom.Batch)
}

func newDebouncer(cfg debounceConfig, flushFn func(dom.Batch)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		records: make([]dom.Record, 0, cfg.MaxBuffer),
		flushFn: flushFn,
	}
}

// add pushes a record into the buffer. Returns true if an immediate flush
// was triggered (buffer full).
func (d *debouncer) add(rec dom.Record) bool {
	d.records = append(d.records, rec)

	if len(d.records) >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC returns the channel that fires when the debounce window expires.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.records) == 0 {
		return
	}

	d.flushFn(dom.Batch{Records: compress(d.records)})
	d.records = make([]dom.Record, 0, d.cfg.MaxBuffer)
}

// compress keeps the last of consecutive text records on the same node.
// Added records are never compressed.
func compress(records []dom.Record) []dom.Record {
	out := make([]dom.Record, 0, len(records))
	for _, rec := range records {
		if rec.Kind == dom.RecordText && len(out) > 0 {
			last := out[len(out)-1]
			if last.Kind == dom.RecordText && last.Node == rec.Node {
				out[len(out)-1] = rec
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}
