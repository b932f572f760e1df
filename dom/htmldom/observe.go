package htmldom

import (
	"sync"

	"github.com/hazyhaar/unsuggest/dom"
)

// Observe starts a new observation. Each observation receives every batch
// emitted after it was created, in order, with no upper bound on the queue:
// mutating the document never blocks on a slow consumer.
func (d *Document) Observe() (dom.Observation, error) {
	o := &observation{
		doc:  d,
		out:  make(chan dom.Batch),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.mu.Lock()
	d.obs[o] = struct{}{}
	d.mu.Unlock()

	go o.pump()
	return o, nil
}

// Observers returns the number of active observations.
func (d *Document) Observers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.obs)
}

func (d *Document) emit(b dom.Batch) {
	d.mu.Lock()
	targets := make([]*observation, 0, len(d.obs))
	for o := range d.obs {
		targets = append(targets, o)
	}
	d.mu.Unlock()

	for _, o := range targets {
		o.push(b)
	}
}

type observation struct {
	doc  *Document
	out  chan dom.Batch
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	queue []dom.Batch
}

func (o *observation) Batches() <-chan dom.Batch { return o.out }

func (o *observation) Disconnect() {
	o.once.Do(func() {
		o.doc.mu.Lock()
		delete(o.doc.obs, o)
		o.doc.mu.Unlock()
		close(o.done)
	})
}

func (o *observation) push(b dom.Batch) {
	o.mu.Lock()
	o.queue = append(o.queue, b)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// pump moves queued batches to the unbuffered out channel until Disconnect.
func (o *observation) pump() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			select {
			case <-o.wake:
				continue
			case <-o.done:
				return
			}
		}
		b := o.queue[0]
		o.queue[0] = dom.Batch{}
		o.queue = o.queue[1:]
		o.mu.Unlock()

		select {
		case o.out <- b:
		case <-o.done:
			return
		}
	}
}
