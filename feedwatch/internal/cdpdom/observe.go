package cdpdom

import (
	"sync"

	"github.com/hazyhaar/unsuggest/dom"
)

// Observe starts a new observation receiving every batch flushed after it
// was created. Queues are unbounded so event handling never waits on a slow
// consumer.
func (d *Document) Observe() (dom.Observation, error) {
	select {
	case <-d.done:
		return nil, ErrClosed
	default:
	}

	o := &observation{
		doc:  d,
		out:  make(chan dom.Batch),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	d.obsMu.Lock()
	d.obs[o] = struct{}{}
	d.obsMu.Unlock()

	go o.pump()
	return o, nil
}

// Observers returns the number of active observations.
func (d *Document) Observers() int {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	return len(d.obs)
}

func (d *Document) emit(b dom.Batch) {
	d.obsMu.Lock()
	targets := make([]*observation, 0, len(d.obs))
	for o := range d.obs {
		targets = append(targets, o)
	}
	d.obsMu.Unlock()

	for _, o := range targets {
		o.push(b)
	}
}

// closeObservations ends every observation; consumers see a closed channel.
func (d *Document) closeObservations() {
	d.obsMu.Lock()
	targets := make([]*observation, 0, len(d.obs))
	for o := range d.obs {
		targets = append(targets, o)
	}
	d.obsMu.Unlock()

	for _, o := range targets {
		o.close()
	}
}

type observation struct {
	doc  *Document
	out  chan dom.Batch
	wake chan struct{}
	done chan struct{}
	once sync.Once

	// closeOut is set when the document shuts down, so pump closes out.
	closeOut bool

	mu    sync.Mutex
	queue []dom.Batch
}

func (o *observation) Batches() <-chan dom.Batch { return o.out }

func (o *observation) Disconnect() {
	o.stop(false)
}

func (o *observation) close() {
	o.stop(true)
}

func (o *observation) stop(closeOut bool) {
	o.once.Do(func() {
		o.doc.obsMu.Lock()
		delete(o.doc.obs, o)
		o.doc.obsMu.Unlock()
		o.mu.Lock()
		o.closeOut = closeOut
		o.mu.Unlock()
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

// pump moves queued batches to the unbuffered out channel until stopped.
func (o *observation) pump() {
	defer func() {
		o.mu.Lock()
		closeOut := o.closeOut
		o.mu.Unlock()
		if closeOut {
			close(o.out)
		}
	}()

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
