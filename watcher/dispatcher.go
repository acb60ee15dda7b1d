package watcher

import (
	"fmt"
	"sync"

	"github.com/loopholelabs/logging/types"
)

// Dispatcher runs callbacks one at a time, in submission order, on a single
// goroutine. The queue is unbounded so a slow consumer never stalls a
// watcher.
type Dispatcher struct {
	log types.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher. log receives recovered callback panics
// (optional).
func NewDispatcher(log types.Logger) *Dispatcher {
	d := &Dispatcher{
		log:  log,
		done: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Post queues f. It returns false once the dispatcher is closed.
func (d *Dispatcher) Post(f func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.queue = append(d.queue, f)
	d.cond.Signal()
	return true
}

// Close stops accepting callbacks, runs the ones already queued and waits
// for the dispatcher goroutine to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Signal()
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		f := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.call(f)
	}
}

func (d *Dispatcher) call(f func()) {
	defer func() {
		if r := recover(); r != nil && d.log != nil {
			d.log.Error().
				Str("panic", fmt.Sprint(r)).
				Msg("callback panicked")
		}
	}()
	f()
}

// deliver posts f to d, or calls it directly when d is nil.
func deliver(d *Dispatcher, f func()) {
	if d == nil {
		f()
		return
	}
	d.Post(f)
}
