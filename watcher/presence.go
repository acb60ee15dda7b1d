package watcher

import (
	"context"
	"sync"

	"github.com/moffa90/go-devlink/metrics"
)

// Presence is the two-state machine behind the connection and bootloader
// watchers.
//
// While Listening it calls find every interval until a target is returned
// and delivers exactly one onChange(target). While Monitoring it calls alive
// every interval until it reports false, releases the target and delivers
// exactly one onChange(zero). It then listens again.
//
// The target survives Stop: a restarted watcher resumes monitoring the
// target it already reported instead of finding it a second time.
type Presence[T comparable] struct {
	loop

	find     func(ctx context.Context) (T, error)
	alive    func(ctx context.Context, target T) bool
	release  func(T)
	onChange func(T)

	mu      sync.Mutex
	current T
}

// NewPresence builds a presence watcher. release may be nil.
func NewPresence[T comparable](
	name string,
	find func(ctx context.Context) (T, error),
	alive func(ctx context.Context, target T) bool,
	release func(T),
	onChange func(T),
	opts ...Option,
) *Presence[T] {
	if find == nil || alive == nil {
		panic("find and alive cannot be nil")
	}
	if release == nil {
		release = func(T) {}
	}
	if onChange == nil {
		onChange = func(T) {}
	}

	return &Presence[T]{
		loop:     loop{name: name, config: newConfig(opts)},
		find:     find,
		alive:    alive,
		release:  release,
		onChange: onChange,
	}
}

// Start launches the watcher goroutine.
func (p *Presence[T]) Start(ctx context.Context) error {
	return p.start(ctx, p.run)
}

// Current returns the target last reported as present, or the zero value.
func (p *Presence[T]) Current() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Presence[T]) setCurrent(v T) {
	p.mu.Lock()
	p.current = v
	p.mu.Unlock()
}

func (p *Presence[T]) run(ctx context.Context) {
	var zero T

	for ctx.Err() == nil {
		cur := p.Current()
		if cur == zero {
			p.state(metrics.StateListening)
			if !p.listen(ctx) {
				return
			}
			continue
		}

		p.state(metrics.StateMonitoring)
		if !p.monitor(ctx, cur) {
			return
		}
	}
}

// listen returns true once a target has been found and reported.
func (p *Presence[T]) listen(ctx context.Context) bool {
	var zero T

	for {
		var found T
		var err error
		p.poll(func() {
			found, err = p.find(ctx)
		})

		if err == nil && found != zero {
			// Found after Stop was requested: give it back unreported.
			if ctx.Err() != nil {
				p.release(found)
				return false
			}

			p.setCurrent(found)
			if p.config.Logger != nil {
				p.config.Logger.Info().Str("watcher", p.name).Msg("connected")
			}
			deliver(p.config.Dispatcher, func() { p.onChange(found) })
			return true
		}

		if err != nil && ctx.Err() == nil && p.config.Logger != nil {
			p.config.Logger.Trace().Str("watcher", p.name).Err(err).Msg("not found")
		}

		if !sleep(ctx, p.config.Interval) {
			return false
		}
	}
}

// monitor returns true once cur has gone away and the loss was reported.
func (p *Presence[T]) monitor(ctx context.Context, cur T) bool {
	var zero T

	for {
		up := true
		p.poll(func() {
			up = p.alive(ctx, cur)
		})

		if !up {
			// Lost after Stop was requested: keep it so the next Start
			// reports the loss.
			if ctx.Err() != nil {
				return false
			}

			p.release(cur)
			p.setCurrent(zero)
			if p.config.Logger != nil {
				p.config.Logger.Info().Str("watcher", p.name).Msg("disconnected")
			}
			deliver(p.config.Dispatcher, func() { p.onChange(zero) })
			return true
		}

		if !sleep(ctx, p.config.Interval) {
			return false
		}
	}
}
