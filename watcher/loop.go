package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-devlink/metrics"
)

// ErrRunning is returned by Start on a watcher that is already running.
var ErrRunning = errors.New("watcher already running")

// loop is the goroutine lifecycle shared by every watcher.
type loop struct {
	name   string
	config Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	paused atomic.Bool

	// step is held for the duration of one poll so Pause can wait for it.
	step sync.Mutex
}

func (l *loop) start(ctx context.Context, run func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		run(ctx)
	}()
	return nil
}

// Stop cancels the watcher and waits for its goroutine to exit. A poll in
// flight is allowed to finish.
func (l *loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	l.state(metrics.StateStopped)
}

// Running reports whether the watcher goroutine is active.
func (l *loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done != nil
}

// Pause suspends polling. It returns once any poll in flight has finished;
// no new poll starts until Resume.
func (l *loop) Pause() {
	l.paused.Store(true)
	l.step.Lock()
	// wait for the poll in flight
	l.step.Unlock()
	l.state(metrics.StatePaused)
}

// Resume re-enables polling after Pause.
func (l *loop) Resume() {
	l.paused.Store(false)
}

// Paused reports whether the watcher is suspended.
func (l *loop) Paused() bool {
	return l.paused.Load()
}

// poll runs f unless the watcher is paused. It reports whether f ran.
func (l *loop) poll(f func()) bool {
	l.step.Lock()
	defer l.step.Unlock()

	if l.paused.Load() {
		return false
	}
	f()
	return true
}

// sleep waits d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *loop) state(s string) {
	l.config.Metrics.WatcherState(l.name, s)
}
