// Package shutdown broadcasts a one-time shutdown notice to any number of
// long-lived handlers.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// Broadcaster delivers a single shutdown notice to every registered Waiter.
// A Waiter registered after Fire observes the notice immediately.
//
// The zero value is not usable; use New.
type Broadcaster struct {
	mu      sync.Mutex
	done    chan struct{}
	fired   bool
	waiters map[*Waiter]struct{}
	// idle is closed while there are no waiters.
	idle chan struct{}
}

// New returns a Broadcaster that has not fired.
func New() *Broadcaster {
	idle := make(chan struct{})
	close(idle)
	return &Broadcaster{
		done:    make(chan struct{}),
		waiters: make(map[*Waiter]struct{}),
		idle:    idle,
	}
}

// Fire delivers the shutdown notice. Only the first call has an effect; it
// reports whether this call was the one that fired.
func (b *Broadcaster) Fire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fired {
		return false
	}
	b.fired = true
	close(b.done)
	return true
}

// Fired reports whether Fire has been called.
func (b *Broadcaster) Fired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired
}

// Done is closed when the broadcaster fires.
func (b *Broadcaster) Done() <-chan struct{} { return b.done }

// Register adds a waiter. The caller must call Release once it no longer
// needs the notice.
func (b *Broadcaster) Register() *Waiter {
	w := &Waiter{b: b}
	b.mu.Lock()
	if len(b.waiters) == 0 {
		b.idle = make(chan struct{})
	}
	b.waiters[w] = struct{}{}
	b.mu.Unlock()
	return w
}

// Waiters returns the number of registered waiters that have not been
// released.
func (b *Broadcaster) Waiters() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// Wait blocks until every waiter has been released or ctx is done. Waiters
// registered while Wait blocks are waited for too.
func (b *Broadcaster) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		idle, n := b.idle, len(b.waiters)
		b.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

// Notify fires b when one of signals arrives. Listening stops without firing
// when ctx is done or the returned stop func is called.
func (b *Broadcaster) Notify(ctx context.Context, signals ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			b.Fire()
		case <-ctx.Done():
		}
	}()
	return cancel
}

// Waiter is one registration with a Broadcaster.
type Waiter struct {
	b    *Broadcaster
	once sync.Once
}

// Done is closed when the broadcaster fires. It stays valid after Release.
func (w *Waiter) Done() <-chan struct{} { return w.b.done }

// Release removes the registration. It is safe to call more than once.
func (w *Waiter) Release() {
	w.once.Do(func() {
		w.b.mu.Lock()
		defer w.b.mu.Unlock()
		if _, ok := w.b.waiters[w]; !ok {
			return
		}
		delete(w.b.waiters, w)
		if len(w.b.waiters) == 0 {
			close(w.b.idle)
		}
	})
}
