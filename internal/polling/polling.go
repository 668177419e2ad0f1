// Package polling runs a query on a fixed interval and reports changes.
package polling

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type options struct {
	logger  *slog.Logger
	onError func(error)
	name    string
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOnError registers a hook called with every failed query.
func WithOnError(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Handle controls a running loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	poke   chan struct{}
	once   sync.Once
}

// Start runs query immediately and then every interval until ctx is done or
// Stop is called. onChange runs on the loop goroutine, once for the first
// successful result and once for every result that changed reports as
// different from the previous successful one. A query never starts while
// another one is in flight. Failed queries are logged and the loop goes on.
func Start[T any](ctx context.Context, query func(context.Context) (T, error), interval time.Duration, changed func(prev, next T) bool, onChange func(T), opts ...Option) *Handle {
	o := options{logger: slog.Default(), name: "poll"}
	for _, fn := range opts {
		fn(&o)
	}
	if interval <= 0 {
		interval = time.Second
	}
	if changed == nil {
		changed = Always[T]
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{}), poke: make(chan struct{}, 1)}
	go func() {
		defer close(h.done)
		var (
			prev T
			seen bool
		)
		tick := func() {
			next, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				o.logger.Warn("poll failed", "action", o.name, "error", err)
				if o.onError != nil {
					o.onError(err)
				}
				return
			}
			fire := !seen || changed(prev, next)
			prev, seen = next, true
			if fire {
				onChange(next)
			}
		}
		tick()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick()
			case <-h.poke:
				tick()
				t.Reset(interval)
			}
		}
	}()
	return h
}

// Poke asks for an extra tick as soon as the current one, if any, is done.
// Pokes made while one is already pending are merged.
func (h *Handle) Poke() {
	select {
	case h.poke <- struct{}{}:
	default:
	}
}

// Cancel stops the loop without waiting. It is safe to call from onChange.
func (h *Handle) Cancel() {
	h.once.Do(h.cancel)
}

// Stop cancels the loop, including an in-flight query, and waits for it to
// exit. It may be called any number of times from any goroutine other than
// the loop's own callbacks.
func (h *Handle) Stop() {
	h.Cancel()
	<-h.done
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Always treats every result as a change.
func Always[T any](_, _ T) bool { return true }

func Equal[T comparable](prev, next T) bool { return prev != next }

// ByKey compares results through a fingerprint.
func ByKey[T any, K comparable](key func(T) K) func(prev, next T) bool {
	return func(prev, next T) bool { return key(prev) != key(next) }
}
