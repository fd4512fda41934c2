// Package event implements multicast event handlers with filters, one-shot
// callbacks and disposable tickets.
package event

import (
	"runtime"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// Callback receives the sender and the event args.
type Callback[A any] func(sender any, args A)

type entry[A any] struct {
	id     uuid.UUID
	cb     Callback[A]
	filter Filter[A]
	once   bool
	state  *lifecycle
}

// Option configures a Handler.
type Option func(*options)

type options struct {
	leakDetection bool
}

// WithLeakDetection reports tickets that are garbage collected while still
// registered, then unsubscribes them. Meant for debugging only; correct code
// calls Unsubscribe explicitly.
func WithLeakDetection(enabled bool) Option {
	return func(o *options) {
		o.leakDetection = enabled
	}
}

// Handler dispatches events of type A to registered callbacks.
type Handler[A any] struct {
	mu      sync.Mutex
	entries []*entry[A]
	logger  *logger.Logger
	opts    options
}

// NewHandler creates an empty handler.
func NewHandler[A any](log *logger.Logger, opts ...Option) *Handler[A] {
	h := &Handler[A]{logger: log}
	for _, opt := range opts {
		opt(&h.opts)
	}
	return h
}

// On registers cb for every event.
func (h *Handler[A]) On(cb Callback[A]) *Ticket {
	return h.Add(cb, nil, false)
}

// Add registers cb. A non-nil filter may suppress events; once removes the
// callback before its first call. onRemove hooks run exactly once when the
// callback leaves the handler by any path.
func (h *Handler[A]) Add(cb Callback[A], filter Filter[A], once bool, onRemove ...func()) *Ticket {
	e := &entry[A]{
		id:     uuid.New(),
		cb:     cb,
		filter: filter,
		once:   once,
		state:  &lifecycle{hooks: slices.Clone(onRemove)},
	}

	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()

	t := &Ticket{
		id:     e.id,
		remove: func() bool { return h.remove(e) },
		state:  e.state,
	}

	if h.opts.leakDetection {
		log := h.logger
		runtime.SetFinalizer(t, func(t *Ticket) {
			if t.state.isDone() {
				return
			}
			if !t.suppressed.Load() {
				log.WithField("ticket", t.id.String()).Warn("Event ticket collected without Unsubscribe; releasing it now")
			}
			t.Unsubscribe()
		})
	}

	return t
}

// remove drops e and finishes its lifecycle. Only the call that actually
// removes the entry returns true.
func (h *Handler[A]) remove(e *entry[A]) bool {
	h.mu.Lock()
	idx := slices.Index(h.entries, e)
	if idx < 0 {
		h.mu.Unlock()
		return false
	}
	h.entries = slices.Delete(h.entries, idx, idx+1)
	h.mu.Unlock()

	e.state.finish()
	return true
}

// Invoke dispatches args to every matching callback and returns how many were
// called. It iterates over a snapshot, so callbacks may register or
// unsubscribe while it runs. A panicking callback is logged and skipped.
func (h *Handler[A]) Invoke(sender any, args A) int {
	h.mu.Lock()
	snapshot := slices.Clone(h.entries)
	h.mu.Unlock()

	called := 0
	for _, e := range snapshot {
		if e.state.isDone() {
			continue
		}

		var pc panics.Catcher
		suppressed := false
		if e.filter != nil {
			pc.Try(func() { suppressed = e.filter.Suppress(sender, args) })
			if r := pc.Recovered(); r != nil {
				h.logger.WithField("callback", e.id.String()).WithError(r.AsError()).Error("Event filter panicked")
				continue
			}
		}
		if suppressed {
			continue
		}

		if e.once && !h.remove(e) {
			continue
		}

		called++
		pc.Try(func() { e.cb(sender, args) })
		if r := pc.Recovered(); r != nil {
			h.logger.WithField("callback", e.id.String()).WithError(r.AsError()).Error("Event callback panicked")
		}
	}
	return called
}

// Len returns the number of registered callbacks.
func (h *Handler[A]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Clear removes every callback, finishing each ticket.
func (h *Handler[A]) Clear() {
	h.mu.Lock()
	entries := h.entries
	h.entries = nil
	h.mu.Unlock()

	for _, e := range entries {
		e.state.finish()
	}
}
