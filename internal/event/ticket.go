package event

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Releaser is anything that can cancel a registration.
type Releaser interface {
	Unsubscribe()
	Suppress()
}

// lifecycle is shared by a handler entry and its ticket. It moves from
// registered to unsubscribed exactly once.
type lifecycle struct {
	mu        sync.Mutex
	done      bool
	hooks     []func()
	callbacks []func()
}

func (l *lifecycle) isDone() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// finish runs removal hooks, then unsubscribed callbacks, at most once.
func (l *lifecycle) finish() {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	run := append(l.hooks, l.callbacks...)
	l.hooks, l.callbacks = nil, nil
	l.mu.Unlock()

	for _, fn := range run {
		fn()
	}
}

func (l *lifecycle) onFinish(fn func()) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		fn()
		return
	}
	l.callbacks = append(l.callbacks, fn)
	l.mu.Unlock()
}

// Ticket is the caller's handle on one registered callback.
// The handler never points back at the ticket, so a dropped ticket can be
// collected and, with leak detection on, reported.
type Ticket struct {
	id         uuid.UUID
	remove     func() bool
	state      *lifecycle
	suppressed atomic.Bool
}

// ID identifies the registration.
func (t *Ticket) ID() uuid.UUID {
	return t.id
}

// Unsubscribe removes the callback from its handler and fires unsubscribed
// callbacks. It is idempotent and safe to call from inside the callback.
func (t *Ticket) Unsubscribe() {
	t.remove()
	t.state.finish()
}

// Suppress silences the leak warning for a ticket that is intentionally dropped.
func (t *Ticket) Suppress() {
	t.suppressed.Store(true)
}

// Unsubscribed reports whether the ticket reached its terminal state, either
// through Unsubscribe or through the handler removing a once-callback.
func (t *Ticket) Unsubscribed() bool {
	return t.state.isDone()
}

// OnUnsubscribed registers fn to run once when the ticket is unsubscribed.
// If that already happened fn runs immediately.
func (t *Ticket) OnUnsubscribed(fn func()) {
	t.state.onFinish(fn)
}

// MultiTicket releases several registrations together.
type MultiTicket struct {
	tickets []Releaser
}

// NewMultiTicket groups tickets; nil entries are skipped.
func NewMultiTicket(tickets ...Releaser) *MultiTicket {
	m := &MultiTicket{}
	for _, t := range tickets {
		if t != nil {
			m.tickets = append(m.tickets, t)
		}
	}
	return m
}

// Tickets returns the grouped tickets.
func (m *MultiTicket) Tickets() []Releaser {
	return m.tickets
}

// Unsubscribe releases every ticket.
func (m *MultiTicket) Unsubscribe() {
	for _, t := range m.tickets {
		t.Unsubscribe()
	}
}

// Suppress silences leak warnings on every ticket.
func (m *MultiTicket) Suppress() {
	for _, t := range m.tickets {
		t.Suppress()
	}
}
