package event

// Filter decides whether an event is withheld from a callback.
// Suppress returns true to withhold the event and false to let it through.
type Filter[A any] interface {
	Suppress(sender any, args A) bool
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc[A any] func(sender any, args A) bool

// Suppress calls f.
func (f FilterFunc[A]) Suppress(sender any, args A) bool {
	return f(sender, args)
}

// Gate selects how a MultiFilter combines its children.
type Gate int

const (
	// GateOr passes an event when at least one child passes it.
	GateOr Gate = iota
	// GateAnd passes an event only when every child passes it.
	GateAnd
)

func (g Gate) String() string {
	if g == GateAnd {
		return "and"
	}
	return "or"
}

// MultiFilter combines filters with an AND or OR gate. An empty MultiFilter
// passes everything.
type MultiFilter[A any] struct {
	gate    Gate
	filters []Filter[A]
}

// NewMultiFilter builds a combinator, skipping nil children.
func NewMultiFilter[A any](gate Gate, filters ...Filter[A]) *MultiFilter[A] {
	m := &MultiFilter[A]{gate: gate}
	for _, f := range filters {
		if f != nil {
			m.filters = append(m.filters, f)
		}
	}
	return m
}

// And is shorthand for NewMultiFilter(GateAnd, filters...).
func And[A any](filters ...Filter[A]) *MultiFilter[A] {
	return NewMultiFilter(GateAnd, filters...)
}

// Or is shorthand for NewMultiFilter(GateOr, filters...).
func Or[A any](filters ...Filter[A]) *MultiFilter[A] {
	return NewMultiFilter(GateOr, filters...)
}

// Gate reports the combinator's gate.
func (m *MultiFilter[A]) Gate() Gate {
	return m.gate
}

// Len reports the number of children.
func (m *MultiFilter[A]) Len() int {
	return len(m.filters)
}

// Suppress implements Filter.
func (m *MultiFilter[A]) Suppress(sender any, args A) bool {
	if len(m.filters) == 0 {
		return false
	}

	if m.gate == GateAnd {
		for _, f := range m.filters {
			if f.Suppress(sender, args) {
				return true
			}
		}
		return false
	}

	for _, f := range m.filters {
		if !f.Suppress(sender, args) {
			return false
		}
	}
	return true
}
