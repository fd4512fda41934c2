package realtime

import "github.com/wonny/aegis/kisrt/internal/event"

// SubscriptionEventArgs carries one decoded record to Event() callbacks.
type SubscriptionEventArgs struct {
	TR       TR
	Response Response
}

// SubscriptionStateArgs is passed to Subscribed() and Unsubscribed() callbacks.
type SubscriptionStateArgs struct {
	TR TR
}

// SubscriptionFilter passes events of one TR id, and of one key when set.
type SubscriptionFilter struct {
	ID  string
	Key string
}

// NewSubscriptionFilter creates a SubscriptionFilter; an empty key matches any key.
func NewSubscriptionFilter(id, key string) *SubscriptionFilter {
	return &SubscriptionFilter{ID: id, Key: key}
}

// Suppress implements event.Filter.
func (f *SubscriptionFilter) Suppress(_ any, args SubscriptionEventArgs) bool {
	if args.TR.ID != f.ID {
		return true
	}
	return f.Key != "" && args.TR.Key != f.Key
}

// ProductFilter passes events whose response belongs to one instrument.
type ProductFilter struct {
	Symbol string
	Market string
}

// NewProductFilter creates a ProductFilter.
func NewProductFilter(symbol, market string) *ProductFilter {
	return &ProductFilter{Symbol: symbol, Market: market}
}

// Suppress implements event.Filter.
func (f *ProductFilter) Suppress(_ any, args SubscriptionEventArgs) bool {
	p, ok := args.Response.(Product)
	if !ok {
		return true
	}
	return p.Symbol() != f.Symbol || p.Market() != f.Market
}

// Ordered is implemented by responses that refer to an order.
type Ordered interface {
	OrderNumber() OrderNumber
}

// OrderNumberFilter passes execution events for one order. The target is
// resolved on every event, so it may be bound before the order number exists.
type OrderNumberFilter struct {
	target func() (OrderNumber, bool)
}

// NewOrderNumberFilter filters on a known order number.
func NewOrderNumberFilter(on OrderNumber) *OrderNumberFilter {
	return &OrderNumberFilter{target: func() (OrderNumber, bool) { return on, true }}
}

// NewLazyOrderNumberFilter filters on an order number supplied later. Events
// are suppressed while target reports false.
func NewLazyOrderNumberFilter(target func() (OrderNumber, bool)) *OrderNumberFilter {
	return &OrderNumberFilter{target: target}
}

// Suppress implements event.Filter.
func (f *OrderNumberFilter) Suppress(_ any, args SubscriptionEventArgs) bool {
	o, ok := args.Response.(Ordered)
	if !ok {
		return true
	}
	want, ok := f.target()
	if !ok {
		return true
	}
	return !want.Equal(o.OrderNumber())
}

var (
	_ event.Filter[SubscriptionEventArgs] = (*SubscriptionFilter)(nil)
	_ event.Filter[SubscriptionEventArgs] = (*ProductFilter)(nil)
	_ event.Filter[SubscriptionEventArgs] = (*OrderNumberFilter)(nil)
)
