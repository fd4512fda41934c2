// Package scope exposes realtime feeds through the objects they belong to:
// a stock, an account, an order.
package scope

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wonny/aegis/kisrt/internal/event"
	"github.com/wonny/aegis/kisrt/internal/realtime"
)

// Event names
const (
	EventPrice     = "price"
	EventOrderbook = "orderbook"
	EventExecution = "execution"
)

// ErrUnknownEvent is returned for an event name the scope does not publish.
var ErrUnknownEvent = errors.New("unknown realtime event")

// Callback receives realtime events.
type Callback = event.Callback[realtime.SubscriptionEventArgs]

// Subscriber is the part of realtime.Client the scopes need.
type Subscriber interface {
	On(id, key string, cb Callback, opts ...realtime.OnOption) (*event.Ticket, error)
	Virtual() bool
}

// RealtimeSubscribable is implemented by every scope that publishes named
// realtime events.
type RealtimeSubscribable interface {
	On(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error)
	Once(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error)
}

var (
	_ RealtimeSubscribable = (*Stock)(nil)
	_ RealtimeSubscribable = (*Account)(nil)
	_ RealtimeSubscribable = (*Order)(nil)
)

// Stock is a domestic or overseas listed stock.
type Stock struct {
	client Subscriber
	symbol string
	market string
}

// NewStock creates a stock scope. Use realtime.MarketKRX for domestic stocks
// and the KIS exchange code (NASD, NYSE, ...) otherwise.
func NewStock(client Subscriber, symbol, market string) *Stock {
	return &Stock{client: client, symbol: symbol, market: strings.ToUpper(market)}
}

// Symbol returns the stock code.
func (s *Stock) Symbol() string { return s.symbol }

// Market returns the market code.
func (s *Stock) Market() string { return s.market }

// Domestic reports whether the stock trades on KRX.
func (s *Stock) Domestic() bool { return s.market == realtime.MarketKRX }

// TR resolves an event name to the feed that carries it.
func (s *Stock) TR(name string) (realtime.TR, error) {
	var id string
	switch {
	case name == EventPrice && s.Domestic():
		id = realtime.TRStockPrice
	case name == EventPrice:
		id = realtime.TROverseasPrice
	case name == EventOrderbook && s.Domestic():
		id = realtime.TRStockOrderbook
	case name == EventOrderbook:
		id = realtime.TROverseasOrderbook
	default:
		return realtime.TR{}, fmt.Errorf("%w: stock %q", ErrUnknownEvent, name)
	}

	if s.Domestic() {
		return realtime.TR{ID: id, Key: s.symbol}, nil
	}
	key, err := realtime.OverseasKey(s.market, s.symbol)
	if err != nil {
		return realtime.TR{}, err
	}
	return realtime.TR{ID: id, Key: key}, nil
}

// On registers cb for "price" or "orderbook" events of this stock.
func (s *Stock) On(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error) {
	tr, err := s.TR(name)
	if err != nil {
		return nil, err
	}

	opts = append(opts, realtime.WithFilter(realtime.NewProductFilter(s.symbol, s.market)))
	ticket, err := s.client.On(tr.ID, tr.Key, cb, opts...)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Once is On for a single event.
func (s *Stock) Once(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error) {
	return s.On(name, cb, append(opts, realtime.Once())...)
}

// Account is a brokerage account identified by its owner's HTS id.
type Account struct {
	client Subscriber
	htsID  string
	number string
}

// NewAccount creates an account scope. number is "12345678-01" or "1234567801".
func NewAccount(client Subscriber, htsID, number string) *Account {
	return &Account{client: client, htsID: htsID, number: number}
}

// Number returns the account number.
func (a *Account) Number() string { return a.number }

// HtsID returns the execution-notice subscription key.
func (a *Account) HtsID() string { return a.htsID }

func (a *Account) filter() event.Filter[realtime.SubscriptionEventArgs] {
	want := strings.ReplaceAll(a.number, "-", "")
	return event.FilterFunc[realtime.SubscriptionEventArgs](func(_ any, args realtime.SubscriptionEventArgs) bool {
		n, ok := args.Response.(*realtime.ExecutionNotice)
		if !ok {
			return true
		}
		return want != "" && strings.ReplaceAll(n.Account, "-", "") != want
	})
}

// On registers cb for "execution" notices of this account, domestic and
// overseas. Execution feeds are served by the real-domain server even for
// virtual accounts.
func (a *Account) On(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error) {
	if name != EventExecution {
		return nil, fmt.Errorf("%w: account %q", ErrUnknownEvent, name)
	}

	domestic, overseas := realtime.ExecutionTRs(a.client.Virtual())
	opts = append(opts, realtime.Primary(), realtime.WithFilter(a.filter()))

	first, err := a.client.On(domestic, a.htsID, cb, opts...)
	if err != nil {
		return nil, err
	}
	second, err := a.client.On(overseas, a.htsID, cb, opts...)
	if err != nil {
		first.Unsubscribe()
		return nil, err
	}
	return event.NewMultiTicket(first, second), nil
}

// Once delivers the first execution notice from either feed, then releases both.
func (a *Account) Once(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error) {
	var (
		mu      sync.Mutex
		fired   bool
		release event.Releaser
	)

	wrapped := func(sender any, args realtime.SubscriptionEventArgs) {
		mu.Lock()
		if fired {
			mu.Unlock()
			return
		}
		fired = true
		r := release
		mu.Unlock()

		cb(sender, args)
		if r != nil {
			r.Unsubscribe()
		}
	}

	r, err := a.On(name, wrapped, opts...)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	release = r
	done := fired
	mu.Unlock()

	if done {
		r.Unsubscribe()
	}
	return r, nil
}

// Order is one order of an account. Its number may be unknown when the scope
// is created, e.g. while the order request is in flight.
type Order struct {
	account *Account

	mu     sync.RWMutex
	number realtime.OrderNumber
	known  bool
}

// NewOrder creates a scope for a placed order.
func NewOrder(account *Account, number realtime.OrderNumber) *Order {
	return &Order{account: account, number: number, known: true}
}

// NewPendingOrder creates a scope whose order number is bound later with Bind.
func NewPendingOrder(account *Account) *Order {
	return &Order{account: account}
}

// Bind sets the order number once the broker assigns it.
func (o *Order) Bind(number realtime.OrderNumber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.number = number
	o.known = true
}

// Number returns the order number and whether it is known yet.
func (o *Order) Number() (realtime.OrderNumber, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.number, o.known
}

// On registers cb for "execution" notices of this order.
func (o *Order) On(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error) {
	if name != EventExecution {
		return nil, fmt.Errorf("%w: order %q", ErrUnknownEvent, name)
	}
	opts = append(opts, realtime.WithFilter(realtime.NewLazyOrderNumberFilter(o.Number)))
	return o.account.On(name, cb, opts...)
}

// Once delivers the first execution notice of this order.
func (o *Order) Once(name string, cb Callback, opts ...realtime.OnOption) (event.Releaser, error) {
	if name != EventExecution {
		return nil, fmt.Errorf("%w: order %q", ErrUnknownEvent, name)
	}
	opts = append(opts, realtime.WithFilter(realtime.NewLazyOrderNumberFilter(o.Number)))
	return o.account.Once(name, cb, opts...)
}
