// Package quote keeps the latest trade tick per instrument.
package quote

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wonny/aegis/kisrt/internal/event"
	"github.com/wonny/aegis/kisrt/internal/realtime"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// Key identifies an instrument.
type Key struct {
	Market string `json:"market"`
	Symbol string `json:"symbol"`
}

func (k Key) String() string {
	return k.Market + ":" + k.Symbol
}

// Quote is the latest tick of one instrument.
type Quote struct {
	Key
	Tick      *realtime.StockPrice `json:"-"`
	UpdatedAt time.Time            `json:"updated_at"`
	Stale     bool                 `json:"stale"`
}

// Cache is an in-memory cache for realtime prices
// ⭐ SSOT: 실시간 시세 캐싱은 이 구조체에서만
type Cache struct {
	mu     sync.RWMutex
	quotes map[Key]*realtime.StockPrice
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewCache creates a quote cache; quotes older than ttl are reported stale.
func NewCache(ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{
		quotes: make(map[Key]*realtime.StockPrice),
		ttl:    ttl,
		logger: log.Component("quote"),
		now:    time.Now,
	}
}

func keyOf(p realtime.Product) Key {
	return Key{Market: strings.ToUpper(p.Market()), Symbol: p.Symbol()}
}

// older reports whether tick was produced before existing.
func older(tick, existing *realtime.StockPrice) bool {
	if tick.ReceivedAt.Before(existing.ReceivedAt) {
		return true
	}
	// 같은 프레임의 여러 레코드는 체결 시각으로 판단
	return tick.ReceivedAt.Equal(existing.ReceivedAt) && tick.Time.Seconds() < existing.Time.Seconds()
}

// Update stores tick unless a newer tick of the same instrument is cached.
func (c *Cache) Update(tick *realtime.StockPrice) bool {
	if tick == nil {
		return false
	}
	key := keyOf(tick)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.quotes[key]; ok && older(tick, existing) {
		c.logger.WithFields(map[string]interface{}{
			"quote":    key.String(),
			"new_time": tick.Time.String(),
			"old_time": existing.Time.String(),
		}).Debug("Rejected older price data")
		return false
	}

	c.quotes[key] = tick
	return true
}

func (c *Cache) quote(key Key, tick *realtime.StockPrice, now time.Time) Quote {
	return Quote{
		Key:       key,
		Tick:      tick,
		UpdatedAt: tick.ReceivedAt,
		Stale:     now.Sub(tick.ReceivedAt) > c.ttl,
	}
}

// Get returns the latest quote of symbol on market.
func (c *Cache) Get(market, symbol string) (Quote, bool) {
	key := Key{Market: strings.ToUpper(market), Symbol: symbol}

	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, ok := c.quotes[key]
	if !ok {
		return Quote{}, false
	}
	return c.quote(key, tick, c.now()), true
}

// All returns every cached quote ordered by market and symbol.
func (c *Cache) All() []Quote {
	c.mu.RLock()
	now := c.now()
	out := make([]Quote, 0, len(c.quotes))
	for key, tick := range c.quotes {
		out = append(out, c.quote(key, tick, now))
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b Quote) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Delete removes one instrument.
func (c *Cache) Delete(market, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.quotes, Key{Market: strings.ToUpper(market), Symbol: symbol})
}

// Len returns the number of cached instruments.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.quotes)
}

// CleanStale removes stale quotes and returns how many were removed.
func (c *Cache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, tick := range c.quotes {
		if now.Sub(tick.ReceivedAt) > c.ttl {
			delete(c.quotes, key)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale quotes")
	}
	return count
}

// Stats summarizes the cache.
type Stats struct {
	TotalCount int `json:"total_count"`
	FreshCount int `json:"fresh_count"`
	StaleCount int `json:"stale_count"`
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	stats := Stats{TotalCount: len(c.quotes)}
	for _, tick := range c.quotes {
		if now.Sub(tick.ReceivedAt) > c.ttl {
			stats.StaleCount++
		}
	}
	stats.FreshCount = stats.TotalCount - stats.StaleCount
	return stats
}

// Source is where Attach listens for ticks; *realtime.Client implements it.
type Source interface {
	Event() *event.Handler[realtime.SubscriptionEventArgs]
}

// Attach feeds every trade tick the client dispatches into the cache. It does
// not subscribe anything by itself.
func (c *Cache) Attach(src Source) *event.Ticket {
	ticks := event.FilterFunc[realtime.SubscriptionEventArgs](func(_ any, args realtime.SubscriptionEventArgs) bool {
		_, ok := args.Response.(*realtime.StockPrice)
		return !ok
	})
	return src.Event().Add(func(_ any, args realtime.SubscriptionEventArgs) {
		c.Update(args.Response.(*realtime.StockPrice))
	}, ticks, false)
}
