package scope

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/kisrt/internal/realtime"
	"github.com/wonny/aegis/kisrt/pkg/config"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

type offline struct{}

func (offline) ApprovalKey(context.Context, bool) (string, error) {
	return "", errors.New("offline")
}

// newOfflineClient never reaches a server; tests raise events on its handler.
func newOfflineClient(t *testing.T, virtual bool) *realtime.Client {
	cfg := config.DefaultRealtime()
	cfg.URL = "ws://127.0.0.1:1"
	cfg.VirtualURL = "ws://127.0.0.1:1"
	cfg.Reconnect = false
	cfg.HandshakeTimeout = 100 * time.Millisecond

	c := realtime.NewClient(cfg, virtual, offline{}, logger.Nop())
	t.Cleanup(c.Disconnect)
	return c
}

type recorder struct {
	mu   sync.Mutex
	args []realtime.SubscriptionEventArgs
}

func (r *recorder) callback(_ any, args realtime.SubscriptionEventArgs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, args)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.args)
}

func raise(c *realtime.Client, id, key string, resp realtime.Response) {
	c.Event().Invoke(c, realtime.SubscriptionEventArgs{
		TR:       realtime.TR{ID: id, Key: key},
		Response: resp,
	})
}

func notice(account, orderNo string, tr string) *realtime.ExecutionNotice {
	return &realtime.ExecutionNotice{
		Meta:       realtime.Meta{TRID: tr, Key: "hts01"},
		Instrument: realtime.Instrument{Code: "005930", Exchange: realtime.MarketKRX},
		Account:    account,
		OrderNo:    orderNo,
		Branch:     "01790",
	}
}

func TestStockTR(t *testing.T) {
	c := newOfflineClient(t, false)

	tests := []struct {
		name  string
		stock *Stock
		event string
		want  realtime.TR
		errIs error
	}{
		{"domestic price", NewStock(c, "005930", "KRX"), EventPrice, realtime.TR{ID: realtime.TRStockPrice, Key: "005930"}, nil},
		{"domestic orderbook", NewStock(c, "005930", "krx"), EventOrderbook, realtime.TR{ID: realtime.TRStockOrderbook, Key: "005930"}, nil},
		{"overseas price", NewStock(c, "AAPL", "NASD"), EventPrice, realtime.TR{ID: realtime.TROverseasPrice, Key: "DNASAAPL"}, nil},
		{"overseas orderbook", NewStock(c, "AAPL", "NASD"), EventOrderbook, realtime.TR{ID: realtime.TROverseasOrderbook, Key: "DNASAAPL"}, nil},
		{"unknown event", NewStock(c, "005930", "KRX"), "execution", realtime.TR{}, ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.stock.TR(tt.event)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStockUnsupportedExchange(t *testing.T) {
	_, err := NewStock(newOfflineClient(t, false), "X", "LSE").TR(EventPrice)
	assert.Error(t, err)
}

func TestStockOnFiltersProduct(t *testing.T) {
	c := newOfflineClient(t, false)
	s := NewStock(c, "005930", realtime.MarketKRX)

	var rec recorder
	ticket, err := s.On(EventPrice, rec.callback)
	require.NoError(t, err)
	assert.True(t, c.IsSubscribed(realtime.TRStockPrice, "005930"))

	same := &realtime.StockPrice{Instrument: realtime.Instrument{Code: "005930", Exchange: realtime.MarketKRX}}
	other := &realtime.StockPrice{Instrument: realtime.Instrument{Code: "000660", Exchange: realtime.MarketKRX}}

	raise(c, realtime.TRStockPrice, "005930", same)
	raise(c, realtime.TRStockPrice, "005930", other)
	raise(c, realtime.TRStockOrderbook, "005930", same)
	assert.Equal(t, 1, rec.len())

	ticket.Unsubscribe()
	assert.False(t, c.IsSubscribed(realtime.TRStockPrice, "005930"))
}

func TestStockOnce(t *testing.T) {
	c := newOfflineClient(t, false)
	s := NewStock(c, "AAPL", "NASD")

	var rec recorder
	_, err := s.Once(EventPrice, rec.callback)
	require.NoError(t, err)

	tick := &realtime.StockPrice{Instrument: realtime.Instrument{Code: "AAPL", Exchange: "NASD"}}
	raise(c, realtime.TROverseasPrice, "DNASAAPL", tick)
	raise(c, realtime.TROverseasPrice, "DNASAAPL", tick)

	assert.Equal(t, 1, rec.len())
	assert.False(t, c.IsSubscribed(realtime.TROverseasPrice, "DNASAAPL"))
}

func TestStockOnUnknownEvent(t *testing.T) {
	c := newOfflineClient(t, false)
	_, err := NewStock(c, "005930", realtime.MarketKRX).On("trade", func(any, realtime.SubscriptionEventArgs) {})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Empty(t, c.Subscriptions())
}

func TestAccountOnSubscribesBothFeeds(t *testing.T) {
	c := newOfflineClient(t, false)
	a := NewAccount(c, "hts01", "12345678-01")

	var rec recorder
	ticket, err := a.On(EventExecution, rec.callback)
	require.NoError(t, err)

	assert.ElementsMatch(t, []realtime.TR{
		{ID: realtime.TRExecution, Key: "hts01"},
		{ID: realtime.TROverseasExecution, Key: "hts01"},
	}, c.Subscriptions())

	raise(c, realtime.TRExecution, "hts01", notice("1234567801", "1", realtime.TRExecution))
	raise(c, realtime.TROverseasExecution, "hts01", notice("12345678-01", "2", realtime.TROverseasExecution))
	raise(c, realtime.TRExecution, "hts01", notice("9999999901", "3", realtime.TRExecution))
	assert.Equal(t, 2, rec.len())

	ticket.Unsubscribe()
	assert.Empty(t, c.Subscriptions())
}

func TestVirtualAccountUsesRealDomain(t *testing.T) {
	c := newOfflineClient(t, true)
	a := NewAccount(c, "hts01", "1234567801")

	var rec recorder
	ticket, err := a.On(EventExecution, rec.callback)
	require.NoError(t, err)

	assert.Empty(t, c.Subscriptions())
	require.NotNil(t, c.Primary())
	assert.ElementsMatch(t, []realtime.TR{
		{ID: realtime.TRExecutionVirtual, Key: "hts01"},
		{ID: realtime.TROverseasExecutionV, Key: "hts01"},
	}, c.Primary().Subscriptions())

	raise(c.Primary(), realtime.TRExecutionVirtual, "hts01", notice("1234567801", "1", realtime.TRExecutionVirtual))
	assert.Equal(t, 1, rec.len())

	ticket.Unsubscribe()
	assert.Empty(t, c.Primary().Subscriptions())
}

func TestAccountOnceAcrossFeeds(t *testing.T) {
	c := newOfflineClient(t, false)
	a := NewAccount(c, "hts01", "1234567801")

	var rec recorder
	_, err := a.Once(EventExecution, rec.callback)
	require.NoError(t, err)

	raise(c, realtime.TROverseasExecution, "hts01", notice("1234567801", "1", realtime.TROverseasExecution))
	raise(c, realtime.TRExecution, "hts01", notice("1234567801", "2", realtime.TRExecution))

	assert.Equal(t, 1, rec.len())
	assert.Empty(t, c.Subscriptions())
}

func TestAccountOnRollsBackOnCapacity(t *testing.T) {
	cfg := config.DefaultRealtime()
	cfg.URL = "ws://127.0.0.1:1"
	cfg.Reconnect = false
	cfg.MaxSubscriptions = 1
	c := realtime.NewClient(cfg, false, offline{}, logger.Nop())
	t.Cleanup(c.Disconnect)

	_, err := NewAccount(c, "hts01", "1234567801").On(EventExecution, func(any, realtime.SubscriptionEventArgs) {})
	assert.ErrorIs(t, err, realtime.ErrCapacityExceeded)
	assert.Empty(t, c.Subscriptions())
}

func TestOrderFiltersByNumber(t *testing.T) {
	c := newOfflineClient(t, false)
	a := NewAccount(c, "hts01", "12345678-01")
	o := NewOrder(a, realtime.OrderNumber{
		Symbol:  "005930",
		Market:  realtime.MarketKRX,
		Branch:  "01790",
		Number:  "0000123",
		Account: "12345678-01",
	})

	var rec recorder
	ticket, err := o.On(EventExecution, rec.callback)
	require.NoError(t, err)
	defer ticket.Unsubscribe()

	raise(c, realtime.TRExecution, "hts01", notice("1234567801", "123", realtime.TRExecution))
	raise(c, realtime.TRExecution, "hts01", notice("1234567801", "124", realtime.TRExecution))
	assert.Equal(t, 1, rec.len())
}

func TestPendingOrderWaitsForBind(t *testing.T) {
	c := newOfflineClient(t, false)
	o := NewPendingOrder(NewAccount(c, "hts01", "1234567801"))

	var rec recorder
	_, err := o.Once(EventExecution, rec.callback)
	require.NoError(t, err)

	raise(c, realtime.TRExecution, "hts01", notice("1234567801", "77", realtime.TRExecution))
	assert.Equal(t, 0, rec.len())

	_, known := o.Number()
	assert.False(t, known)

	o.Bind(realtime.OrderNumber{
		Symbol:  "005930",
		Market:  realtime.MarketKRX,
		Branch:  "01790",
		Number:  "77",
		Account: "1234567801",
	})
	raise(c, realtime.TRExecution, "hts01", notice("1234567801", "77", realtime.TRExecution))
	raise(c, realtime.TRExecution, "hts01", notice("1234567801", "77", realtime.TRExecution))

	assert.Equal(t, 1, rec.len())
	assert.Empty(t, c.Subscriptions())
}
