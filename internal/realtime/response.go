package realtime

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Product is implemented by responses that belong to one instrument.
type Product interface {
	Symbol() string
	Market() string
}

// Instrument identifies a listed product.
type Instrument struct {
	Code     string
	Exchange string
}

// Symbol returns the product code.
func (i Instrument) Symbol() string { return i.Code }

// Market returns the market code ("KRX" for domestic products).
func (i Instrument) Market() string { return i.Exchange }

// StockPrice is one trade tick.
type StockPrice struct {
	Meta
	Instrument

	Time              TimeOfDay
	Price             decimal.Decimal
	Sign              string // 전일 대비 부호
	Change            decimal.Decimal
	ChangeRate        decimal.Decimal
	Open              decimal.Decimal
	High              decimal.Decimal
	Low               decimal.Decimal
	Ask               decimal.Decimal
	Bid               decimal.Decimal
	Volume            int64 // 체결 거래량
	AccumulatedVolume int64
	AccumulatedAmount decimal.Decimal
	Strength          decimal.Decimal // 체결강도
	Halted            bool
}

// Level is one orderbook price level.
type Level struct {
	Price    decimal.Decimal
	Quantity int64
}

// StockOrderbook is an orderbook snapshot.
type StockOrderbook struct {
	Meta
	Instrument

	Time              TimeOfDay
	Asks              []Level
	Bids              []Level
	TotalAskQuantity  int64
	TotalBidQuantity  int64
	ExpectedPrice     decimal.Decimal // 예상 체결가
	ExpectedQuantity  int64
	AccumulatedVolume int64
}

// ExecutionNotice is an order acceptance, fill or rejection notice.
type ExecutionNotice struct {
	Meta
	Instrument

	CustomerID      string // HTS ID
	Account         string
	OrderNo         string
	OriginalOrderNo string
	Side            string // 01 매도, 02 매수
	Correction      string // 정정구분
	OrderKind       string
	Name            string
	Quantity        int64 // 체결 수량
	Price           decimal.Decimal
	Time            TimeOfDay
	Rejected        bool
	Filled          bool // false면 접수/정정/취소/거부 통보
	Acceptance      string
	Branch          string
	OrderQuantity   int64
	OrderPrice      decimal.Decimal
	AccountName     string
	Foreign         bool
}

// OrderNumber returns the identity of the order this notice refers to.
func (n *ExecutionNotice) OrderNumber() OrderNumber {
	return OrderNumber{
		Symbol:  n.Code,
		Market:  n.Exchange,
		Branch:  n.Branch,
		Number:  n.OrderNo,
		Account: n.Account,
		Foreign: n.Foreign,
	}
}

// OrderNumber identifies an order.
type OrderNumber struct {
	Symbol  string
	Market  string
	Branch  string // 주문 채번 지점
	Number  string
	Account string
	Foreign bool
}

// Equal compares two order numbers. Market and branch are ignored when either
// side is a foreign order, whose notices carry neither reliably. Order numbers
// are compared numerically so leading zeros do not matter.
func (o OrderNumber) Equal(other OrderNumber) bool {
	if o.Symbol != other.Symbol {
		return false
	}
	if !o.Foreign && !other.Foreign {
		if o.Market != other.Market || o.Branch != other.Branch {
			return false
		}
	}
	if normalizeAccount(o.Account) != normalizeAccount(other.Account) {
		return false
	}
	return sameOrderNo(o.Number, other.Number)
}

func sameOrderNo(a, b string) bool {
	x, errA := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
	y, errB := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return x == y
}

func normalizeAccount(acc string) string {
	return strings.ReplaceAll(strings.TrimSpace(acc), "-", "")
}
