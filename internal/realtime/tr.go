package realtime

import (
	"cmp"
	"fmt"
	"strings"
)

// KIS realtime TR ids
const (
	TRStockPrice         = "H0STCNT0" // 국내주식 실시간체결가
	TRStockOrderbook     = "H0STASP0" // 국내주식 실시간호가
	TROverseasPrice      = "HDFSCNT0" // 해외주식 실시간지연체결가
	TROverseasOrderbook  = "HDFSASP0" // 해외주식 실시간호가
	TRExecution          = "H0STCNI0" // 국내주식 실시간체결통보 (실전)
	TRExecutionVirtual   = "H0STCNI9" // 국내주식 실시간체결통보 (모의)
	TROverseasExecution  = "H0GSCNI0" // 해외주식 실시간체결통보 (실전)
	TROverseasExecutionV = "H0GSCNI9" // 해외주식 실시간체결통보 (모의)

	trPingPong = "PINGPONG"
)

// MarketKRX is the market code carried by domestic responses.
const MarketKRX = "KRX"

// TR identifies one logical realtime feed: a TR id and its key.
type TR struct {
	ID  string
	Key string
}

// String returns the composite "id|key" form.
func (t TR) String() string {
	return t.ID + "|" + t.Key
}

// Compare orders TRs by id, then key.
func (t TR) Compare(o TR) int {
	if c := cmp.Compare(t.ID, o.ID); c != 0 {
		return c
	}
	return cmp.Compare(t.Key, o.Key)
}

// IsExecution reports whether id is an execution-notice TR. Their cipher key
// is shared by every key of the id.
func IsExecution(id string) bool {
	switch id {
	case TRExecution, TRExecutionVirtual, TROverseasExecution, TROverseasExecutionV:
		return true
	}
	return false
}

// ExecutionTRs returns the domestic and overseas execution TR ids for the domain.
func ExecutionTRs(virtual bool) (domestic, overseas string) {
	if virtual {
		return TRExecutionVirtual, TROverseasExecutionV
	}
	return TRExecution, TROverseasExecution
}

// 해외 거래소 코드: 주문용 코드 <-> 실시간 심볼 접두어
var overseasExchanges = map[string]string{
	"NASD": "NAS",
	"NYSE": "NYS",
	"AMEX": "AMS",
	"SEHK": "HKS",
	"SHAA": "SHS",
	"SZAA": "SZS",
	"TKSE": "TSE",
	"HASE": "HSX",
	"VNSE": "HNX",
}

// OverseasKey builds the realtime tr_key for an overseas symbol, e.g.
// ("NASD", "AAPL") becomes "DNASAAPL".
func OverseasKey(market, symbol string) (string, error) {
	prefix, ok := overseasExchanges[strings.ToUpper(market)]
	if !ok {
		return "", fmt.Errorf("unknown overseas market %q", market)
	}
	return "D" + prefix + symbol, nil
}

// ParseOverseasKey splits a realtime symbol such as "DNASAAPL" into its
// market and symbol.
func ParseOverseasKey(rsym string) (market, symbol string, ok bool) {
	if len(rsym) < 5 {
		return "", "", false
	}
	prefix := rsym[1:4]
	for m, p := range overseasExchanges {
		if p == prefix {
			return m, rsym[4:], true
		}
	}
	return "", "", false
}
