package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/wonny/aegis/kisrt/internal/realtime"
)

// parseSymbol splits "NASD:AAPL" into market and symbol; a bare code is KRX.
func parseSymbol(arg string) (market, symbol string, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", fmt.Errorf("empty symbol")
	}

	market, symbol, found := strings.Cut(arg, ":")
	if !found {
		return realtime.MarketKRX, arg, nil
	}
	if market == "" || symbol == "" {
		return "", "", fmt.Errorf("invalid symbol %q, want MARKET:SYMBOL", arg)
	}
	return strings.ToUpper(market), symbol, nil
}

func printHeader(w io.Writer, title string, lines ...string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, "───────────────────────────────────────────────────────────")
	for _, l := range lines {
		fmt.Fprintf(w, "  %s\n", l)
	}
	fmt.Fprintln(w, "───────────────────────────────────────────────────────────")
}

func formatEvent(resp realtime.Response) string {
	switch r := resp.(type) {
	case *realtime.StockPrice:
		return fmt.Sprintf("[Price] %s:%s %s (%s %s%%) vol %d @ %s",
			r.Market(), r.Symbol(), r.Price, r.Change, r.ChangeRate, r.Volume, r.Time)
	case *realtime.StockOrderbook:
		var ask, bid string
		if len(r.Asks) > 0 {
			ask = fmt.Sprintf("%s x %d", r.Asks[0].Price, r.Asks[0].Quantity)
		}
		if len(r.Bids) > 0 {
			bid = fmt.Sprintf("%s x %d", r.Bids[0].Price, r.Bids[0].Quantity)
		}
		return fmt.Sprintf("[Book] %s:%s ask %s | bid %s @ %s", r.Market(), r.Symbol(), ask, bid, r.Time)
	case *realtime.ExecutionNotice:
		kind := "accepted"
		switch {
		case r.Rejected:
			kind = "rejected"
		case r.Filled:
			kind = "filled"
		}
		return fmt.Sprintf("[Execution] %s %s order %s %s %d @ %s",
			r.Account, r.Symbol(), r.OrderNo, kind, r.Quantity, r.Price)
	default:
		m := resp.Metadata()
		return fmt.Sprintf("[%s] %s", m.TRID, m.Key)
	}
}
