package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis/kisrt/internal/quote"
	"github.com/wonny/aegis/kisrt/internal/realtime"
	"github.com/wonny/aegis/kisrt/internal/session"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// ClientStatus is the read side of realtime.Client.
type ClientStatus interface {
	Connected() bool
	Virtual() bool
	Subscriptions() []realtime.TR
	RegisteredSubscriptions() []realtime.TR
}

// QuoteSource serves cached quotes.
type QuoteSource interface {
	Get(market, symbol string) (quote.Quote, bool)
	All() []quote.Quote
}

// ScheduleSource reports session job statistics.
type ScheduleSource interface {
	Stats() []session.JobStats
}

// StatusHandler serves the realtime client status
// ⭐ SSOT: 상태 API 핸들러는 이 구조체에서만
type StatusHandler struct {
	client   ClientStatus
	quotes   QuoteSource
	schedule ScheduleSource
	logger   *logger.Logger
}

// NewStatusHandler creates a status handler; quotes and schedule may be nil.
func NewStatusHandler(client ClientStatus, quotes QuoteSource, schedule ScheduleSource, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		client:   client,
		quotes:   quotes,
		schedule: schedule,
		logger:   log,
	}
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Virtual   bool   `json:"virtual"`
}

// Health reports whether the realtime connection is up.
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Connected: h.client.Connected(),
		Virtual:   h.client.Virtual(),
	}
	if !resp.Connected {
		resp.Status = "disconnected"
	}
	respondJSON(w, http.StatusOK, resp)
}

// SubscriptionResponse is one TR.
type SubscriptionResponse struct {
	TRID  string `json:"tr_id"`
	TRKey string `json:"tr_key"`
}

// SubscriptionsResponse lists desired and acknowledged subscriptions.
type SubscriptionsResponse struct {
	Desired    []SubscriptionResponse `json:"desired"`
	Registered []SubscriptionResponse `json:"registered"`
}

func toSubscriptions(trs []realtime.TR) []SubscriptionResponse {
	out := make([]SubscriptionResponse, len(trs))
	for i, tr := range trs {
		out[i] = SubscriptionResponse{TRID: tr.ID, TRKey: tr.Key}
	}
	return out
}

// Subscriptions returns the subscription sets.
// GET /subscriptions
func (h *StatusHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SubscriptionsResponse{
		Desired:    toSubscriptions(h.client.Subscriptions()),
		Registered: toSubscriptions(h.client.RegisteredSubscriptions()),
	})
}

// QuoteResponse is a cached trade tick.
type QuoteResponse struct {
	Market            string    `json:"market"`
	Symbol            string    `json:"symbol"`
	Price             string    `json:"price"`
	Change            string    `json:"change"`
	ChangeRate        string    `json:"change_rate"`
	Volume            int64     `json:"volume"`
	AccumulatedVolume int64     `json:"accumulated_volume"`
	TradeTime         string    `json:"trade_time"`
	UpdatedAt         time.Time `json:"updated_at"`
	Stale             bool      `json:"stale"`
}

func toQuote(q quote.Quote) QuoteResponse {
	return QuoteResponse{
		Market:            q.Market,
		Symbol:            q.Symbol,
		Price:             q.Tick.Price.String(),
		Change:            q.Tick.Change.String(),
		ChangeRate:        q.Tick.ChangeRate.String(),
		Volume:            q.Tick.Volume,
		AccumulatedVolume: q.Tick.AccumulatedVolume,
		TradeTime:         q.Tick.Time.String(),
		UpdatedAt:         q.UpdatedAt,
		Stale:             q.Stale,
	}
}

// Quotes returns every cached quote.
// GET /quotes
func (h *StatusHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		respondError(w, http.StatusNotFound, "quote cache disabled")
		return
	}

	all := h.quotes.All()
	out := make([]QuoteResponse, len(all))
	for i, q := range all {
		out[i] = toQuote(q)
	}
	respondJSON(w, http.StatusOK, out)
}

// Quote returns one cached quote.
// GET /quotes/{market}/{symbol}
func (h *StatusHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		respondError(w, http.StatusNotFound, "quote cache disabled")
		return
	}

	vars := mux.Vars(r)
	market, symbol := strings.ToUpper(vars["market"]), vars["symbol"]

	q, ok := h.quotes.Get(market, symbol)
	if !ok {
		h.logger.WithFields(map[string]interface{}{
			"market": market,
			"symbol": symbol,
		}).Debug("Quote not cached")
		respondError(w, http.StatusNotFound, "no quote for "+market+":"+symbol)
		return
	}
	respondJSON(w, http.StatusOK, toQuote(q))
}

// Schedule returns the session job statistics.
// GET /session
func (h *StatusHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if h.schedule == nil {
		respondError(w, http.StatusNotFound, "session schedule disabled")
		return
	}
	respondJSON(w, http.StatusOK, h.schedule.Stats())
}
