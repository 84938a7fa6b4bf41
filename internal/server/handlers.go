package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/tradebook/internal/clients/finnhub"
	"github.com/aristath/tradebook/internal/domain"
	"github.com/aristath/tradebook/internal/modules/ledger"
	"github.com/aristath/tradebook/internal/modules/pricing"
	"github.com/aristath/tradebook/internal/modules/watchlist"
)

// Handlers holds the API handler dependencies
type Handlers struct {
	repo          *ledger.Repository
	executor      *ledger.Executor
	watchlistRepo *watchlist.Repository
	priceCache    *pricing.Cache
	quotes        pricing.QuoteFetcher
	stream        *finnhub.StreamSupervisor
	startBalance  float64
	log           zerolog.Logger
}

// NewHandlers creates the API handlers
func NewHandlers(
	repo *ledger.Repository,
	executor *ledger.Executor,
	watchlistRepo *watchlist.Repository,
	priceCache *pricing.Cache,
	quotes pricing.QuoteFetcher,
	stream *finnhub.StreamSupervisor,
	startBalance float64,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		repo:          repo,
		executor:      executor,
		watchlistRepo: watchlistRepo,
		priceCache:    priceCache,
		quotes:        quotes,
		stream:        stream,
		startBalance:  startBalance,
		log:           log.With().Str("handler", "api").Logger(),
	}
}

// writeJSON writes a JSON response with the given status code
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeRejection maps a ledger rejection to the right HTTP status
func (h *Handlers) writeRejection(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case domain.IsRejection(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Internal error")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type createAccountRequest struct {
	Name string `json:"name"`
}

// HandleCreateAccount opens a new account
// POST /api/accounts
func (h *Handlers) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.repo.CreateAccount(req.Name, h.startBalance)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// HandleGetAccountState returns the full persisted state of one account
// GET /api/accounts/{accountID}
func (h *Handlers) HandleGetAccountState(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	state, err := h.repo.State(accountID)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// HandleTrade executes a buy or sell order
// POST /api/accounts/{accountID}/trade
func (h *Handlers) HandleTrade(w http.ResponseWriter, r *http.Request) {
	var req ledger.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AccountID = chi.URLParam(r, "accountID")

	result, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type fundsRequest struct {
	Type     domain.TransactionType `json:"type"`
	Amount   float64                `json:"amount"`
	BankName string                 `json:"bank_name"`
}

// HandleFunds applies an ADD or WITHDRAW funds transfer
// POST /api/accounts/{accountID}/funds
func (h *Handlers) HandleFunds(w http.ResponseWriter, r *http.Request) {
	var req fundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	accountID := chi.URLParam(r, "accountID")

	balance, err := h.executor.Transfer(r.Context(), accountID, req.Type, req.Amount, req.BankName)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]float64{"cash_balance": balance})
}

// HandleGetOrders returns an account's order log, most recent first
// GET /api/accounts/{accountID}/orders?limit=N
func (h *Handlers) HandleGetOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	limit := queryInt(r, "limit", 50)

	orders, err := h.repo.GetOrders(accountID, limit)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// HandleGetTransactions returns an account's funds transfer history
// GET /api/accounts/{accountID}/transactions?limit=N
func (h *Handlers) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	limit := queryInt(r, "limit", 50)

	transactions, err := h.repo.GetTransactions(accountID, limit)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// HandleGetWatchlist returns an account's watched symbols
// GET /api/accounts/{accountID}/watchlist
func (h *Handlers) HandleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	symbols, err := h.watchlistRepo.List(accountID)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

type watchlistRequest struct {
	Symbol string `json:"symbol"`
}

// HandleAddWatchlist adds a symbol to the watchlist and subscribes the
// quote stream to it without reconnecting.
// POST /api/accounts/{accountID}/watchlist
func (h *Handlers) HandleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	accountID := chi.URLParam(r, "accountID")

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	added, err := h.watchlistRepo.Add(accountID, symbol)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	if added && h.stream != nil {
		h.stream.Subscribe(symbol)
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"symbol": symbol, "added": added})
}

// HandleRemoveWatchlist removes a symbol from the watchlist. The stream
// unsubscribes only when no other account still watches it.
// DELETE /api/accounts/{accountID}/watchlist/{symbol}
func (h *Handlers) HandleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))

	removed, err := h.watchlistRepo.Remove(accountID, symbol)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	if removed && h.stream != nil {
		still, err := h.watchlistRepo.AllSymbols()
		if err == nil && !contains(still, symbol) {
			h.stream.Unsubscribe(symbol)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "removed": removed})
}

// HandleGetQuote returns the last known price for a symbol. Cache misses
// fall through to a REST fetch, and the fetched quote seeds the cache.
// GET /api/quotes/{symbol}
func (h *Handlers) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))

	if tick, ok := h.priceCache.GetTick(symbol); ok {
		h.writeJSON(w, http.StatusOK, tick)
		return
	}

	if h.quotes == nil {
		h.writeError(w, http.StatusNotFound, "no quote available for "+symbol)
		return
	}

	price, err := h.quotes.Quote(r.Context(), symbol)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote fetch failed")
		h.writeError(w, http.StatusBadGateway, "no quote available for "+symbol)
		return
	}

	tick := domain.PriceTick{Symbol: symbol, Price: price, ObservedAt: time.Now().UTC()}
	h.priceCache.Set(tick)
	h.writeJSON(w, http.StatusOK, tick)
}

// queryInt parses an integer query parameter with a fallback
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func contains(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
