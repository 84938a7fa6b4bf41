package ledger

import (
	"fmt"

	"github.com/aristath/tradebook/internal/domain"
)

// TradeRequest is a single buy/sell request against one account's ledger.
// Every order fills completely and instantly at the requested price.
type TradeRequest struct {
	AccountID string         `json:"-"`
	Symbol    string         `json:"symbol"`
	Side      domain.Side    `json:"side"`
	Product   domain.Product `json:"product"`
	Quantity  int64          `json:"quantity"`
	Price     float64        `json:"price"`
}

// Validate checks trade preconditions. Violations are user-facing
// rejections wrapped around domain.ErrInvalidInput.
func (r TradeRequest) Validate() error {
	if r.AccountID == "" {
		return fmt.Errorf("%w: account id is required", domain.ErrInvalidInput)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", domain.ErrInvalidInput, r.Side)
	}
	if !r.Product.Valid() {
		return fmt.Errorf("%w: product must be CNC, MIS or NRML, got %q", domain.ErrInvalidInput, r.Product)
	}
	if r.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1, got %d", domain.ErrInvalidInput, r.Quantity)
	}
	// A zero-price fill would create a holding with no cost basis, which
	// the ledger schema forbids; reject it up front instead of surfacing a
	// constraint violation mid-commit.
	if r.Price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %.4f", domain.ErrInvalidInput, r.Price)
	}
	return nil
}

// TradeResult is the consistent state produced by a successful execution
type TradeResult struct {
	CashBalance float64          `json:"cash_balance"`
	Holding     *domain.Holding  `json:"holding,omitempty"`  // nil when the holding was deleted
	Position    *domain.Position `json:"position,omitempty"` // nil when the position was deleted
	Order       domain.Order     `json:"order"`
}

// AccountState is the read-only view of one account's persisted ledger
type AccountState struct {
	CashBalance float64           `json:"cash_balance"`
	Holdings    []domain.Holding  `json:"holdings"`
	Positions   []domain.Position `json:"positions"`
	Orders      []domain.Order    `json:"orders"`
}
