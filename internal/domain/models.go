// Package domain provides core domain models and types.
package domain

import "time"

// Side represents the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is a known value
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Product represents the trade settlement category.
// It participates in the holding/position key but carries no logic beyond that.
type Product string

const (
	// ProductCNC is cash-and-carry (carry-forward delivery)
	ProductCNC Product = "CNC"
	// ProductMIS is margin-intraday-square-off (intraday)
	ProductMIS Product = "MIS"
	// ProductNRML is the standard product
	ProductNRML Product = "NRML"
)

// Valid reports whether the product is a known value
func (p Product) Valid() bool {
	return p == ProductCNC || p == ProductMIS || p == ProductNRML
}

// OrderStatus represents the lifecycle state of an order.
// Every order fills completely and instantly, so COMPLETED is the only
// status produced today; PENDING and CANCELLED are reserved for a future
// matching engine.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Account holds the authoritative cash balance for one ledger
type Account struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CashBalance float64   `json:"cash_balance"`
	CreatedAt   time.Time `json:"created_at"`
}

// Holding is an aggregated cost-basis lot keyed by (account, symbol, product).
// A holding with zero quantity does not exist: the row is deleted and its
// cost basis discarded.
type Holding struct {
	AccountID string  `json:"-"`
	Symbol    string  `json:"symbol"`
	Product   Product `json:"product"`
	Quantity  int64   `json:"quantity"`
	AvgPrice  float64 `json:"avg_price"`
}

// Position mirrors a holding's quantity and average price and carries the
// live-valued fields derived from the last traded price.
type Position struct {
	AccountID  string  `json:"-"`
	Symbol     string  `json:"symbol"`
	Product    Product `json:"product"`
	Quantity   int64   `json:"quantity"`
	AvgPrice   float64 `json:"avg_price"`
	LTP        float64 `json:"ltp"`
	PnL        float64 `json:"pnl"`
	ChangePct  float64 `json:"change_pct"`
}

// Order is an immutable record of one executed trade
type Order struct {
	ID         string      `json:"id"`
	AccountID  string      `json:"-"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Product    Product     `json:"product"`
	Quantity   int64       `json:"quantity"`
	Price      float64     `json:"price"`
	Status     OrderStatus `json:"status"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// TransactionType represents the direction of a funds transfer
type TransactionType string

const (
	TransactionAdd      TransactionType = "ADD"
	TransactionWithdraw TransactionType = "WITHDRAW"
)

// Transaction records one funds transfer against an account
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"-"`
	Type      TransactionType `json:"type"`
	Amount    float64         `json:"amount"`
	BankName  string          `json:"bank_name"`
	CreatedAt time.Time       `json:"created_at"`
}

// PriceTick is one externally observed price update for a symbol.
// Ticks are ephemeral: they live only in the price cache and are
// overwritten on arrival, never queued.
type PriceTick struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}
