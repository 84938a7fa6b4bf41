package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tradebook/internal/database"
	"github.com/aristath/tradebook/internal/domain"
)

// Executor validates and applies buy/sell requests against the ledger.
//
// All four mutations of a trade (cash, holding, position, order) commit in a
// single transaction: either all succeed or none do. Commits are serialized
// per account through a keyed mutex, so concurrent trade requests against the
// same account cannot lose a cash read-modify-write, and a reconciler tick
// landing mid-trade cannot interleave with the position mirror.
type Executor struct {
	ledgerDB *sql.DB
	repo     *Repository
	log      zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutor creates a new trade executor
func NewExecutor(db *sql.DB, repo *Repository, log zerolog.Logger) *Executor {
	return &Executor{
		ledgerDB: db,
		repo:     repo,
		log:      log.With().Str("service", "trade_executor").Logger(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing mutations for one account
func (e *Executor) lockFor(accountID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[accountID] = l
	}
	return l
}

// Execute applies a single trade request and returns the new consistent
// state, or a rejection (domain.ErrInsufficientFunds,
// domain.ErrInsufficientHoldings, domain.ErrInvalidInput). Any other error is
// a transient storage failure; no partial state is persisted and the caller
// may retry the whole request.
func (e *Executor) Execute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	lock := e.lockFor(req.AccountID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *TradeResult
	err := database.WithTransaction(e.ledgerDB, func(tx *sql.Tx) error {
		var txErr error
		result, txErr = e.executeTx(tx, req)
		return txErr
	})
	if err != nil {
		if domain.IsRejection(err) {
			e.log.Warn().
				Str("account_id", req.AccountID).
				Str("symbol", req.Symbol).
				Str("side", string(req.Side)).
				Err(err).
				Msg("Trade rejected")
		}
		return nil, err
	}

	e.log.Info().
		Str("account_id", req.AccountID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int64("quantity", req.Quantity).
		Float64("price", req.Price).
		Float64("cash_balance", result.CashBalance).
		Msg("Trade executed")

	return result, nil
}

// executeTx runs the trade algorithm inside one transaction
func (e *Executor) executeTx(tx *sql.Tx, req TradeRequest) (*TradeResult, error) {
	cash, err := e.repo.cashBalanceTx(tx, req.AccountID)
	if err != nil {
		return nil, err
	}

	holding, err := e.repo.holdingTx(tx, req.AccountID, req.Symbol, req.Product)
	if err != nil {
		return nil, err
	}

	var newCash float64
	switch req.Side {
	case domain.SideBuy:
		required := float64(req.Quantity) * req.Price
		if cash < required {
			return nil, fmt.Errorf("%w: need %.2f, have %.2f", domain.ErrInsufficientFunds, required, cash)
		}

		if holding != nil {
			// Weighted-average cost basis update
			oldQty := holding.Quantity
			holding.Quantity += req.Quantity
			holding.AvgPrice = (holding.AvgPrice*float64(oldQty) + req.Price*float64(req.Quantity)) /
				float64(holding.Quantity)
		} else {
			holding = &domain.Holding{
				AccountID: req.AccountID,
				Symbol:    req.Symbol,
				Product:   req.Product,
				Quantity:  req.Quantity,
				AvgPrice:  req.Price,
			}
		}
		newCash = cash - required

	case domain.SideSell:
		if holding == nil || holding.Quantity < req.Quantity {
			held := int64(0)
			if holding != nil {
				held = holding.Quantity
			}
			return nil, fmt.Errorf("%w: selling %d, holding %d", domain.ErrInsufficientHoldings, req.Quantity, held)
		}

		// Average price is never touched by a SELL; realized profit is
		// implicit in the cash delta.
		holding.Quantity -= req.Quantity
		newCash = cash + float64(req.Quantity)*req.Price
	}

	if err := e.repo.setCashBalanceTx(tx, req.AccountID, newCash); err != nil {
		return nil, err
	}

	result := &TradeResult{CashBalance: newCash}

	if holding.Quantity == 0 {
		// The holding and its mirrored position cease to exist together
		if err := e.repo.deleteHoldingTx(tx, req.AccountID, req.Symbol, req.Product); err != nil {
			return nil, err
		}
		if err := e.repo.deletePositionTx(tx, req.AccountID, req.Symbol, req.Product); err != nil {
			return nil, err
		}
	} else {
		if err := e.repo.upsertHoldingTx(tx, *holding); err != nil {
			return nil, err
		}

		// The fill price becomes the position's reference tick immediately
		position := domain.Position{
			AccountID: req.AccountID,
			Symbol:    req.Symbol,
			Product:   req.Product,
			Quantity:  holding.Quantity,
			AvgPrice:  holding.AvgPrice,
			LTP:       req.Price,
			PnL:       (req.Price - holding.AvgPrice) * float64(holding.Quantity),
			ChangePct: (req.Price - holding.AvgPrice) / holding.AvgPrice * 100,
		}
		if err := e.repo.upsertPositionTx(tx, position); err != nil {
			return nil, err
		}

		result.Holding = holding
		result.Position = &position
	}

	order := domain.Order{
		ID:         uuid.NewString(),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Product:    req.Product,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Status:     domain.OrderStatusCompleted,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.repo.insertOrderTx(tx, order); err != nil {
		return nil, err
	}
	result.Order = order

	return result, nil
}

// Transfer applies an ADD or WITHDRAW funds transfer against an account,
// honoring the same non-negative balance invariant and per-account
// serialization as trade execution.
func (e *Executor) Transfer(ctx context.Context, accountID string, transferType domain.TransactionType, amount float64, bankName string) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %.2f", domain.ErrInvalidInput, amount)
	}
	if transferType != domain.TransactionAdd && transferType != domain.TransactionWithdraw {
		return 0, fmt.Errorf("%w: type must be ADD or WITHDRAW, got %q", domain.ErrInvalidInput, transferType)
	}
	if strings.TrimSpace(bankName) == "" {
		return 0, fmt.Errorf("%w: bank name is required", domain.ErrInvalidInput)
	}

	lock := e.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var newBalance float64
	err := database.WithTransaction(e.ledgerDB, func(tx *sql.Tx) error {
		cash, err := e.repo.cashBalanceTx(tx, accountID)
		if err != nil {
			return err
		}

		if transferType == domain.TransactionWithdraw {
			if cash < amount {
				return fmt.Errorf("%w: withdrawing %.2f, have %.2f", domain.ErrInsufficientFunds, amount, cash)
			}
			newBalance = cash - amount
		} else {
			newBalance = cash + amount
		}

		if err := e.repo.setCashBalanceTx(tx, accountID, newBalance); err != nil {
			return err
		}

		return e.repo.insertTransactionTx(tx, domain.Transaction{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Type:      transferType,
			Amount:    amount,
			BankName:  strings.TrimSpace(bankName),
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, err
	}

	e.log.Info().
		Str("account_id", accountID).
		Str("type", string(transferType)).
		Float64("amount", amount).
		Float64("cash_balance", newBalance).
		Msg("Funds transfer applied")

	return newBalance, nil
}
