package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/tradebook/internal/domain"
)

// Repository handles all ledger database operations. The ledger database is
// the single source of truth for cash, holdings, positions and the order log;
// every mutation runs through the Executor's per-account transaction.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// orderColumns is the list of columns for the orders table.
// Column order must match scanOrder().
const orderColumns = `id, account_id, symbol, side, product, quantity, price, status, executed_at`

// NewRepository creates a new ledger repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "ledger").Logger(),
	}
}

// CreateAccount opens a new account with the given starting balance
func (r *Repository) CreateAccount(name string, startingBalance float64) (*domain.Account, error) {
	if startingBalance < 0 {
		return nil, fmt.Errorf("%w: starting balance must be non-negative", domain.ErrInvalidInput)
	}

	account := &domain.Account{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		CashBalance: startingBalance,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := r.ledgerDB.Exec(
		`INSERT INTO accounts (id, name, cash_balance, created_at) VALUES (?, ?, ?, ?)`,
		account.ID, account.Name, account.CashBalance, account.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().
		Str("account_id", account.ID).
		Float64("cash_balance", account.CashBalance).
		Msg("Account created")

	return account, nil
}

// GetAccount returns an account by id, or nil when not found
func (r *Repository) GetAccount(id string) (*domain.Account, error) {
	var account domain.Account
	var createdAt int64

	err := r.ledgerDB.QueryRow(
		`SELECT id, name, cash_balance, created_at FROM accounts WHERE id = ?`, id,
	).Scan(&account.ID, &account.Name, &account.CashBalance, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &account, nil
}

// cashBalanceTx reads the cash balance inside a transaction
func (r *Repository) cashBalanceTx(tx *sql.Tx, accountID string) (float64, error) {
	var balance float64
	err := tx.QueryRow(`SELECT cash_balance FROM accounts WHERE id = ?`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cash balance: %w", err)
	}
	return balance, nil
}

// setCashBalanceTx writes the cash balance inside a transaction
func (r *Repository) setCashBalanceTx(tx *sql.Tx, accountID string, balance float64) error {
	res, err := tx.Exec(`UPDATE accounts SET cash_balance = ? WHERE id = ?`, balance, accountID)
	if err != nil {
		return fmt.Errorf("failed to update cash balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm cash balance update: %w", err)
	}
	if affected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// holdingTx reads one holding by its (account, symbol, product) key, nil when absent
func (r *Repository) holdingTx(tx *sql.Tx, accountID, symbol string, product domain.Product) (*domain.Holding, error) {
	h := domain.Holding{AccountID: accountID, Symbol: symbol, Product: product}
	err := tx.QueryRow(
		`SELECT quantity, avg_price FROM holdings WHERE account_id = ? AND symbol = ? AND product = ?`,
		accountID, symbol, product,
	).Scan(&h.Quantity, &h.AvgPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read holding: %w", err)
	}
	return &h, nil
}

// upsertHoldingTx writes a holding row inside a transaction
func (r *Repository) upsertHoldingTx(tx *sql.Tx, h domain.Holding) error {
	_, err := tx.Exec(`
		INSERT INTO holdings (account_id, symbol, product, quantity, avg_price)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, symbol, product)
		DO UPDATE SET quantity = excluded.quantity, avg_price = excluded.avg_price`,
		h.AccountID, h.Symbol, h.Product, h.Quantity, h.AvgPrice,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

// deleteHoldingTx removes a holding row; its cost basis is discarded, not retained as zero
func (r *Repository) deleteHoldingTx(tx *sql.Tx, accountID, symbol string, product domain.Product) error {
	_, err := tx.Exec(
		`DELETE FROM holdings WHERE account_id = ? AND symbol = ? AND product = ?`,
		accountID, symbol, product,
	)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

// upsertPositionTx writes a position row inside a transaction
func (r *Repository) upsertPositionTx(tx *sql.Tx, p domain.Position) error {
	_, err := tx.Exec(`
		INSERT INTO positions (account_id, symbol, product, quantity, avg_price, ltp, pnl, change_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, symbol, product)
		DO UPDATE SET quantity = excluded.quantity, avg_price = excluded.avg_price,
			ltp = excluded.ltp, pnl = excluded.pnl, change_pct = excluded.change_pct`,
		p.AccountID, p.Symbol, p.Product, p.Quantity, p.AvgPrice, p.LTP, p.PnL, p.ChangePct,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// deletePositionTx removes a position row alongside its holding
func (r *Repository) deletePositionTx(tx *sql.Tx, accountID, symbol string, product domain.Product) error {
	_, err := tx.Exec(
		`DELETE FROM positions WHERE account_id = ? AND symbol = ? AND product = ?`,
		accountID, symbol, product,
	)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// insertOrderTx appends an immutable order record inside a transaction
func (r *Repository) insertOrderTx(tx *sql.Tx, o domain.Order) error {
	_, err := tx.Exec(`
		INSERT INTO orders (id, account_id, symbol, side, product, quantity, price, status, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, o.Symbol, string(o.Side), string(o.Product),
		o.Quantity, o.Price, string(o.Status), o.ExecutedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// insertTransactionTx appends a funds transfer record inside a transaction
func (r *Repository) insertTransactionTx(tx *sql.Tx, t domain.Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (id, account_id, type, amount, bank_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, string(t.Type), t.Amount, t.BankName, t.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetHoldings returns all holdings for an account
func (r *Repository) GetHoldings(accountID string) ([]domain.Holding, error) {
	rows, err := r.ledgerDB.Query(
		`SELECT account_id, symbol, product, quantity, avg_price
		 FROM holdings WHERE account_id = ? ORDER BY symbol, product`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := []domain.Holding{}
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Product, &h.Quantity, &h.AvgPrice); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// GetPositions returns all positions for an account
func (r *Repository) GetPositions(accountID string) ([]domain.Position, error) {
	rows, err := r.ledgerDB.Query(
		`SELECT account_id, symbol, product, quantity, avg_price, ltp, pnl, change_pct
		 FROM positions WHERE account_id = ? ORDER BY symbol, product`, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

func scanPositions(rows *sql.Rows) ([]domain.Position, error) {
	positions := []domain.Position{}
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.AccountID, &p.Symbol, &p.Product, &p.Quantity,
			&p.AvgPrice, &p.LTP, &p.PnL, &p.ChangePct); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// RepricePositions folds a new price into every position on a symbol,
// recomputing ltp, pnl and percent change in a single statement. Quantity,
// average price, cash and holdings are never touched here; the statement is
// idempotent so applying the same tick twice yields the same derived values.
func (r *Repository) RepricePositions(symbol string, price float64) (int64, error) {
	res, err := r.ledgerDB.Exec(`
		UPDATE positions
		SET ltp = ?1,
		    pnl = (?1 - avg_price) * quantity,
		    change_pct = (?1 - avg_price) / avg_price * 100
		WHERE symbol = ?2`,
		price, symbol,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reprice positions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count repriced positions: %w", err)
	}
	return affected, nil
}

// GetOrders retrieves an account's order log, most recent first.
// Equal timestamps keep insertion order.
func (r *Repository) GetOrders(accountID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.ledgerDB.Query(`
		SELECT `+orderColumns+` FROM orders
		WHERE account_id = ?
		ORDER BY executed_at DESC, rowid ASC
		LIMIT ?`, accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

func scanOrder(rows *sql.Rows) (domain.Order, error) {
	var o domain.Order
	var executedAt int64
	err := rows.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Product,
		&o.Quantity, &o.Price, &o.Status, &executedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.ExecutedAt = time.Unix(executedAt, 0).UTC()
	return o, nil
}

// GetTransactions returns an account's funds transfer history, newest first
func (r *Repository) GetTransactions(accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.ledgerDB.Query(`
		SELECT id, account_id, type, amount, bank_name, created_at FROM transactions
		WHERE account_id = ?
		ORDER BY created_at DESC, rowid ASC
		LIMIT ?`, accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BankName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// State assembles the read-only view of one account's persisted ledger
func (r *Repository) State(accountID string) (*AccountState, error) {
	account, err := r.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}

	holdings, err := r.GetHoldings(accountID)
	if err != nil {
		return nil, err
	}

	positions, err := r.GetPositions(accountID)
	if err != nil {
		return nil, err
	}

	orders, err := r.GetOrders(accountID, 200)
	if err != nil {
		return nil, err
	}

	return &AccountState{
		CashBalance: account.CashBalance,
		Holdings:    holdings,
		Positions:   positions,
		Orders:      orders,
	}, nil
}
