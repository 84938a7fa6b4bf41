// Package watchlist is the watchlist collaborator: a plain per-account
// symbol set. The core only reads it to decide which symbols the stream
// supervisor subscribes to.
package watchlist

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles watchlist database operations
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new watchlist repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "watchlist").Logger(),
	}
}

// Add puts a symbol on an account's watchlist. Adding a symbol that is
// already present returns false without error.
func (r *Repository) Add(accountID, symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return false, fmt.Errorf("symbol is required")
	}

	res, err := r.ledgerDB.Exec(`
		INSERT INTO watchlists (account_id, symbol, added_at) VALUES (?, ?, ?)
		ON CONFLICT (account_id, symbol) DO NOTHING`,
		accountID, symbol, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add watchlist symbol: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm watchlist insert: %w", err)
	}
	return affected > 0, nil
}

// Remove deletes a symbol from an account's watchlist
func (r *Repository) Remove(accountID, symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	res, err := r.ledgerDB.Exec(
		`DELETE FROM watchlists WHERE account_id = ? AND symbol = ?`,
		accountID, symbol,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove watchlist symbol: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm watchlist delete: %w", err)
	}
	return affected > 0, nil
}

// List returns an account's watched symbols in insertion order
func (r *Repository) List(accountID string) ([]string, error) {
	rows, err := r.ledgerDB.Query(
		`SELECT symbol FROM watchlists WHERE account_id = ? ORDER BY added_at, symbol`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// AllSymbols returns the union of every account's watched symbols.
// Consumed by the stream supervisor and the quote poller.
func (r *Repository) AllSymbols() ([]string, error) {
	rows, err := r.ledgerDB.Query(`SELECT DISTINCT symbol FROM watchlists ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watched symbols: %w", err)
	}
	defer rows.Close()

	return scanSymbols(rows)
}

func scanSymbols(rows *sql.Rows) ([]string, error) {
	symbols := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return symbols, nil
}
