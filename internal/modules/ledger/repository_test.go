package ledger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradebook/internal/domain"
)

func TestCreateAccount_TrimsNameAndRejectsNegativeBalance(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewRepository(db, zerolog.Nop())

	account, err := repo.CreateAccount("  alice  ", 4000)
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Name)
	assert.NotEmpty(t, account.ID)

	_, err = repo.CreateAccount("bob", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetAccount_MissingReturnsNil(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewRepository(db, zerolog.Nop())

	account, err := repo.GetAccount("missing")
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestGetOrders_MostRecentFirst(t *testing.T) {
	executor, repo, _ := setupExecutor(t)
	accountID := createTestAccount(t, repo, 100000)

	symbols := []string{"AAPL", "MSFT", "GOOG"}
	for _, s := range symbols {
		_, err := executor.Execute(context.Background(), buy(accountID, s, 1, 100))
		require.NoError(t, err)
	}

	orders, err := repo.GetOrders(accountID, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	// All three executed within the same second; the tiebreak keeps
	// insertion order, so the window holds the first two inserts.
	all, err := repo.GetOrders(accountID, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRepricePositions_UpdatesDerivedFieldsOnly(t *testing.T) {
	executor, repo, _ := setupExecutor(t)

	first := createTestAccount(t, repo, 10000)
	second := createTestAccount(t, repo, 10000)

	_, err := executor.Execute(context.Background(), buy(first, "AAPL", 10, 100))
	require.NoError(t, err)
	_, err = executor.Execute(context.Background(), buy(second, "AAPL", 5, 200))
	require.NoError(t, err)
	_, err = executor.Execute(context.Background(), buy(second, "MSFT", 2, 50))
	require.NoError(t, err)

	affected, err := repo.RepricePositions("AAPL", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	positions, err := repo.GetPositions(first)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 150.0, positions[0].LTP, 1e-9)
	assert.InDelta(t, 500.0, positions[0].PnL, 1e-9)       // (150-100)*10
	assert.InDelta(t, 50.0, positions[0].ChangePct, 1e-9)  // (150-100)/100*100
	assert.InDelta(t, 100.0, positions[0].AvgPrice, 1e-9)  // untouched
	assert.Equal(t, int64(10), positions[0].Quantity)      // untouched

	// MSFT position untouched by the AAPL reprice
	secondPositions, err := repo.GetPositions(second)
	require.NoError(t, err)
	require.Len(t, secondPositions, 2)
	for _, p := range secondPositions {
		if p.Symbol == "MSFT" {
			assert.InDelta(t, 50.0, p.LTP, 1e-9)
		}
	}

	// Holdings and cash are never touched by a reprice
	holdings, err := repo.GetHoldings(first)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.InDelta(t, 100.0, holdings[0].AvgPrice, 1e-9)
}

func TestRepricePositions_Idempotent(t *testing.T) {
	executor, repo, _ := setupExecutor(t)
	accountID := createTestAccount(t, repo, 10000)

	_, err := executor.Execute(context.Background(), buy(accountID, "AAPL", 10, 100))
	require.NoError(t, err)

	_, err = repo.RepricePositions("AAPL", 150)
	require.NoError(t, err)
	firstPass, err := repo.GetPositions(accountID)
	require.NoError(t, err)

	_, err = repo.RepricePositions("AAPL", 150)
	require.NoError(t, err)
	secondPass, err := repo.GetPositions(accountID)
	require.NoError(t, err)

	assert.Equal(t, firstPass, secondPass)
}

func TestRepricePositions_NoPositionsIsNoop(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewRepository(db, zerolog.Nop())

	affected, err := repo.RepricePositions("AAPL", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestState_AssemblesFullView(t *testing.T) {
	executor, repo, _ := setupExecutor(t)
	accountID := createTestAccount(t, repo, 4000)

	_, err := executor.Execute(context.Background(), buy(accountID, "AAPL", 10, 100))
	require.NoError(t, err)

	state, err := repo.State(accountID)
	require.NoError(t, err)

	assert.InDelta(t, 3000.0, state.CashBalance, 1e-9)
	assert.Len(t, state.Holdings, 1)
	assert.Len(t, state.Positions, 1)
	assert.Len(t, state.Orders, 1)
}

func TestState_UnknownAccount(t *testing.T) {
	db := setupLedgerDB(t)
	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.State("missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
