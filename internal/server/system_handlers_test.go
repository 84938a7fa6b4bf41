package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradebook/internal/database"
)

func setupSystemHandlers(t *testing.T) *SystemHandlers {
	t.Helper()

	dir := t.TempDir()

	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { ledgerDB.Close() })
	require.NoError(t, ledgerDB.Migrate())

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate())

	return NewSystemHandlers(ledgerDB, cacheDB, nil, zerolog.Nop())
}

func TestHandleHealth_ReportsOK(t *testing.T) {
	handlers := setupSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/health", nil)
	rec := httptest.NewRecorder()
	handlers.HandleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Status    string            `json:"status"`
		Databases map[string]string `json:"databases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, "ok", payload.Databases["ledger"])
	assert.Equal(t, "ok", payload.Databases["cache"])
}

func TestHandleHealth_DeepIntegrityCheck(t *testing.T) {
	handlers := setupSystemHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/health?deep=1", nil)
	rec := httptest.NewRecorder()
	handlers.HandleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload.Status)
}
