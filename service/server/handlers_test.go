package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainvest/chainvest/service/ledger"
)

func newTestStore(t *testing.T) ledger.Store {
	t.Helper()
	store, err := ledger.NewFileStore(filepath.Join(t.TempDir(), "db.json"), nil)
	require.NoError(t, err)
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleGetAccount_EmptyLedger(t *testing.T) {
	store := newTestStore(t)
	handler := handleGetAccount(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0.00000000", resp.BalanceBTC)
	assert.Equal(t, int64(0), resp.BalanceSats)
	assert.Empty(t, resp.Deposits)
}

func TestHandleGetAccount_WithDeposits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	creditedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Commit(ctx, ledger.Deposit{
		TxID:       "tx1",
		AmountSats: 5000,
		CreditedAt: creditedAt,
	})
	require.NoError(t, err)
	_, err = store.Commit(ctx, ledger.Deposit{
		TxID:       "tx2",
		AmountSats: 3500,
		CreditedAt: creditedAt.Add(time.Minute),
	})
	require.NoError(t, err)

	handler := handleGetAccount(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0.00008500", resp.BalanceBTC)
	assert.Equal(t, int64(8500), resp.BalanceSats)
	require.Len(t, resp.Deposits, 2)
	assert.Equal(t, "tx1", resp.Deposits[0].TxID)
	assert.Equal(t, int64(5000), resp.Deposits[0].AmountSats)
	assert.Equal(t, "0.00005000", resp.Deposits[0].AmountBTC)
	assert.True(t, resp.Deposits[0].CreditedAt.Equal(creditedAt))
	assert.Equal(t, "tx2", resp.Deposits[1].TxID)
}

type brokenStore struct {
	ledger.Store
}

func (s *brokenStore) Snapshot(ctx context.Context) (*ledger.Account, error) {
	return nil, errors.New("ledger unavailable")
}

func TestHandleGetAccount_StoreError(t *testing.T) {
	handler := handleGetAccount(&brokenStore{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp["error"])
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware(inner)

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/account", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("passthrough", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
