package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainvest/chainvest/service/ledger"
)

// accountResponse is the wire format for GET /api/account.
type accountResponse struct {
	BalanceBTC  string            `json:"balanceBTC"`
	BalanceSats int64             `json:"balanceSats"`
	Deposits    []depositResponse `json:"deposits"`
}

type depositResponse struct {
	TxID       string    `json:"txid"`
	AmountSats int64     `json:"amountSats"`
	AmountBTC  string    `json:"amountBTC"`
	CreditedAt time.Time `json:"creditedAt"`
}

// handleGetAccount returns a handler that serves the current account
// snapshot: the credited balance and every deposit behind it.
// GET /api/account
func handleGetAccount(store ledger.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := store.Snapshot(r.Context())
		if err != nil {
			logger.Error("failed to load account snapshot", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := accountResponse{
			BalanceBTC:  account.BalanceBTC(),
			BalanceSats: account.BalanceSats,
			Deposits:    make([]depositResponse, len(account.Deposits)),
		}
		for i, d := range account.Deposits {
			resp.Deposits[i] = depositResponse{
				TxID:       d.TxID,
				AmountSats: d.AmountSats,
				AmountBTC:  d.AmountBTC().StringFixed(8),
				CreditedAt: d.CreditedAt,
			}
		}

		logger.Debug("account snapshot served",
			"balance_sats", account.BalanceSats,
			"deposit_count", len(account.Deposits),
		)
		writeJSON(w, resp, http.StatusOK)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
