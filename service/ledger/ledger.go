package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyTxID is returned when a deposit is committed without a txid.
	ErrEmptyTxID = errors.New("deposit txid must not be empty")

	// ErrNonPositiveAmount is returned when a deposit carries no value for
	// the watched address.
	ErrNonPositiveAmount = errors.New("deposit amount must be positive")
)

// satsPerBTC is the number of base units in one BTC (1e8).
const satsPerBTC = 100_000_000

// Deposit is a credited incoming payment. Exactly one Deposit exists per
// qualifying transaction id; the amount is the sum of every output of that
// transaction paying the watched address.
type Deposit struct {
	TxID       string    `json:"txid"`
	AmountSats int64     `json:"amountSats"`
	CreditedAt time.Time `json:"creditedAt"`
}

// AmountBTC returns the display value of the deposit in BTC.
// The satoshi amount remains the authoritative value.
func (d Deposit) AmountBTC() decimal.Decimal {
	return decimal.New(d.AmountSats, -8)
}

// Validate checks that the deposit is well formed before it is committed.
func (d Deposit) Validate() error {
	if d.TxID == "" {
		return ErrEmptyTxID
	}
	if d.AmountSats <= 0 {
		return ErrNonPositiveAmount
	}
	return nil
}

// Account is the persisted aggregate: the ordered deposit history (insertion
// order is credit order) and the running balance in satoshis. The balance
// always equals the sum of the deposit amounts.
type Account struct {
	Deposits    []Deposit `json:"deposits"`
	BalanceSats int64     `json:"balanceSats"`
}

// BalanceBTC renders the balance as a decimal string with 8 fraction digits.
func (a *Account) BalanceBTC() string {
	return decimal.New(a.BalanceSats, -8).StringFixed(8)
}

// Has reports whether a deposit with the given txid has already been credited.
func (a *Account) Has(txid string) bool {
	for _, d := range a.Deposits {
		if d.TxID == txid {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the account so callers can read it without
// holding any store lock.
func (a *Account) Clone() *Account {
	deposits := make([]Deposit, len(a.Deposits))
	copy(deposits, a.Deposits)
	return &Account{
		Deposits:    deposits,
		BalanceSats: a.BalanceSats,
	}
}

// sumDeposits recomputes the balance from the deposit history.
func sumDeposits(deposits []Deposit) int64 {
	var total int64
	for _, d := range deposits {
		total += d.AmountSats
	}
	return total
}

// Store is the durable record of credited deposits and the running balance.
//
// Commit is the sole mutation point. It atomically re-checks the txid,
// appends the deposit, increases the balance and persists the new state
// before returning. A duplicate txid is not an error: Commit reports
// credited=false and leaves the state untouched, which is what makes
// reconciliation passes idempotent across ticks, overlapping passes and
// process restarts.
type Store interface {
	// Load reads the durable state, defaulting to the zero-value account
	// when no prior state exists.
	Load(ctx context.Context) (*Account, error)

	// Commit durably credits the deposit. credited is false when the txid
	// was already present. On persistence failure the in-memory state is
	// unchanged and the error is returned.
	Commit(ctx context.Context, deposit Deposit) (credited bool, err error)

	// Snapshot returns a consistent read-only copy of the current state.
	Snapshot(ctx context.Context) (*Account, error)

	// Close releases any resources held by the store.
	Close() error
}
