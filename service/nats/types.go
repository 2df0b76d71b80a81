package nats

import (
	"time"

	"github.com/chainvest/chainvest/service/ledger"
)

// DepositEvent is the event published to NATS for every newly credited
// deposit, on the subject "deposits.{address}". Subscribers connected at
// publish time receive one event per deposit; there is no replay for late
// joiners, who use the account endpoint for history.
type DepositEvent struct {
	TxID        string    `json:"txid"`
	Address     string    `json:"address"`
	Network     string    `json:"network"`
	AmountSats  int64     `json:"amountSats"`
	AmountBTC   string    `json:"amountBTC"`
	CreditedAt  time.Time `json:"creditedAt"`
	PublishedAt time.Time `json:"publishedAt"`
}

// FromDeposit converts a credited ledger deposit to a DepositEvent.
func FromDeposit(d ledger.Deposit, address, network string) *DepositEvent {
	return &DepositEvent{
		TxID:        d.TxID,
		Address:     address,
		Network:     network,
		AmountSats:  d.AmountSats,
		AmountBTC:   d.AmountBTC().StringFixed(8),
		CreditedAt:  d.CreditedAt,
		PublishedAt: time.Now().UTC(),
	}
}
