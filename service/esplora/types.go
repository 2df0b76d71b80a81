package esplora

// TxVout is a transaction output as reported by the Esplora API.
type TxVout struct {
	ScriptPubKey     string `json:"scriptpubkey"`
	ScriptPubKeyType string `json:"scriptpubkey_type"`
	ScriptPubKeyAddr string `json:"scriptpubkey_address,omitempty"`
	Value            int64  `json:"value"`
}

// TxStatus is the confirmation status of a transaction.
// BlockHeight is only meaningful when Confirmed is true.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
}

// TxInfo is a transaction touching an address, as reported by the Esplora
// API. Only the fields the reconciliation path reads are decoded.
type TxInfo struct {
	TxID string   `json:"txid"`
	Vout []TxVout `json:"vout"`
}

// OutputValueTo sums the values of all outputs paying the given address.
// A transaction with no output to the address sums to zero and is irrelevant
// to the watcher regardless of its confirmation state.
func (tx *TxInfo) OutputValueTo(address string) int64 {
	var total int64
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddr == address {
			total += out.Value
		}
	}
	return total
}
