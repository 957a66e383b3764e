// Package chainoracle defines the chain-observation contract the
// protocol core depends on and implementations that satisfy it, per §6.
package chainoracle

import "context"

// Balance mirrors the four-way balance split §6 specifies.
type Balance struct {
	Immature          int64
	TrustedPending     int64
	UntrustedPending   int64
	Confirmed          int64
}

// UTXO is a single unspent output belonging to a watched descriptor.
type UTXO struct {
	TxID      string
	Vout      uint32
	Amount    int64
	Keychain  string // "external" or "internal"
	Index     uint32
	Confirmed bool
}

// Oracle abstracts bitcoin-network interaction behind the five
// operations named in §6's chain oracle contract. Every call takes a
// context so the 30s default chain-oracle timeout (§5) is enforced by
// the caller, not the implementation.
type Oracle interface {
	GetBalance(ctx context.Context, descriptor string) (Balance, error)
	ListUTXOs(ctx context.Context, descriptor string) ([]UTXO, error)
	Broadcast(ctx context.Context, txBytes []byte) (txid string, err error)
	EstimateFee(ctx context.Context, targetBlocks int) (satPerVB float64, err error)
	TipHeight(ctx context.Context) (int64, error)
}
