package electrum

import (
	"context"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/vaulterr"
)

// scriptHashRPC is the subset of Client's methods Oracle depends on,
// narrowed to an interface so the aggregation logic is testable without
// a live socket.
type scriptHashRPC interface {
	GetBalanceForScript(ctx context.Context, scripthash string) (chainoracle.Balance, error)
	ListUnspentForScript(ctx context.Context, scripthash string) ([]chainoracle.UTXO, error)
	Broadcast(ctx context.Context, txBytes []byte) (string, error)
	EstimateFee(ctx context.Context, targetBlocks int) (float64, error)
	TipHeight(ctx context.Context) (int64, error)
}

// Oracle adapts a single Client into the descriptor-level
// chainoracle.Oracle contract by aggregating per-scripthash RPCs across
// every script a descriptor derives.
type Oracle struct {
	client  scriptHashRPC
	scripts func(descriptor string) ([][]byte, error)
}

// NewOracle builds a descriptor-level Oracle. scripts must return every
// scriptPubKey the descriptor currently watches.
func NewOracle(client *Client, scripts func(descriptor string) ([][]byte, error)) *Oracle {
	return &Oracle{client: client, scripts: scripts}
}

func (o *Oracle) GetBalance(ctx context.Context, descriptor string) (chainoracle.Balance, error) {
	scripts, err := o.scripts(descriptor)
	if err != nil {
		return chainoracle.Balance{}, vaulterr.InputInvalid("deriving descriptor scripts", err)
	}
	var total chainoracle.Balance
	for _, s := range scripts {
		b, err := o.client.GetBalanceForScript(ctx, ScriptHash(s))
		if err != nil {
			return chainoracle.Balance{}, err
		}
		total.Confirmed += b.Confirmed
		total.UntrustedPending += b.UntrustedPending
	}
	return total, nil
}

func (o *Oracle) ListUTXOs(ctx context.Context, descriptor string) ([]chainoracle.UTXO, error) {
	scripts, err := o.scripts(descriptor)
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving descriptor scripts", err)
	}
	var all []chainoracle.UTXO
	for _, s := range scripts {
		utxos, err := o.client.ListUnspentForScript(ctx, ScriptHash(s))
		if err != nil {
			return nil, err
		}
		all = append(all, utxos...)
	}
	return all, nil
}

func (o *Oracle) Broadcast(ctx context.Context, txBytes []byte) (string, error) {
	return o.client.Broadcast(ctx, txBytes)
}

func (o *Oracle) EstimateFee(ctx context.Context, targetBlocks int) (float64, error) {
	return o.client.EstimateFee(ctx, targetBlocks)
}

func (o *Oracle) TipHeight(ctx context.Context) (int64, error) {
	return o.client.TipHeight(ctx)
}

var _ chainoracle.Oracle = (*Oracle)(nil)
