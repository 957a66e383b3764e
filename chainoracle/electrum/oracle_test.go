package electrum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/chainoracle"
)

type fakeRPC struct {
	balances map[string]chainoracle.Balance
	utxos    map[string][]chainoracle.UTXO
	tipHeight int64
	fee       float64
}

func (f *fakeRPC) GetBalanceForScript(_ context.Context, scripthash string) (chainoracle.Balance, error) {
	return f.balances[scripthash], nil
}

func (f *fakeRPC) ListUnspentForScript(_ context.Context, scripthash string) ([]chainoracle.UTXO, error) {
	return f.utxos[scripthash], nil
}

func (f *fakeRPC) Broadcast(_ context.Context, txBytes []byte) (string, error) {
	return "deadbeef", nil
}

func (f *fakeRPC) EstimateFee(_ context.Context, targetBlocks int) (float64, error) {
	return f.fee, nil
}

func (f *fakeRPC) TipHeight(_ context.Context) (int64, error) {
	return f.tipHeight, nil
}

func TestOracleAggregatesBalanceAcrossScripts(t *testing.T) {
	scriptA := []byte{0xaa}
	scriptB := []byte{0xbb}
	hashA := ScriptHash(scriptA)
	hashB := ScriptHash(scriptB)

	fake := &fakeRPC{
		balances: map[string]chainoracle.Balance{
			hashA: {Confirmed: 1000, UntrustedPending: 0},
			hashB: {Confirmed: 500, UntrustedPending: 200},
		},
	}

	o := &Oracle{
		client: fake,
		scripts: func(descriptor string) ([][]byte, error) {
			return [][]byte{scriptA, scriptB}, nil
		},
	}

	bal, err := o.GetBalance(context.Background(), "tr(KEY)")
	require.NoError(t, err)
	require.Equal(t, int64(1500), bal.Confirmed)
	require.Equal(t, int64(200), bal.UntrustedPending)
}

func TestOracleAggregatesUTXOsAcrossScripts(t *testing.T) {
	scriptA := []byte{0xaa}
	hashA := ScriptHash(scriptA)

	fake := &fakeRPC{
		utxos: map[string][]chainoracle.UTXO{
			hashA: {{TxID: "aaaa", Amount: 1000}, {TxID: "bbbb", Amount: 2000}},
		},
	}

	o := &Oracle{
		client:  fake,
		scripts: func(descriptor string) ([][]byte, error) { return [][]byte{scriptA}, nil },
	}

	utxos, err := o.ListUTXOs(context.Background(), "tr(KEY)")
	require.NoError(t, err)
	require.Len(t, utxos, 2)
}

func TestOracleDelegatesBroadcastFeeAndTip(t *testing.T) {
	fake := &fakeRPC{tipHeight: 800000, fee: 2.5}
	o := &Oracle{client: fake, scripts: func(string) ([][]byte, error) { return nil, nil }}

	txid, err := o.Broadcast(context.Background(), []byte{0x01})
	require.NoError(t, err)
	require.Equal(t, "deadbeef", txid)

	fee, err := o.EstimateFee(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, 2.5, fee)

	height, err := o.TipHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(800000), height)
}
