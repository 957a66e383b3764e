package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/chainoracle"
)

type fakeOracle struct {
	utxos map[string][]chainoracle.UTXO
}

func (f *fakeOracle) GetBalance(context.Context, string) (chainoracle.Balance, error) { return chainoracle.Balance{}, nil }
func (f *fakeOracle) ListUTXOs(_ context.Context, descriptor string) ([]chainoracle.UTXO, error) {
	return f.utxos[descriptor], nil
}
func (f *fakeOracle) Broadcast(context.Context, []byte) (string, error)    { return "", nil }
func (f *fakeOracle) EstimateFee(context.Context, int) (float64, error)    { return 0, nil }
func (f *fakeOracle) TipHeight(context.Context) (int64, error)             { return 0, nil }

type fakeWatcher struct {
	descriptors []string
	saved       map[string][]chainoracle.UTXO
}

func (f *fakeWatcher) WatchedDescriptors() ([]string, error) { return f.descriptors, nil }
func (f *fakeWatcher) SaveUTXOs(descriptor string, utxos []chainoracle.UTXO) error {
	if f.saved == nil {
		f.saved = make(map[string][]chainoracle.UTXO)
	}
	f.saved[descriptor] = utxos
	return nil
}

func TestPollerSavesUTXOsForEveryWatchedDescriptor(t *testing.T) {
	oracle := &fakeOracle{utxos: map[string][]chainoracle.UTXO{
		"tr(KEY1)": {{TxID: "aaaa", Amount: 1000}},
		"tr(KEY2)": {{TxID: "bbbb", Amount: 2000}},
	}}
	watcher := &fakeWatcher{descriptors: []string{"tr(KEY1)", "tr(KEY2)"}}

	p := NewPoller(oracle, watcher, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, watcher.saved["tr(KEY1)"], 1)
	require.Len(t, watcher.saved["tr(KEY2)"], 1)
}
