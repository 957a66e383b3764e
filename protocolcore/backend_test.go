package protocolcore

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/vault/sdk/logical"
	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/storage"
)

type fakeOracle struct{}

func (fakeOracle) GetBalance(ctx context.Context, descriptor string) (chainoracle.Balance, error) {
	return chainoracle.Balance{}, nil
}
func (fakeOracle) ListUTXOs(ctx context.Context, descriptor string) ([]chainoracle.UTXO, error) {
	return nil, nil
}
func (fakeOracle) Broadcast(ctx context.Context, txBytes []byte) (string, error) {
	return "deadbeef", nil
}
func (fakeOracle) EstimateFee(ctx context.Context, targetBlocks int) (float64, error) {
	return 1, nil
}
func (fakeOracle) TipHeight(ctx context.Context) (int64, error) { return 100, nil }

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "leveldb")
	db, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, storage.EnsureSchema(ctx, db))

	return New(Deps{
		Store:  storage.New(db),
		Oracle: fakeOracle{},
	})
}

func fixtureUnsignedPSBTBase64(t *testing.T) string {
	t.Helper()
	tx := wire.NewMsgTx(2)
	hash, err := chainhash.NewHashFromStr("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x00}))

	p, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Serialize(&buf))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestConfigWriteThenRead(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.CreateOperation,
		Path:      "config",
		Storage:   b.store.Raw(),
		Data: map[string]interface{}{
			"network":                 "signet",
			"min_confirmations":       2,
			"default_fee_rate_sat_vb": 15,
		},
	})
	require.NoError(t, err)

	resp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.ReadOperation,
		Path:      "config",
		Storage:   b.store.Raw(),
	})
	require.NoError(t, err)
	require.Equal(t, "signet", resp.Data["network"])
	require.Equal(t, 2, resp.Data["min_confirmations"])
}

func TestPolicySaveReadListDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	storageRef := b.store.Raw()

	resp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.CreateOperation,
		Path:      "policies/new",
		Storage:   storageRef,
		Data: map[string]interface{}{
			"name":        "family vault",
			"descriptor":  "tr(KEY)",
			"network":     string(config.NetworkTestnet4),
		},
	})
	require.NoError(t, err)
	id := resp.Data["id"].(string)
	require.NotEmpty(t, id)

	resp, err = b.HandleRequest(ctx, &logical.Request{
		Operation: logical.ReadOperation,
		Path:      "policies/" + id,
		Storage:   storageRef,
	})
	require.NoError(t, err)
	require.Equal(t, "tr(KEY)", resp.Data["descriptor"])

	resp, err = b.HandleRequest(ctx, &logical.Request{
		Operation: logical.ListOperation,
		Path:      "policies/",
		Storage:   storageRef,
	})
	require.NoError(t, err)
	require.Contains(t, resp.Data["keys"].([]string), id)

	_, err = b.HandleRequest(ctx, &logical.Request{
		Operation: logical.DeleteOperation,
		Path:      "policies/" + id,
		Storage:   storageRef,
	})
	require.NoError(t, err)

	resp, err = b.HandleRequest(ctx, &logical.Request{
		Operation: logical.ReadOperation,
		Path:      "policies/" + id,
		Storage:   storageRef,
	})
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestProposalDraftAndApproveAccumulates(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	storageRef := b.store.Raw()

	policyResp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.CreateOperation,
		Path:      "policies/new",
		Storage:   storageRef,
		Data: map[string]interface{}{
			"name":       "two of three",
			"descriptor": "tr(KEY)",
			"network":    string(config.NetworkTestnet4),
		},
	})
	require.NoError(t, err)
	policyID := policyResp.Data["id"].(string)

	unsigned := fixtureUnsignedPSBTBase64(t)

	draftResp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.CreateOperation,
		Path:      "proposals/",
		Storage:   storageRef,
		Data: map[string]interface{}{
			"policy_id":        policyID,
			"unsigned_psbt":    unsigned,
			"description":      "pay the plumber",
			"freeze_outpoints": "aaaa:0",
		},
	})
	require.NoError(t, err)
	proposalID := draftResp.Data["id"].(string)

	approveResp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.UpdateOperation,
		Path:      "proposals/" + proposalID + "/approve",
		Storage:   storageRef,
		Data: map[string]interface{}{
			"signer_pub_key": "1111111111111111111111111111111111111111111111111111111111111111",
			"signed_psbt":    unsigned,
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, approveResp.Data["approvals_count"])

	readResp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.ReadOperation,
		Path:      "proposals/" + proposalID,
		Storage:   storageRef,
	})
	require.NoError(t, err)
	require.Equal(t, "Pending", readResp.Data["status"])
	require.Equal(t, 1, readResp.Data["approvals_count"])
}

func TestProposalDeleteExpiresAndReleasesFreeze(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	storageRef := b.store.Raw()

	policyResp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.CreateOperation,
		Path:      "policies/new",
		Storage:   storageRef,
		Data: map[string]interface{}{
			"name":       "solo",
			"descriptor": "tr(KEY)",
			"network":    string(config.NetworkTestnet4),
		},
	})
	require.NoError(t, err)
	policyID := policyResp.Data["id"].(string)

	draftResp, err := b.HandleRequest(ctx, &logical.Request{
		Operation: logical.CreateOperation,
		Path:      "proposals/",
		Storage:   storageRef,
		Data: map[string]interface{}{
			"policy_id":        policyID,
			"unsigned_psbt":    fixtureUnsignedPSBTBase64(t),
			"freeze_outpoints": "bbbb:1",
		},
	})
	require.NoError(t, err)
	proposalID := draftResp.Data["id"].(string)

	frozen, err := b.store.FrozenUTXOs(ctx)
	require.NoError(t, err)
	require.True(t, frozen["bbbb:1"])

	_, err = b.HandleRequest(ctx, &logical.Request{
		Operation: logical.DeleteOperation,
		Path:      "proposals/" + proposalID,
		Storage:   storageRef,
	})
	require.NoError(t, err)

	frozen, err = b.store.FrozenUTXOs(ctx)
	require.NoError(t, err)
	require.False(t, frozen["bbbb:1"])
}
