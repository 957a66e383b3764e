package psbtx

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func fixturePacket(t *testing.T) *psbt.Packet {
	t.Helper()
	tx := wire.NewMsgTx(2)
	hash, err := chainhash.NewHashFromStr("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x00}))
	p, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	return p
}

func TestValidateFeeRate(t *testing.T) {
	require.NoError(t, ValidateFeeRate(10))
	require.Error(t, ValidateFeeRate(0))
	require.Error(t, ValidateFeeRate(MaxReasonableFeeRate+1))
}

func TestSelectUTXOsExcludesFrozenUnlessAllowed(t *testing.T) {
	utxos := []UTXO{
		{TxID: "aaaa", Vout: 0, Value: 5000, AddressKind: AddressP2WPKH},
		{TxID: "bbbb", Vout: 0, Value: 3000, AddressKind: AddressP2WPKH},
	}
	frozen := map[string]bool{"aaaa:0": true}

	_, _, err := SelectUTXOs(utxos, 4000, 1, frozen, false)
	require.Error(t, err) // only 3000 sat unfrozen available

	selected, _, err := SelectUTXOs(utxos, 4000, 1, frozen, true)
	require.NoError(t, err)
	require.NotEmpty(t, selected)
}

func TestSelectUTXOsLargestFirst(t *testing.T) {
	utxos := []UTXO{
		{TxID: "small", Vout: 0, Value: 1000, AddressKind: AddressP2WPKH},
		{TxID: "big", Vout: 0, Value: 50000, AddressKind: AddressP2WPKH},
	}
	selected, _, err := SelectUTXOs(utxos, 2000, 1, nil, false)
	require.NoError(t, err)
	require.Equal(t, "big", selected[0].TxID)
}

func TestParseBip32Path(t *testing.T) {
	path, err := parseBip32Path("m/86'/0'/0'/0/3")
	require.NoError(t, err)
	require.Equal(t, []uint32{
		0x80000000 + 86,
		0x80000000 + 0,
		0x80000000 + 0,
		0,
		3,
	}, path)
}

func TestCombineDedupesIdenticalSignatures(t *testing.T) {
	a := fixturePacket(t)
	b := fixturePacket(t)
	sig := &psbt.PartialSig{PubKey: []byte{0x02, 0x01}, Signature: []byte{0xde, 0xad}}
	a.Inputs[0].PartialSigs = []*psbt.PartialSig{sig}
	b.Inputs[0].PartialSigs = []*psbt.PartialSig{sig}

	combined, err := Combine([]*psbt.Packet{a, b})
	require.NoError(t, err)
	require.Len(t, combined.Inputs[0].PartialSigs, 1)
}

func TestCombineRejectsConflictingSignatures(t *testing.T) {
	a := fixturePacket(t)
	b := fixturePacket(t)
	a.Inputs[0].PartialSigs = []*psbt.PartialSig{{PubKey: []byte{0x02, 0x01}, Signature: []byte{0x01}}}
	b.Inputs[0].PartialSigs = []*psbt.PartialSig{{PubKey: []byte{0x02, 0x01}, Signature: []byte{0x02}}}

	_, err := Combine([]*psbt.Packet{a, b})
	require.Error(t, err)
}
