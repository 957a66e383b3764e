package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/config"
)

func TestFromMnemonicIsDeterministic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)

	a, err := FromMnemonic(mnemonic, "", config.NetworkTestnet4)
	require.NoError(t, err)
	b, err := FromMnemonic(mnemonic, "", config.NetworkTestnet4)
	require.NoError(t, err)

	require.Equal(t, a.PubKeyHex(), b.PubKeyHex())

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fpA, fpB)
}

func TestFromMnemonicRejectsBadChecksum(t *testing.T) {
	_, err := FromMnemonic("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", "", config.NetworkBitcoin)
	require.Error(t, err)
}

func TestRelaySignRoundTrip(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	id, err := FromMnemonic(mnemonic, "", config.NetworkBitcoin)
	require.NoError(t, err)

	var msg [32]byte
	copy(msg[:], []byte("deterministic test message digest padded out"))

	sig, err := id.Relay.Sign(msg)
	require.NoError(t, err)
	require.True(t, Verify(id.Relay.XOnlyPubKey(), msg, sig))

	sig[0] ^= 0xff
	require.False(t, Verify(id.Relay.XOnlyPubKey(), msg, sig))
}

func TestAccountXpubFormats(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	id, err := FromMnemonic(mnemonic, "", config.NetworkBitcoin)
	require.NoError(t, err)

	zpub, path, err := id.Bitcoin.AccountXpub(PurposeBIP84, 0)
	require.NoError(t, err)
	require.Equal(t, "m/84'/0'/0'", path)
	require.Equal(t, "zpub", zpub[:4])

	xpub, _, err := id.Bitcoin.AccountXpub(PurposeBIP86, 0)
	require.NoError(t, err)
	require.Equal(t, "xpub", xpub[:4])
}
