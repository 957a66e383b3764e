package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/config"
)

const (
	keyA = "03aa11111111111111111111111111111111111111111111111111111111111a"
	keyB = "03bb11111111111111111111111111111111111111111111111111111111111b"
)

func TestCompileSamePolicySameID(t *testing.T) {
	descriptor := "tr(" + keyA + ",and_v(v:pk(" + keyB + "),older(52560)))"
	a, err := Compile("vault", "", descriptor, config.NetworkTestnet4)
	require.NoError(t, err)
	b, err := Compile("vault-copy", "different description", descriptor, config.NetworkTestnet4)
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID)
}

func TestCompileDifferentNetworkDifferentID(t *testing.T) {
	descriptor := "tr(" + keyA + ",pk(" + keyB + "))"
	a, err := Compile("v", "", descriptor, config.NetworkTestnet4)
	require.NoError(t, err)
	b, err := Compile("v", "", descriptor, config.NetworkBitcoin)
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestHoldLockTemplate(t *testing.T) {
	descriptor := "tr(" + keyA + ",and_v(v:pk(" + keyB + "),older(52560)))"
	p, err := Compile("v", "", descriptor, config.NetworkTestnet4)
	require.NoError(t, err)
	require.Equal(t, TemplateHoldLock, p.TemplateClass)
}

func TestMultisigKofNTemplate(t *testing.T) {
	descriptor := "wsh(multi_a(2," + keyA + "," + keyB + "))"
	p, err := Compile("v", "", descriptor, config.NetworkTestnet4)
	require.NoError(t, err)
	require.Equal(t, TemplateMultisigKofN, p.TemplateClass)
	require.Len(t, p.PublicKeys, 2)
}

func TestNoNamedSignersRejected(t *testing.T) {
	_, err := Compile("v", "", "tr("+keyA+")", config.NetworkTestnet4)
	require.NoError(t, err) // internal-only key still names one signer

	_, err = Compile("v", "", "", config.NetworkTestnet4)
	require.Error(t, err)

	_, err = Compile("v", "", "wsh(older(52560))", config.NetworkTestnet4)
	require.Error(t, err)
}

func TestNetworkMismatchRejected(t *testing.T) {
	_, err := Compile("v", "", "tr("+keyA+")", config.Network("mars"))
	require.Error(t, err)
}
