package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/identity"
)

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	mnemonic, err := identity.GenerateMnemonic()
	require.NoError(t, err)
	id, err := identity.FromMnemonic(mnemonic, "", config.NetworkTestnet4)
	require.NoError(t, err)
	return id
}

func TestEventRoundTripVerifies(t *testing.T) {
	author := testIdentity(t)
	e, err := New(author.Relay, KindProposalChat, 1700000000, []Tag{{"policy", "abc"}}, "hello")
	require.NoError(t, err)
	require.True(t, e.Verify())
}

func TestEventTamperedContentFailsVerify(t *testing.T) {
	author := testIdentity(t)
	e, err := New(author.Relay, KindProposalChat, 1700000000, nil, "hello")
	require.NoError(t, err)
	e.Content = "tampered"
	require.False(t, e.Verify())
}

func TestDirectEncryptionRoundTrip(t *testing.T) {
	sender := testIdentity(t)
	recipient := testIdentity(t)

	payload, err := EncryptDirect(sender.Relay.PrivateKey(), recipient.Relay.XOnlyPubKey(), []byte("shared key material"))
	require.NoError(t, err)

	pt, err := DecryptDirect(recipient.Relay.PrivateKey(), sender.Relay.XOnlyPubKey(), payload)
	require.NoError(t, err)
	require.Equal(t, "shared key material", string(pt))
}

func TestSharedEncryptionRoundTrip(t *testing.T) {
	key, err := NewSharedKey()
	require.NoError(t, err)

	payload, err := EncryptShared(key, []byte("policy body"))
	require.NoError(t, err)

	pt, err := DecryptShared(key, payload)
	require.NoError(t, err)
	require.Equal(t, "policy body", string(pt))

	var wrongKey SharedKey
	_, err = DecryptShared(wrongKey, payload)
	require.Error(t, err)
}

func TestValidateSchemaQuarantinesMalformedProposal(t *testing.T) {
	ok, err := ValidateSchema(KindProposal, []byte(`{"kind":"Spend"}`))
	require.False(t, ok)
	require.Error(t, err)

	ok, err = ValidateSchema(KindProposal, []byte(`{"policy_id":"x","psbt":"cHNidA=="}`))
	require.True(t, ok)
	require.NoError(t, err)
}
