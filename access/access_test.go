package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/envelope"
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

func TestParticipantInviteRoundTrip(t *testing.T) {
	sharer := testIdentity(t)
	candidate := testIdentity(t)

	sharedKey, err := envelope.NewSharedKey()
	require.NoError(t, err)

	content := InviteContent{
		PolicyID:     "abc123",
		Descriptor:   "tr(KEY)",
		Name:         "family vault",
		Role:         RoleParticipant,
		SharedKeyHex: "deadbeef",
	}
	e, _, err := NewInvite(sharer.Relay, candidate.Relay.XOnlyPubKey(), content, 1700000000)
	require.NoError(t, err)
	require.True(t, e.Verify())

	opened, err := OpenInvite(candidate.Relay, sharer.Relay.XOnlyPubKey(), e)
	require.NoError(t, err)
	require.Equal(t, content, *opened)

	_ = sharedKey
}

func TestWatcherInviteRequiresNoSharedKey(t *testing.T) {
	sharer := testIdentity(t)
	candidate := testIdentity(t)

	content := InviteContent{PolicyID: "abc123", Descriptor: "tr(KEY)", Role: RoleWatcher}
	e, _, err := NewInvite(sharer.Relay, candidate.Relay.XOnlyPubKey(), content, 1700000000)
	require.NoError(t, err)
	require.True(t, e.Verify())
}

func TestParticipantInviteWithoutSharedKeyRejected(t *testing.T) {
	sharer := testIdentity(t)
	candidate := testIdentity(t)

	content := InviteContent{PolicyID: "abc123", Role: RoleParticipant}
	_, _, err := NewInvite(sharer.Relay, candidate.Relay.XOnlyPubKey(), content, 1700000000)
	require.Error(t, err)
}

func TestSignerOfferAcceptRevokeFlow(t *testing.T) {
	sharer := testIdentity(t)
	candidate := testIdentity(t)

	offer, err := NewSignerOffer(sharer.Relay, candidate.Relay.XOnlyPubKey(), SignerOfferContent{
		ExtendedKey: "zpub...",
		Fingerprint: "aabbccdd",
		Label:       "cold storage",
	}, 1700000000)
	require.NoError(t, err)
	require.True(t, offer.Verify())

	offerIDHex := hexOf(offer.ID)
	accept, err := NewSignerAccept(candidate.Relay, sharer.Relay.XOnlyPubKey(), offerIDHex, 1700000100)
	require.NoError(t, err)
	require.True(t, accept.Verify())
	require.Equal(t, []string{offerIDHex}, accept.TagValues("e"))

	revoke, err := NewSignerRevoke(sharer.Relay, offerIDHex, 1700000200)
	require.NoError(t, err)
	require.True(t, revoke.Verify())
	require.Equal(t, []string{offerIDHex}, revoke.TagValues("e"))
}

func TestKeyAgentProfileAndSignerDiscoverable(t *testing.T) {
	agent := testIdentity(t)
	sharedKey, err := envelope.NewSharedKey()
	require.NoError(t, err)

	profile, err := NewKeyAgentProfile(agent.Relay, KeyAgentProfileContent{
		Name:               "acme key agent",
		FeePerSignature:    5000,
		SupportedTemplates: []string{"MultisigKofN"},
	}, sharedKey, 1700000000)
	require.NoError(t, err)
	require.Equal(t, []string{DiscoveryTag}, profile.TagValues("t"))

	signer, err := NewKeyAgentSigner(agent.Relay, KeyAgentSignerContent{
		ExtendedKey: "xpub...",
		Template:    "MultisigKofN",
	}, sharedKey, 1700000001)
	require.NoError(t, err)
	require.Equal(t, []string{DiscoveryTag}, signer.TagValues("t"))
}

func TestJoinAcknowledgementReferencesInvite(t *testing.T) {
	joiner := testIdentity(t)
	sharedKey, err := envelope.NewSharedKey()
	require.NoError(t, err)

	j, err := NewJoin(joiner.Relay, sharedKey, JoinContent{
		PolicyID: "abc123",
		InviteID: "deadbeef",
		Name:     "bob",
	}, 1700000000)
	require.NoError(t, err)
	require.True(t, j.Verify())
	require.Equal(t, []string{"deadbeef"}, j.TagValues("e"))
}
