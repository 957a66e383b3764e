package proposal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/vaulterr"
)

func sampleHash(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

func TestAddApprovalRejectsStalePSBT(t *testing.T) {
	p := New(sampleHash(1), sampleHash(2), KindSpend, []byte("unsigned"), sampleHash(3), "send to alice")

	err := p.AddApproval(&Approval{
		ID:           sampleHash(10),
		ProposalID:   p.ID,
		SignerPubKey: sampleHash(20),
		SignedPSBT:   []byte("signed-for-wrong-version"),
		UnsignedHash: sampleHash(99), // mismatched
		CreatedAt:    1000,
	})
	require.Error(t, err)
	require.Equal(t, vaulterr.CodeConsistencyError, vaulterr.CodeOf(err))
	require.Empty(t, p.Approvals())
}

func TestAddApprovalKeepsLatestPerSigner(t *testing.T) {
	p := New(sampleHash(1), sampleHash(2), KindSpend, []byte("unsigned"), sampleHash(3), "")
	signer := sampleHash(20)

	require.NoError(t, p.AddApproval(&Approval{
		ID: sampleHash(10), SignerPubKey: signer, UnsignedHash: sampleHash(3), CreatedAt: 1000,
	}))
	require.NoError(t, p.AddApproval(&Approval{
		ID: sampleHash(11), SignerPubKey: signer, UnsignedHash: sampleHash(3), CreatedAt: 2000,
	}))

	approvals := p.Approvals()
	require.Len(t, approvals, 1)
	require.Equal(t, sampleHash(11), approvals[0].ID)
}

func TestAddApprovalTieBreaksOnEventID(t *testing.T) {
	p := New(sampleHash(1), sampleHash(2), KindSpend, []byte("unsigned"), sampleHash(3), "")
	signer := sampleHash(20)

	low := sampleHash(5)
	high := sampleHash(200)

	require.NoError(t, p.AddApproval(&Approval{
		ID: high, SignerPubKey: signer, UnsignedHash: sampleHash(3), CreatedAt: 1000,
	}))
	// Same timestamp, lower id: must not replace the higher id.
	require.NoError(t, p.AddApproval(&Approval{
		ID: low, SignerPubKey: signer, UnsignedHash: sampleHash(3), CreatedAt: 1000,
	}))

	approvals := p.Approvals()
	require.Len(t, approvals, 1)
	require.Equal(t, high, approvals[0].ID)
}

func TestAddApprovalFromDifferentSignersAccumulate(t *testing.T) {
	p := New(sampleHash(1), sampleHash(2), KindSpend, []byte("unsigned"), sampleHash(3), "")

	require.NoError(t, p.AddApproval(&Approval{
		ID: sampleHash(10), SignerPubKey: sampleHash(20), UnsignedHash: sampleHash(3), CreatedAt: 1000,
	}))
	require.NoError(t, p.AddApproval(&Approval{
		ID: sampleHash(11), SignerPubKey: sampleHash(21), UnsignedHash: sampleHash(3), CreatedAt: 1000,
	}))

	require.Len(t, p.Approvals(), 2)
}

func TestCompleteAndExpireAreTerminalAndMutuallyExclusive(t *testing.T) {
	p := New(sampleHash(1), sampleHash(2), KindSpend, nil, sampleHash(3), "")
	require.False(t, p.IsTerminal())

	require.NoError(t, p.Complete())
	require.True(t, p.IsTerminal())
	require.Equal(t, StatusCompleted, p.Status)

	// A completed proposal cannot also expire or re-accumulate approvals.
	require.Error(t, p.Expire())
	require.Error(t, p.AddApproval(&Approval{SignerPubKey: sampleHash(30), UnsignedHash: sampleHash(3)}))
}

func TestExpireIsTerminal(t *testing.T) {
	p := New(sampleHash(1), sampleHash(2), KindSpend, nil, sampleHash(3), "")
	require.NoError(t, p.Expire())
	require.True(t, p.IsTerminal())
	require.Equal(t, StatusExpired, p.Status)
	require.Error(t, p.Complete())
}
