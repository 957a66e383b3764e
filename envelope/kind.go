package envelope

// Kind is the canonical integer discriminator for a relay event, fixed
// across deployments per §4.4. The open question of which integers to
// assign (§9) is resolved here as a contiguous block starting at 31000,
// chosen to sit outside the ranges other relay-based protocols in active
// use occupy.
type Kind int

const (
	KindPolicyAnnounce      Kind = 31000
	KindSharedKey           Kind = 31001
	KindProposal            Kind = 31002
	KindApproval            Kind = 31003
	KindCompletedProposal   Kind = 31004
	KindSigner              Kind = 31005
	KindSharedSignerOffer   Kind = 31006
	KindSharedSignerAccept  Kind = 31007
	KindLabel               Kind = 31008
	KindKeyAgentProfile     Kind = 31009
	KindKeyAgentSigner      Kind = 31010
	KindVaultInvite         Kind = 31011
	KindVaultJoin           Kind = 31012
	KindProposalChat        Kind = 31013
)

// EncryptionMode distinguishes the two conventions §4.4 defines.
type EncryptionMode int

const (
	// Direct is NIP-04-style one-to-one encryption via ECDH between the
	// sender and a single recipient's schnorr keys.
	Direct EncryptionMode = iota
	// Shared is identical AES-256-CBC construction keyed by the policy's
	// SharedKey rather than an ECDH-derived key.
	Shared
)

// modeForKind returns which encryption convention a given event kind
// uses, per §4.4's categorization.
func modeForKind(k Kind) EncryptionMode {
	switch k {
	case KindSharedKey, KindVaultInvite, KindSharedSignerOffer, KindSharedSignerAccept:
		return Direct
	default:
		return Shared
	}
}
