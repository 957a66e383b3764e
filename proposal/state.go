// Package proposal implements the Proposal entity's state machine: the
// Pending/Completed/Expired transitions, approval accumulation with
// tie-break ordering, and stale-approval rejection, per §4.5.
package proposal

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/covault-labs/custody/vaulterr"
)

// Status mirrors the three states named in §3/§4.5.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusExpired   Status = "Expired"
)

// Kind distinguishes the three proposal purposes named in §3.
type Kind string

const (
	KindSpend           Kind = "Spend"
	KindProofOfReserve   Kind = "ProofOfReserve"
	KindKeyAgentPayment  Kind = "KeyAgentPayment"
)

// Approval is an immutable signed-PSBT submission from one signer,
// tracked per §3.
type Approval struct {
	ID            [32]byte
	ProposalID    [32]byte
	SignerPubKey  [32]byte
	SignedPSBT    []byte
	UnsignedHash  [32]byte // hash of the PSBT's unsigned tx, for staleness checks
	CreatedAt     int64
}

// Proposal tracks a pending spend and its accumulated approvals.
type Proposal struct {
	ID           [32]byte
	PolicyID     [32]byte
	Kind         Kind
	UnsignedPSBT []byte
	UnsignedHash [32]byte
	Description  string
	Status       Status

	approvals map[[32]byte]*Approval // keyed by SignerPubKey, latest only
}

// New creates a Pending proposal.
func New(id, policyID [32]byte, kind Kind, unsignedPSBT []byte, unsignedHash [32]byte, description string) *Proposal {
	return &Proposal{
		ID:           id,
		PolicyID:     policyID,
		Kind:         kind,
		UnsignedPSBT: unsignedPSBT,
		UnsignedHash: unsignedHash,
		Description:  description,
		Status:       StatusPending,
		approvals:    make(map[[32]byte]*Approval),
	}
}

// AddApproval applies §4.5's ordering and tie-break rules: approvals from
// the same signer keep only the latest by CreatedAt, with the
// lexicographically greater event id winning ties. An approval signing a
// stale PSBT version (UnsignedHash mismatch) is rejected with
// StaleApproval.
func (p *Proposal) AddApproval(a *Approval) error {
	if p.Status != StatusPending {
		return vaulterr.ConsistencyError("proposal is no longer pending", nil)
	}
	if a.UnsignedHash != p.UnsignedHash {
		return vaulterr.ConsistencyError("StaleApproval: approval signs an obsolete PSBT version", nil)
	}

	existing, ok := p.approvals[a.SignerPubKey]
	if !ok {
		p.approvals[a.SignerPubKey] = a
		return nil
	}

	if a.CreatedAt > existing.CreatedAt {
		p.approvals[a.SignerPubKey] = a
		return nil
	}
	if a.CreatedAt == existing.CreatedAt && bytes.Compare(a.ID[:], existing.ID[:]) > 0 {
		p.approvals[a.SignerPubKey] = a
		return nil
	}
	// Older or losing-tiebreak approval: silently superseded, not an error.
	return nil
}

// Approvals returns the latest-per-signer approval set, sorted by signer
// pubkey for deterministic iteration.
func (p *Proposal) Approvals() []*Approval {
	out := make([]*Approval, 0, len(p.approvals))
	for _, a := range p.approvals {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].SignerPubKey[:], out[j].SignerPubKey[:]) < 0
	})
	return out
}

// Complete transitions a Pending proposal to Completed once a broadcast
// has produced txid. Broadcasting is idempotent at the caller's layer;
// Complete itself only enforces the state transition.
func (p *Proposal) Complete() error {
	if p.Status != StatusPending {
		return vaulterr.ConsistencyError("only a pending proposal can complete", nil)
	}
	p.Status = StatusCompleted
	return nil
}

// Expire transitions a Pending proposal to Expired via timeout or
// explicit deletion.
func (p *Proposal) Expire() error {
	if p.Status != StatusPending {
		return vaulterr.ConsistencyError("only a pending proposal can expire", nil)
	}
	p.Status = StatusExpired
	return nil
}

// IsTerminal reports whether the proposal has left the Pending state,
// which is when its frozen UTXOs are released, per §3.
func (p *Proposal) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusExpired
}

// proposalJSON is the wire shape for Proposal; the unexported approvals
// map is flattened to a slice so storage can round-trip it without
// reaching into the package.
type proposalJSON struct {
	ID           [32]byte    `json:"id"`
	PolicyID     [32]byte    `json:"policy_id"`
	Kind         Kind        `json:"kind"`
	UnsignedPSBT []byte      `json:"unsigned_psbt"`
	UnsignedHash [32]byte    `json:"unsigned_hash"`
	Description  string      `json:"description"`
	Status       Status      `json:"status"`
	Approvals    []*Approval `json:"approvals"`
}

func (p *Proposal) MarshalJSON() ([]byte, error) {
	return json.Marshal(proposalJSON{
		ID:           p.ID,
		PolicyID:     p.PolicyID,
		Kind:         p.Kind,
		UnsignedPSBT: p.UnsignedPSBT,
		UnsignedHash: p.UnsignedHash,
		Description:  p.Description,
		Status:       p.Status,
		Approvals:    p.Approvals(),
	})
}

func (p *Proposal) UnmarshalJSON(data []byte) error {
	var aux proposalJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.ID = aux.ID
	p.PolicyID = aux.PolicyID
	p.Kind = aux.Kind
	p.UnsignedPSBT = aux.UnsignedPSBT
	p.UnsignedHash = aux.UnsignedHash
	p.Description = aux.Description
	p.Status = aux.Status
	p.approvals = make(map[[32]byte]*Approval, len(aux.Approvals))
	for _, a := range aux.Approvals {
		p.approvals[a.SignerPubKey] = a
	}
	return nil
}

// IDHex is a storage-key convenience helper.
func (p *Proposal) IDHex() string { return hex.EncodeToString(p.ID[:]) }
