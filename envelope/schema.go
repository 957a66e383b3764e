package envelope

import (
	"encoding/json"

	"github.com/covault-labs/custody/vaulterr"
)

// PolicyAnnounceContent, ProposalContent and ApprovalContent are the
// decrypted content schemas for the three core event kinds; other kinds
// reuse the same json-schema-by-struct approach with their own storage
// package types (policy, proposal). Validation failures here are
// reported but non-fatal — the event is quarantined, per §4.4.
type PolicyAnnounceContent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Descriptor  string `json:"descriptor"`
}

type ProposalContent struct {
	PolicyID    string `json:"policy_id"`
	Kind        string `json:"kind"`
	PSBT        string `json:"psbt"`
	Description string `json:"description"`
}

type ApprovalContent struct {
	ProposalID string `json:"proposal_id"`
	SignerPub  string `json:"signer_pubkey"`
	SignedPSBT string `json:"signed_psbt"`
}

// ValidateSchema decodes content against the schema registered for kind
// and reports whether it is well-formed. The boolean is the verdict; on
// a mismatch the returned error carries the quarantine reason, so callers
// can quarantine the event instead of aborting their pipeline.
func ValidateSchema(kind Kind, content []byte) (ok bool, quarantineReason error) {
	var err error
	switch kind {
	case KindPolicyAnnounce:
		var v PolicyAnnounceContent
		err = json.Unmarshal(content, &v)
		if err == nil && (v.Descriptor == "" || v.Name == "") {
			err = vaulterr.InputInvalid("policy announce missing required fields", nil)
		}
	case KindProposal:
		var v ProposalContent
		err = json.Unmarshal(content, &v)
		if err == nil && (v.PolicyID == "" || v.PSBT == "") {
			err = vaulterr.InputInvalid("proposal missing required fields", nil)
		}
	case KindApproval:
		var v ApprovalContent
		err = json.Unmarshal(content, &v)
		if err == nil && (v.ProposalID == "" || v.SignedPSBT == "") {
			err = vaulterr.InputInvalid("approval missing required fields", nil)
		}
	default:
		// Kinds without a registered schema (labels, key-agent metadata,
		// chat) are opaque at this layer; their own consumer validates.
		var generic map[string]interface{}
		err = json.Unmarshal(content, &generic)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
