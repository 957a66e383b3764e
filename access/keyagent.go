package access

import (
	"encoding/json"

	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/vaulterr"
)

// KeyAgentProfileContent announces a key agent's fee schedule and which
// policy templates it supports, per §4.7. FeeBasisPoints applies to the
// value of a completed spend; FeePerSignature and FeeAnnualFlat are in
// satoshis.
type KeyAgentProfileContent struct {
	Name              string   `json:"name"`
	FeePerSignature   int64    `json:"fee_per_signature_sats"`
	FeeAnnualFlat     int64    `json:"fee_annual_flat_sats"`
	FeeBasisPoints    int64    `json:"fee_basis_points"`
	SupportedTemplates []string `json:"supported_templates"`
}

// DiscoveryTag is the dedicated category tag key-agent events index
// under so candidates can search for them without a direct relationship.
const DiscoveryTag = "key-agent"

// NewKeyAgentProfile builds the profile announcement event, shared (not
// direct) so any candidate can discover it.
func NewKeyAgentProfile(author *identity.RelayIdentity, content KeyAgentProfileContent, sharedKey envelope.SharedKey, createdAt int64) (*envelope.Event, error) {
	pt, err := json.Marshal(content)
	if err != nil {
		return nil, vaulterr.InputInvalid("encoding key agent profile", err)
	}
	payload, err := envelope.EncryptShared(sharedKey, pt)
	if err != nil {
		return nil, err
	}
	tags := []envelope.Tag{{"t", DiscoveryTag}}
	return envelope.New(author, envelope.KindKeyAgentProfile, createdAt, tags, payload)
}

// KeyAgentSignerContent advertises a shareable xpub for a specific
// template, which a policy author can include when composing a new
// collaborative-custody descriptor.
type KeyAgentSignerContent struct {
	ExtendedKey string `json:"extended_key"`
	Template    string `json:"template"`
}

// NewKeyAgentSigner builds the signer-advertisement event, shared under
// the same discovery tag as the profile.
func NewKeyAgentSigner(author *identity.RelayIdentity, content KeyAgentSignerContent, sharedKey envelope.SharedKey, createdAt int64) (*envelope.Event, error) {
	pt, err := json.Marshal(content)
	if err != nil {
		return nil, vaulterr.InputInvalid("encoding key agent signer", err)
	}
	payload, err := envelope.EncryptShared(sharedKey, pt)
	if err != nil {
		return nil, err
	}
	tags := []envelope.Tag{{"t", DiscoveryTag}}
	return envelope.New(author, envelope.KindKeyAgentSigner, createdAt, tags, payload)
}
