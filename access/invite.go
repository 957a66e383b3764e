// Package access implements invite/join onboarding, signer sharing
// (offer/accept/revoke), and key-agent advertisement, per §4.7.
package access

import (
	"encoding/json"

	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/vaulterr"
)

// Role distinguishes a full participant from a read-only watcher, per §3.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleWatcher     Role = "watcher"
)

// InviteContent is the direct-encrypted payload an existing member sends
// a candidate. A watcher invite omits SharedKeyHex; a participant invite
// carries it so the joiner can decrypt the policy's shared events.
type InviteContent struct {
	PolicyID     string `json:"policy_id"`
	Descriptor   string `json:"descriptor"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	SharedKeyHex string `json:"shared_key,omitempty"`
}

// NewInvite builds and signs a VaultInvite event direct-encrypted for
// candidate. For RoleWatcher, content.SharedKeyHex must be empty.
func NewInvite(author *identity.RelayIdentity, candidate [32]byte, content InviteContent, createdAt int64) (*envelope.Event, string, error) {
	if content.Role == RoleParticipant && content.SharedKeyHex == "" {
		return nil, "", vaulterr.InputInvalid("participant invite requires a shared key", nil)
	}
	if content.Role == RoleWatcher && content.SharedKeyHex != "" {
		return nil, "", vaulterr.InputInvalid("watcher invite must not carry a shared key", nil)
	}
	plaintext, err := json.Marshal(content)
	if err != nil {
		return nil, "", vaulterr.InputInvalid("encoding invite content", err)
	}
	payload, err := envelope.EncryptDirect(author.PrivateKey(), candidate, plaintext)
	if err != nil {
		return nil, "", err
	}
	tags := []envelope.Tag{{"p", hexOf(candidate)}, {"policy", content.PolicyID}}
	e, err := envelope.New(author, envelope.KindVaultInvite, createdAt, tags, payload)
	return e, payload, err
}

// OpenInvite decrypts and decodes an invite addressed to recipient from
// sender.
func OpenInvite(recipient *identity.RelayIdentity, sender [32]byte, e *envelope.Event) (*InviteContent, error) {
	if e.Kind != envelope.KindVaultInvite {
		return nil, vaulterr.InputInvalid("event is not a VaultInvite", nil)
	}
	pt, err := envelope.DecryptDirect(recipient.PrivateKey(), sender, e.Content)
	if err != nil {
		return nil, err
	}
	var c InviteContent
	if err := json.Unmarshal(pt, &c); err != nil {
		return nil, vaulterr.InputInvalid("decoding invite content", err)
	}
	return &c, nil
}

// JoinContent is re-published (shared, not direct — every existing
// member must discover it) so the group learns the joiner's pubkey for
// future direct messages, per §4.7.
type JoinContent struct {
	PolicyID  string `json:"policy_id"`
	InviteID  string `json:"invite_id"`
	Name      string `json:"name"`
}

// NewJoin builds the join acknowledgement event a candidate publishes
// after accepting an invite.
func NewJoin(author *identity.RelayIdentity, sharedKey envelope.SharedKey, content JoinContent, createdAt int64) (*envelope.Event, error) {
	plaintext, err := json.Marshal(content)
	if err != nil {
		return nil, vaulterr.InputInvalid("encoding join content", err)
	}
	payload, err := envelope.EncryptShared(sharedKey, plaintext)
	if err != nil {
		return nil, err
	}
	tags := []envelope.Tag{{"policy", content.PolicyID}, {"e", content.InviteID}}
	return envelope.New(author, envelope.KindVaultJoin, createdAt, tags, payload)
}

func hexOf(b [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
