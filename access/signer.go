package access

import (
	"encoding/json"

	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/vaulterr"
)

// SignerOfferContent carries a descriptor public key (an xpub/zpub and
// its derivation origin) the sharer owns and is offering to a candidate
// co-signer for inclusion in a future policy, per §4.7.
type SignerOfferContent struct {
	ExtendedKey string `json:"extended_key"`
	Fingerprint string `json:"fingerprint"`
	Label       string `json:"label"`
}

// NewSignerOffer builds a direct-encrypted SharedSignerOffer event.
func NewSignerOffer(author *identity.RelayIdentity, candidate [32]byte, content SignerOfferContent, createdAt int64) (*envelope.Event, error) {
	pt, err := json.Marshal(content)
	if err != nil {
		return nil, vaulterr.InputInvalid("encoding signer offer", err)
	}
	payload, err := envelope.EncryptDirect(author.PrivateKey(), candidate, pt)
	if err != nil {
		return nil, err
	}
	tags := []envelope.Tag{{"p", hexOf(candidate)}}
	return envelope.New(author, envelope.KindSharedSignerOffer, createdAt, tags, payload)
}

// SignerAcceptContent echoes the accepted offer's event id, per §4.7.
type SignerAcceptContent struct {
	OfferID string `json:"offer_id"`
}

// NewSignerAccept builds the acceptance event referencing offerID.
func NewSignerAccept(author *identity.RelayIdentity, sharer [32]byte, offerID string, createdAt int64) (*envelope.Event, error) {
	pt, err := json.Marshal(SignerAcceptContent{OfferID: offerID})
	if err != nil {
		return nil, vaulterr.InputInvalid("encoding signer accept", err)
	}
	payload, err := envelope.EncryptDirect(author.PrivateKey(), sharer, pt)
	if err != nil {
		return nil, err
	}
	tags := []envelope.Tag{{"p", hexOf(sharer)}, {"e", offerID}}
	return envelope.New(author, envelope.KindSharedSignerAccept, createdAt, tags, payload)
}

// NewSignerRevoke builds the revocation event referencing the original
// offer. Per §4.7, revocation is an explicit delete-like event rather
// than an implicit timeout; consumers treat any Signer event whose "e"
// tag names a revoked offer as withdrawn.
func NewSignerRevoke(author *identity.RelayIdentity, offerID string, createdAt int64) (*envelope.Event, error) {
	tags := []envelope.Tag{{"e", offerID}, {"t", "revoke"}}
	return envelope.New(author, envelope.KindSigner, createdAt, tags, "")
}
