package identity

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/covault-labs/custody/vaulterr"
)

// relayPurpose and relayCoinType fix the derivation path
// m/44'/1237'/0'/0/0 used for the nostr-style relay identity key, per
// §4.1. 1237 is not a registered SLIP-44 coin type; it is the convention
// this protocol inherits for relay identities and is frozen here for
// interoperability.
const (
	relayPurpose  = 44
	relayCoinType = 1237
)

// RelayIdentity is the secp256k1 schnorr keypair used to author and sign
// relay events.
type RelayIdentity struct {
	priv *btcec.PrivateKey
}

// DeriveRelayIdentity derives the relay signing key from the BIP-39 seed
// at m/44'/1237'/0'/0/0, independent of the bitcoin network selected for
// custody purposes.
func DeriveRelayIdentity(seed []byte) (*RelayIdentity, error) {
	// The relay identity path is independent of the bitcoin network; the
	// params argument only controls serialization prefixes, which this
	// key is never serialized with.
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving relay identity master key", err)
	}
	key := master
	for _, idx := range []uint32{
		hdkeychain.HardenedKeyStart + relayPurpose,
		hdkeychain.HardenedKeyStart + relayCoinType,
		hdkeychain.HardenedKeyStart + 0,
		0,
		0,
	} {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, vaulterr.InputInvalid("deriving relay identity path", err)
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, vaulterr.InputInvalid("extracting relay identity private key", err)
	}
	return &RelayIdentity{priv: priv}, nil
}

// XOnlyPubKey returns the 32-byte x-only public key used as the
// participant identifier (nostr's "pubkey" field).
func (id *RelayIdentity) XOnlyPubKey() [32]byte {
	var out [32]byte
	copy(out[:], schnorr.SerializePubKey(id.priv.PubKey()))
	return out
}

// NormalizedPubKey returns the 33-byte compressed secp256k1 public key
// with its parity prefix forced to even (0x02), used wherever ECDH or
// non-schnorr contexts need an even-parity key.
func (id *RelayIdentity) NormalizedPubKey() [33]byte {
	var out [33]byte
	out[0] = 0x02
	copy(out[1:], schnorr.SerializePubKey(id.priv.PubKey()))
	return out
}

// Sign produces a BIP-340 schnorr signature over a 32-byte message (an
// event id per §4.4).
func (id *RelayIdentity) Sign(msg [32]byte) ([64]byte, error) {
	sig, err := schnorr.Sign(id.priv, msg[:])
	if err != nil {
		return [64]byte{}, vaulterr.InputInvalid("signing event", err)
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}

// Verify checks a BIP-340 schnorr signature against an x-only public key.
func Verify(pubkey [32]byte, msg [32]byte, sig [64]byte) bool {
	pk, err := schnorr.ParsePubKey(pubkey[:])
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return parsed.Verify(msg[:], pk)
}

// PrivateKey exposes the underlying secp256k1 key for ECDH use by the
// envelope layer (direct-message key agreement).
func (id *RelayIdentity) PrivateKey() *btcec.PrivateKey { return id.priv }
