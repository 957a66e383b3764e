// Package identity derives the nostr-style relay signing key and the
// bitcoin HD root from a single BIP-39 mnemonic, per §4.1.
package identity

import (
	"encoding/hex"

	"github.com/covault-labs/custody/config"
)

// Identity is the immutable-per-session key material derived from a
// mnemonic: the relay signing key and the bitcoin HD root.
type Identity struct {
	Relay   *RelayIdentity
	Bitcoin *BitcoinRoot
	Network config.Network
}

// FromMnemonic derives an Identity from a mnemonic, optional passphrase,
// and network tag. Returns InputInvalid (MnemonicInvalid per §4.1) if the
// mnemonic checksum fails to validate.
func FromMnemonic(mnemonic, passphrase string, network config.Network) (*Identity, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return FromSeed(seed, network)
}

// FromSeed derives an Identity directly from a BIP-39 seed, bypassing
// mnemonic validation (used when restoring from an already-validated
// keychain).
func FromSeed(seed []byte, network config.Network) (*Identity, error) {
	relay, err := DeriveRelayIdentity(seed)
	if err != nil {
		return nil, err
	}
	root, err := NewBitcoinRoot(seed, network)
	if err != nil {
		return nil, err
	}
	return &Identity{Relay: relay, Bitcoin: root, Network: network}, nil
}

// PubKeyHex returns the hex-encoded x-only relay public key, the
// participant identifier used throughout the envelope and protocol core.
func (id *Identity) PubKeyHex() string {
	pk := id.Relay.XOnlyPubKey()
	return hex.EncodeToString(pk[:])
}

// Fingerprint returns the hex-encoded master fingerprint of the bitcoin
// root, used to label descriptor keys and match approvals against a
// signer.
func (id *Identity) Fingerprint() (string, error) {
	fp, err := id.Bitcoin.MasterFingerprint()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(fp[:]), nil
}
