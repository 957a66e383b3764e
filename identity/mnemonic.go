package identity

import (
	"github.com/tyler-smith/go-bip39"

	"github.com/covault-labs/custody/vaulterr"
)

// MnemonicEntropyBits is the default entropy used when generating a new
// recovery phrase (24 words).
const MnemonicEntropyBits = 256

// GenerateMnemonic creates a new BIP-39 recovery phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", vaulterr.InputInvalid("generating mnemonic entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", vaulterr.InputInvalid("generating mnemonic", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic validates the mnemonic checksum and derives the BIP-39
// seed from the phrase and optional passphrase. Returns MnemonicInvalid
// (surfaced as InputInvalid) on checksum failure per §4.1.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, vaulterr.InputInvalid("mnemonic checksum invalid", nil)
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}
