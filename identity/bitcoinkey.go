package identity

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/vaulterr"
)

// Purpose is the BIP-43 purpose field selecting the derivation scheme for
// a bitcoin HD root. §4.1 recognizes BIP-44/49/84, defaulting to BIP-86
// (taproot) for new policies.
type Purpose uint32

const (
	PurposeBIP44 Purpose = 44 // legacy P2PKH
	PurposeBIP49 Purpose = 49 // P2SH-P2WPKH
	PurposeBIP84 Purpose = 84 // native P2WPKH
	PurposeBIP86 Purpose = 86 // taproot P2TR, the default
)

// NetworkParams returns the chaincfg parameters for a config.Network.
func NetworkParams(network config.Network) (*chaincfg.Params, error) {
	switch network {
	case config.NetworkBitcoin:
		return &chaincfg.MainNetParams, nil
	case config.NetworkTestnet4:
		return &chaincfg.TestNet3Params, nil
	case config.NetworkSignet:
		return &chaincfg.SigNetParams, nil
	case config.NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, vaulterr.InputInvalid(fmt.Sprintf("unknown network %q", network), nil)
	}
}

func coinType(network config.Network) uint32 {
	if network == config.NetworkBitcoin {
		return 0
	}
	return 1
}

// BitcoinRoot is the BIP-32 master extended key bitcoin purposes are
// derived from.
type BitcoinRoot struct {
	master  *hdkeychain.ExtendedKey
	network config.Network
}

// NewBitcoinRoot builds the master extended key for a seed and network.
func NewBitcoinRoot(seed []byte, network config.Network) (*BitcoinRoot, error) {
	params, err := NetworkParams(network)
	if err != nil {
		return nil, err
	}
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving master key", err)
	}
	return &BitcoinRoot{master: master, network: network}, nil
}

// MasterFingerprint returns the 4-byte fingerprint of the master public
// key, used to label descriptor keys.
func (r *BitcoinRoot) MasterFingerprint() ([4]byte, error) {
	pub, err := r.master.ECPubKey()
	if err != nil {
		return [4]byte{}, vaulterr.InputInvalid("deriving master pubkey", err)
	}
	h := sha256.Sum256(pub.SerializeCompressed())
	var fp [4]byte
	copy(fp[:], h[:4])
	return fp, nil
}

// AccountKey derives the account-level extended key m/purpose'/coin_type'/account'.
func (r *BitcoinRoot) AccountKey(purpose Purpose, account uint32) (*hdkeychain.ExtendedKey, error) {
	purposeKey, err := r.master.Derive(hdkeychain.HardenedKeyStart + uint32(purpose))
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving purpose key", err)
	}
	coinKey, err := purposeKey.Derive(hdkeychain.HardenedKeyStart + coinType(r.network))
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving coin type key", err)
	}
	accountKey, err := coinKey.Derive(hdkeychain.HardenedKeyStart + account)
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving account key", err)
	}
	return accountKey, nil
}

// AddressKey derives m/purpose'/coin_type'/account'/change/index from an
// account key. change is 0 for the external chain, 1 for change.
func AddressKey(accountKey *hdkeychain.ExtendedKey, change, index uint32) (*hdkeychain.ExtendedKey, error) {
	changeKey, err := accountKey.Derive(change)
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving change key", err)
	}
	addrKey, err := changeKey.Derive(index)
	if err != nil {
		return nil, vaulterr.InputInvalid("deriving address key", err)
	}
	return addrKey, nil
}

// DeriveFromPath walks the master key down an already-parsed absolute
// BIP-32 path (hardened components carrying the 0x80000000 bit), used by
// psbtx.PolicySigner to resolve the private key for a PSBT input's
// Bip32Derivation entry.
func (r *BitcoinRoot) DeriveFromPath(path []uint32) (*btcec.PrivateKey, error) {
	key := r.master
	var err error
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, vaulterr.InputInvalid("deriving key along path", err)
		}
	}
	return PrivateKey(key)
}

// DerivationPath renders the BIP-32 path string for a purpose/account/change/index tuple.
func (r *BitcoinRoot) DerivationPath(purpose Purpose, account, change, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", purpose, coinType(r.network), account, change, index)
}

// PrivateKey extracts the secp256k1 private key from an extended key.
func PrivateKey(key *hdkeychain.ExtendedKey) (*btcec.PrivateKey, error) {
	if !key.IsPrivate() {
		return nil, vaulterr.InputInvalid("extended key is not private", nil)
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, vaulterr.InputInvalid("extracting EC private key", err)
	}
	return priv, nil
}

// PublicKey extracts the secp256k1 public key from an extended key.
func PublicKey(key *hdkeychain.ExtendedKey) (*btcec.PublicKey, error) {
	pub, err := key.ECPubKey()
	if err != nil {
		return nil, vaulterr.InputInvalid("extracting EC public key", err)
	}
	return pub, nil
}

// SLIP-0132 version bytes for extended public keys, letting watch-only
// wallets recognize the key type from the prefix.
var (
	zpubVersion = [4]byte{0x04, 0xb2, 0x47, 0x46}
	vpubVersion = [4]byte{0x04, 0x5f, 0x1c, 0xf6}
)

// AccountXpub returns the account-level extended public key formatted per
// SLIP-0132 for BIP-84 accounts (zpub/vpub); BIP-86 taproot accounts have
// no SLIP-0132 standard and are returned in the chain's native xpub/tpub
// format.
func (r *BitcoinRoot) AccountXpub(purpose Purpose, account uint32) (string, string, error) {
	accountKey, err := r.AccountKey(purpose, account)
	if err != nil {
		return "", "", err
	}
	neutered, err := accountKey.Neuter()
	if err != nil {
		return "", "", vaulterr.InputInvalid("neutering account key", err)
	}
	path := fmt.Sprintf("m/%d'/%d'/%d'", purpose, coinType(r.network), account)

	if purpose != PurposeBIP84 {
		return neutered.String(), path, nil
	}

	converted, err := convertToSlip132(neutered.String(), r.network)
	if err != nil {
		return "", "", err
	}
	return converted, path, nil
}

func convertToSlip132(xpub string, network config.Network) (string, error) {
	decoded, version, err := decodeBase58Check(xpub)
	if err != nil {
		return "", err
	}
	params, err := NetworkParams(network)
	if err != nil {
		return "", err
	}
	if !bytesEqual(version, params.HDPublicKeyID[:]) {
		return "", vaulterr.InputInvalid(fmt.Sprintf("unexpected xpub version bytes %x", version), nil)
	}
	var newVersion [4]byte
	if network == config.NetworkBitcoin {
		newVersion = zpubVersion
	} else {
		newVersion = vpubVersion
	}
	return encodeBase58Check(decoded, newVersion[:]), nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func decodeBase58Check(encoded string) ([]byte, []byte, error) {
	var result []byte
	for _, c := range encoded {
		idx := -1
		for i, a := range base58Alphabet {
			if a == c {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, nil, vaulterr.InputInvalid(fmt.Sprintf("invalid base58 character %q", c), nil)
		}
		carry := idx
		for i := len(result) - 1; i >= 0; i-- {
			carry += int(result[i]) * 58
			result[i] = byte(carry & 0xff)
			carry >>= 8
		}
		for carry > 0 {
			result = append([]byte{byte(carry & 0xff)}, result...)
			carry >>= 8
		}
	}
	for _, c := range encoded {
		if c != '1' {
			break
		}
		result = append([]byte{0}, result...)
	}
	if len(result) < 5 {
		return nil, nil, vaulterr.InputInvalid("decoded base58check data too short", nil)
	}
	version := result[:4]
	payload := result[4 : len(result)-4]
	return payload, version, nil
}

func encodeBase58Check(payload, version []byte) string {
	data := append(append([]byte{}, version...), payload...)
	hash1 := sha256.Sum256(data)
	hash2 := sha256.Sum256(hash1[:])
	data = append(data, hash2[:4]...)

	var leadingZeros int
	for _, b := range data {
		if b != 0 {
			break
		}
		leadingZeros++
	}

	var result []byte
	for _, b := range data {
		carry := int(b)
		for i := len(result) - 1; i >= 0; i-- {
			carry += int(result[i]) << 8
			result[i] = byte(carry % 58)
			carry /= 58
		}
		for carry > 0 {
			result = append([]byte{byte(carry % 58)}, result...)
			carry /= 58
		}
	}
	for i := 0; i < leadingZeros; i++ {
		result = append([]byte{0}, result...)
	}

	encoded := make([]byte, len(result))
	for i, b := range result {
		encoded[i] = base58Alphabet[b]
	}
	return string(encoded)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
