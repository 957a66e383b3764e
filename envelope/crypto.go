package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/covault-labs/custody/vaulterr"
)

// SharedKey is the per-policy 32-byte symmetric key distributed once to
// every participant (§3, §4.4).
type SharedKey [32]byte

// NewSharedKey generates a cryptographically random per-policy key.
func NewSharedKey() (SharedKey, error) {
	var k SharedKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, vaulterr.InputInvalid("generating shared key", err)
	}
	return k, nil
}

// directECDHKey derives the AES key for NIP-04-style direct encryption:
// the raw 32-byte x-coordinate of senderPriv * recipientPub, matching the
// convention this protocol must stay bit-exact with per §9's "Encryption
// interop" design note. No ecosystem library in the reference corpus
// implements this exact construction, so it is a justified stdlib-only
// exception (crypto/aes + crypto/cipher), grounded directly on §4.4's
// literal description.
func directECDHKey(senderPriv *btcec.PrivateKey, recipientXOnly [32]byte) ([32]byte, error) {
	recipientPub, err := schnorr.ParsePubKey(recipientXOnly[:])
	if err != nil {
		return [32]byte{}, vaulterr.InputInvalid("parsing recipient pubkey", err)
	}
	// GenerateSharedSecret returns the x-coordinate of senderPriv *
	// recipientPub, unhashed, the ECDH construction this protocol's
	// direct envelope key is defined over.
	shared := btcec.GenerateSharedSecret(senderPriv, recipientPub)
	var out [32]byte
	copy(out[:], shared)
	return out, nil
}

// EncryptDirect encrypts content for a single recipient using AES-256-CBC
// with a random IV, under a key derived by ECDH between senderPriv and
// the recipient's schnorr pubkey. Output format: base64(ct)?iv=base64(iv).
func EncryptDirect(senderPriv *btcec.PrivateKey, recipient [32]byte, plaintext []byte) (string, error) {
	key, err := directECDHKey(senderPriv, recipient)
	if err != nil {
		return "", err
	}
	return encryptCBC(key, plaintext)
}

// DecryptDirect reverses EncryptDirect given the recipient's own private
// key and the sender's x-only pubkey.
func DecryptDirect(recipientPriv *btcec.PrivateKey, sender [32]byte, payload string) ([]byte, error) {
	key, err := directECDHKey(recipientPriv, sender)
	if err != nil {
		return nil, err
	}
	return decryptCBC(key, payload)
}

// EncryptShared and DecryptShared use the identical AES-256-CBC
// construction keyed by a policy's SharedKey rather than an ECDH-derived
// key, for content every participant must be able to read (§4.4).
func EncryptShared(key SharedKey, plaintext []byte) (string, error) {
	return encryptCBC(key, plaintext)
}

func DecryptShared(key SharedKey, payload string) ([]byte, error) {
	return decryptCBC(key, payload)
}

func encryptCBC(key [32]byte, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", vaulterr.InputInvalid("constructing AES cipher", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", vaulterr.InputInvalid("generating IV", err)
	}
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return fmt.Sprintf("%s?iv=%s", base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(iv)), nil
}

func decryptCBC(key [32]byte, payload string) ([]byte, error) {
	parts := strings.SplitN(payload, "?iv=", 2)
	if len(parts) != 2 {
		return nil, vaulterr.RelayError("malformed encrypted payload (missing iv)", nil)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, vaulterr.RelayError("decoding ciphertext", err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, vaulterr.RelayError("decoding iv", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, vaulterr.RelayError("invalid iv length", nil)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, vaulterr.RelayError("invalid ciphertext length", nil)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, vaulterr.RelayError("constructing AES cipher", err)
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	return pkcs7Unpad(pt)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, vaulterr.RelayError("empty plaintext", nil)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, vaulterr.RelayError("invalid pkcs7 padding", nil)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, vaulterr.RelayError("invalid pkcs7 padding", nil)
		}
	}
	return data[:len(data)-padLen], nil
}
