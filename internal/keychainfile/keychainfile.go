// Package keychainfile is the on-disk seed file both cmd/custody and
// cmd/custodyd load identity from: a single JSON file holding the BIP-39
// seed encrypted under envelope's shared-key AES-256-CBC, keyed by a
// password (typically SMARTVAULTS_PASSWORD). The specification's own
// keychain-file format is an external-front-end concern; this is just
// the minimal artifact these two binaries need to agree on between runs.
package keychainfile

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/vaulterr"
)

type file struct {
	Network   string `json:"network"`
	Encrypted string `json:"encrypted_seed"`
}

func Path(storagePath string) string {
	return filepath.Join(storagePath, "keychain.json")
}

func passwordKey(password string) envelope.SharedKey {
	return envelope.SharedKey(sha256.Sum256([]byte(password)))
}

// Save encrypts seed under password and writes it to cfg.StoragePath.
func Save(cfg *config.Config, seed []byte, password string) error {
	if err := os.MkdirAll(cfg.StoragePath, 0700); err != nil {
		return vaulterr.Storage("creating data directory", err)
	}
	encrypted, err := envelope.EncryptShared(passwordKey(password), seed)
	if err != nil {
		return err
	}
	data, err := json.Marshal(file{Network: string(cfg.Network), Encrypted: encrypted})
	if err != nil {
		return vaulterr.Storage("encoding keychain file", err)
	}
	return os.WriteFile(Path(cfg.StoragePath), data, 0600)
}

// Load reads and decrypts the seed at cfg.StoragePath, deriving the
// full Identity for it.
func Load(cfg *config.Config, password string) (*identity.Identity, error) {
	data, err := os.ReadFile(Path(cfg.StoragePath))
	if err != nil {
		return nil, vaulterr.Storage("no keychain found", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, vaulterr.Storage("parsing keychain file", err)
	}
	seed, err := envelope.DecryptShared(passwordKey(password), f.Encrypted)
	if err != nil {
		return nil, vaulterr.AuthorizationDenied("keychain password incorrect", err)
	}
	return identity.FromSeed(seed, config.Network(f.Network))
}

// Exists reports whether a keychain file has already been written.
func Exists(storagePath string) bool {
	_, err := os.Stat(Path(storagePath))
	return err == nil
}
