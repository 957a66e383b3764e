package main

import (
	"fmt"
	"os"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/internal/keychainfile"
	"github.com/covault-labs/custody/vaulterr"
)

// keychainPassword resolves the password protecting the on-disk seed:
// SMARTVAULTS_PASSWORD if set, otherwise an interactive prompt.
func keychainPassword() (string, error) {
	if pw := os.Getenv("SMARTVAULTS_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "keychain password: ")
	var pw string
	if _, err := fmt.Scanln(&pw); err != nil {
		return "", vaulterr.InputInvalid("reading keychain password", err)
	}
	return pw, nil
}

// loadKeychain loads the on-disk identity, tolerating its absence: many
// commands (save-policy with an explicit --descriptor, list, get,
// delete, setting) never need a local identity, so ensureApp ignores
// this error rather than failing every invocation.
func loadKeychain(cfg *config.Config) (*identity.Identity, error) {
	if !keychainfile.Exists(cfg.StoragePath) {
		return nil, vaulterr.Storage("no keychain found", nil)
	}
	password, err := keychainPassword()
	if err != nil {
		return nil, err
	}
	return keychainfile.Load(cfg, password)
}

func requireIdentity() (*identity.Identity, error) {
	if app.identity == nil {
		return nil, vaulterr.InputInvalid("no keychain loaded; run generate or restore first", nil)
	}
	return app.identity, nil
}
