package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/internal/keychainfile"
)

var restoreMnemonic string
var restorePassphrase string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new recovery phrase and keychain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, err := identity.GenerateMnemonic()
		if err != nil {
			return err
		}
		return establishKeychain(mnemonic, "")
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a keychain from an existing recovery phrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic := restoreMnemonic
		if mnemonic == "" {
			fmt.Fprint(os.Stderr, "recovery phrase: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return err
			}
			mnemonic = strings.TrimSpace(line)
		}
		return establishKeychain(mnemonic, restorePassphrase)
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreMnemonic, "mnemonic", "", "recovery phrase (prompted if omitted)")
	restoreCmd.Flags().StringVar(&restorePassphrase, "passphrase", "", "optional BIP-39 passphrase")
}

func establishKeychain(mnemonic, passphrase string) error {
	seed, err := identity.SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return err
	}
	id, err := identity.FromSeed(seed, app.cfg.Network)
	if err != nil {
		return err
	}
	password, err := keychainPassword()
	if err != nil {
		return err
	}
	if err := keychainfile.Save(app.cfg, seed, password); err != nil {
		return err
	}
	app.identity = id

	fp, err := id.Fingerprint()
	if err != nil {
		return err
	}
	fmt.Println("recovery phrase:", mnemonic)
	fmt.Println("relay pubkey:   ", id.PubKeyHex())
	fmt.Println("master fingerprint:", fp)
	return nil
}
