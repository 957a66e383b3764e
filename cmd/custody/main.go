// Command custody is the one-shot CLI front-end for the protocol core:
// generate or restore a keychain, save policies, draft and approve
// spends, and inspect stored state. It drives protocolcore.Backend the
// same way cmd/custodyd does, the only difference being that each
// invocation opens storage, does one operation, and exits.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/covault-labs/custody/vaulterr"
)

var (
	flagNetwork string
	flagRelay   string
	flagDataDir string
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:               "custody",
	Short:             "Collaborative bitcoin multisig custody CLI",
	PersistentPreRunE: ensureApp,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagNetwork, "network", "", "bitcoin, testnet4, signet, or regtest (default: config file or mainnet)")
	rootCmd.PersistentFlags().StringVar(&flagRelay, "relay", "", "relay URL to use for this invocation")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "storage directory (default: config file or ./custody-data)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(savePolicyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(spendCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(settingCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps the protocol core's error taxonomy onto the CLI
// surface's three exit codes: 0 success, 1 user error, 2 system error.
func exitCodeFor(err error) int {
	switch vaulterr.CodeOf(err) {
	case vaulterr.CodeInputInvalid, vaulterr.CodeAuthorizationDenied, vaulterr.CodeNotFinalizable:
		return 1
	case "":
		return 1
	default:
		return 2
	}
}
