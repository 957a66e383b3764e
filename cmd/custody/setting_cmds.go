package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/logical"
	"github.com/spf13/cobra"
)

var (
	settingRelays           []string
	settingMinConfirmations int
	settingFeeRate          int64
)

var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Read or write the router's network, relay, and fee settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if !cmd.Flags().Changed("relays") && !cmd.Flags().Changed("min-confirmations") && !cmd.Flags().Changed("fee-rate") && flagNetwork == "" {
			resp, err := app.backend.HandleRequest(ctx, &logical.Request{
				Operation: logical.ReadOperation,
				Path:      "config",
				Storage:   app.store.Raw(),
			})
			if err != nil {
				return err
			}
			for k, v := range resp.Data {
				fmt.Printf("%-24s %v\n", k, v)
			}
			return nil
		}

		data := map[string]interface{}{}
		if flagNetwork != "" {
			data["network"] = flagNetwork
		}
		if cmd.Flags().Changed("relays") {
			data["relays"] = settingRelays
		}
		if cmd.Flags().Changed("min-confirmations") {
			data["min_confirmations"] = settingMinConfirmations
		}
		if cmd.Flags().Changed("fee-rate") {
			data["default_fee_rate_sat_vb"] = settingFeeRate
		}

		_, err := app.backend.HandleRequest(ctx, &logical.Request{
			Operation: logical.UpdateOperation,
			Path:      "config",
			Storage:   app.store.Raw(),
			Data:      data,
		})
		return err
	},
}

func init() {
	settingCmd.Flags().StringSliceVar(&settingRelays, "relays", nil, "relay URLs")
	settingCmd.Flags().IntVar(&settingMinConfirmations, "min-confirmations", 0, "minimum confirmations required to spend a UTXO")
	settingCmd.Flags().Int64Var(&settingFeeRate, "fee-rate", 0, "default fee rate in sat/vB")
}
