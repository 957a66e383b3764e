package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/hashicorp/vault/sdk/logical"
	"github.com/spf13/cobra"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/policy"
	"github.com/covault-labs/custody/proposal"
	"github.com/covault-labs/custody/psbtx"
	"github.com/covault-labs/custody/vaulterr"
)

var (
	spendPolicyID    string
	spendTo          string
	spendAmount      int64
	spendFeeRate     int64
	spendDescription string
)

var spendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Draft a new spend proposal from a saved policy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id, err := requireIdentity()
		if err != nil {
			return err
		}
		p, ok, err := app.store.GetPolicy(ctx, spendPolicyID)
		if err != nil {
			return err
		}
		if !ok {
			return vaulterr.InputInvalid("no such policy: "+spendPolicyID, nil)
		}
		if p.TemplateClass != policy.TemplateSinglesig {
			return vaulterr.InputInvalid("spend currently only drafts singlesig key-path policies here; build a collaborative PSBT out of band and draft it via the backend API", nil)
		}

		feeRate := spendFeeRate
		if feeRate == 0 {
			feeRate = app.cfg.DefaultFeeRate
		}

		utxos, err := availableUTXOs(ctx, p.Descriptor)
		if err != nil {
			return err
		}
		params, err := identity.NetworkParams(p.Network)
		if err != nil {
			return err
		}
		scripts, err := p.KeyPathScripts()
		if err != nil {
			return err
		}

		selfUTXOs, err := toPsbtxUTXOs(utxos, scripts[0], id)
		if err != nil {
			return err
		}

		packet, selected, err := psbtx.Draft(
			p, params,
			[]psbtx.Output{{Address: spendTo, Amount: spendAmount}},
			feeRate, selfUTXOs, nil, false,
			scripts[0], psbtx.AddressP2TR,
		)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := packet.Serialize(&buf); err != nil {
			return vaulterr.InputInvalid("serializing draft psbt", err)
		}

		freeze := make([]string, len(selected))
		for i, u := range selected {
			freeze[i] = u.Hash()
		}

		resp, err := app.backend.HandleRequest(ctx, &logical.Request{
			Operation: logical.CreateOperation,
			Path:      "proposals/",
			Storage:   app.store.Raw(),
			Data: map[string]interface{}{
				"policy_id":        p.IDHex(),
				"kind":             string(proposal.KindSpend),
				"unsigned_psbt":    base64.StdEncoding.EncodeToString(buf.Bytes()),
				"description":      spendDescription,
				"freeze_outpoints": freeze,
			},
		})
		if err != nil {
			return err
		}
		fmt.Println("proposal id:", resp.Data["id"])
		return nil
	},
}

func availableUTXOs(ctx context.Context, descriptor string) ([]chainoracle.UTXO, error) {
	cached, err := app.store.LoadUTXOs(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		return cached, nil
	}
	oracle, closeFn, err := dialOracle()
	if err != nil {
		return nil, err
	}
	defer closeFn()
	live, err := oracle.ListUTXOs(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	if err := app.store.SaveUTXOs(descriptor, live); err != nil {
		return nil, err
	}
	return live, nil
}

// toPsbtxUTXOs adapts the chain oracle's UTXO shape to psbtx's, under
// the fixed m/86'/coin'/0'/0/0 derivation path this CLI's --self policies
// always use (see selfSinglesigDescriptor).
func toPsbtxUTXOs(utxos []chainoracle.UTXO, scriptPubKey []byte, id *identity.Identity) ([]psbtx.UTXO, error) {
	fp, err := id.Bitcoin.MasterFingerprint()
	if err != nil {
		return nil, err
	}
	accountKey, err := id.Bitcoin.AccountKey(identity.PurposeBIP86, 0)
	if err != nil {
		return nil, err
	}
	addrKey, err := identity.AddressKey(accountKey, 0, 0)
	if err != nil {
		return nil, err
	}
	pub, err := identity.PublicKey(addrKey)
	if err != nil {
		return nil, err
	}
	path := id.Bitcoin.DerivationPath(identity.PurposeBIP86, 0, 0, 0)

	out := make([]psbtx.UTXO, len(utxos))
	for i, u := range utxos {
		out[i] = psbtx.UTXO{
			TxID:           u.TxID,
			Vout:           u.Vout,
			Value:          u.Amount,
			ScriptPubKey:   scriptPubKey,
			AddressKind:    psbtx.AddressP2TR,
			DerivationPath: path,
			MasterFP:       fp,
			PubKey:         pub.SerializeCompressed(),
		}
	}
	return out, nil
}

var approveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Sign a proposal's unsigned PSBT and submit the approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id, err := requireIdentity()
		if err != nil {
			return err
		}
		p, ok, err := app.store.GetProposal(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return vaulterr.InputInvalid("no such proposal: "+args[0], nil)
		}

		packet, err := psbt.NewFromRawBytes(bytes.NewReader(p.UnsignedPSBT), false)
		if err != nil {
			return vaulterr.InputInvalid("decoding stored unsigned psbt", err)
		}

		fp, err := id.Bitcoin.MasterFingerprint()
		if err != nil {
			return err
		}
		signer := psbtx.NewPolicySigner(fp, id.Bitcoin.DeriveFromPath)
		if err := signer.Sign(packet); err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := packet.Serialize(&buf); err != nil {
			return vaulterr.InputInvalid("serializing signed psbt", err)
		}

		resp, err := app.backend.HandleRequest(ctx, &logical.Request{
			Operation: logical.UpdateOperation,
			Path:      "proposals/" + args[0] + "/approve",
			Storage:   app.store.Raw(),
			Data: map[string]interface{}{
				"signer_pub_key": hex.EncodeToString(func() []byte { k := id.Relay.XOnlyPubKey(); return k[:] }()),
				"signed_psbt":    base64.StdEncoding.EncodeToString(buf.Bytes()),
			},
		})
		if err != nil {
			return err
		}
		fmt.Println("approvals so far:", resp.Data["approvals_count"])
		return nil
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <proposal-id>",
	Short: "Finalize a proposal's accumulated approvals and broadcast the transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		oracle, closeFn, err := dialOracle()
		if err != nil {
			return err
		}
		defer closeFn()

		backend := backendWithOracle(oracle)
		resp, err := backend.HandleRequest(ctx, &logical.Request{
			Operation: logical.UpdateOperation,
			Path:      "proposals/" + args[0] + "/broadcast",
			Storage:   app.store.Raw(),
		})
		if err != nil {
			return err
		}
		fmt.Println("txid:", resp.Data["txid"])
		return nil
	},
}

func init() {
	spendCmd.Flags().StringVar(&spendPolicyID, "policy", "", "hex-encoded policy id to spend from")
	spendCmd.Flags().StringVar(&spendTo, "to", "", "destination address")
	spendCmd.Flags().Int64Var(&spendAmount, "amount", 0, "amount in satoshis")
	spendCmd.Flags().Int64Var(&spendFeeRate, "fee-rate", 0, "fee rate in sat/vB (default: config's default_fee_rate_sat_vb)")
	spendCmd.Flags().StringVar(&spendDescription, "description", "", "free-text description shown to approvers")
}
