package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/logical"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/covault-labs/custody/identity"
)

var (
	policyName        string
	policyDescription string
	policyDescriptor  string
	policySelf        bool
	listProposals     bool
	getProposal       bool
	deleteProposal    bool
	inspectQR         bool
)

var savePolicyCmd = &cobra.Command{
	Use:   "save-policy",
	Short: "Compile and save a spending policy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		descriptor := policyDescriptor
		if policySelf {
			id, err := requireIdentity()
			if err != nil {
				return err
			}
			d, err := selfSinglesigDescriptor(id)
			if err != nil {
				return err
			}
			descriptor = d
		}
		if descriptor == "" {
			return fmt.Errorf("save-policy requires --descriptor or --self")
		}

		resp, err := app.backend.HandleRequest(context.Background(), &logical.Request{
			Operation: logical.CreateOperation,
			Path:      "policies/new",
			Storage:   app.store.Raw(),
			Data: map[string]interface{}{
				"name":        policyName,
				"description": policyDescription,
				"descriptor":  descriptor,
				"network":     string(app.cfg.Network),
			},
		})
		if err != nil {
			return err
		}
		fmt.Println("policy id:", resp.Data["id"])
		return nil
	},
}

// selfSinglesigDescriptor derives a single fixed BIP-86 address (m/86'/coin'/0'/0/0)
// from the loaded identity and renders it as a singlesig key-path descriptor.
// This is the CLI's supported shortcut for a personal vault; collaborative
// policies are built from a descriptor assembled out of band from every
// participant's key and passed via --descriptor.
func selfSinglesigDescriptor(id *identity.Identity) (string, error) {
	accountKey, err := id.Bitcoin.AccountKey(identity.PurposeBIP86, 0)
	if err != nil {
		return "", err
	}
	addrKey, err := identity.AddressKey(accountKey, 0, 0)
	if err != nil {
		return "", err
	}
	pub, err := identity.PublicKey(addrKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tr(%x)", pub.SerializeCompressed()), nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved policies or proposals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "policies/"
		if listProposals {
			path = "proposals/"
		}
		resp, err := app.backend.HandleRequest(context.Background(), &logical.Request{
			Operation: logical.ListOperation,
			Path:      path,
			Storage:   app.store.Raw(),
		})
		if err != nil {
			return err
		}
		if resp == nil {
			return nil
		}
		for _, id := range resp.Data["keys"].([]string) {
			fmt.Println(id)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Read a saved policy or proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "policies/" + args[0]
		if getProposal {
			path = "proposals/" + args[0]
		}
		resp, err := app.backend.HandleRequest(context.Background(), &logical.Request{
			Operation: logical.ReadOperation,
			Path:      path,
			Storage:   app.store.Raw(),
		})
		if err != nil {
			return err
		}
		if resp == nil {
			return fmt.Errorf("not found: %s", args[0])
		}
		for k, v := range resp.Data {
			fmt.Printf("%-20s %v\n", k, v)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved policy or proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "policies/" + args[0]
		if deleteProposal {
			path = "proposals/" + args[0]
		}
		_, err := app.backend.HandleRequest(context.Background(), &logical.Request{
			Operation: logical.DeleteOperation,
			Path:      path,
			Storage:   app.store.Raw(),
		})
		return err
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <policy-id>",
	Short: "Show a policy's detail, optionally as a QR code for out-of-band sharing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		p, ok, err := app.store.GetPolicy(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no such policy: %s", args[0])
		}
		fmt.Println("name:      ", p.Name)
		fmt.Println("descriptor:", p.Descriptor)
		fmt.Println("network:   ", p.Network)
		fmt.Println("template:  ", p.TemplateClass)

		if !inspectQR {
			return nil
		}
		ticket := fmt.Sprintf("covault:policy?id=%s&descriptor=%s", p.IDHex(), p.Descriptor)
		art, err := qrcode.New(ticket, qrcode.Medium)
		if err != nil {
			return err
		}
		fmt.Println(art.ToSmallString(false))
		return nil
	},
}

func init() {
	savePolicyCmd.Flags().StringVar(&policyName, "name", "", "policy name")
	savePolicyCmd.Flags().StringVar(&policyDescription, "description", "", "free-text description")
	savePolicyCmd.Flags().StringVar(&policyDescriptor, "descriptor", "", "output descriptor")
	savePolicyCmd.Flags().BoolVar(&policySelf, "self", false, "derive a personal singlesig descriptor from the loaded keychain")

	listCmd.Flags().BoolVar(&listProposals, "proposals", false, "list proposals instead of policies")
	getCmd.Flags().BoolVar(&getProposal, "proposal", false, "read a proposal instead of a policy")
	deleteCmd.Flags().BoolVar(&deleteProposal, "proposal", false, "delete a proposal instead of a policy")
	inspectCmd.Flags().BoolVar(&inspectQR, "qr", false, "render an ASCII QR code")
}
