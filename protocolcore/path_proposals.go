package protocolcore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/covault-labs/custody/proposal"
	"github.com/covault-labs/custody/vaulterr"
)

func pathProposals(b *Backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "proposals/?$",
			Fields: map[string]*framework.FieldSchema{
				"policy_id": {
					Type:        framework.TypeString,
					Description: "hex-encoded id of the policy this spend draws from",
					Required:    true,
				},
				"kind": {
					Type:        framework.TypeString,
					Description: "Spend, ProofOfReserve, or KeyAgentPayment",
					Default:     "Spend",
				},
				"unsigned_psbt": {
					Type:        framework.TypeString,
					Description: "base64-encoded unsigned PSBT, drafted by the caller",
					Required:    true,
				},
				"description": {
					Type:        framework.TypeString,
					Description: "free-text description shown to approving signers",
				},
				"freeze_outpoints": {
					Type:        framework.TypeCommaStringSlice,
					Description: "txid:vout outpoints consumed by this draft, frozen until the proposal reaches a terminal state",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ListOperation: &framework.PathOperation{
					Callback: b.pathProposalsList,
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathProposalsDraft,
				},
			},
			HelpSynopsis: "List proposals, or draft a new one from an already-built unsigned PSBT.",
		},
		{
			Pattern: "proposals/" + framework.GenericNameRegex("id"),
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:        framework.TypeString,
					Description: "hex-encoded proposal id",
					Required:    true,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.pathProposalsRead,
				},
				logical.DeleteOperation: &framework.PathOperation{
					Callback: b.pathProposalsDelete,
				},
			},
			ExistenceCheck:  b.pathProposalsExistenceCheck,
			HelpSynopsis:    "Read or delete a proposal.",
			HelpDescription: "Deleting a pending proposal expires it and releases any UTXOs it had frozen.",
		},
		{
			Pattern: "proposals/" + framework.GenericNameRegex("id") + "/approve",
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:     framework.TypeString,
					Required: true,
				},
				"signer_pub_key": {
					Type:        framework.TypeString,
					Description: "hex-encoded x-only pubkey of the approving signer",
					Required:    true,
				},
				"signed_psbt": {
					Type:        framework.TypeString,
					Description: "base64-encoded PSBT carrying this signer's partial signatures",
					Required:    true,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathProposalsApprove,
				},
			},
			HelpSynopsis: "Submit a signed PSBT approval for a pending proposal.",
		},
		{
			Pattern: "proposals/" + framework.GenericNameRegex("id") + "/broadcast",
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:     framework.TypeString,
					Required: true,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathProposalsBroadcast,
				},
			},
			HelpSynopsis: "Finalize the proposal's accumulated approvals and broadcast the resulting transaction.",
		},
	}
}

func (b *Backend) pathProposalsList(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	ids, err := b.store.ListProposals(ctx)
	if err != nil {
		return nil, err
	}
	return logical.ListResponse(ids), nil
}

func (b *Backend) pathProposalsExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	id := data.Get("id").(string)
	_, ok, err := b.store.GetProposal(ctx, id)
	return ok, err
}

func (b *Backend) pathProposalsRead(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	id := data.Get("id").(string)
	p, ok, err := b.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	approvals := p.Approvals()
	signers := make([]string, len(approvals))
	for i, a := range approvals {
		signers[i] = hex.EncodeToString(a.SignerPubKey[:])
	}
	return &logical.Response{Data: map[string]interface{}{
		"id":              p.IDHex(),
		"policy_id":       hex.EncodeToString(p.PolicyID[:]),
		"kind":            string(p.Kind),
		"status":          string(p.Status),
		"description":     p.Description,
		"approved_by":     signers,
		"approvals_count": len(approvals),
	}}, nil
}

func (b *Backend) pathProposalsDelete(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	id := data.Get("id").(string)
	p, ok, err := b.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.InputInvalid("no such proposal: "+id, nil)
	}
	if !p.IsTerminal() {
		if err := p.Expire(); err != nil {
			return nil, err
		}
		if err := b.releaseFrozenUTXOs(ctx, id); err != nil {
			return nil, err
		}
	}
	if err := b.store.SaveProposal(ctx, p); err != nil {
		return nil, err
	}
	return nil, b.store.DeleteProposal(ctx, id)
}

// unsignedHashOf hashes a PSBT's unsigned transaction so draft and
// approval submissions of the same spend produce an identical
// UnsignedHash, the basis of §4.5's StaleApproval check.
func unsignedHashOf(psbtB64 string) ([32]byte, []byte, error) {
	raw, err := base64.StdEncoding.DecodeString(psbtB64)
	if err != nil {
		return [32]byte{}, nil, vaulterr.InputInvalid("psbt is not valid base64", err)
	}
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return [32]byte{}, nil, vaulterr.InputInvalid("decoding psbt", err)
	}
	var txBuf bytes.Buffer
	if err := packet.UnsignedTx.Serialize(&txBuf); err != nil {
		return [32]byte{}, nil, vaulterr.InputInvalid("serializing unsigned transaction", err)
	}
	return sha256.Sum256(txBuf.Bytes()), raw, nil
}

func (b *Backend) pathProposalsDraft(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	policyIDHex := data.Get("policy_id").(string)
	policyID, err := hex.DecodeString(policyIDHex)
	if err != nil || len(policyID) != 32 {
		return nil, vaulterr.InputInvalid("policy_id must be 32 hex-encoded bytes", err)
	}
	if _, ok, err := b.store.GetPolicy(ctx, policyIDHex); err != nil {
		return nil, err
	} else if !ok {
		return nil, vaulterr.InputInvalid("no such policy: "+policyIDHex, nil)
	}

	unsignedHash, raw, err := unsignedHashOf(data.Get("unsigned_psbt").(string))
	if err != nil {
		return nil, err
	}

	id := sha256.Sum256(append(append([]byte{}, policyID...), unsignedHash[:]...))

	kind := proposal.Kind(data.Get("kind").(string))
	switch kind {
	case proposal.KindSpend, proposal.KindProofOfReserve, proposal.KindKeyAgentPayment:
	default:
		return nil, vaulterr.InputInvalid("unrecognized proposal kind: "+string(kind), nil)
	}

	var polID [32]byte
	copy(polID[:], policyID)

	p := proposal.New(id, polID, kind, raw, unsignedHash, data.Get("description").(string))

	for _, outpoint := range data.Get("freeze_outpoints").([]string) {
		if err := b.store.FreezeUTXO(ctx, outpoint, p.IDHex()); err != nil {
			return nil, err
		}
	}

	if err := b.store.SaveProposal(ctx, p); err != nil {
		return nil, err
	}

	b.log.Info("drafted proposal", "id", p.IDHex(), "policy_id", policyIDHex, "kind", kind)
	return &logical.Response{Data: map[string]interface{}{"id": p.IDHex()}}, nil
}

func (b *Backend) pathProposalsApprove(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	id := data.Get("id").(string)
	p, ok, err := b.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.InputInvalid("no such proposal: "+id, nil)
	}

	unsignedHash, raw, err := unsignedHashOf(data.Get("signed_psbt").(string))
	if err != nil {
		return nil, err
	}

	signerHex := data.Get("signer_pub_key").(string)
	signerBytes, err := hex.DecodeString(signerHex)
	if err != nil || len(signerBytes) != 32 {
		return nil, vaulterr.InputInvalid("signer_pub_key must be 32 hex-encoded bytes", err)
	}
	var signer [32]byte
	copy(signer[:], signerBytes)

	approvalID := sha256.Sum256(append(append([]byte{}, p.ID[:]...), raw...))

	err = p.AddApproval(&proposal.Approval{
		ID:           approvalID,
		ProposalID:   p.ID,
		SignerPubKey: signer,
		SignedPSBT:   raw,
		UnsignedHash: unsignedHash,
		CreatedAt:    int64(len(p.Approvals())), // relative ordering; absolute clock is the caller's event timestamp
	})
	if err != nil {
		return nil, err
	}

	if err := b.store.SaveProposal(ctx, p); err != nil {
		return nil, err
	}

	b.log.Info("recorded approval", "proposal_id", id, "signer", signerHex)
	return &logical.Response{Data: map[string]interface{}{
		"approvals_count": len(p.Approvals()),
	}}, nil
}

func (b *Backend) pathProposalsBroadcast(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	id := data.Get("id").(string)
	p, ok, err := b.store.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.InputInvalid("no such proposal: "+id, nil)
	}

	tx, err := p.TryFinalize()
	if err != nil {
		return nil, err
	}

	var txBuf bytes.Buffer
	if err := tx.Serialize(&txBuf); err != nil {
		return nil, vaulterr.InputInvalid("serializing finalized transaction", err)
	}

	txid, err := b.oracle.Broadcast(ctx, txBuf.Bytes())
	if err != nil {
		return nil, err
	}

	if err := p.Complete(); err != nil {
		return nil, err
	}
	if err := b.releaseFrozenUTXOs(ctx, id); err != nil {
		return nil, err
	}
	if err := b.store.SaveProposal(ctx, p); err != nil {
		return nil, err
	}

	b.log.Info("broadcast proposal", "proposal_id", id, "txid", txid)
	return &logical.Response{Data: map[string]interface{}{"txid": txid}}, nil
}

// releaseFrozenUTXOs clears every freeze this proposal holds, per §3's
// terminal-transition release rule.
func (b *Backend) releaseFrozenUTXOs(ctx context.Context, proposalIDHex string) error {
	frozen, err := b.store.FrozenUTXOs(ctx)
	if err != nil {
		return err
	}
	for outpoint := range frozen {
		owner, ok, err := b.store.FrozenUTXOOwner(ctx, outpoint)
		if err != nil {
			return err
		}
		if ok && owner == proposalIDHex {
			if err := b.store.ReleaseUTXO(ctx, outpoint); err != nil {
				return err
			}
		}
	}
	return nil
}
