package protocolcore

import (
	"context"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/policy"
	"github.com/covault-labs/custody/vaulterr"
)

func pathPolicies(b *Backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "policies/?$",
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ListOperation: &framework.PathOperation{
					Callback: b.pathPoliciesList,
				},
			},
			HelpSynopsis: "List saved policies.",
		},
		{
			Pattern: "policies/" + framework.GenericNameRegex("id"),
			Fields: map[string]*framework.FieldSchema{
				"id": {
					Type:        framework.TypeString,
					Description: "hex-encoded policy id",
					Required:    true,
				},
				"name": {
					Type:        framework.TypeString,
					Description: "human-readable policy name",
				},
				"description": {
					Type:        framework.TypeString,
					Description: "optional free-text description",
				},
				"descriptor": {
					Type:        framework.TypeString,
					Description: "output descriptor naming this policy's spending conditions",
					Required:    true,
				},
				"network": {
					Type:        framework.TypeString,
					Description: "bitcoin, testnet4, signet, or regtest",
					Default:     "bitcoin",
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.pathPoliciesRead,
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathPoliciesWrite,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathPoliciesWrite,
				},
				logical.DeleteOperation: &framework.PathOperation{
					Callback: b.pathPoliciesDelete,
				},
			},
			ExistenceCheck:  b.pathPoliciesExistenceCheck,
			HelpSynopsis:    "Save, read, or delete a spending policy.",
			HelpDescription: "A policy's id is content-addressed from its descriptor and network, so saving the same descriptor twice is idempotent.",
		},
	}
}

func (b *Backend) pathPoliciesList(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	ids, err := b.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	b.log.Debug("listed policies", "count", len(ids))
	return logical.ListResponse(ids), nil
}

func (b *Backend) pathPoliciesExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	id := data.Get("id").(string)
	_, ok, err := b.store.GetPolicy(ctx, id)
	return ok, err
}

func (b *Backend) pathPoliciesRead(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	id := data.Get("id").(string)
	p, ok, err := b.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &logical.Response{Data: map[string]interface{}{
		"id":             p.IDHex(),
		"name":           p.Name,
		"description":    p.Description,
		"descriptor":     p.Descriptor,
		"network":        string(p.Network),
		"public_keys":    p.PublicKeys,
		"template_class": string(p.TemplateClass),
	}}, nil
}

// pathPoliciesWrite compiles the submitted descriptor and saves the
// resulting content-addressed policy; the path segment id is ignored on
// write (the real id is computed from the descriptor), matching the
// create-or-update semantics of a descriptor being the sole identity.
func (b *Backend) pathPoliciesWrite(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	name := data.Get("name").(string)
	description := data.Get("description").(string)
	descriptor := data.Get("descriptor").(string)
	network := config.Network(data.Get("network").(string))

	p, err := policy.Compile(name, description, descriptor, network)
	if err != nil {
		return nil, err
	}

	if err := b.store.SavePolicy(ctx, p); err != nil {
		return nil, err
	}

	b.log.Info("saved policy", "id", p.IDHex(), "template", p.TemplateClass)
	return &logical.Response{Data: map[string]interface{}{
		"id": p.IDHex(),
	}}, nil
}

func (b *Backend) pathPoliciesDelete(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	id := data.Get("id").(string)
	if _, ok, err := b.store.GetPolicy(ctx, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, vaulterr.InputInvalid("no such policy: "+id, nil)
	}
	return nil, b.store.DeletePolicy(ctx, id)
}
