package protocolcore

import (
	"context"

	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/covault-labs/custody/vaulterr"
)

const configStoragePath = "settings"

// routerConfig stores the router's own runtime configuration, per §6's
// "setting" CLI command and the network/relay fields the CLI surface
// names — adapted from teacher's btcConfig.
type routerConfig struct {
	Network          string   `json:"network"`
	Relays           []string `json:"relays"`
	MinConfirmations int      `json:"min_confirmations"`
	DefaultFeeRate   int64    `json:"default_fee_rate_sat_vb"`
}

func pathConfig(b *Backend) []*framework.Path {
	return []*framework.Path{
		{
			Pattern: "config",
			Fields: map[string]*framework.FieldSchema{
				"network": {
					Type:        framework.TypeString,
					Description: "bitcoin, testnet4, signet, or regtest",
					Default:     "bitcoin",
				},
				"relays": {
					Type:        framework.TypeCommaStringSlice,
					Description: "relay URLs",
				},
				"min_confirmations": {
					Type:        framework.TypeInt,
					Description: "minimum confirmations required to spend a UTXO",
					Default:     1,
				},
				"default_fee_rate_sat_vb": {
					Type:        framework.TypeInt,
					Description: "default fee rate in sat/vB when a draft omits one",
					Default:     10,
				},
			},
			Operations: map[logical.Operation]framework.OperationHandler{
				logical.ReadOperation: &framework.PathOperation{
					Callback: b.pathConfigRead,
				},
				logical.CreateOperation: &framework.PathOperation{
					Callback: b.pathConfigWrite,
				},
				logical.UpdateOperation: &framework.PathOperation{
					Callback: b.pathConfigWrite,
				},
			},
			ExistenceCheck:  b.pathConfigExistenceCheck,
			HelpSynopsis:    "Read or write router settings.",
			HelpDescription: "Configures the network, relay set, and fee defaults the router dispatches requests with.",
		},
	}
}

func (b *Backend) pathConfigExistenceCheck(ctx context.Context, req *logical.Request, data *framework.FieldData) (bool, error) {
	entry, err := req.Storage.Get(ctx, configStoragePath)
	if err != nil {
		return false, vaulterr.Storage("checking config existence", err)
	}
	return entry != nil, nil
}

func (b *Backend) pathConfigRead(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	cfg, err := getRouterConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}
	return &logical.Response{Data: map[string]interface{}{
		"network":                 cfg.Network,
		"relays":                  cfg.Relays,
		"min_confirmations":       cfg.MinConfirmations,
		"default_fee_rate_sat_vb": cfg.DefaultFeeRate,
	}}, nil
}

func (b *Backend) pathConfigWrite(ctx context.Context, req *logical.Request, data *framework.FieldData) (*logical.Response, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	cfg, err := getRouterConfig(ctx, req.Storage)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &routerConfig{}
	}

	if v, ok := data.GetOk("network"); ok {
		cfg.Network = v.(string)
	} else if req.Operation == logical.CreateOperation {
		cfg.Network = data.Get("network").(string)
	}
	if v, ok := data.GetOk("relays"); ok {
		cfg.Relays = v.([]string)
	}
	if v, ok := data.GetOk("min_confirmations"); ok {
		cfg.MinConfirmations = v.(int)
	} else if req.Operation == logical.CreateOperation {
		cfg.MinConfirmations = data.Get("min_confirmations").(int)
	}
	if v, ok := data.GetOk("default_fee_rate_sat_vb"); ok {
		cfg.DefaultFeeRate = int64(v.(int))
	} else if req.Operation == logical.CreateOperation {
		cfg.DefaultFeeRate = int64(data.Get("default_fee_rate_sat_vb").(int))
	}

	switch cfg.Network {
	case "bitcoin", "testnet4", "signet", "regtest":
	default:
		return logical.ErrorResponse("network must be one of bitcoin, testnet4, signet, regtest"), nil
	}

	entry, err := logical.StorageEntryJSON(configStoragePath, cfg)
	if err != nil {
		return nil, vaulterr.Storage("encoding config", err)
	}
	if err := req.Storage.Put(ctx, entry); err != nil {
		return nil, vaulterr.Storage("writing config", err)
	}
	return nil, nil
}

func getRouterConfig(ctx context.Context, s logical.Storage) (*routerConfig, error) {
	entry, err := s.Get(ctx, configStoragePath)
	if err != nil {
		return nil, vaulterr.Storage("reading config", err)
	}
	if entry == nil {
		return nil, nil
	}
	cfg := new(routerConfig)
	if err := entry.DecodeJSON(cfg); err != nil {
		return nil, vaulterr.Storage("decoding config", err)
	}
	return cfg, nil
}
