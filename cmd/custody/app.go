package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/chainoracle/electrum"
	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/protocolcore"
	"github.com/covault-labs/custody/storage"
	"github.com/covault-labs/custody/vaulterr"
)

// appContext is the set of collaborators every subcommand shares,
// resolved once in ensureApp and torn down in main via rootCmd's
// execution returning control to os.Exit.
type appContext struct {
	cfg      *config.Config
	db       *storage.LevelDB
	store    *storage.Store
	backend  *protocolcore.Backend
	identity *identity.Identity
}

var app *appContext

func ensureApp(cmd *cobra.Command, args []string) error {
	if app == nil {
		cfg := config.Default()
		if path := configFilePath(); path != "" {
			loaded, err := config.Load(path)
			if err == nil {
				cfg = loaded
			}
		}
		if flagNetwork != "" {
			cfg.Network = config.Network(flagNetwork)
		}
		if flagRelay != "" {
			cfg.Relays = []string{flagRelay}
		}
		if flagDataDir != "" {
			cfg.StoragePath = flagDataDir
		}

		db, err := storage.Open(cfg.StoragePath)
		if err != nil {
			return vaulterr.Storage("opening storage", err)
		}
		ctx := context.Background()
		if err := storage.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return err
		}
		store := storage.New(db)

		id, _ := loadKeychain(cfg)

		app = &appContext{
			cfg:      cfg,
			db:       db,
			store:    store,
			identity: id,
			backend: protocolcore.New(protocolcore.Deps{
				Store:  store,
				Oracle: noOracle{},
				Logger: hclog.NewNullLogger(),
			}),
		}
	}
	return nil
}

// noOracle satisfies chainoracle.Oracle for commands that never touch
// the chain (policy and proposal bookkeeping); dialOracle is used
// instead wherever a command genuinely needs live chain data.
type noOracle struct{}

func (noOracle) GetBalance(ctx context.Context, descriptor string) (chainoracle.Balance, error) {
	return chainoracle.Balance{}, vaulterr.ChainError("no chain oracle configured for this invocation", nil)
}
func (noOracle) ListUTXOs(ctx context.Context, descriptor string) ([]chainoracle.UTXO, error) {
	return nil, vaulterr.ChainError("no chain oracle configured for this invocation", nil)
}
func (noOracle) Broadcast(ctx context.Context, txBytes []byte) (string, error) {
	return "", vaulterr.ChainError("no chain oracle configured for this invocation", nil)
}
func (noOracle) EstimateFee(ctx context.Context, targetBlocks int) (float64, error) {
	return 0, vaulterr.ChainError("no chain oracle configured for this invocation", nil)
}
func (noOracle) TipHeight(ctx context.Context) (int64, error) {
	return 0, vaulterr.ChainError("no chain oracle configured for this invocation", nil)
}

// dialOracle connects a live electrum oracle for commands (broadcast,
// spend) that need current chain state rather than the sync daemon's
// cached view.
func dialOracle() (*electrum.Oracle, func(), error) {
	pool := app.cfg.ElectrumServerPool()
	if app.cfg.ElectrumURL != "" {
		pool = append([]string{app.cfg.ElectrumURL}, pool...)
	}
	client, err := electrum.DialPool(pool)
	if err != nil {
		return nil, func() {}, vaulterr.ChainError("connecting to chain oracle", err)
	}
	oracle := electrum.NewOracle(client, descriptorScripts)
	return oracle, func() { client.Close() }, nil
}

// descriptorScripts resolves a saved policy's watch scripts for the
// electrum oracle, scoped to the singlesig key-path policies
// policy.KeyPathScripts supports.
func descriptorScripts(descriptor string) ([][]byte, error) {
	ctx := context.Background()
	ids, err := app.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		p, ok, err := app.store.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok && p.Descriptor == descriptor {
			return p.KeyPathScripts()
		}
	}
	return nil, vaulterr.InputInvalid(fmt.Sprintf("no saved policy for descriptor %q", descriptor), nil)
}

// backendWithOracle builds a router sharing the process's store and
// identity but wired to a live chain oracle, used by the one-shot
// broadcast command, which needs to reach the chain rather than
// the sync daemon's cached view.
func backendWithOracle(oracle chainoracle.Oracle) *protocolcore.Backend {
	return protocolcore.New(protocolcore.Deps{
		Store:    app.store,
		Oracle:   oracle,
		Identity: app.identity,
		Logger:   hclog.NewNullLogger(),
	})
}

func configFilePath() string {
	return flagConfig
}
