// Command custodyd is the long-running daemon: it keeps one relay
// connection per configured relay open, feeds inbound events through
// the sync pipeline, and runs the chain-oracle poller on a fixed
// interval, exactly the two background tasks §4.6/§5 name for a
// single-process reactor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/vault/sdk/logical"
	"github.com/spf13/cobra"

	"github.com/covault-labs/custody/chainoracle/electrum"
	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/internal/keychainfile"
	"github.com/covault-labs/custody/protocolcore"
	"github.com/covault-labs/custody/relay"
	"github.com/covault-labs/custody/storage"
	syncpkg "github.com/covault-labs/custody/sync"
	"github.com/covault-labs/custody/vaulterr"
)

var (
	flagConfig      string
	flagDataDir     string
	flagPollSeconds int
)

var rootCmd = &cobra.Command{
	Use:          "custodyd",
	Short:        "Run the custody sync daemon",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&flagDataDir, "data-dir", "", "storage directory override")
	rootCmd.Flags().IntVar(&flagPollSeconds, "poll-interval", 30, "chain oracle poll interval in seconds")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagDataDir != "" {
		cfg.StoragePath = flagDataDir
	}

	logger := hclog.New(&hclog.LoggerOptions{Name: "custodyd", Level: hclog.Info})

	db, err := storage.Open(cfg.StoragePath)
	if err != nil {
		return vaulterr.Storage("opening storage", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := storage.EnsureSchema(ctx, db); err != nil {
		return err
	}
	store := storage.New(db)

	password := os.Getenv("SMARTVAULTS_PASSWORD")
	if password == "" {
		return vaulterr.InputInvalid("SMARTVAULTS_PASSWORD must be set for a non-interactive daemon", nil)
	}
	id, err := keychainfile.Load(cfg, password)
	if err != nil {
		return err
	}

	// A provisional router (no oracle yet) resolves any settings an
	// operator saved with `custody setting`, overlaying them onto the
	// file-based config before dialing the chain oracle and relays.
	settingsRouter := protocolcore.New(protocolcore.Deps{Store: store, Identity: id, Logger: logger})
	overlayRouterSettings(ctx, settingsRouter, store, cfg)

	oracleClient, err := electrum.DialPool(electrumPool(cfg))
	if err != nil {
		return vaulterr.ChainError("connecting to chain oracle", err)
	}
	defer oracleClient.Close()
	oracle := electrum.NewOracle(oracleClient, func(descriptor string) ([][]byte, error) {
		return descriptorScripts(ctx, store, descriptor)
	})

	var relayClients []*relay.Client
	for _, url := range cfg.Relays {
		c, err := relay.Dial(ctx, url)
		if err != nil {
			logger.Warn("could not dial relay", "url", url, "error", err)
			continue
		}
		relayClients = append(relayClients, c)
		defer c.Close()
	}

	backend := protocolcore.New(protocolcore.Deps{
		Store:    store,
		Oracle:   oracle,
		Relays:   relayClients,
		Identity: id,
		Logger:   logger,
	})

	pipeline := syncpkg.New(store, noopNotifier{}, keyRing{store: store, id: id})

	errCh := make(chan error, 1+len(relayClients))
	for _, c := range relayClients {
		c := c
		go func() {
			subID, matches, err := c.Subscribe(ctx, relay.Filter{})
			if err != nil {
				errCh <- err
				return
			}
			defer c.Unsubscribe(subID)
			for {
				select {
				case <-ctx.Done():
					errCh <- nil
					return
				case match, ok := <-matches:
					if !ok {
						errCh <- nil
						return
					}
					if err := pipeline.Ingest(match.Event); err != nil {
						logger.Error("ingest failed", "error", err)
					}
				}
			}
		}()
	}

	poller := syncpkg.NewPoller(oracle, store, time.Duration(flagPollSeconds)*time.Second)
	go func() { errCh <- poller.Run(ctx) }()

	go logStats(ctx, backend, store, logger, time.Duration(flagPollSeconds)*time.Second)

	logger.Info("custodyd running", "network", cfg.Network, "relays", len(relayClients))

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// overlayRouterSettings applies any settings previously written through
// `custody setting` on top of the file-based config, letting an
// operator change network/relay/fee defaults without editing the
// config file the daemon was started with.
func overlayRouterSettings(ctx context.Context, router *protocolcore.Backend, store *storage.Store, cfg *config.Config) {
	resp, err := router.HandleRequest(ctx, &logical.Request{
		Operation: logical.ReadOperation,
		Path:      "config",
		Storage:   store.Raw(),
	})
	if err != nil || resp == nil {
		return
	}
	if network, ok := resp.Data["network"].(string); ok && network != "" {
		cfg.Network = config.Network(network)
	}
	if relays, ok := resp.Data["relays"].([]string); ok && len(relays) > 0 {
		cfg.Relays = relays
	}
	if feeRate, ok := resp.Data["default_fee_rate_sat_vb"].(int64); ok && feeRate > 0 {
		cfg.DefaultFeeRate = feeRate
	}
}

// logStats periodically reports how many policies and proposals are on
// disk, routed through the backend the same way an operator's CLI call
// would be, so the daemon's own logging exercises the same path table.
func logStats(ctx context.Context, backend *protocolcore.Backend, store *storage.Store, logger hclog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval * 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			policies, err := backend.HandleRequest(ctx, &logical.Request{
				Operation: logical.ListOperation,
				Path:      "policies/",
				Storage:   store.Raw(),
			})
			if err != nil {
				continue
			}
			proposals, err := backend.HandleRequest(ctx, &logical.Request{
				Operation: logical.ListOperation,
				Path:      "proposals/",
				Storage:   store.Raw(),
			})
			if err != nil {
				continue
			}
			logger.Info("stats", "policies", len(policies.Data["keys"].([]string)), "proposals", len(proposals.Data["keys"].([]string)))
		}
	}
}

func electrumPool(cfg *config.Config) []string {
	if cfg.ElectrumURL != "" {
		return append([]string{cfg.ElectrumURL}, cfg.ElectrumServerPool()...)
	}
	return cfg.ElectrumServerPool()
}

func descriptorScripts(ctx context.Context, store *storage.Store, descriptor string) ([][]byte, error) {
	ids, err := store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		p, ok, err := store.GetPolicy(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok && p.Descriptor == descriptor {
			return p.KeyPathScripts()
		}
	}
	return nil, vaulterr.InputInvalid(fmt.Sprintf("no saved policy for descriptor %q", descriptor), nil)
}

type noopNotifier struct{}

func (noopNotifier) Notify(e *envelope.Event) {}

// keyRing adapts storage + identity into sync.KeyRing: shared-policy
// keys come straight from the store's write-once cache, direct messages
// are ECDH-decrypted against the daemon's own relay identity.
type keyRing struct {
	store *storage.Store
	id    *identity.Identity
}

func (k keyRing) SharedKeyForPolicy(policyID string) (envelope.SharedKey, bool) {
	key, ok, err := k.store.SharedKeyFor(policyID)
	if err != nil {
		return envelope.SharedKey{}, false
	}
	return key, ok
}

func (k keyRing) DirectDecrypt(counterparty [32]byte, payload string) ([]byte, error) {
	return envelope.DecryptDirect(k.id.Relay.PrivateKey(), counterparty, payload)
}
