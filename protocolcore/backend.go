// Package protocolcore is the operation router for the custody daemon
// and CLI: it repurposes hashicorp/vault/sdk's framework.Backend /
// framework.Path as a standalone dispatcher over a local goleveldb
// store rather than a Vault-mounted secrets engine, grounded directly
// on teacher's backend.go and path_wallet_*.go files.
package protocolcore

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/vault/sdk/framework"
	"github.com/hashicorp/vault/sdk/logical"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/relay"
	"github.com/covault-labs/custody/storage"
)

// Backend is the protocol core's operation router: every CLI/daemon
// command is dispatched through it as a logical.Request, exactly the
// way the teacher's btcBackend dispatches wallet operations.
type Backend struct {
	*framework.Backend

	lock     sync.RWMutex
	store    *storage.Store
	oracle   chainoracle.Oracle
	relays   []*relay.Client
	identity *identity.Identity
	log      hclog.Logger
}

// Deps are the runtime collaborators the router dispatches into; they
// are resolved by cmd/custodyd (or cmd/custody for one-shot CLI calls)
// and injected rather than constructed inside the backend, matching
// teacher's getClient-on-demand pattern but without the lazy
// connection-pool reset logic a standalone CLI process doesn't need.
type Deps struct {
	Store    *storage.Store
	Oracle   chainoracle.Oracle
	Relays   []*relay.Client
	Identity *identity.Identity
	Logger   hclog.Logger
}

// New constructs the router and its full path table.
func New(d Deps) *Backend {
	logger := d.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	b := &Backend{
		store:    d.Store,
		oracle:   d.Oracle,
		relays:   d.Relays,
		identity: d.Identity,
		log:      logger,
	}

	b.Backend = &framework.Backend{
		Help: strings.TrimSpace(backendHelp),
		Paths: framework.PathAppend(
			pathConfig(b),
			pathPolicies(b),
			pathProposals(b),
		),
		BackendType: logical.TypeLogical,
	}

	return b
}

// HandleRequest drives req through the path table exactly as Vault's
// router would, the single entry point cmd/custody and cmd/custodyd
// both call.
func (b *Backend) HandleRequest(ctx context.Context, req *logical.Request) (*logical.Response, error) {
	return b.Backend.HandleRequest(ctx, req)
}

const backendHelp = `
The covault protocol core routes policy, proposal, and configuration
operations against local storage and the configured chain oracle and
relay set.

Endpoints:
  config                  - network, relay, and fee defaults
  policies                - list/save/get/delete spending policies
  policies/:id             - a single policy
  proposals                - draft a new spend
  proposals/:id             - read/delete a proposal
  proposals/:id/approve    - submit a signed PSBT approval
  proposals/:id/broadcast  - finalize and broadcast once threshold is met
`
