package storage

import (
	"context"
	"encoding/hex"

	"github.com/hashicorp/vault/sdk/logical"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/policy"
	"github.com/covault-labs/custody/proposal"
	"github.com/covault-labs/custody/vaulterr"
)

// Store is the typed facade protocolcore and sync use over a raw
// logical.Storage, implementing every logical table named in §6. It
// satisfies sync.Store and sync.PolicyWatcher without importing sync
// (avoiding an import cycle); those interfaces are structural.
type Store struct {
	backend logical.Storage
}

// New wraps backend (typically a *LevelDB, but any logical.Storage
// works — including Vault's own in-memory storage in tests) as a Store.
// Callers should run EnsureSchema(ctx, backend) once before New.
func New(backend logical.Storage) *Store {
	return &Store{backend: backend}
}

// Raw exposes the underlying logical.Storage, for callers (protocolcore's
// path handlers) that build logical.Request values directly.
func (st *Store) Raw() logical.Storage {
	return st.backend
}

func putJSON(ctx context.Context, s logical.Storage, key string, v interface{}) error {
	entry, err := logical.StorageEntryJSON(key, v)
	if err != nil {
		return vaulterr.Storage("encoding "+key, err)
	}
	return s.Put(ctx, entry)
}

func getJSON(ctx context.Context, s logical.Storage, key string, v interface{}) (bool, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return false, vaulterr.Storage("reading "+key, err)
	}
	if entry == nil {
		return false, nil
	}
	if err := entry.DecodeJSON(v); err != nil {
		return false, vaulterr.Storage("decoding "+key, err)
	}
	return true, nil
}

// --- policies -------------------------------------------------------

func (st *Store) SavePolicy(ctx context.Context, p *policy.Policy) error {
	return putJSON(ctx, st.backend, policiesPrefix+p.IDHex(), p)
}

func (st *Store) GetPolicy(ctx context.Context, policyIDHex string) (*policy.Policy, bool, error) {
	var p policy.Policy
	ok, err := getJSON(ctx, st.backend, policiesPrefix+policyIDHex, &p)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &p, true, nil
}

func (st *Store) ListPolicies(ctx context.Context) ([]string, error) {
	keys, err := st.backend.List(ctx, policiesPrefix)
	if err != nil {
		return nil, vaulterr.Storage("listing policies", err)
	}
	return keys, nil
}

func (st *Store) DeletePolicy(ctx context.Context, policyIDHex string) error {
	if err := st.backend.Delete(ctx, policiesPrefix+policyIDHex); err != nil {
		return vaulterr.Storage("deleting policy", err)
	}
	return nil
}

// --- proposals --------------------------------------------------------

// proposalTableFor returns the table a proposal belongs in given its
// status, matching §6's split between the pending, approved (in-flight
// with at least one approval), and completed/expired tables.
func proposalTableFor(p *proposal.Proposal) string {
	switch p.Status {
	case proposal.StatusCompleted, proposal.StatusExpired:
		return completedProposalsPrefix
	case proposal.StatusPending:
		if len(p.Approvals()) > 0 {
			return approvedProposalsPrefix
		}
		return proposalsPrefix
	default:
		return proposalsPrefix
	}
}

// SaveProposal persists p under the table matching its current status,
// removing any stale copy left in another table by a prior transition.
func (st *Store) SaveProposal(ctx context.Context, p *proposal.Proposal) error {
	for _, prefix := range []string{proposalsPrefix, approvedProposalsPrefix, completedProposalsPrefix} {
		if prefix != proposalTableFor(p) {
			_ = st.backend.Delete(ctx, prefix+p.IDHex())
		}
	}
	return putJSON(ctx, st.backend, proposalTableFor(p)+p.IDHex(), p)
}

// GetProposal looks a proposal up across all three tables.
func (st *Store) GetProposal(ctx context.Context, idHex string) (*proposal.Proposal, bool, error) {
	for _, prefix := range []string{proposalsPrefix, approvedProposalsPrefix, completedProposalsPrefix} {
		p := new(proposal.Proposal)
		ok, err := getJSON(ctx, st.backend, prefix+idHex, p)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return nil, false, nil
}

// ListProposals returns the ids of every pending proposal, both those
// without approvals and those with at least one, the set a signer is
// asked to review by default.
func (st *Store) ListProposals(ctx context.Context) ([]string, error) {
	pending, err := st.backend.List(ctx, proposalsPrefix)
	if err != nil {
		return nil, vaulterr.Storage("listing proposals", err)
	}
	approved, err := st.backend.List(ctx, approvedProposalsPrefix)
	if err != nil {
		return nil, vaulterr.Storage("listing approved proposals", err)
	}
	return append(pending, approved...), nil
}

// DeleteProposal removes a proposal from whichever table it lives in.
func (st *Store) DeleteProposal(ctx context.Context, idHex string) error {
	for _, prefix := range []string{proposalsPrefix, approvedProposalsPrefix, completedProposalsPrefix} {
		if err := st.backend.Delete(ctx, prefix+idHex); err != nil {
			return vaulterr.Storage("deleting proposal", err)
		}
	}
	return nil
}

// --- shared keys (write-once, per §5) --------------------------------

func (st *Store) SharedKeyFor(policyIDHex string) (envelope.SharedKey, bool, error) {
	ctx := context.Background()
	var raw struct {
		KeyHex string `json:"key"`
	}
	ok, err := getJSON(ctx, st.backend, sharedKeysPrefix+policyIDHex, &raw)
	if !ok || err != nil {
		return envelope.SharedKey{}, ok, err
	}
	var key envelope.SharedKey
	b, err := hex.DecodeString(raw.KeyHex)
	if err != nil || len(b) != 32 {
		return envelope.SharedKey{}, false, vaulterr.Storage("corrupt shared key entry", err)
	}
	copy(key[:], b)
	return key, true, nil
}

func (st *Store) SaveSharedKeyOnce(policyIDHex string, key envelope.SharedKey) error {
	ctx := context.Background()
	if _, exists, err := st.SharedKeyFor(policyIDHex); err != nil {
		return err
	} else if exists {
		return vaulterr.ConsistencyError("shared key already set for policy "+policyIDHex, nil)
	}
	return putJSON(ctx, st.backend, sharedKeysPrefix+policyIDHex, struct {
		KeyHex string `json:"key"`
	}{KeyHex: hex.EncodeToString(key[:])})
}

// --- events cache (dedup + quarantine inspection) --------------------

func (st *Store) HasEvent(id [32]byte) (bool, error) {
	entry, err := st.backend.Get(context.Background(), eventsPrefix+hex.EncodeToString(id[:]))
	if err != nil {
		return false, vaulterr.Storage("checking event cache", err)
	}
	return entry != nil, nil
}

func (st *Store) SaveEvent(e *envelope.Event) error {
	return putJSON(context.Background(), st.backend, eventsPrefix+hex.EncodeToString(e.ID[:]), e)
}

// --- timechain / watched descriptors ---------------------------------

type timechainEntry struct {
	Descriptor string `json:"descriptor"`
}

// WatchDescriptor registers descriptor for chain-oracle polling.
func (st *Store) WatchDescriptor(ctx context.Context, descriptor string) error {
	key := timechainPrefix + hex.EncodeToString([]byte(descriptor))
	return putJSON(ctx, st.backend, key, timechainEntry{Descriptor: descriptor})
}

// WatchedDescriptors implements sync.PolicyWatcher.
func (st *Store) WatchedDescriptors() ([]string, error) {
	ctx := context.Background()
	keys, err := st.backend.List(ctx, timechainPrefix)
	if err != nil {
		return nil, vaulterr.Storage("listing watched descriptors", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		var entry timechainEntry
		ok, err := getJSON(ctx, st.backend, timechainPrefix+k, &entry)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry.Descriptor)
		}
	}
	return out, nil
}

// SaveUTXOs implements sync.PolicyWatcher, caching the polled UTXO set
// for descriptor under the timechain table.
func (st *Store) SaveUTXOs(descriptor string, utxos []chainoracle.UTXO) error {
	key := timechainPrefix + hex.EncodeToString([]byte(descriptor)) + "/utxos"
	return putJSON(context.Background(), st.backend, key, utxos)
}

func (st *Store) LoadUTXOs(ctx context.Context, descriptor string) ([]chainoracle.UTXO, error) {
	var utxos []chainoracle.UTXO
	key := timechainPrefix + hex.EncodeToString([]byte(descriptor)) + "/utxos"
	_, err := getJSON(ctx, st.backend, key, &utxos)
	return utxos, err
}

// --- frozen utxos -----------------------------------------------------

// FreezeUTXO marks outpoint as reserved by a pending proposal, per §3's
// frozen-UTXO exclusion from future drafts.
func (st *Store) FreezeUTXO(ctx context.Context, outpoint string, proposalIDHex string) error {
	return putJSON(ctx, st.backend, frozenUTXOsPrefix+outpoint, struct {
		ProposalID string `json:"proposal_id"`
	}{ProposalID: proposalIDHex})
}

// ReleaseUTXO clears a freeze, per §4.5's terminal-transition release.
func (st *Store) ReleaseUTXO(ctx context.Context, outpoint string) error {
	if err := st.backend.Delete(ctx, frozenUTXOsPrefix+outpoint); err != nil {
		return vaulterr.Storage("releasing frozen utxo", err)
	}
	return nil
}

// FrozenUTXOs returns the set of currently-frozen outpoints.
func (st *Store) FrozenUTXOs(ctx context.Context) (map[string]bool, error) {
	keys, err := st.backend.List(ctx, frozenUTXOsPrefix)
	if err != nil {
		return nil, vaulterr.Storage("listing frozen utxos", err)
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

// FrozenUTXOOwner returns the proposal id that froze outpoint, if any.
func (st *Store) FrozenUTXOOwner(ctx context.Context, outpoint string) (string, bool, error) {
	var v struct {
		ProposalID string `json:"proposal_id"`
	}
	ok, err := getJSON(ctx, st.backend, frozenUTXOsPrefix+outpoint, &v)
	if !ok || err != nil {
		return "", ok, err
	}
	return v.ProposalID, true, nil
}

// --- labels -------------------------------------------------------------

type Label struct {
	Target string `json:"target"` // address, utxo outpoint, or txid
	Text   string `json:"text"`
}

func (st *Store) SaveLabel(ctx context.Context, l Label) error {
	return putJSON(ctx, st.backend, labelsPrefix+l.Target, l)
}

func (st *Store) GetLabel(ctx context.Context, target string) (Label, bool, error) {
	var l Label
	ok, err := getJSON(ctx, st.backend, labelsPrefix+target, &l)
	return l, ok, err
}

// --- raw passthrough for table kinds not yet given typed accessors ----

// PutRaw and GetRaw expose the underlying key-value operations for
// tables (signers, shared signers, nostr connect sessions/requests,
// contacts, relays, notifications, proposal snapshots) whose access
// patterns are simple enough not to warrant a dedicated typed method;
// protocolcore composes these with its own JSON payload types.
func (st *Store) PutRaw(ctx context.Context, tablePrefix, key string, v interface{}) error {
	return putJSON(ctx, st.backend, tablePrefix+key, v)
}

func (st *Store) GetRaw(ctx context.Context, tablePrefix, key string, v interface{}) (bool, error) {
	return getJSON(ctx, st.backend, tablePrefix+key, v)
}

func (st *Store) ListRaw(ctx context.Context, tablePrefix string) ([]string, error) {
	keys, err := st.backend.List(ctx, tablePrefix)
	if err != nil {
		return nil, vaulterr.Storage("listing "+tablePrefix, err)
	}
	return keys, nil
}

func (st *Store) DeleteRaw(ctx context.Context, tablePrefix, key string) error {
	if err := st.backend.Delete(ctx, tablePrefix+key); err != nil {
		return vaulterr.Storage("deleting "+tablePrefix+key, err)
	}
	return nil
}

// Table name exports so callers of PutRaw/GetRaw/ListRaw/DeleteRaw don't
// need to know the literal prefixes.
const (
	TableRelays                 = relaysPrefix
	TableNotifications          = notificationsPrefix
	TableSigners                = signersPrefix
	TableMySharedSigners        = mySharedSignersPrefix
	TableSharedSigners          = sharedSignersPrefix
	TableNostrConnectSessions   = nostrConnectSessionsPrefix
	TableNostrConnectRequests   = nostrConnectRequestsPrefix
	TableContacts               = contactsPrefix
	TableApprovedProposals     = approvedProposalsPrefix
	TableCompletedProposals    = completedProposalsPrefix
	TableProposals              = proposalsPrefix
	TableNostrPublicKeys       = nostrPublicKeysPrefix
)
