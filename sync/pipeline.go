// Package sync implements the event pipeline and chain-oracle polling
// loop described in §4.6/§5: relay events are deduplicated, verified,
// decrypted, schema-validated, stored, and projected into
// notifications, while a separate task polls the chain oracle per
// policy on a fixed interval.
package sync

import (
	"sync"

	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/vaulterr"
)

// Store is the subset of the persisted-state contract (§6) the pipeline
// writes to. A concrete implementation lives in the storage package;
// sync depends only on this narrow interface so it can be tested
// without a real database.
type Store interface {
	HasEvent(id [32]byte) (bool, error)
	SaveEvent(e *envelope.Event) error
	SharedKeyFor(policyID string) (envelope.SharedKey, bool, error)
	SaveSharedKeyOnce(policyID string, key envelope.SharedKey) error
}

// Notifier receives a projection change after an event is durably
// stored, per §4.6's at-least-once delivery guarantee. Implementations
// must not block the pipeline; a bounded channel is the expected shape.
type Notifier interface {
	Notify(e *envelope.Event)
}

// KeyRing resolves the cryptographic material needed to decrypt an
// event: the policy's per-policy SharedKey for Shared-mode events, or
// the local identity's private key plus the event's counterparty pubkey
// for Direct-mode events.
type KeyRing interface {
	SharedKeyForPolicy(policyID string) (envelope.SharedKey, bool)
	DirectDecrypt(counterparty [32]byte, payload string) ([]byte, error)
}

// Pipeline processes inbound relay events into stored, decrypted,
// schema-checked state plus notifications. One Pipeline instance is
// shared by every relay connection in a process, per §5's
// single-process reactor; the chain-oracle Poller does not use it.
type Pipeline struct {
	store    Store
	notifier Notifier
	keys     KeyRing

	// policyLocks enforces single-writer-per-policy (§5); the zero
	// value (no policy tag on the event) uses the global lock.
	mu          sync.Mutex
	policyLocks map[string]*sync.Mutex
}

// New builds a Pipeline over the given store, notifier, and key ring.
func New(store Store, notifier Notifier, keys KeyRing) *Pipeline {
	return &Pipeline{store: store, notifier: notifier, keys: keys, policyLocks: make(map[string]*sync.Mutex)}
}

func (p *Pipeline) lockFor(policyID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.policyLocks[policyID]
	if !ok {
		l = &sync.Mutex{}
		p.policyLocks[policyID] = l
	}
	return l
}

// Ingest runs one event through the full pipeline: dedup, verify,
// decrypt, schema-validate, store, notify. It returns nil both when the
// event was newly stored and when it was a harmless duplicate or a
// quarantined (schema-invalid) event — only infrastructure failures
// (store errors) are returned as errors, matching §4.4/§4.6's "silently
// discard malformed/unverifiable events" rule.
func (p *Pipeline) Ingest(e *envelope.Event) error {
	seen, err := p.store.HasEvent(e.ID)
	if err != nil {
		return vaulterr.Storage("checking event dedup cache", err)
	}
	if seen {
		return nil
	}

	if !e.Verify() {
		return nil // malformed/unverifiable: silently discarded
	}

	policyIDs := e.TagValues("policy")
	var policyID string
	if len(policyIDs) > 0 {
		policyID = policyIDs[0]
	}
	lock := p.lockFor(policyID)
	lock.Lock()
	defer lock.Unlock()

	plaintext, ok := p.decrypt(e, policyID)
	if !ok {
		return nil // undecryptable (not a participant, or stale key): discard
	}

	if e.Kind == envelope.KindSharedKey {
		if err := p.handleSharedKey(policyID, plaintext); err != nil {
			return err
		}
	} else if schemaOK, _ := envelope.ValidateSchema(e.Kind, plaintext); !schemaOK {
		// Quarantined: stored so an operator can inspect it, but the
		// projection does not act on it. Non-fatal per §4.4.
		if err := p.store.SaveEvent(e); err != nil {
			return vaulterr.Storage("saving quarantined event", err)
		}
		return nil
	}

	if err := p.store.SaveEvent(e); err != nil {
		return vaulterr.Storage("saving event", err)
	}
	if p.notifier != nil {
		p.notifier.Notify(e)
	}
	return nil
}

func (p *Pipeline) decrypt(e *envelope.Event, policyID string) ([]byte, bool) {
	if e.Content == "" {
		return nil, true
	}
	switch e.Mode() {
	case envelope.Shared:
		key, ok := p.keys.SharedKeyForPolicy(policyID)
		if !ok {
			return nil, false
		}
		pt, err := envelope.DecryptShared(key, e.Content)
		if err != nil {
			return nil, false
		}
		return pt, true
	default:
		pt, err := p.keys.DirectDecrypt(e.Author, e.Content)
		if err != nil {
			return nil, false
		}
		return pt, true
	}
}

func (p *Pipeline) handleSharedKey(policyID string, plaintext []byte) error {
	if len(plaintext) != 32 {
		return nil // malformed shared key payload: discard
	}
	var key envelope.SharedKey
	copy(key[:], plaintext)

	if _, exists, err := p.store.SharedKeyFor(policyID); err != nil {
		return vaulterr.Storage("checking shared key cache", err)
	} else if exists {
		// Write-once cache: a later SharedKey event for a known policy_id
		// is rejected, per §5.
		return nil
	}
	if err := p.store.SaveSharedKeyOnce(policyID, key); err != nil {
		return vaulterr.Storage("saving shared key", err)
	}
	return nil
}
