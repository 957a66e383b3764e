package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/identity"
)

type fakeStore struct {
	events     map[[32]byte]*envelope.Event
	sharedKeys map[string]envelope.SharedKey
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[[32]byte]*envelope.Event), sharedKeys: make(map[string]envelope.SharedKey)}
}

func (f *fakeStore) HasEvent(id [32]byte) (bool, error) {
	_, ok := f.events[id]
	return ok, nil
}

func (f *fakeStore) SaveEvent(e *envelope.Event) error {
	f.events[e.ID] = e
	return nil
}

func (f *fakeStore) SharedKeyFor(policyID string) (envelope.SharedKey, bool, error) {
	k, ok := f.sharedKeys[policyID]
	return k, ok, nil
}

func (f *fakeStore) SaveSharedKeyOnce(policyID string, key envelope.SharedKey) error {
	f.sharedKeys[policyID] = key
	return nil
}

type fakeNotifier struct {
	notified []*envelope.Event
}

func (f *fakeNotifier) Notify(e *envelope.Event) { f.notified = append(f.notified, e) }

type fakeKeyRing struct {
	shared map[string]envelope.SharedKey
	priv   *identity.Identity
}

func (f *fakeKeyRing) SharedKeyForPolicy(policyID string) (envelope.SharedKey, bool) {
	k, ok := f.shared[policyID]
	return k, ok
}

func (f *fakeKeyRing) DirectDecrypt(counterparty [32]byte, payload string) ([]byte, error) {
	return envelope.DecryptDirect(f.priv.Relay.PrivateKey(), counterparty, payload)
}

func testSyncIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	mnemonic, err := identity.GenerateMnemonic()
	require.NoError(t, err)
	id, err := identity.FromMnemonic(mnemonic, "", config.NetworkTestnet4)
	require.NoError(t, err)
	return id
}

func TestIngestStoresAndNotifiesSharedEvent(t *testing.T) {
	author := testSyncIdentity(t)
	recipient := testSyncIdentity(t)

	sharedKey, err := envelope.NewSharedKey()
	require.NoError(t, err)

	content := `{"policy_id":"abc","kind":"Spend","psbt":"cHNidA=="}`
	payload, err := envelope.EncryptShared(sharedKey, []byte(content))
	require.NoError(t, err)

	e, err := envelope.New(author.Relay, envelope.KindProposal, 1700000000, []envelope.Tag{{"policy", "abc"}}, payload)
	require.NoError(t, err)

	store := newFakeStore()
	notifier := &fakeNotifier{}
	keys := &fakeKeyRing{shared: map[string]envelope.SharedKey{"abc": sharedKey}, priv: recipient}

	p := New(store, notifier, keys)
	require.NoError(t, p.Ingest(e))

	seen, _ := store.HasEvent(e.ID)
	require.True(t, seen)
	require.Len(t, notifier.notified, 1)
}

func TestIngestDeduplicatesRepeatedEvent(t *testing.T) {
	author := testSyncIdentity(t)
	recipient := testSyncIdentity(t)
	sharedKey, err := envelope.NewSharedKey()
	require.NoError(t, err)

	content := `{"policy_id":"abc","kind":"Spend","psbt":"cHNidA=="}`
	payload, err := envelope.EncryptShared(sharedKey, []byte(content))
	require.NoError(t, err)
	e, err := envelope.New(author.Relay, envelope.KindProposal, 1700000000, []envelope.Tag{{"policy", "abc"}}, payload)
	require.NoError(t, err)

	store := newFakeStore()
	notifier := &fakeNotifier{}
	keys := &fakeKeyRing{shared: map[string]envelope.SharedKey{"abc": sharedKey}, priv: recipient}
	p := New(store, notifier, keys)

	require.NoError(t, p.Ingest(e))
	require.NoError(t, p.Ingest(e))
	require.Len(t, notifier.notified, 1)
}

func TestIngestDiscardsTamperedEvent(t *testing.T) {
	author := testSyncIdentity(t)
	recipient := testSyncIdentity(t)
	e, err := envelope.New(author.Relay, envelope.KindProposalChat, 1700000000, nil, "hello")
	require.NoError(t, err)
	e.Content = "tampered"

	store := newFakeStore()
	notifier := &fakeNotifier{}
	keys := &fakeKeyRing{shared: map[string]envelope.SharedKey{}, priv: recipient}
	p := New(store, notifier, keys)

	require.NoError(t, p.Ingest(e))
	seen, _ := store.HasEvent(e.ID)
	require.False(t, seen)
	require.Empty(t, notifier.notified)
}

func TestIngestQuarantinesSchemaInvalidEventButStoresIt(t *testing.T) {
	author := testSyncIdentity(t)
	recipient := testSyncIdentity(t)
	sharedKey, err := envelope.NewSharedKey()
	require.NoError(t, err)

	payload, err := envelope.EncryptShared(sharedKey, []byte(`{"kind":"Spend"}`)) // missing required fields
	require.NoError(t, err)
	e, err := envelope.New(author.Relay, envelope.KindProposal, 1700000000, []envelope.Tag{{"policy", "abc"}}, payload)
	require.NoError(t, err)

	store := newFakeStore()
	notifier := &fakeNotifier{}
	keys := &fakeKeyRing{shared: map[string]envelope.SharedKey{"abc": sharedKey}, priv: recipient}
	p := New(store, notifier, keys)

	require.NoError(t, p.Ingest(e))
	seen, _ := store.HasEvent(e.ID)
	require.True(t, seen, "quarantined events are still stored for inspection")
	require.Empty(t, notifier.notified, "quarantined events do not trigger a projection notify")
}

func TestSharedKeyCacheIsWriteOnce(t *testing.T) {
	author := testSyncIdentity(t)
	recipient := testSyncIdentity(t)

	firstKey, err := envelope.NewSharedKey()
	require.NoError(t, err)
	secondKey, err := envelope.NewSharedKey()
	require.NoError(t, err)

	store := newFakeStore()
	notifier := &fakeNotifier{}
	keys := &fakeKeyRing{priv: recipient}
	p := New(store, notifier, keys)

	firstPayload, err := envelope.EncryptDirect(author.Relay.PrivateKey(), recipient.Relay.XOnlyPubKey(), firstKey[:])
	require.NoError(t, err)
	e1, err := envelope.New(author.Relay, envelope.KindSharedKey, 1700000000, []envelope.Tag{{"policy", "abc"}}, firstPayload)
	require.NoError(t, err)
	require.NoError(t, p.Ingest(e1))

	secondPayload, err := envelope.EncryptDirect(author.Relay.PrivateKey(), recipient.Relay.XOnlyPubKey(), secondKey[:])
	require.NoError(t, err)
	e2, err := envelope.New(author.Relay, envelope.KindSharedKey, 1700000100, []envelope.Tag{{"policy", "abc"}}, secondPayload)
	require.NoError(t, err)
	require.NoError(t, p.Ingest(e2))

	stored, ok, err := store.SharedKeyFor("abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, firstKey, stored, "the second SharedKey event must not overwrite the first")
}
