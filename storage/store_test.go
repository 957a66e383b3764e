package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hashicorp/vault/sdk/logical"
	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/policy"
)

func openTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "leveldb")
	db, err := Open(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, EnsureSchema(ctx, db))

	return New(db), func() { db.Close() }
}

func TestEnsureSchemaRefusesFutureVersion(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "leveldb")
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, writeSchemaVersion(ctx, db, currentSchemaVersion+1))

	err = EnsureSchema(ctx, db)
	require.Error(t, err)
}

func TestSavePolicyRoundTrip(t *testing.T) {
	store, closeFn := openTestStore(t)
	defer closeFn()

	p, err := policy.Compile("family vault", "", "tr(KEY)", config.NetworkTestnet4)
	require.NoError(t, err)

	require.NoError(t, store.SavePolicy(context.Background(), p))

	got, ok, err := store.GetPolicy(context.Background(), p.IDHex())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, p.Descriptor, got.Descriptor)
}

func TestSharedKeyWriteOnce(t *testing.T) {
	store, closeFn := openTestStore(t)
	defer closeFn()

	k1, err := envelope.NewSharedKey()
	require.NoError(t, err)
	require.NoError(t, store.SaveSharedKeyOnce("abc", k1))

	k2, err := envelope.NewSharedKey()
	require.NoError(t, err)
	require.Error(t, store.SaveSharedKeyOnce("abc", k2))

	got, ok, err := store.SharedKeyFor("abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, k1, got)
}

func TestEventDedupCache(t *testing.T) {
	store, closeFn := openTestStore(t)
	defer closeFn()

	var id [32]byte
	id[0] = 0xab
	seen, err := store.HasEvent(id)
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, store.SaveEvent(&envelope.Event{ID: id, Kind: envelope.KindProposalChat}))

	seen, err = store.HasEvent(id)
	require.NoError(t, err)
	require.True(t, seen)
}

func TestWatchedDescriptorsAndUTXOPersistence(t *testing.T) {
	store, closeFn := openTestStore(t)
	defer closeFn()

	ctx := context.Background()
	require.NoError(t, store.WatchDescriptor(ctx, "tr(KEY1)"))
	require.NoError(t, store.WatchDescriptor(ctx, "tr(KEY2)"))

	descriptors, err := store.WatchedDescriptors()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tr(KEY1)", "tr(KEY2)"}, descriptors)

	utxos := []chainoracle.UTXO{{TxID: "aaaa", Amount: 1000}}
	require.NoError(t, store.SaveUTXOs("tr(KEY1)", utxos))

	got, err := store.LoadUTXOs(ctx, "tr(KEY1)")
	require.NoError(t, err)
	require.Equal(t, utxos, got)
}

func TestFreezeAndReleaseUTXO(t *testing.T) {
	store, closeFn := openTestStore(t)
	defer closeFn()
	ctx := context.Background()

	require.NoError(t, store.FreezeUTXO(ctx, "aaaa:0", "proposal123"))
	frozen, err := store.FrozenUTXOs(ctx)
	require.NoError(t, err)
	require.True(t, frozen["aaaa:0"])

	require.NoError(t, store.ReleaseUTXO(ctx, "aaaa:0"))
	frozen, err = store.FrozenUTXOs(ctx)
	require.NoError(t, err)
	require.False(t, frozen["aaaa:0"])
}

func TestLevelDBListReturnsDirectChildrenOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "leveldb")
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Put(ctx, &logical.StorageEntry{Key: "policies/aaa", Value: []byte("x")}))
	require.NoError(t, db.Put(ctx, &logical.StorageEntry{Key: "policies/bbb", Value: []byte("x")}))

	children, err := db.List(ctx, "policies/")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"aaa", "bbb"}, children)
}
