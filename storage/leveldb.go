// Package storage implements the persisted-state contract of §6 over
// goleveldb: a logical.Storage-conforming key-value store (so
// protocolcore's framework.Path handlers see the same storage interface
// the teacher's path_*.go files already use), plus the logical tables
// §6 names and their numbered-migration version guard.
package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/hashicorp/vault/sdk/logical"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/covault-labs/custody/vaulterr"
)

// LevelDB adapts a goleveldb database to hashicorp/vault/sdk's
// logical.Storage interface, grounded on teacher's address_storage.go
// Get/Put/List usage pattern (prefix-scoped keys, JSON-encoded values)
// so every path handler built against that interface works unmodified
// against this standalone (non-Vault-mounted) store.
type LevelDB struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a goleveldb database at path.
func Open(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, vaulterr.Storage("opening leveldb store", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// List implements logical.Storage. It returns the direct children of
// prefix, folders suffixed with "/" as logical.Storage's contract
// requires.
func (l *LevelDB) List(ctx context.Context, prefix string) ([]string, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	seen := make(map[string]bool)
	var out []string
	for iter.Next() {
		rest := strings.TrimPrefix(string(iter.Key()), prefix)
		if rest == "" {
			continue
		}
		if idx := strings.Index(rest, "/"); idx >= 0 {
			child := rest[:idx+1]
			if !seen[child] {
				seen[child] = true
				out = append(out, child)
			}
			continue
		}
		if !seen[rest] {
			seen[rest] = true
			out = append(out, rest)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, vaulterr.Storage("listing leveldb keys", err)
	}
	sort.Strings(out)
	return out, nil
}

// Get implements logical.Storage.
func (l *LevelDB) Get(ctx context.Context, key string) (*logical.StorageEntry, error) {
	value, err := l.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, vaulterr.Storage("reading leveldb key "+key, err)
	}
	return &logical.StorageEntry{Key: key, Value: value}, nil
}

// Put implements logical.Storage.
func (l *LevelDB) Put(ctx context.Context, entry *logical.StorageEntry) error {
	if err := l.db.Put([]byte(entry.Key), entry.Value, nil); err != nil {
		return vaulterr.Storage("writing leveldb key "+entry.Key, err)
	}
	return nil
}

// Delete implements logical.Storage.
func (l *LevelDB) Delete(ctx context.Context, key string) error {
	if err := l.db.Delete([]byte(key), nil); err != nil {
		return vaulterr.Storage("deleting leveldb key "+key, err)
	}
	return nil
}

var _ logical.Storage = (*LevelDB)(nil)
