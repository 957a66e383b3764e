package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/sdk/logical"

	"github.com/covault-labs/custody/vaulterr"
)

// schemaVersionKey is the metadata table's own reserved key for the
// migration version guard, per §6's "unknown-future-version stores
// must refuse to open" requirement.
const schemaVersionKey = metadataPrefix + "schema_version"

// currentSchemaVersion is the highest migration this build understands.
// Bump it (and add an entry to migrations) whenever a table's shape changes.
const currentSchemaVersion = 1

// migration applies one schema upgrade step, from-1 the prior version.
type migration func(ctx context.Context, s logical.Storage) error

// migrations is indexed by the TARGET version each step produces;
// migrations[1] brings a fresh (version 0 / absent) store up to 1.
var migrations = map[int]migration{
	1: func(ctx context.Context, s logical.Storage) error { return nil }, // initial schema, no-op
}

// EnsureSchema opens the store at its current on-disk version, refusing
// to proceed if that version is newer than this build understands, and
// otherwise applying every migration between the on-disk version and
// currentSchemaVersion in order.
func EnsureSchema(ctx context.Context, s logical.Storage) error {
	version, err := readSchemaVersion(ctx, s)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return vaulterr.Storage(fmt.Sprintf("store schema version %d is newer than this build supports (%d)", version, currentSchemaVersion), nil)
	}
	for v := version + 1; v <= currentSchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return vaulterr.Storage(fmt.Sprintf("missing migration to schema version %d", v), nil)
		}
		if err := step(ctx, s); err != nil {
			return vaulterr.Storage(fmt.Sprintf("applying migration to schema version %d", v), err)
		}
	}
	return writeSchemaVersion(ctx, s, currentSchemaVersion)
}

func readSchemaVersion(ctx context.Context, s logical.Storage) (int, error) {
	entry, err := s.Get(ctx, schemaVersionKey)
	if err != nil {
		return 0, vaulterr.Storage("reading schema version", err)
	}
	if entry == nil {
		return 0, nil
	}
	var v struct {
		Version int `json:"version"`
	}
	if err := entry.DecodeJSON(&v); err != nil {
		return 0, vaulterr.Storage("decoding schema version", err)
	}
	return v.Version, nil
}

func writeSchemaVersion(ctx context.Context, s logical.Storage, version int) error {
	entry, err := logical.StorageEntryJSON(schemaVersionKey, struct {
		Version int `json:"version"`
	}{Version: version})
	if err != nil {
		return vaulterr.Storage("encoding schema version", err)
	}
	return s.Put(ctx, entry)
}
