// Package envelope implements the typed event wire format, the per-policy
// shared-key protocol, and the direct/shared AES-256-CBC encryption
// conventions relay traffic uses, per §4.4.
package envelope

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/vaulterr"
)

// Tag is a single indexing tag attached to an event: `p` (recipient),
// `e` (referenced event id), `policy`, `proposal`, or `t` (category).
type Tag []string

// Event is the wire object every piece of protocol state is carried in.
type Event struct {
	ID        [32]byte `json:"-"`
	Author    [32]byte `json:"-"`
	Kind      Kind      `json:"kind"`
	CreatedAt int64     `json:"created_at"`
	Tags      []Tag     `json:"tags"`
	Content   string    `json:"content"`
	Sig       [64]byte  `json:"-"`
}

// canonicalPayload used to compute an event's id is the ordered tuple
// (author, created_at, kind, tags, content), serialized as JSON — the
// same canonicalization strategy nostr-style relay protocols use so the
// hash is reproducible across implementations.
type canonicalPayload struct {
	Author    string     `json:"author"`
	CreatedAt int64      `json:"created_at"`
	Kind      Kind       `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
}

func (e *Event) canonicalBytes() ([]byte, error) {
	tags := make([][]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = []string(t)
	}
	payload := canonicalPayload{
		Author:    fmt.Sprintf("%x", e.Author),
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      tags,
		Content:   e.Content,
	}
	return json.Marshal(payload)
}

// computeID returns H(canonical(author, created_at, kind, tags, content)).
func (e *Event) computeID() ([32]byte, error) {
	b, err := e.canonicalBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// New builds, ids and signs an event authored by id.
func New(author *identity.RelayIdentity, kind Kind, createdAt int64, tags []Tag, content string) (*Event, error) {
	e := &Event{
		Author:    author.XOnlyPubKey(),
		Kind:      kind,
		CreatedAt: createdAt,
		Tags:      tags,
		Content:   content,
	}
	id, err := e.computeID()
	if err != nil {
		return nil, vaulterr.InputInvalid("computing event id", err)
	}
	e.ID = id
	sig, err := author.Sign(id)
	if err != nil {
		return nil, err
	}
	e.Sig = sig
	return e, nil
}

// Verify checks that an event's id matches its canonical content and its
// signature is valid for its claimed author. Per §4.4, events failing
// either check must be silently discarded by the caller — Verify itself
// just reports the boolean.
func (e *Event) Verify() bool {
	id, err := e.computeID()
	if err != nil || id != e.ID {
		return false
	}
	return identity.Verify(e.Author, e.ID, e.Sig)
}

// TagValues returns every value of tags with the given name, in order.
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}

// Mode reports which encryption convention this event's content uses.
func (e *Event) Mode() EncryptionMode { return modeForKind(e.Kind) }
