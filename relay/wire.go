package relay

import (
	"encoding/hex"
	"encoding/json"

	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/vaulterr"
)

// wireEvent is the over-the-wire JSON shape of an envelope.Event. The
// domain type keeps ID/Author/Sig unexported-from-JSON ([32]byte/[64]byte
// fields tagged json:"-") since they're derived, not authored, fields;
// this wire struct is the explicit hex-encoding boundary between the two.
type wireEvent struct {
	ID        string     `json:"id"`
	Author    string     `json:"pubkey"`
	Kind      envelope.Kind `json:"kind"`
	CreatedAt int64      `json:"created_at"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func toWire(e *envelope.Event) wireEvent {
	tags := make([][]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = []string(t)
	}
	return wireEvent{
		ID:        hex.EncodeToString(e.ID[:]),
		Author:    hex.EncodeToString(e.Author[:]),
		Kind:      e.Kind,
		CreatedAt: e.CreatedAt,
		Tags:      tags,
		Content:   e.Content,
		Sig:       hex.EncodeToString(e.Sig[:]),
	}
}

func (w wireEvent) toEvent() (*envelope.Event, error) {
	e := &envelope.Event{
		Kind:      w.Kind,
		CreatedAt: w.CreatedAt,
		Content:   w.Content,
	}
	for _, t := range w.Tags {
		e.Tags = append(e.Tags, envelope.Tag(t))
	}
	if err := decodeFixed(w.ID, e.ID[:]); err != nil {
		return nil, vaulterr.RelayError("decoding event id", err)
	}
	if err := decodeFixed(w.Author, e.Author[:]); err != nil {
		return nil, vaulterr.RelayError("decoding event author", err)
	}
	if err := decodeFixed(w.Sig, e.Sig[:]); err != nil {
		return nil, vaulterr.RelayError("decoding event signature", err)
	}
	return e, nil
}

func decodeFixed(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return vaulterr.RelayError("unexpected field length", nil)
	}
	copy(dst, b)
	return nil
}

// marshalEnvelope and unmarshalEnvelope are the relay package's
// boundary for turning an envelope.Event into the JSON array frames
// client messages carry.
func marshalEnvelope(e *envelope.Event) ([]byte, error) {
	b, err := json.Marshal(toWire(e))
	if err != nil {
		return nil, vaulterr.RelayError("encoding event", err)
	}
	return b, nil
}

func unmarshalEnvelope(data []byte) (*envelope.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, vaulterr.RelayError("decoding event", err)
	}
	return w.toEvent()
}
