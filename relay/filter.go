package relay

import "github.com/covault-labs/custody/envelope"

// Filter selects which events a subscription matches, per the relay
// wire contract assumed by §6 ("a relay client capability is assumed:
// subscribe to filters, publish signed events, receive matches").
type Filter struct {
	Kinds   []envelope.Kind `json:"kinds,omitempty"`
	Authors []string        `json:"authors,omitempty"` // hex pubkeys
	Tags    map[string][]string `json:"tags,omitempty"` // e.g. "policy": [id]
	Since   int64           `json:"since,omitempty"`
	Until   int64           `json:"until,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// Matches reports whether e satisfies every non-empty constraint in f.
func (f Filter) Matches(e *envelope.Event) bool {
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until != 0 && e.CreatedAt > f.Until {
		return false
	}
	if len(f.Authors) > 0 {
		authorHex := hexString(e.Author[:])
		if !containsString(f.Authors, authorHex) {
			return false
		}
	}
	for tagName, values := range f.Tags {
		got := e.TagValues(tagName)
		if !anyIntersect(got, values) {
			return false
		}
	}
	return true
}

func containsKind(kinds []envelope.Kind, k envelope.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func anyIntersect(a, b []string) bool {
	for _, x := range a {
		if containsString(b, x) {
			return true
		}
	}
	return false
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
