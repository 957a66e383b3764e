package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/vaulterr"
)

// Policy is the immutable, content-addressed spending policy described
// in §3 and §4.2.
type Policy struct {
	ID             [32]byte
	Name           string
	Description    string
	Descriptor     string
	Network        config.Network
	PublicKeys     []string // xonly/compressed key expressions named in the descriptor
	TemplateClass  TemplateClass
	ExpiresAfter   int64 // seconds; 0 means no expiry (§9 open-question resolution)
}

// taggedHash implements BIP-340 style tagged hashing:
// SHA256(SHA256(tag) || SHA256(tag) || msg).
func taggedHash(tag string, msg []byte) [32]byte {
	tagHash := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	h.Write(msg)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func networkByte(network config.Network) byte {
	switch network {
	case config.NetworkBitcoin:
		return 0x00
	case config.NetworkTestnet4:
		return 0x01
	case config.NetworkSignet:
		return 0x02
	case config.NetworkRegtest:
		return 0x03
	default:
		return 0xff
	}
}

// PolicyID computes tagged_hash("smartvaults/policy", descriptor_bytes ||
// network_byte), per §4.2. Two participants compiling the same logical
// policy on the same network obtain identical ids.
func PolicyID(descriptor string, network config.Network) [32]byte {
	msg := append([]byte(descriptor), networkByte(network))
	return taggedHash("smartvaults/policy", msg)
}

// Compile parses an output descriptor string and produces the Policy
// object, per §4.2.
//
// Only tr() and wsh() descriptors are accepted. A bare miniscript policy
// expression is not compiled into a descriptor; like any other input
// without a supported wrapper, it is rejected with InputInvalid. The
// descriptor is stored as given, with surrounding whitespace trimmed; it
// is not rewritten into a canonical or ranged form.
func Compile(name, description, descriptor string, network config.Network) (*Policy, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return nil, vaulterr.InputInvalid("empty descriptor", nil)
	}
	if _, err := NetworkCheck(network); err != nil {
		return nil, err
	}

	p, err := parseDescriptor(descriptor)
	if err != nil {
		return nil, vaulterr.InputInvalid("descriptor parse failure: "+err.Error(), err)
	}

	keys := p.collectKeys()
	if len(keys) == 0 {
		return nil, vaulterr.InputInvalid("descriptor names no signers (NoNamedSigners)", nil)
	}

	class := TemplateSinglesig
	if p.tree != nil {
		class = classify(p.tree, p.keyCountAtRoot(), p.thresholdAtRoot())
	}

	return &Policy{
		ID:            PolicyID(descriptor, network),
		Name:          name,
		Description:   description,
		Descriptor:    descriptor,
		Network:       network,
		PublicKeys:    keys,
		TemplateClass: class,
	}, nil
}

// NetworkCheck validates that network is one of the four recognized
// chains; returns NetworkMismatch (surfaced as InputInvalid) otherwise.
func NetworkCheck(network config.Network) (config.Network, error) {
	switch network {
	case config.NetworkBitcoin, config.NetworkTestnet4, config.NetworkSignet, config.NetworkRegtest:
		return network, nil
	default:
		return "", vaulterr.InputInvalid("unrecognized network (NetworkMismatch)", nil)
	}
}

// IDHex returns the hex-encoded policy id.
func (p *Policy) IDHex() string { return hex.EncodeToString(p.ID[:]) }

// ChainHash adapts the policy id to btcsuite's chainhash.Hash where PSBT
// and script construction code expects that type.
func (p *Policy) ChainHash() chainhash.Hash {
	return chainhash.Hash(p.ID)
}
