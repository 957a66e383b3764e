package policy

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/covault-labs/custody/identity"
	"github.com/covault-labs/custody/vaulterr"
)

// KeyPathScripts derives the key-path-spend P2TR scriptPubKey for each of
// the policy's named keys, used by a chain oracle to watch a descriptor's
// outputs. Only singlesig key-path policies are supported: a full
// taproot script tree requires compiling every miniscript leaf into its
// own tapscript, which this core's hand-rolled descriptor parser (see
// descriptor.go) does not yet do.
func (p *Policy) KeyPathScripts() ([][]byte, error) {
	if p.TemplateClass != TemplateSinglesig {
		return nil, vaulterr.InputInvalid("script derivation is only supported for singlesig key-path policies", nil)
	}
	if len(p.PublicKeys) != 1 {
		return nil, vaulterr.InputInvalid("singlesig policy must name exactly one key", nil)
	}

	params, err := identity.NetworkParams(p.Network)
	if err != nil {
		return nil, err
	}

	keyBytes, err := hex.DecodeString(p.PublicKeys[0])
	if err != nil {
		return nil, vaulterr.InputInvalid("policy key is not valid hex", err)
	}

	var pub *btcec.PublicKey
	switch len(keyBytes) {
	case 32:
		xonly, err := schnorr.ParsePubKey(keyBytes)
		if err != nil {
			return nil, vaulterr.InputInvalid("parsing x-only policy key", err)
		}
		pub = xonly
	case 33:
		pub, err = btcec.ParsePubKey(keyBytes)
		if err != nil {
			return nil, vaulterr.InputInvalid("parsing compressed policy key", err)
		}
	default:
		return nil, vaulterr.InputInvalid("policy key must be 32 (x-only) or 33 (compressed) bytes", nil)
	}

	taprootKey := txscript.ComputeTaprootKeyNoScript(pub)
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(taprootKey), params)
	if err != nil {
		return nil, vaulterr.InputInvalid("building p2tr address", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, vaulterr.InputInvalid("building scriptPubKey", err)
	}
	return [][]byte{script}, nil
}
