package psbtx

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/covault-labs/custody/vaulterr"
)

// P2WPKHAddress derives a native segwit address from a compressed public key.
func P2WPKHAddress(pub *btcec.PublicKey, params *chaincfg.Params) (btcutil.Address, error) {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
	if err != nil {
		return nil, vaulterr.InputInvalid("building p2wpkh address", err)
	}
	return addr, nil
}

// P2TRAddress derives a key-path-only taproot address (BIP-86) from a
// compressed public key, used both for singlesig taproot policies and as
// the internal key for script-tree policies the descriptor layer has not
// yet expanded into a full tap tree.
func P2TRAddress(pub *btcec.PublicKey, params *chaincfg.Params) (btcutil.Address, error) {
	taprootKey := txscript.ComputeTaprootKeyNoScript(pub)
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(taprootKey), params)
	if err != nil {
		return nil, vaulterr.InputInvalid("building p2tr address", err)
	}
	return addr, nil
}

// ScriptPubKey returns the output script for an address.
func ScriptPubKey(addr btcutil.Address) ([]byte, error) {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, vaulterr.InputInvalid("building scriptPubKey", err)
	}
	return script, nil
}

// AddressToScriptHash converts a scriptPubKey into the little-endian
// SHA256 scripthash the chain oracle's Electrum-style interface expects.
func AddressToScriptHash(scriptPubKey []byte) string {
	hash := sha256.Sum256(scriptPubKey)
	for i, j := 0, len(hash)-1; i < j; i, j = i+1, j-1 {
		hash[i], hash[j] = hash[j], hash[i]
	}
	return hex.EncodeToString(hash[:])
}
