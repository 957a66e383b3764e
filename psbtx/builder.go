package psbtx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/covault-labs/custody/policy"
	"github.com/covault-labs/custody/vaulterr"
)

// Output is a destination for a drafted spend.
type Output struct {
	Address string
	Amount  int64
}

// Draft builds an unsigned PSBT spending UTXOs that SelectUTXOs picks
// from utxoSet to the given outputs, per §4.3's Draft spend operation.
// Draft takes no policy-path argument: it selects no taproot script-tree
// leaf, and each input carries only key-path Bip32Derivation data, also
// for templates with a timelock branch (e.g. HoldLock, DecayingMultisig).
func Draft(
	pol *policy.Policy,
	params *chaincfg.Params,
	destinations []Output,
	feeRate int64,
	utxoSet []UTXO,
	frozen map[string]bool,
	allowFrozen bool,
	changeScript []byte,
	changeKind AddressKind,
) (*psbt.Packet, []UTXO, error) {
	if err := ValidateFeeRate(feeRate); err != nil {
		return nil, nil, err
	}
	if len(destinations) == 0 {
		return nil, nil, vaulterr.InputInvalid("draft requires at least one destination", nil)
	}

	var totalOut int64
	for _, d := range destinations {
		if d.Amount < DustLimit {
			return nil, nil, vaulterr.InputInvalid(fmt.Sprintf("output amount %d below dust limit", d.Amount), nil)
		}
		totalOut += d.Amount
	}

	selected, _, err := SelectUTXOs(utxoSet, totalOut, feeRate, frozen, allowFrozen)
	if err != nil {
		return nil, nil, err
	}

	tx := wire.NewMsgTx(2)
	for _, u := range selected {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, nil, vaulterr.InputInvalid("invalid utxo txid", err)
		}
		in := wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil)
		in.Sequence = SequenceRBF
		tx.AddTxIn(in)
	}

	for _, d := range destinations {
		addr, err := btcutil.DecodeAddress(d.Address, params)
		if err != nil {
			return nil, nil, vaulterr.InputInvalid("invalid destination address", err)
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, nil, vaulterr.InputInvalid("building destination script", err)
		}
		tx.AddTxOut(wire.NewTxOut(d.Amount, script))
	}

	var totalIn int64
	for _, u := range selected {
		totalIn += u.Value
	}
	fee := EstimateFeeForUTXOs(selected, len(destinations)+1, feeRate, changeKind)
	change := totalIn - totalOut - fee
	if change > DustLimit && changeScript != nil {
		tx.AddTxOut(wire.NewTxOut(change, changeScript))
	} else if change < 0 {
		return nil, nil, vaulterr.ChainError("insufficient funds after fee", nil)
	}

	p, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, nil, vaulterr.InputInvalid("wrapping unsigned transaction", err)
	}

	for i, u := range selected {
		p.Inputs[i].WitnessUtxo = &wire.TxOut{Value: u.Value, PkScript: u.ScriptPubKey}
		if u.AddressKind != AddressP2TR {
			// non-taproot inputs use sighash ALL per §4.3(e)
			sighash := uint32(txscript.SigHashAll)
			p.Inputs[i].SighashType = txscript.SigHashType(sighash)
		}
		if len(u.PubKey) > 0 {
			path, err := parseBip32Path(u.DerivationPath)
			if err != nil {
				return nil, nil, err
			}
			p.Inputs[i].Bip32Derivation = append(p.Inputs[i].Bip32Derivation, &psbt.Bip32Derivation{
				PubKey:               u.PubKey,
				MasterKeyFingerprint: fingerprintUint32(u.MasterFP),
				Bip32Path:            path,
			})
		}
	}

	return p, selected, nil
}

func fingerprintUint32(fp [4]byte) uint32 {
	return uint32(fp[0])<<24 | uint32(fp[1])<<16 | uint32(fp[2])<<8 | uint32(fp[3])
}

// parseBip32Path converts a string such as "m/86'/0'/0'/0/3" into its
// uint32 index components, setting the hardened bit for primed segments.
func parseBip32Path(path string) ([]uint32, error) {
	if path == "" {
		return nil, nil
	}
	segments := splitPath(path)
	out := make([]uint32, 0, len(segments))
	for _, seg := range segments {
		if seg == "m" {
			continue
		}
		hardened := false
		if len(seg) > 0 && (seg[len(seg)-1] == '\'' || seg[len(seg)-1] == 'h') {
			hardened = true
			seg = seg[:len(seg)-1]
		}
		n, err := parseUint32(seg)
		if err != nil {
			return nil, vaulterr.InputInvalid("malformed derivation path segment "+seg, err)
		}
		if hardened {
			n += 0x80000000
		}
		out = append(out, n)
	}
	return out, nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func parseUint32(s string) (uint32, error) {
	var n uint32
	if s == "" {
		return 0, fmt.Errorf("empty path segment")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric path segment %q", s)
		}
		n = n*10 + uint32(c-'0')
	}
	return n, nil
}

// PolicySigner signs PSBT inputs whose Bip32Derivation matches its master
// fingerprint, deriving the per-input private key on demand. This is the
// concrete implementation of the "Signer" capability named in §9's design
// notes for the Seed/Mnemonic signer variant.
type PolicySigner struct {
	fingerprint [4]byte
	deriveKey   func(path []uint32) (*btcec.PrivateKey, error)
}

// NewPolicySigner builds a signer bound to a key-derivation function
// (typically identity.BitcoinRoot-backed) and its fingerprint.
func NewPolicySigner(fingerprint [4]byte, deriveKey func(path []uint32) (*btcec.PrivateKey, error)) *PolicySigner {
	return &PolicySigner{fingerprint: fingerprint, deriveKey: deriveKey}
}

// Fingerprint returns the signer's master key fingerprint.
func (s *PolicySigner) Fingerprint() [4]byte { return s.fingerprint }

// Sign adds this signer's partial signatures to every matching input of
// p. It is a no-op for inputs already signed by this key.
func (s *PolicySigner) Sign(p *psbt.Packet) error {
	tx := p.UnsignedTx
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(p.Inputs))
	for i, in := range p.Inputs {
		if in.WitnessUtxo != nil {
			prevOuts[tx.TxIn[i].PreviousOutPoint] = in.WitnessUtxo
		}
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i := range p.Inputs {
		in := &p.Inputs[i]
		deriv := matchingDerivation(in, s.fingerprint)
		if deriv == nil {
			continue
		}
		if alreadySigned(in, deriv.PubKey) {
			continue
		}
		priv, err := s.deriveKey(deriv.Bip32Path)
		if err != nil {
			return vaulterr.InputInvalid("deriving signing key", err)
		}
		if in.WitnessUtxo == nil {
			return vaulterr.InputInvalid("missing witness utxo for input", nil)
		}
		if isTaprootScript(in.WitnessUtxo.PkScript) {
			sig, err := txscript.RawTxInTaprootSignature(tx, sigHashes, i, in.WitnessUtxo.Value, in.WitnessUtxo.PkScript, nil, txscript.SigHashDefault, priv)
			if err != nil {
				return vaulterr.InputInvalid("taproot key-path signature", err)
			}
			in.TaprootKeySpendSig = sig
		} else {
			sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, i, in.WitnessUtxo.Value, in.WitnessUtxo.PkScript, txscript.SigHashAll, priv)
			if err != nil {
				return vaulterr.InputInvalid("witness signature", err)
			}
			in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
				PubKey:    priv.PubKey().SerializeCompressed(),
				Signature: sig,
			})
		}
	}
	return nil
}

func isTaprootScript(script []byte) bool {
	return len(script) == 34 && script[0] == txscript.OP_1 && script[1] == 0x20
}

func matchingDerivation(in *psbt.PInput, fp [4]byte) *psbt.Bip32Derivation {
	want := fingerprintUint32(fp)
	for _, d := range in.Bip32Derivation {
		if d.MasterKeyFingerprint == want {
			return d
		}
	}
	return nil
}

func alreadySigned(in *psbt.PInput, pubkey []byte) bool {
	if in.TaprootKeySpendSig != nil {
		return true
	}
	for _, sig := range in.PartialSigs {
		if bytes.Equal(sig.PubKey, pubkey) {
			return true
		}
	}
	return false
}

// Combine merges partial signatures from multiple PSBTs of the same
// underlying transaction, deduplicating identical signatures and
// rejecting conflicting signatures from the same key (ConflictingSignature,
// surfaced as ConsistencyError), per §4.3.
func Combine(packets []*psbt.Packet) (*psbt.Packet, error) {
	if len(packets) == 0 {
		return nil, vaulterr.InputInvalid("combine requires at least one psbt", nil)
	}
	base := packets[0]
	for _, other := range packets[1:] {
		if base.UnsignedTx.TxHash() != other.UnsignedTx.TxHash() {
			return nil, vaulterr.ConsistencyError("cannot combine psbts for different transactions", nil)
		}
		for i := range base.Inputs {
			if err := mergeInput(&base.Inputs[i], &other.Inputs[i]); err != nil {
				return nil, err
			}
		}
	}
	return base, nil
}

func mergeInput(dst, src *psbt.PInput) error {
	if src.TaprootKeySpendSig != nil {
		if dst.TaprootKeySpendSig != nil && !bytes.Equal(dst.TaprootKeySpendSig, src.TaprootKeySpendSig) {
			return vaulterr.ConsistencyError("conflicting taproot signatures for the same input", nil)
		}
		dst.TaprootKeySpendSig = src.TaprootKeySpendSig
	}
	for _, sig := range src.PartialSigs {
		found := false
		for _, existing := range dst.PartialSigs {
			if bytes.Equal(existing.PubKey, sig.PubKey) {
				if !bytes.Equal(existing.Signature, sig.Signature) {
					return vaulterr.ConsistencyError("conflicting partial signatures from the same key", nil)
				}
				found = true
				break
			}
		}
		if !found {
			dst.PartialSigs = append(dst.PartialSigs, sig)
		}
	}
	return nil
}

// Finalize attempts to finalize every input and extract the resulting
// transaction. Returns NotFinalizable if any input lacks sufficient
// signature data.
func Finalize(p *psbt.Packet) (*wire.MsgTx, error) {
	for i := range p.Inputs {
		if err := psbt.Finalize(p, i); err != nil {
			return nil, vaulterr.NotFinalizable(fmt.Sprintf("input %d not finalizable", i), err)
		}
	}
	tx, err := psbt.Extract(p)
	if err != nil {
		return nil, vaulterr.NotFinalizable("extracting finalized transaction", err)
	}
	return tx, nil
}

// ProofOfReserve produces a non-spendable PSBT witnessing ownership of
// the policy's funds per a BIP-127-style construction: an unsigned,
// unbroadcastable transaction whose first input is a challenge input
// committing to the message, whose second input is the UTXO, and whose
// single output returns the exact value to an unspendable
// (OP_RETURN-tagged) script carrying the attestation message, per §4.3
// and §8 scenario 6. A third party verifies ownership by checking the
// UTXO input's signatures without ever being given spending capability,
// since the challenge input spends an outpoint that does not exist and
// the transaction can therefore never be broadcast.
func ProofOfReserve(pol *policy.Policy, params *chaincfg.Params, utxo UTXO, message string) (*psbt.Packet, error) {
	tx := wire.NewMsgTx(2)
	hash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, vaulterr.InputInvalid("invalid utxo txid", err)
	}
	challenge := chainhash.DoubleHashH([]byte("Proof-of-Reserves: " + message))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&challenge, 0), nil, nil))
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))

	burnScript, err := txscript.NullDataScript([]byte(message))
	if err != nil {
		return nil, vaulterr.InputInvalid("building proof-of-reserve attestation script", err)
	}
	tx.AddTxOut(wire.NewTxOut(utxo.Value, burnScript))

	p, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, vaulterr.InputInvalid("wrapping proof-of-reserve transaction", err)
	}
	p.Inputs[0].WitnessUtxo = &wire.TxOut{Value: 0, PkScript: []byte{txscript.OP_TRUE}}
	p.Inputs[1].WitnessUtxo = &wire.TxOut{Value: utxo.Value, PkScript: utxo.ScriptPubKey}
	return p, nil
}
