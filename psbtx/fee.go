// Package psbtx wraps a descriptor-backed policy to draft, sign, combine,
// and finalize PSBTs, per §4.3. Fee estimation, UTXO selection and the
// ECDSA/Schnorr signing split below are adapted directly from the
// teacher's wallet/transaction.go and path_wallet_psbt.go.
package psbtx

import (
	"sort"

	"github.com/covault-labs/custody/vaulterr"
)

const (
	DustLimit            = 546
	DefaultFeeRate       = 10
	P2WPKHInputSize       = 68
	P2WPKHOutputSize      = 31
	P2TRInputSize         = 58
	P2TROutputSize        = 43
	TxOverhead            = 10
	MaxReasonableFeeRate  = 1000
	SequenceRBF           = 0xFFFFFFFD
	SequenceFinal         = 0xFFFFFFFF
)

// AddressKind distinguishes the signing method a UTXO's script requires.
type AddressKind string

const (
	AddressP2WPKH AddressKind = "p2wpkh"
	AddressP2TR   AddressKind = "p2tr"
)

// UTXO is an unspent output considered for a draft, carrying enough
// context (script, derivation) to sign it later.
type UTXO struct {
	TxID            string
	Vout            uint32
	Value           int64
	ScriptPubKey    []byte
	AddressKind     AddressKind
	DerivationPath  string
	MasterFP        [4]byte
	PubKey          []byte // compressed or xonly, matching AddressKind
}

// Hash returns the stable identifier used to freeze/unfreeze a UTXO
// (§3 FrozenUTXO).
func (u UTXO) Hash() string {
	return u.TxID + ":" + itoa(u.Vout)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

// ValidateFeeRate reports InputInvalid if feeRate exceeds the safety cap.
func ValidateFeeRate(feeRate int64) error {
	if feeRate <= 0 {
		return vaulterr.InputInvalid("fee rate must be positive", nil)
	}
	if feeRate > MaxReasonableFeeRate {
		return vaulterr.InputInvalid("fee rate exceeds safety limit", nil)
	}
	return nil
}

// EstimateFeeForUTXOs sizes a transaction from its selected inputs' actual
// address kinds plus a uniform output kind.
func EstimateFeeForUTXOs(utxos []UTXO, numOutputs int, feeRate int64, outputKind AddressKind) int64 {
	var inputVSize int64
	for _, u := range utxos {
		if u.AddressKind == AddressP2TR {
			inputVSize += P2TRInputSize
		} else {
			inputVSize += P2WPKHInputSize
		}
	}
	outputSize := int64(P2WPKHOutputSize)
	if outputKind == AddressP2TR {
		outputSize = P2TROutputSize
	}
	vsize := int64(TxOverhead) + inputVSize + int64(numOutputs)*outputSize
	return vsize * feeRate
}

// SelectUTXOs implements the teacher's largest-first greedy selection,
// excluding any UTXO present in frozen unless allowFrozen is set.
func SelectUTXOs(available []UTXO, targetAmount int64, feeRate int64, frozen map[string]bool, allowFrozen bool) ([]UTXO, int64, error) {
	candidates := make([]UTXO, 0, len(available))
	for _, u := range available {
		if !allowFrozen && frozen[u.Hash()] {
			continue
		}
		candidates = append(candidates, u)
	}
	if len(candidates) == 0 {
		return nil, 0, vaulterr.ChainError("no spendable UTXOs available", nil)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Value > candidates[j].Value
	})

	var selected []UTXO
	var totalInput int64
	var estimatedFee int64
	for _, u := range candidates {
		selected = append(selected, u)
		totalInput += u.Value
		outputKind := u.AddressKind
		estimatedFee = EstimateFeeForUTXOs(selected, 2, feeRate, outputKind)
		if totalInput >= targetAmount+estimatedFee {
			return selected, estimatedFee, nil
		}
	}

	return nil, 0, vaulterr.ChainError("insufficient funds for target amount plus fee", nil)
}
