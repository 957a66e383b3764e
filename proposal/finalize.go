package proposal

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"github.com/covault-labs/custody/psbtx"
	"github.com/covault-labs/custody/vaulterr"
)

// TryFinalize combines the proposal's unsigned PSBT with every accumulated
// approval's signed PSBT and attempts to finalize and extract the spend
// transaction. It returns a NotFinalizable error (not a fatal one) when
// the approval set does not yet satisfy the policy's threshold; callers
// should treat that as "still pending" and keep accumulating approvals.
func (p *Proposal) TryFinalize() (*wire.MsgTx, error) {
	if p.Status != StatusPending {
		return nil, vaulterr.ConsistencyError("only a pending proposal can be finalized", nil)
	}

	packets := make([]*psbt.Packet, 0, len(p.approvals)+1)

	base, err := psbt.NewFromRawBytes(bytes.NewReader(p.UnsignedPSBT), false)
	if err != nil {
		return nil, vaulterr.InputInvalid("decoding unsigned psbt", err)
	}
	packets = append(packets, base)

	for _, a := range p.Approvals() {
		signed, err := psbt.NewFromRawBytes(bytes.NewReader(a.SignedPSBT), false)
		if err != nil {
			return nil, vaulterr.InputInvalid("decoding approval psbt", err)
		}
		packets = append(packets, signed)
	}

	combined, err := psbtx.Combine(packets)
	if err != nil {
		return nil, err
	}

	return psbtx.Finalize(combined)
}
