package ark

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// DustLimit is the minimum value (sat) a P2TR output is allowed to carry.
const DustLimit = 330

// VtxoSpec is the set of fields common to every VTXO variant, sufficient
// to reconstruct its exit Taproot output.
type VtxoSpec struct {
	UserPubkey   *btcec.PublicKey
	AspPubkey    *btcec.PublicKey
	ExpiryHeight uint32
	ExitDelta    uint16
	Amount       int64
}

// Validate checks the invariants a VtxoSpec must hold regardless of which
// variant it belongs to.
func (s *VtxoSpec) Validate() error {
	if s.UserPubkey == nil || s.AspPubkey == nil {
		return fmt.Errorf("%w: missing vtxo pubkey", ErrBadArg)
	}
	if s.Amount < DustLimit {
		return fmt.Errorf("%w: amount %d below dust limit %d", ErrBadArg, s.Amount, DustLimit)
	}
	if s.ExitDelta == 0 {
		return fmt.Errorf("%w: exit_delta must be non-zero", ErrBadArg)
	}
	return nil
}

// ExitTapscript resolves the spec's exit Taproot output: MuSig2(user, asp)
// tweaked by the single-leaf <exit_delta> CSV DROP <user_pk> CHECKSIG tree.
func (s *VtxoSpec) ExitTapscript() (*ExitTapscript, error) {
	return BuildExitTapscript(s.UserPubkey, s.AspPubkey, s.ExitDelta)
}

// ExitPkScript is a convenience wrapper returning just the scriptPubKey.
func (s *VtxoSpec) ExitPkScript() ([]byte, error) {
	ts, err := s.ExitTapscript()
	if err != nil {
		return nil, err
	}
	return ts.ExitPkScript()
}

func encodeSpec(buf *encBuf, s *VtxoSpec) {
	buf.putPubkey(s.UserPubkey)
	buf.putPubkey(s.AspPubkey)
	buf.putUint32(s.ExpiryHeight)
	buf.putUint16(s.ExitDelta)
	buf.putInt64(s.Amount)
}

func decodeSpec(buf *decBuf) (*VtxoSpec, error) {
	userPk, err := buf.getPubkey()
	if err != nil {
		return nil, fmt.Errorf("ark: decoding user_pubkey: %w", err)
	}
	aspPk, err := buf.getPubkey()
	if err != nil {
		return nil, fmt.Errorf("ark: decoding asp_pubkey: %w", err)
	}
	expiry, err := buf.getUint32()
	if err != nil {
		return nil, err
	}
	exitDelta, err := buf.getUint16()
	if err != nil {
		return nil, err
	}
	amount, err := buf.getInt64()
	if err != nil {
		return nil, err
	}

	return &VtxoSpec{
		UserPubkey:   userPk,
		AspPubkey:    aspPk,
		ExpiryHeight: expiry,
		ExitDelta:    exitDelta,
		Amount:       amount,
	}, nil
}

// parsePubkey32 parses a 32-byte x-only Schnorr pubkey, the wire form used
// throughout the protocol.
func parsePubkey32(b []byte) (*btcec.PublicKey, error) {
	return schnorr.ParsePubKey(b)
}
