// Package ark implements the VTXO data model shared by the round
// coordinator and the client: identifiers, the tagged VTXO union, Taproot
// exit-script construction and the canonical binary encoding.
package ark

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// VtxoIdLen is the fixed encoded length of a VtxoId: a 32-byte txid
// followed by a 4-byte little-endian vout.
const VtxoIdLen = chainhash.HashSize + 4

// VtxoId canonically identifies a VTXO by the outpoint of its leaf exit
// output: txid(32) || vout(4).
type VtxoId struct {
	Txid chainhash.Hash
	Vout uint32
}

// NewVtxoId builds a VtxoId from a wire.OutPoint.
func NewVtxoId(op wire.OutPoint) VtxoId {
	return VtxoId{Txid: op.Hash, Vout: op.Index}
}

// OutPoint returns the underlying wire.OutPoint.
func (id VtxoId) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: id.Txid, Index: id.Vout}
}

// Bytes returns the canonical 36-byte encoding: txid || vout(LE).
func (id VtxoId) Bytes() [VtxoIdLen]byte {
	var out [VtxoIdLen]byte
	copy(out[:chainhash.HashSize], id.Txid[:])
	out[32] = byte(id.Vout)
	out[33] = byte(id.Vout >> 8)
	out[34] = byte(id.Vout >> 16)
	out[35] = byte(id.Vout >> 24)
	return out
}

// VtxoIdFromBytes parses the canonical 36-byte encoding.
func VtxoIdFromBytes(b []byte) (VtxoId, error) {
	if len(b) != VtxoIdLen {
		return VtxoId{}, fmt.Errorf("ark: invalid vtxo id length %d, want %d", len(b), VtxoIdLen)
	}
	var id VtxoId
	copy(id.Txid[:], b[:32])
	id.Vout = uint32(b[32]) | uint32(b[33])<<8 | uint32(b[34])<<16 | uint32(b[35])<<24
	return id, nil
}

// String renders the canonical hex form txid:vout, matching how exit
// outpoints are usually displayed.
func (id VtxoId) String() string {
	return fmt.Sprintf("%s:%d", id.Txid.String(), id.Vout)
}

// Hex returns the raw 36-byte encoding as lowercase hex, the wire form used
// in RPC messages and OOR mailbox entries.
func (id VtxoId) Hex() string {
	b := id.Bytes()
	return hex.EncodeToString(b[:])
}

// VtxoIdFromHex parses the Hex() form.
func VtxoIdFromHex(s string) (VtxoId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return VtxoId{}, fmt.Errorf("ark: decoding vtxo id hex: %w", err)
	}
	return VtxoIdFromBytes(b)
}

// RoundId is the txid of a round transaction.
type RoundId = chainhash.Hash
