package ark

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Tag bytes identify the variant a VTXO encoding starts with. New
// variants get a new tag; existing tags are never reassigned.
const (
	tagBoard        byte = 1
	tagRound        byte = 2
	tagArkoor       byte = 3
	tagBolt11Change byte = 4
)

// encBuf is a minimal append-only byte writer with the fixed-width and
// length-prefixed helpers the VTXO/OOR/tree encodings need.
type encBuf struct {
	bytes.Buffer
}

func (b *encBuf) putByte(v byte) { b.WriteByte(v) }

func (b *encBuf) putUint16(v uint16) {
	var tmp [2]byte
	tmp[0], tmp[1] = byte(v), byte(v>>8)
	b.Write(tmp[:])
}

func (b *encBuf) putUint32(v uint32) {
	var tmp [4]byte
	for i := range tmp {
		tmp[i] = byte(v >> (8 * i))
	}
	b.Write(tmp[:])
}

func (b *encBuf) putInt64(v int64) {
	var tmp [8]byte
	uv := uint64(v)
	for i := range tmp {
		tmp[i] = byte(uv >> (8 * i))
	}
	b.Write(tmp[:])
}

func (b *encBuf) putVarBytes(v []byte) {
	_ = wire.WriteVarBytes(b, 0, v)
}

func (b *encBuf) putPubkey(pk *btcec.PublicKey) {
	if pk == nil {
		b.putByte(0)
		return
	}
	b.putByte(1)
	b.Write(schnorr.SerializePubKey(pk))
}

func (b *encBuf) putHash(h chainhash.Hash) {
	b.Write(h[:])
}

func (b *encBuf) putVtxoId(id VtxoId) {
	raw := id.Bytes()
	b.Write(raw[:])
}

func (b *encBuf) putTx(tx *wire.MsgTx) {
	var txBuf bytes.Buffer
	_ = tx.Serialize(&txBuf)
	b.putVarBytes(txBuf.Bytes())
}

// decBuf is the reader counterpart of encBuf.
type decBuf struct {
	r *bytes.Reader
}

func newDecBuf(data []byte) *decBuf {
	return &decBuf{r: bytes.NewReader(data)}
}

func (b *decBuf) getByte() (byte, error) {
	return b.r.ReadByte()
}

func (b *decBuf) getUint16() (uint16, error) {
	var tmp [2]byte
	if _, err := b.r.Read(tmp[:]); err != nil {
		return 0, fmt.Errorf("ark: short read (uint16): %w", err)
	}
	return uint16(tmp[0]) | uint16(tmp[1])<<8, nil
}

func (b *decBuf) getUint32() (uint32, error) {
	var tmp [4]byte
	if _, err := b.r.Read(tmp[:]); err != nil {
		return 0, fmt.Errorf("ark: short read (uint32): %w", err)
	}
	var v uint32
	for i, c := range tmp {
		v |= uint32(c) << (8 * i)
	}
	return v, nil
}

func (b *decBuf) getInt64() (int64, error) {
	var tmp [8]byte
	if _, err := b.r.Read(tmp[:]); err != nil {
		return 0, fmt.Errorf("ark: short read (int64): %w", err)
	}
	var v uint64
	for i, c := range tmp {
		v |= uint64(c) << (8 * i)
	}
	return int64(v), nil
}

func (b *decBuf) getVarBytes() ([]byte, error) {
	v, err := wire.ReadVarBytes(b.r, 0, wire.MaxMessagePayload, "varbytes")
	if err != nil {
		return nil, fmt.Errorf("ark: reading varbytes: %w", err)
	}
	return v, nil
}

func (b *decBuf) getPubkey() (*btcec.PublicKey, error) {
	present, err := b.getByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	var raw [32]byte
	if _, err := b.r.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("ark: short read (pubkey): %w", err)
	}
	return schnorr.ParsePubKey(raw[:])
}

func (b *decBuf) getHash() (chainhash.Hash, error) {
	var h chainhash.Hash
	if _, err := b.r.Read(h[:]); err != nil {
		return h, fmt.Errorf("ark: short read (hash): %w", err)
	}
	return h, nil
}

func (b *decBuf) getVtxoId() (VtxoId, error) {
	var raw [VtxoIdLen]byte
	if _, err := b.r.Read(raw[:]); err != nil {
		return VtxoId{}, fmt.Errorf("ark: short read (vtxo id): %w", err)
	}
	return VtxoIdFromBytes(raw[:])
}

func (b *decBuf) getTx() (*wire.MsgTx, error) {
	raw, err := b.getVarBytes()
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("ark: deserializing tx: %w", err)
	}
	return tx, nil
}

func (b *decBuf) remaining() int {
	return b.r.Len()
}

// EncodeVtxo serializes v into the canonical self-describing binary
// encoding: one leading tag byte naming the variant, followed by the
// variant's fields. decode(encode(x)) == x for every variant.
func EncodeVtxo(v Vtxo) ([]byte, error) {
	var buf encBuf

	switch vtxo := v.(type) {
	case *BoardVtxo:
		buf.putByte(tagBoard)
		encodeSpec(&buf, &vtxo.Spec)
		buf.putTx(vtxo.BoardTx)
		buf.putUint32(vtxo.Vout)
		buf.putTx(vtxo.ExitTx)

	case *RoundVtxo:
		buf.putByte(tagRound)
		encodeSpec(&buf, &vtxo.Spec)
		buf.putHash(vtxo.RoundTxid)
		buf.putUint32(vtxo.Vout)
		buf.putUint32(uint32(len(vtxo.Path)))
		for _, step := range vtxo.Path {
			buf.putHash(step.SiblingHash)
			buf.putTx(step.NodeTx)
		}

	case *ArkoorVtxo:
		buf.putByte(tagArkoor)
		encodeSpec(&buf, &vtxo.Spec)
		buf.putUint32(uint32(len(vtxo.Ancestors)))
		for _, a := range vtxo.Ancestors {
			ab, err := EncodeVtxo(a)
			if err != nil {
				return nil, err
			}
			buf.putVarBytes(ab)
		}
		buf.putTx(vtxo.OorTx)
		buf.putUint32(vtxo.Vout)

	case *Bolt11ChangeVtxo:
		buf.putByte(tagBolt11Change)
		encodeSpec(&buf, &vtxo.Spec)
		buf.putUint32(uint32(len(vtxo.Ancestors)))
		for _, a := range vtxo.Ancestors {
			ab, err := EncodeVtxo(a)
			if err != nil {
				return nil, err
			}
			buf.putVarBytes(ab)
		}
		buf.putTx(vtxo.HtlcTx)
		buf.putUint32(vtxo.Vout)

	default:
		return nil, fmt.Errorf("ark: unknown vtxo variant %T", v)
	}

	return buf.Bytes(), nil
}

// DecodeVtxo parses the encoding produced by EncodeVtxo, dispatching on
// the leading tag byte.
func DecodeVtxo(data []byte) (Vtxo, error) {
	buf := newDecBuf(data)

	tag, err := buf.getByte()
	if err != nil {
		return nil, fmt.Errorf("ark: reading vtxo tag: %w", err)
	}

	switch tag {
	case tagBoard:
		spec, err := decodeSpec(buf)
		if err != nil {
			return nil, err
		}
		boardTx, err := buf.getTx()
		if err != nil {
			return nil, err
		}
		vout, err := buf.getUint32()
		if err != nil {
			return nil, err
		}
		exitTx, err := buf.getTx()
		if err != nil {
			return nil, err
		}
		return &BoardVtxo{Spec: *spec, BoardTx: boardTx, Vout: vout, ExitTx: exitTx}, nil

	case tagRound:
		spec, err := decodeSpec(buf)
		if err != nil {
			return nil, err
		}
		roundTxid, err := buf.getHash()
		if err != nil {
			return nil, err
		}
		vout, err := buf.getUint32()
		if err != nil {
			return nil, err
		}
		nSteps, err := buf.getUint32()
		if err != nil {
			return nil, err
		}
		path := make([]TreeStep, 0, nSteps)
		for i := uint32(0); i < nSteps; i++ {
			sibling, err := buf.getHash()
			if err != nil {
				return nil, err
			}
			nodeTx, err := buf.getTx()
			if err != nil {
				return nil, err
			}
			path = append(path, TreeStep{SiblingHash: sibling, NodeTx: nodeTx})
		}
		return &RoundVtxo{Spec: *spec, RoundTxid: roundTxid, Vout: vout, Path: path}, nil

	case tagArkoor:
		spec, err := decodeSpec(buf)
		if err != nil {
			return nil, err
		}
		ancestors, err := decodeAncestors(buf)
		if err != nil {
			return nil, err
		}
		oorTx, err := buf.getTx()
		if err != nil {
			return nil, err
		}
		vout, err := buf.getUint32()
		if err != nil {
			return nil, err
		}
		return &ArkoorVtxo{Spec: *spec, Ancestors: ancestors, OorTx: oorTx, Vout: vout}, nil

	case tagBolt11Change:
		spec, err := decodeSpec(buf)
		if err != nil {
			return nil, err
		}
		ancestors, err := decodeAncestors(buf)
		if err != nil {
			return nil, err
		}
		htlcTx, err := buf.getTx()
		if err != nil {
			return nil, err
		}
		vout, err := buf.getUint32()
		if err != nil {
			return nil, err
		}
		return &Bolt11ChangeVtxo{Spec: *spec, Ancestors: ancestors, HtlcTx: htlcTx, Vout: vout}, nil

	default:
		return nil, fmt.Errorf("ark: unknown vtxo tag 0x%x", tag)
	}
}

func decodeAncestors(buf *decBuf) ([]Vtxo, error) {
	n, err := buf.getUint32()
	if err != nil {
		return nil, err
	}
	out := make([]Vtxo, 0, n)
	for i := uint32(0); i < n; i++ {
		raw, err := buf.getVarBytes()
		if err != nil {
			return nil, err
		}
		v, err := DecodeVtxo(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
