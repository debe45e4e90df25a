package tree

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"
)

// codecBuf is the package-local counterpart of ark's encBuf: a minimal
// append-only writer for the tree's own serialization needs.
type codecBuf struct {
	bytes.Buffer
}

func (b *codecBuf) putUint16(v uint16) {
	var tmp [2]byte
	tmp[0], tmp[1] = byte(v), byte(v>>8)
	b.Write(tmp[:])
}

func (b *codecBuf) putUint32(v uint32) {
	var tmp [4]byte
	for i := range tmp {
		tmp[i] = byte(v >> (8 * i))
	}
	b.Write(tmp[:])
}

func (b *codecBuf) putInt64(v int64) {
	var tmp [8]byte
	uv := uint64(v)
	for i := range tmp {
		tmp[i] = byte(uv >> (8 * i))
	}
	b.Write(tmp[:])
}

func (b *codecBuf) putPubkey(pk *btcec.PublicKey) {
	b.Write(schnorr.SerializePubKey(pk))
}

func (b *codecBuf) putOutPoint(op wire.OutPoint) {
	b.Write(op.Hash[:])
	b.putUint32(op.Index)
}

type codecReader struct {
	r *bytes.Reader
}

func newCodecReader(data []byte) *codecReader { return &codecReader{r: bytes.NewReader(data)} }

func (b *codecReader) getUint16() (uint16, error) {
	var tmp [2]byte
	if _, err := io.ReadFull(b.r, tmp[:]); err != nil {
		return 0, err
	}
	return uint16(tmp[0]) | uint16(tmp[1])<<8, nil
}

func (b *codecReader) getUint32() (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(b.r, tmp[:]); err != nil {
		return 0, err
	}
	var v uint32
	for i, c := range tmp {
		v |= uint32(c) << (8 * i)
	}
	return v, nil
}

func (b *codecReader) getInt64() (int64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(b.r, tmp[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i, c := range tmp {
		v |= uint64(c) << (8 * i)
	}
	return int64(v), nil
}

func (b *codecReader) getPubkey() (*btcec.PublicKey, error) {
	var raw [32]byte
	if _, err := io.ReadFull(b.r, raw[:]); err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(raw[:])
}

func (b *codecReader) getOutPoint() (wire.OutPoint, error) {
	var op wire.OutPoint
	if _, err := io.ReadFull(b.r, op.Hash[:]); err != nil {
		return op, err
	}
	idx, err := b.getUint32()
	if err != nil {
		return op, err
	}
	op.Index = idx
	return op, nil
}

// Encode serializes an UnsignedTree's spec and rooting information. Tree
// shape follows deterministically from the leaf list, so Decode only
// needs the leaves plus the root's incoming outpoint/amount to rebuild
// an identical tree.
func Encode(w io.Writer, t *UnsignedTree) error {
	var buf codecBuf

	spec := t.Spec
	buf.putUint32(uint32(len(spec.Leaves)))
	for _, leaf := range spec.Leaves {
		buf.putPubkey(leaf.UserPubkey)
		buf.putPubkey(leaf.CosignPubkey)
		buf.putInt64(leaf.Amount)
	}
	buf.putPubkey(spec.AspPubkey)
	buf.putUint32(spec.ExpiryHeight)
	buf.putUint16(spec.ExitDelta)

	root := t.Root
	if len(root.Tx.TxIn) != 1 {
		return fmt.Errorf("ark/tree: root node has unexpected input count")
	}
	buf.putOutPoint(root.Tx.TxIn[0].PreviousOutPoint)
	buf.putInt64(root.Amount)

	_, err := w.Write(buf.Bytes())
	return err
}

// Decode rebuilds an UnsignedTree from bytes written by Encode.
func Decode(data []byte) (*UnsignedTree, error) {
	r := newCodecReader(data)

	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}

	spec := &Spec{Leaves: make([]LeafRequest, n)}
	for i := range spec.Leaves {
		userPk, err := r.getPubkey()
		if err != nil {
			return nil, err
		}
		cosignPk, err := r.getPubkey()
		if err != nil {
			return nil, err
		}
		amount, err := r.getInt64()
		if err != nil {
			return nil, err
		}
		spec.Leaves[i] = LeafRequest{UserPubkey: userPk, CosignPubkey: cosignPk, Amount: amount}
	}

	aspPk, err := r.getPubkey()
	if err != nil {
		return nil, err
	}
	spec.AspPubkey = aspPk

	if spec.ExpiryHeight, err = r.getUint32(); err != nil {
		return nil, err
	}
	if spec.ExitDelta, err = r.getUint16(); err != nil {
		return nil, err
	}

	rootOutpoint, err := r.getOutPoint()
	if err != nil {
		return nil, err
	}
	rootAmount, err := r.getInt64()
	if err != nil {
		return nil, err
	}

	return Build(spec, rootOutpoint, rootAmount)
}

// EncodeSignedTree serializes a SignedTree: its UnsignedTree plus the
// per-internal-node final Schnorr signatures, in Internal() order.
func EncodeSignedTree(w io.Writer, st *SignedTree) error {
	var treeBuf bytes.Buffer
	if err := Encode(&treeBuf, st.Unsigned); err != nil {
		return err
	}

	var buf codecBuf
	buf.putUint32(uint32(treeBuf.Len()))
	buf.Write(treeBuf.Bytes())
	buf.putUint32(uint32(len(st.NodeSigs)))
	for _, sig := range st.NodeSigs {
		buf.Write(sig.Serialize())
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// DecodeSignedTree rebuilds a SignedTree from bytes written by
// EncodeSignedTree.
func DecodeSignedTree(data []byte) (*SignedTree, error) {
	r := newCodecReader(data)

	treeLen, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	treeBytes := make([]byte, treeLen)
	if _, err := io.ReadFull(r.r, treeBytes); err != nil {
		return nil, err
	}
	unsigned, err := Decode(treeBytes)
	if err != nil {
		return nil, err
	}

	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	sigs := make([]*schnorr.Signature, n)
	for i := range sigs {
		sigBytes := make([]byte, schnorr.SignatureSize)
		if _, err := io.ReadFull(r.r, sigBytes); err != nil {
			return nil, err
		}
		sig, err := schnorr.ParseSignature(sigBytes)
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}

	return &SignedTree{Unsigned: unsigned, NodeSigs: sigs}, nil
}
