package tree

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
)

// UnsignedTree is a fully built, not-yet-signed VTXO tree: every internal
// node's transaction is materialized and the structure is ready for the
// per-node MuSig2 cosigning ceremony.
type UnsignedTree struct {
	Spec *Spec
	Root *node

	// byIdx maps leaf index to the leaf node, for cosign/branch lookups.
	byIdx []*node
}

// Build constructs the tree's deterministic shape and assigns every
// internal node's presigned transaction, given the outpoint and value of
// the round tx output the tree is rooted at.
func Build(spec *Spec, rootOutpoint wire.OutPoint, rootAmount int64) (*UnsignedTree, error) {
	root, err := spec.build()
	if err != nil {
		return nil, err
	}

	t := &UnsignedTree{Spec: spec, Root: root, byIdx: make([]*node, len(spec.Leaves))}
	t.index(root)

	if root.Amount != rootAmount {
		return nil, fmt.Errorf(
			"%w: tree leaf sum %d does not match round output %d",
			ark.ErrBadArg, root.Amount, rootAmount,
		)
	}

	if err := t.assign(root, rootOutpoint); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *UnsignedTree) index(n *node) {
	if n.isLeaf() {
		t.byIdx[n.LeafIdx] = n
		return
	}
	t.index(n.Left)
	if n.Right != nil {
		t.index(n.Right)
	}
}

// assign recursively materializes n.Tx (if n is internal) given the
// outpoint n itself is spent from, then recurses into its children using
// the outputs n.Tx just created.
func (t *UnsignedTree) assign(n *node, in wire.OutPoint) error {
	if n.isLeaf() {
		return nil
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: in, Sequence: wire.MaxTxInSequenceNum})

	leftScript, err := t.childScript(n.Left)
	if err != nil {
		return err
	}
	tx.AddTxOut(wire.NewTxOut(n.Left.Amount, leftScript))

	if n.Right != nil {
		rightScript, err := t.childScript(n.Right)
		if err != nil {
			return err
		}
		tx.AddTxOut(wire.NewTxOut(n.Right.Amount, rightScript))
	} else {
		tx.AddTxOut(wire.NewTxOut(ark.AnchorAmount, ark.AnchorScript))
	}

	n.Tx = tx

	txid := tx.TxHash()
	if err := t.assign(n.Left, wire.OutPoint{Hash: txid, Index: 0}); err != nil {
		return err
	}
	if n.Right != nil {
		if err := t.assign(n.Right, wire.OutPoint{Hash: txid, Index: 1}); err != nil {
			return err
		}
	}

	return nil
}

func (t *UnsignedTree) childScript(n *node) ([]byte, error) {
	var leaf *LeafRequest
	if n.isLeaf() {
		leaf = &t.Spec.Leaves[n.LeafIdx]
	}
	return n.outputScript(t.Spec, leaf)
}

// prevOut returns the (pkScript, amount) of the output n's own tx spends,
// i.e. n as seen from its parent.
func (t *UnsignedTree) prevOut(n *node) (*wire.TxOut, error) {
	script, err := t.childScript(n)
	if err != nil {
		return nil, err
	}
	return wire.NewTxOut(n.Amount, script), nil
}

// NodeSighash computes the Taproot key-path SIGHASH_DEFAULT sighash for
// n's presigned transaction, given the previous output it spends.
func (t *UnsignedTree) NodeSighash(n *node) ([32]byte, error) {
	prevOut, err := t.prevOut(n)
	if err != nil {
		return [32]byte{}, err
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	sigHashes := txscript.NewTxSigHashes(n.Tx, fetcher)

	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, n.Tx, 0, fetcher,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ark/tree: computing node sighash: %w", err)
	}

	var out [32]byte
	copy(out[:], sigHash)
	return out, nil
}

// Internal returns every internal (presigned-tx-bearing) node in
// pre-order, root first — the order cosigning and verification walk.
func (t *UnsignedTree) Internal() []*node {
	var out []*node
	var walk func(*node)
	walk = func(n *node) {
		if n.isLeaf() {
			return
		}
		out = append(out, n)
		walk(n.Left)
		if n.Right != nil {
			walk(n.Right)
		}
	}
	walk(t.Root)
	return out
}

// LeafPath returns the ordered list of internal nodes from the root down
// to (but not including) leaf i — the exit branch for that leaf.
func (t *UnsignedTree) LeafPath(i int) ([]*node, error) {
	if i < 0 || i >= len(t.byIdx) {
		return nil, fmt.Errorf("%w: leaf index %d out of range", ark.ErrBadArg, i)
	}

	var path []*node
	var walk func(*node) bool
	walk = func(n *node) bool {
		if n.isLeaf() {
			return n.LeafIdx == i
		}
		path = append(path, n)
		if walk(n.Left) {
			return true
		}
		path = path[:len(path)-1]
		if n.Right != nil {
			path = append(path, n)
			if walk(n.Right) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	walk(t.Root)

	return path, nil
}
