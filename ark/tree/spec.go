// Package tree builds and cosigns the VTXO tree: the balanced binary tree
// of presigned transactions, rooted at a round transaction's VTXO output,
// whose leaves are the round's newly minted VTXOs.
package tree

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

// LeafRequest is one participant's requested tree leaf: the VTXO owner's
// pubkey, an ephemeral cosign pubkey used only for the tree-signing
// ceremony, and the requested amount.
type LeafRequest struct {
	UserPubkey   *btcec.PublicKey
	CosignPubkey *btcec.PublicKey
	Amount       int64
}

// Spec fully determines a VTXO tree's structure: the leaf list (in
// submission order; pairing is canonical left-to-right over this order)
// plus the round-wide expiry and exit delta shared by every leaf.
type Spec struct {
	Leaves       []LeafRequest
	AspPubkey    *btcec.PublicKey
	ExpiryHeight uint32
	ExitDelta    uint16
}

// node is one vertex of the tree, internal to the package. A leaf node
// has LeafIdx >= 0 and no children; an internal node has exactly one or
// two children and LeafIdx == -1.
type node struct {
	LeafIdx     int
	Left, Right *node
	CosignKeys  []*btcec.PublicKey // descendant leaves' cosign keys
	Amount      int64

	// Tx is the presigned transaction spending this node's own incoming
	// output and producing its children's outputs. Only set on internal
	// (non-leaf) nodes.
	Tx *wire.MsgTx
}

// RootScript resolves the pkScript and total amount the tree's root
// commits to, computable from the leaf list alone. The round transaction
// funding this tree needs this output before the tree itself can be
// built, since Build requires the round tx's own outpoint.
func (s *Spec) RootScript() ([]byte, int64, error) {
	root, err := s.build()
	if err != nil {
		return nil, 0, err
	}
	script, err := root.outputScript(s, nil)
	if err != nil {
		return nil, 0, err
	}
	return script, root.Amount, nil
}

// build constructs the tree's structure deterministically from the leaf
// list: adjacent leaves are paired left-to-right, and pairing repeats
// level by level (an odd node out is promoted unpaired) until one root
// remains.
func (s *Spec) build() (*node, error) {
	if len(s.Leaves) == 0 {
		return nil, fmt.Errorf("%w: empty vtxo tree spec", ark.ErrBadArg)
	}

	level := make([]*node, len(s.Leaves))
	for i, leaf := range s.Leaves {
		level[i] = &node{
			LeafIdx:    i,
			CosignKeys: []*btcec.PublicKey{leaf.CosignPubkey},
			Amount:     leaf.Amount,
		}
	}

	for len(level) > 1 {
		var next []*node
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// odd one out, promoted unpaired
				next = append(next, level[i])
				continue
			}
			left, right := level[i], level[i+1]
			keys := make([]*btcec.PublicKey, 0, len(left.CosignKeys)+len(right.CosignKeys))
			keys = append(keys, left.CosignKeys...)
			keys = append(keys, right.CosignKeys...)
			next = append(next, &node{
				LeafIdx:    -1,
				Left:       left,
				Right:      right,
				CosignKeys: keys,
				Amount:     left.Amount + right.Amount,
			})
		}
		level = next
	}

	return level[0], nil
}

func (n *node) isLeaf() bool { return n.LeafIdx >= 0 }

// aggKey returns the MuSig2 aggregate of this node's descendant cosign
// keys (no taproot script tweak — internal tree nodes are plain key-path
// only commitments, per-node).
func (n *node) aggKey() (*btcec.PublicKey, error) {
	return musig.CombineKeys(n.CosignKeys, nil)
}

// outputScript is the scriptPubKey this node commits to as a child output
// of its parent: the leaf's exit tapscript for a leaf, or a plain
// (scriptless-spend) taproot key for an internal subtree.
func (n *node) outputScript(spec *Spec, leaf *LeafRequest) ([]byte, error) {
	if n.isLeaf() {
		ts, err := ark.BuildExitTapscript(leaf.UserPubkey, spec.AspPubkey, spec.ExitDelta)
		if err != nil {
			return nil, err
		}
		return ts.ExitPkScript()
	}

	aggKey, err := n.aggKey()
	if err != nil {
		return nil, err
	}
	outKey := txscript.ComputeTaprootKeyNoScript(aggKey)
	return txscript.PayToTaprootScript(outKey)
}
