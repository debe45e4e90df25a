package tree

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Node is the public handle on one internal tree vertex, used to address
// cosign submissions and branch extraction without exposing the package's
// unexported tree-building internals.
type Node struct {
	n *node
	t *UnsignedTree
}

// CosignKeys are the cosign pubkeys of every leaf descending from this
// node — the MuSig2 signer set for Node's presigned transaction.
func (nd Node) CosignKeys() []*btcec.PublicKey { return nd.n.CosignKeys }

// Amount is the value this node's incoming output carries.
func (nd Node) Amount() int64 { return nd.n.Amount }

// Tx is the presigned transaction this node commits to.
func (nd Node) Tx() *wire.MsgTx { return nd.n.Tx }

// Sighash is the Taproot key-path sighash this node's cosigners sign.
func (nd Node) Sighash() ([32]byte, error) { return nd.t.NodeSighash(nd.n) }

// commitment is a compact, self-contained commitment to this node's
// output as seen by its parent: used as the "sibling hash" in an exit
// branch so a leaf-holder can cross-check the branch it was given matches
// the tree actually cosigned, without needing the full sibling subtree.
func (nd Node) commitment() chainhash.Hash {
	if nd.n.isLeaf() {
		script, _ := nd.t.childScript(nd.n)
		return chainhash.HashH(script)
	}
	return nd.n.Tx.TxHash()
}

// InternalNodes returns every internal node, root first.
func (t *UnsignedTree) InternalNodes() []Node {
	nodes := t.Internal()
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Node{n: n, t: t}
	}
	return out
}

// Path returns the ordered (root-first) internal nodes on leaf i's branch.
func (t *UnsignedTree) Path(i int) ([]Node, error) {
	path, err := t.LeafPath(i)
	if err != nil {
		return nil, err
	}
	out := make([]Node, len(path))
	for j, n := range path {
		out[j] = Node{n: n, t: t}
	}
	return out, nil
}

// sibling returns the other child of n along the branch to leaf i, or nil
// if n has no second child (the odd-node-out case).
func siblingOf(n *node, towardLeaf int, t *UnsignedTree) *node {
	if n.Right == nil {
		return nil
	}
	leftHasLeaf := subtreeHasLeaf(n.Left, towardLeaf)
	if leftHasLeaf {
		return n.Right
	}
	return n.Left
}

func subtreeHasLeaf(n *node, idx int) bool {
	if n.isLeaf() {
		return n.LeafIdx == idx
	}
	if subtreeHasLeaf(n.Left, idx) {
		return true
	}
	if n.Right != nil {
		return subtreeHasLeaf(n.Right, idx)
	}
	return false
}
