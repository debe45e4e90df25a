package tree

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

// CosignNonces is the per-leaf-owner set of nonce pairs generated once,
// then consumed top-down: index 0 is used at the root, index 1 at the
// next node down the owned leaf's branch, and so on.
type CosignNonces struct {
	Pairs []*musig.NoncePair
}

// NewCosignNonces generates one fresh nonce pair per node on the branch
// to leaf i — the number of partial signatures that leaf's owner will
// need to contribute.
func NewCosignNonces(t *UnsignedTree, leafIdx int, cosignPk *btcec.PublicKey) (*CosignNonces, error) {
	path, err := t.Path(leafIdx)
	if err != nil {
		return nil, err
	}

	pairs := make([]*musig.NoncePair, len(path))
	for i := range path {
		pair, err := musig.NonceGen(cosignPk)
		if err != nil {
			return nil, fmt.Errorf("ark/tree: generating cosign nonce %d: %w", i, err)
		}
		pairs[i] = pair
	}

	return &CosignNonces{Pairs: pairs}, nil
}

// PubNonces extracts just the public half, the form sent to the ASP in
// SubmitPayment.
func (c *CosignNonces) PubNonces() []musig.PubNonce {
	out := make([]musig.PubNonce, len(c.Pairs))
	for i, p := range c.Pairs {
		out[i] = p.Pub
	}
	return out
}

// CosignBranch produces one partial signature per node on leafIdx's
// branch to the root, given the ASP-announced aggregate nonce for each
// of those nodes (root-first, matching Path's order) and this owner's
// own secret nonces from NewCosignNonces (consumed top-down, root first).
func CosignBranch(
	t *UnsignedTree, leafIdx int, privKey *btcec.PrivateKey,
	nonces *CosignNonces, aggNoncesOnPath []musig.PubNonce,
) ([]*musig.PartialSig, error) {

	path, err := t.Path(leafIdx)
	if err != nil {
		return nil, err
	}
	if len(path) != len(nonces.Pairs) || len(path) != len(aggNoncesOnPath) {
		return nil, fmt.Errorf(
			"%w: nonce count %d does not match branch length %d",
			ark.ErrBadArg, len(nonces.Pairs), len(path),
		)
	}

	sigs := make([]*musig.PartialSig, len(path))
	for i, nd := range path {
		msg, err := nd.Sighash()
		if err != nil {
			return nil, err
		}

		sig, _, err := musig.PartialSign(
			nd.CosignKeys(), aggNoncesOnPath[i], privKey,
			nonces.Pairs[i].Sec, msg, nil, nil,
		)
		if err != nil {
			return nil, fmt.Errorf("ark/tree: cosigning node %d: %w", i, err)
		}
		sigs[i] = sig
	}

	return sigs, nil
}

// SignedTree pairs an UnsignedTree with the final aggregate Schnorr
// signature for every internal node, indexed the same way as
// InternalNodes().
type SignedTree struct {
	Unsigned *UnsignedTree
	NodeSigs []*schnorr.Signature
}

// Combine aggregates every collected partial signature into the final
// node signatures. partialsByNode[i] must hold one partial per cosign key
// in InternalNodes()[i].CosignKeys(), in the same order, and
// aggNonces[i] the aggregate nonce used to produce them.
func Combine(t *UnsignedTree, aggNonces []musig.PubNonce, partialsByNode [][]*musig.PartialSig) (*SignedTree, error) {
	nodes := t.InternalNodes()
	if len(partialsByNode) != len(nodes) || len(aggNonces) != len(nodes) {
		return nil, fmt.Errorf("%w: partial signature set does not cover every tree node", ark.ErrBadArg)
	}

	sigs := make([]*schnorr.Signature, len(nodes))
	for i, nd := range nodes {
		if len(partialsByNode[i]) != len(nd.CosignKeys()) {
			return nil, fmt.Errorf(
				"%w: node %d expected %d partial signatures, got %d",
				ark.ErrBadArg, i, len(nd.CosignKeys()), len(partialsByNode[i]),
			)
		}

		sig, err := musig.CombineSigs(aggNonces[i], partialsByNode[i], nil)
		if err != nil {
			return nil, fmt.Errorf("ark/tree: combining node %d signatures: %w", i, err)
		}
		sigs[i] = sig
	}

	return &SignedTree{Unsigned: t, NodeSigs: sigs}, nil
}

// Verify checks that every node's aggregate signature verifies against
// its own sighash under its own aggregate cosign key.
func (st *SignedTree) Verify() error {
	nodes := st.Unsigned.InternalNodes()
	for i, nd := range nodes {
		aggKey, err := musig.CombineKeys(nd.CosignKeys(), nil)
		if err != nil {
			return err
		}
		msg, err := nd.Sighash()
		if err != nil {
			return err
		}
		if !st.NodeSigs[i].Verify(msg[:], aggKey) {
			return fmt.Errorf("%w: tree node %d signature does not verify", ark.ErrInvalidSignature, i)
		}
	}
	return nil
}

// ExtractVtxo builds the ark.RoundVtxo for leaf i, including its exit
// branch. The branch's node transactions are taken from the unsigned tree
// as they are; the tree's node signatures are not attached to them as
// witnesses.
func (st *SignedTree) ExtractVtxo(roundTxid chainhash.Hash, leafIdx int, spec ark.VtxoSpec) (*ark.RoundVtxo, error) {
	path, err := st.Unsigned.Path(leafIdx)
	if err != nil {
		return nil, err
	}

	steps := make([]ark.TreeStep, len(path))
	for i, nd := range path {
		sib := siblingOf(nd.n, leafIdx, st.Unsigned)
		var sibHash chainhash.Hash
		if sib != nil {
			sibHash = Node{n: sib, t: st.Unsigned}.commitment()
		}
		steps[i] = ark.TreeStep{SiblingHash: sibHash, NodeTx: nd.Tx()}
	}

	return &ark.RoundVtxo{
		Spec:      spec,
		RoundTxid: roundTxid,
		Vout:      0,
		Path:      steps,
	}, nil
}
