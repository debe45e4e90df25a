package round

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/forfeit"
	"github.com/arklabs/ark/ark/musig"
	"github.com/arklabs/ark/ark/rounds"
	"github.com/arklabs/ark/ark/tree"
)

// attempt is the working state of one cosigning attempt within a round:
// the built tree, the connector chain, and whatever partial signatures
// have been collected so far.
type attempt struct {
	roundSeq uint64
	num      uint32
	batch    *batch

	spec         *tree.Spec
	unsignedTree *tree.UnsignedTree
	depthOf      map[tree.Node]int
	aggNonces    []musig.PubNonce

	pkt            *psbt.Packet
	roundTx        *wire.MsgTx
	connectorSpk   []byte
	connectorChain *forfeit.ConnectorChain
	aspPayoutSpk   []byte

	proposal      *rounds.VtxoProposal
	signedTree    *tree.SignedTree
	roundProposal *rounds.RoundProposal

	// vtxoPartials[node][cosignKeyHex] collects one cosigner's partial
	// per internal node, keyed the same way as depthOf.
	vtxoPartials map[tree.Node]map[string]*musig.PartialSig

	// forfeits[vtxoId.Hex()] collects the client's forfeit signature for
	// that input once received.
	forfeits map[string]*ForfeitSignatures

	// inputOrder fixes the forfeited-input order connectors were assigned
	// in, computed once in buildRoundProposal. Every later lookup of "the
	// connector index for this input" must reuse this slice rather than
	// recomputing uniqueInputIds, since its map-backed iteration order is
	// not stable across calls.
	inputOrder []ark.VtxoId
}

// indexOfInput returns id's connector index within at.inputOrder, or -1.
func indexOfInput(at *attempt, id ark.VtxoId) int {
	for i, v := range at.inputOrder {
		if v == id {
			return i
		}
	}
	return -1
}

// buildAttempt drafts the round transaction and the unsigned tree for
// the currently admitted batch.
func (c *Coordinator) buildAttempt(
	ctx context.Context, roundSeq uint64, attemptNum uint32, b *batch,
) (*attempt, error) {
	if len(b.leaves) == 0 {
		return nil, fmt.Errorf("arkd/round: empty batch")
	}

	tip, _ := c.bridge.Tip()

	leaves := make([]tree.LeafRequest, len(b.leaves))
	for i, l := range b.leaves {
		leaves[i] = tree.LeafRequest{
			UserPubkey:   l.req.UserPubkey,
			CosignPubkey: l.req.CosignPubkey,
			Amount:       l.req.Amount,
		}
	}

	spec := &tree.Spec{
		Leaves:       leaves,
		AspPubkey:    c.keyring.Identity(),
		ExpiryHeight: tip + c.cfg.RoundLifetime,
		ExitDelta:    c.cfg.ExitDelta,
	}

	rootScript, rootAmount, err := spec.RootScript()
	if err != nil {
		return nil, fmt.Errorf("resolving tree root: %w", err)
	}

	connectorInternalKey := c.keyring.Identity()
	connectorOutKey := txscript.ComputeTaprootKeyNoScript(connectorInternalKey)
	connectorSpk, err := txscript.PayToTaprootScript(connectorOutKey)
	if err != nil {
		return nil, fmt.Errorf("building connector script: %w", err)
	}

	numConnectors := len(uniqueInputIds(b))
	if numConnectors == 0 {
		numConnectors = 1
	}
	connectorRootAmount := int64(numConnectors) * c.cfg.ConnectorAmount

	aspPayoutSpk, err := c.aspExitScript(ctx)
	if err != nil {
		return nil, err
	}

	outputs := []*wire.TxOut{
		wire.NewTxOut(rootAmount, rootScript),
		wire.NewTxOut(connectorRootAmount, connectorSpk),
	}
	outputs = append(outputs, offboardOutputs(b.offboards)...)

	feerate, err := c.bridge.EstimateFee(ctx, 3)
	if err != nil {
		return nil, fmt.Errorf("estimating round tx feerate: %w", err)
	}

	pkt, err := c.wallet.BuildPsbt(ctx, outputs, feerate)
	if err != nil {
		return nil, fmt.Errorf("funding round tx: %w", err)
	}
	roundTx := pkt.UnsignedTx
	roundTxid := roundTx.TxHash()

	unsignedTree, err := tree.Build(
		spec, wire.OutPoint{Hash: roundTxid, Index: 0}, rootAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("building vtxo tree: %w", err)
	}

	connectorChain, err := forfeit.NewConnectorChain(
		wire.OutPoint{Hash: roundTxid, Index: 1}, connectorRootAmount,
		numConnectors, connectorSpk, c.cfg.ConnectorAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("building connector chain: %w", err)
	}

	depthOf := make(map[tree.Node]int)
	for i := range spec.Leaves {
		path, err := unsignedTree.Path(i)
		if err != nil {
			return nil, err
		}
		for d, nd := range path {
			depthOf[nd] = d
		}
	}

	aggNonces := make([]musig.PubNonce, 0, len(unsignedTree.InternalNodes()))
	for _, nd := range unsignedTree.InternalNodes() {
		d := depthOf[nd]
		var pubNonces []musig.PubNonce
		for _, key := range nd.CosignKeys() {
			entry, ok := b.byCosign[cosignKeyHex(key)]
			if !ok || d >= len(entry.pubNonces) {
				return nil, fmt.Errorf(
					"%w: cosigner missing nonce at depth %d", ark.ErrBadArg, d,
				)
			}
			pubNonces = append(pubNonces, entry.pubNonces[d])
		}
		agg, err := musig.NonceAgg(pubNonces)
		if err != nil {
			return nil, fmt.Errorf("aggregating node %d nonces: %w", len(aggNonces), err)
		}
		aggNonces = append(aggNonces, agg)
	}

	at := &attempt{
		roundSeq:       roundSeq,
		num:            attemptNum,
		batch:          b,
		spec:           spec,
		unsignedTree:   unsignedTree,
		depthOf:        depthOf,
		aggNonces:      aggNonces,
		pkt:            pkt,
		roundTx:        roundTx,
		connectorSpk:   connectorSpk,
		connectorChain: connectorChain,
		aspPayoutSpk:   aspPayoutSpk,
		vtxoPartials:   make(map[tree.Node]map[string]*musig.PartialSig),
		forfeits:       make(map[string]*ForfeitSignatures),
	}

	at.proposal = &rounds.VtxoProposal{
		RoundSeq:        roundSeq,
		Attempt:         attemptNum,
		VtxosSpec:       spec,
		UnsignedRoundTx: roundTx,
		CosignAggNonces: aggNonces,
		ConnectorPubkey: connectorInternalKey,
	}

	return at, nil
}

func uniqueInputIds(b *batch) []ark.VtxoId {
	seen := make(map[ark.VtxoId]struct{})
	for _, l := range b.leaves {
		for _, id := range l.inputIds {
			seen[id] = struct{}{}
		}
	}
	out := make([]ark.VtxoId, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// collectVtxoSigs drains vtxoSigCh for the sign window, returning the
// cosign keys (hex) whose branch never completed.
func (c *Coordinator) collectVtxoSigs(ctx context.Context, at *attempt) []string {
	deadline := deadlineTimer(c.cfg.SignTime)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return c.missingCosigners(at)
		case sub := <-c.vtxoSigCh:
			sub.resp <- c.admitVtxoSig(at, sub.sigs)
		}
	}
}

func (c *Coordinator) admitVtxoSig(at *attempt, s *VtxoSignatures) error {
	entry, ok := at.batch.byCosign[cosignKeyHex(s.CosignPubkey)]
	if !ok {
		return fmt.Errorf("%w: unknown cosign key", ark.ErrBadArg)
	}

	leafIdx := -1
	for i, l := range at.batch.leaves {
		if l.req.CosignPubkey == entry.req.CosignPubkey {
			leafIdx = i
			break
		}
	}
	path, err := at.unsignedTree.Path(leafIdx)
	if err != nil {
		return err
	}
	if len(s.PartialSigs) != len(path) {
		return fmt.Errorf(
			"%w: expected %d partial sigs, got %d", ark.ErrBadArg, len(path), len(s.PartialSigs),
		)
	}

	for i, nd := range path {
		if i >= len(entry.pubNonces) {
			return fmt.Errorf("%w: missing own nonce for branch node %d", ark.ErrBadArg, i)
		}
		msg, err := nd.Sighash()
		if err != nil {
			return err
		}
		if err := musig.VerifyPartial(
			s.PartialSigs[i], entry.pubNonces[i], at.aggNonces[nodeIndex(at, nd)],
			nd.CosignKeys(), s.CosignPubkey, msg, nil,
		); err != nil {
			return fmt.Errorf("%w: branch node %d: %v", ark.ErrInvalidSignature, i, err)
		}
	}

	key := cosignKeyHex(s.CosignPubkey)
	for i, nd := range path {
		if at.vtxoPartials[nd] == nil {
			at.vtxoPartials[nd] = make(map[string]*musig.PartialSig)
		}
		at.vtxoPartials[nd][key] = s.PartialSigs[i]
	}

	return nil
}

func nodeIndex(at *attempt, target tree.Node) int {
	for i, nd := range at.unsignedTree.InternalNodes() {
		if nd == target {
			return i
		}
	}
	return -1
}

// missingCosigners reports every cosign key (hex) that has not completed
// every node on its own branch.
func (c *Coordinator) missingCosigners(at *attempt) []string {
	var missing []string
	for i, l := range at.batch.leaves {
		path, err := at.unsignedTree.Path(i)
		if err != nil {
			continue
		}
		key := cosignKeyHex(l.req.CosignPubkey)
		complete := true
		for _, nd := range path {
			if _, ok := at.vtxoPartials[nd][key]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			missing = append(missing, key)
		}
	}
	return missing
}

// buildRoundProposal aggregates every node's collected partials into the
// final tree signatures and emits the connector commitments.
func (c *Coordinator) buildRoundProposal(at *attempt) error {
	nodes := at.unsignedTree.InternalNodes()
	partialsByNode := make([][]*musig.PartialSig, len(nodes))

	for i, nd := range nodes {
		var sigs []*musig.PartialSig
		for _, key := range nd.CosignKeys() {
			p, ok := at.vtxoPartials[nd][cosignKeyHex(key)]
			if !ok {
				return fmt.Errorf("arkd/round: node %d missing partial from cosigner", i)
			}
			sigs = append(sigs, p)
		}
		partialsByNode[i] = sigs
	}

	signed, err := tree.Combine(at.unsignedTree, at.aggNonces, partialsByNode)
	if err != nil {
		return fmt.Errorf("combining tree signatures: %w", err)
	}
	if err := signed.Verify(); err != nil {
		return err
	}
	at.signedTree = signed

	forfeitNonces := make(map[string][]musig.PubNonce, len(at.batch.leaves))
	at.inputOrder = uniqueInputIds(at.batch)
	for i, id := range at.inputOrder {
		sighash, err := c.forfeitSighash(at, id, i)
		if err != nil {
			return err
		}

		nonce, err := musig.DeterministicNonce(c.keyring.PrivateKey(), sighash)
		if err != nil {
			return fmt.Errorf("deterministic forfeit nonce: %w", err)
		}
		forfeitNonces[id.Hex()] = []musig.PubNonce{nonce.Pub}
	}

	at.roundProposal = &rounds.RoundProposal{
		RoundSeq:      at.roundSeq,
		Attempt:       at.num,
		Signed:        signed,
		ForfeitNonces: forfeitNonces,
	}
	return nil
}

// forfeitTx builds the (never-broadcast) forfeit transaction for input id
// against its assigned connector.
func (c *Coordinator) forfeitTx(at *attempt, id ark.VtxoId, connectorIdx int) (*wire.MsgTx, int64, error) {
	row, err := c.store.VtxoByID(id)
	if err != nil {
		return nil, 0, err
	}
	connOut, err := at.connectorChain.ConnectorAt(connectorIdx)
	if err != nil {
		return nil, 0, err
	}
	tx := forfeit.Tx(
		id.OutPoint(), connOut, row.Vtxo.Amount(), c.cfg.ConnectorAmount, at.aspPayoutSpk,
	)
	return tx, row.Vtxo.Amount(), nil
}

// forfeitSighash computes the sighash an input's forfeit partial
// signature must cover, for connector index i.
func (c *Coordinator) forfeitSighash(at *attempt, id ark.VtxoId, connectorIdx int) ([32]byte, error) {
	row, err := c.store.VtxoByID(id)
	if err != nil {
		return [32]byte{}, err
	}
	vtxoPkScript, err := row.Vtxo.VtxoSpec().ExitPkScript()
	if err != nil {
		return [32]byte{}, err
	}
	tx, amount, err := c.forfeitTx(at, id, connectorIdx)
	if err != nil {
		return [32]byte{}, err
	}
	return forfeit.Sighash(tx, vtxoPkScript, amount, at.connectorSpk, c.cfg.ConnectorAmount)
}

// forfeitTweak resolves the Taproot merkle root tweak for a forfeited
// vtxo's exit output, the tapTweak musig partial signing needs.
func (c *Coordinator) forfeitTweak(id ark.VtxoId) []byte {
	row, err := c.store.VtxoByID(id)
	if err != nil {
		return nil
	}
	ts, err := row.Vtxo.VtxoSpec().ExitTapscript()
	if err != nil {
		return nil
	}
	return ts.MerkleRoot
}
