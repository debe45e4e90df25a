package round

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
	"github.com/arklabs/ark/ark/rounds"
	"github.com/arklabs/ark/arkd/db"
)

// collectForfeitSigs drains forfeitSigCh for the sign window, returning
// the cosign keys (hex) of every sub-batch whose forfeit never completed.
func (c *Coordinator) collectForfeitSigs(ctx context.Context, at *attempt) []string {
	deadline := deadlineTimer(c.cfg.SignTime)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return c.missingForfeiters(at)
		case sub := <-c.forfeitSigCh:
			sub.resp <- c.admitForfeitSig(at, sub.sigs)
		}
	}
}

// admitForfeitSig verifies one input's forfeit partial against the ASP's
// own previously published nonce for that input, under the MuSig2
// aggregate of the user and ASP identity keys tweaked by the vtxo's exit
// tapscript merkle root.
func (c *Coordinator) admitForfeitSig(at *attempt, f *ForfeitSignatures) error {
	idx := indexOfInput(at, f.VtxoId)
	if idx < 0 {
		return fmt.Errorf("%w: %s is not a forfeited input of this attempt", ark.ErrBadArg, f.VtxoId)
	}
	if len(f.PubNonces) != 1 || len(f.PartialSigs) != 1 {
		return fmt.Errorf("%w: expected exactly one forfeit nonce and partial", ark.ErrBadArg)
	}

	aspNonces, ok := at.roundProposal.ForfeitNonces[f.VtxoId.Hex()]
	if !ok || len(aspNonces) != 1 {
		return fmt.Errorf("arkd/round: no published asp nonce for %s", f.VtxoId)
	}

	userPk := at.batch.inputOwner[f.VtxoId]
	if userPk == nil {
		return fmt.Errorf("%w: unknown owner for %s", ark.ErrBadArg, f.VtxoId)
	}

	sighash, err := c.forfeitSighash(at, f.VtxoId, idx)
	if err != nil {
		return err
	}

	aggNonce, err := musig.NonceAgg([]musig.PubNonce{aspNonces[0], f.PubNonces[0]})
	if err != nil {
		return fmt.Errorf("aggregating forfeit nonces: %w", err)
	}

	if err := musig.VerifyPartial(
		f.PartialSigs[0], f.PubNonces[0], aggNonce,
		[]*btcec.PublicKey{userPk, c.keyring.Identity()}, userPk, sighash, c.forfeitTweak(f.VtxoId),
	); err != nil {
		return fmt.Errorf("%w: forfeit partial for %s: %v", ark.ErrInvalidSignature, f.VtxoId, err)
	}

	at.forfeits[f.VtxoId.Hex()] = f
	return nil
}

// missingForfeiters reports the cosign key (hex) of every sub-batch with
// an input still missing its forfeit signature.
func (c *Coordinator) missingForfeiters(at *attempt) []string {
	var missing []string
	for _, id := range at.inputOrder {
		if _, ok := at.forfeits[id.Hex()]; ok {
			continue
		}
		missing = append(missing, at.batch.cosignKeysForInput(id)...)
	}
	return missing
}

// finalize combines every forfeited input's final signature, signs and
// broadcasts the round and connector transactions, and persists the round
// and its new leaf vtxos.
func (c *Coordinator) finalize(ctx context.Context, at *attempt) (*rounds.Finished, error) {
	for i, id := range at.inputOrder {
		if err := c.combineForfeit(at, id, i); err != nil {
			return nil, fmt.Errorf("finalizing forfeit for %s: %w", id, err)
		}
	}

	if err := c.wallet.SignPsbt(ctx, at.pkt); err != nil {
		return nil, fmt.Errorf("signing round tx: %w", err)
	}
	finalTx, err := psbt.Extract(at.pkt)
	if err != nil {
		return nil, fmt.Errorf("extracting round tx: %w", err)
	}
	roundTxid := finalTx.TxHash()

	if err := c.signConnectorChain(at); err != nil {
		return nil, err
	}
	for _, tx := range at.connectorChain.Txs {
		if err := c.wallet.Broadcast(ctx, tx); err != nil {
			return nil, fmt.Errorf("broadcasting connector chain tx: %w", err)
		}
	}
	if err := c.wallet.Broadcast(ctx, finalTx); err != nil {
		return nil, fmt.Errorf("broadcasting round tx: %w", err)
	}

	if err := c.store.PutRound(&db.RoundRecord{
		RoundID:        roundTxid,
		RoundSeq:       at.roundSeq,
		RoundTx:        finalTx,
		SignedTree:     at.signedTree,
		ForfeitedVtxos: at.inputOrder,
	}); err != nil {
		return nil, fmt.Errorf("persisting round: %w", err)
	}

	for i, l := range at.batch.leaves {
		vtxo, err := at.signedTree.ExtractVtxo(roundTxid, i, ark.VtxoSpec{
			UserPubkey:   l.req.UserPubkey,
			AspPubkey:    c.keyring.Identity(),
			ExpiryHeight: at.spec.ExpiryHeight,
			ExitDelta:    at.spec.ExitDelta,
			Amount:       l.req.Amount,
		})
		if err != nil {
			return nil, fmt.Errorf("extracting leaf vtxo %d: %w", i, err)
		}
		if err := c.store.PutVtxo(vtxo); err != nil {
			return nil, fmt.Errorf("persisting leaf vtxo %d: %w", i, err)
		}
	}

	for i, id := range at.inputOrder {
		forfeitTx, _, err := c.forfeitTx(at, id, i)
		if err != nil {
			return nil, fmt.Errorf("rebuilding forfeit tx for %s: %w", id, err)
		}
		by := ark.NewVtxoId(wire.OutPoint{Hash: forfeitTx.TxHash(), Index: 0})
		if err := c.store.MarkSpent(id, by, db.VtxoSpentByRound); err != nil {
			return nil, fmt.Errorf("marking %s spent: %w", id, err)
		}
	}

	return &rounds.Finished{RoundSeq: at.roundSeq, SignedRoundTx: finalTx}, nil
}

// combineForfeit aggregates input i's client and ASP partials into the
// final forfeit signature and verifies it against the vtxo's exit key.
// The forfeit transaction itself is never broadcast: its effect is
// already captured by the round tx's connector chain and the ASP's own
// payout output, so the signature only needs to be provably valid, not
// published.
func (c *Coordinator) combineForfeit(at *attempt, id ark.VtxoId, i int) error {
	client := at.forfeits[id.Hex()]
	if client == nil {
		return fmt.Errorf("arkd/round: no forfeit collected for %s", id)
	}

	sighash, err := c.forfeitSighash(at, id, i)
	if err != nil {
		return err
	}

	nonce, err := musig.DeterministicNonce(c.keyring.PrivateKey(), sighash)
	if err != nil {
		return err
	}

	userPk := at.batch.inputOwner[id]
	tweak := c.forfeitTweak(id)
	pks := []*btcec.PublicKey{userPk, c.keyring.Identity()}

	aggNonce, err := musig.NonceAgg([]musig.PubNonce{nonce.Pub, client.PubNonces[0]})
	if err != nil {
		return err
	}

	aspPartial, err := musig.PartialSignWithNonce(nonce.Sec, c.keyring.PrivateKey(), aggNonce, pks, sighash, tweak)
	if err != nil {
		return fmt.Errorf("asp forfeit partial: %w", err)
	}

	finalSig, err := musig.CombineSigs(aggNonce, []*musig.PartialSig{aspPartial, client.PartialSigs[0]}, tweak)
	if err != nil {
		return fmt.Errorf("combining forfeit signature: %w", err)
	}

	row, err := c.store.VtxoByID(id)
	if err != nil {
		return err
	}
	ts, err := row.Vtxo.VtxoSpec().ExitTapscript()
	if err != nil {
		return err
	}
	if !finalSig.Verify(sighash[:], ts.OutputKey) {
		return fmt.Errorf("%w: forfeit signature for %s does not verify", ark.ErrInvalidSignature, id)
	}

	return nil
}

// signConnectorChain signs every connector chain transaction's single
// input with the ASP's own identity key, key-path only (the chain's
// outputs are BIP-86 style taproot keys with no script tree).
func (c *Coordinator) signConnectorChain(at *attempt) error {
	tweaked := txscript.TweakTaprootPrivKey(*c.keyring.PrivateKey(), nil)

	// The first chain tx spends the round tx's own connector root output
	// (index 1); every later one spends the previous link's continuation
	// output (its last output).
	prevOut := at.roundTx.TxOut[1]

	for _, tx := range at.connectorChain.Txs {
		fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)
		sigHash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, tx, 0, fetcher)
		if err != nil {
			return fmt.Errorf("arkd/round: connector chain sighash: %w", err)
		}

		sig, err := schnorr.Sign(tweaked, sigHash)
		if err != nil {
			return fmt.Errorf("arkd/round: signing connector chain tx: %w", err)
		}
		tx.TxIn[0].Witness = wire.TxWitness{sig.Serialize()}

		prevOut = tx.TxOut[len(tx.TxOut)-1]
	}
	return nil
}
