package round

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/arkd/db"
)

// offboardOutputWeight is the fixed weight of a P2TR output, used to
// charge each offboard request the on-chain fee it adds to the round tx.
const offboardOutputWeight = 172

// collectPayments drains submitCh for the configured submit window,
// admitting or rejecting each SubmitPayment synchronously.
func (c *Coordinator) collectPayments(
	ctx context.Context, roundSeq uint64, attempt uint32, b *batch,
) {
	deadline := time.NewTimer(c.cfg.SubmitTime)
	defer deadline.Stop()

	feerate, err := c.bridge.EstimateFee(ctx, 6)
	if err != nil {
		feerate = chainfee.FeePerKwFloor
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case sub := <-c.submitCh:
			sub.resp <- c.admit(roundSeq, attempt, sub.payment, feerate, b)
		}
	}
}

// admit validates one SubmitPayment and, if it passes every check,
// reserves its inputs in the in-flux guard and appends its leaves to the
// round's batch.
func (c *Coordinator) admit(
	roundSeq uint64, attempt uint32, p *SubmitPayment,
	feerate chainfee.SatPerKWeight, b *batch,
) error {
	if len(p.Inputs) == 0 {
		return fmt.Errorf("%w: payment has no inputs", ark.ErrBadArg)
	}

	var inputsSum int64
	owners := make(map[ark.VtxoId]*btcec.PublicKey, len(p.Inputs))
	var inputIds []ark.VtxoId

	for _, in := range p.Inputs {
		row, err := c.store.VtxoByID(in.VtxoId)
		if err != nil {
			return fmt.Errorf("%w: unknown input %s", ark.ErrBadArg, in.VtxoId)
		}
		if row.Status != db.VtxoActive {
			return fmt.Errorf("%w: %s", ark.ErrAlreadySpent, in.VtxoId)
		}

		userPk := row.Vtxo.VtxoSpec().UserPubkey
		if !verifyOwnership(in.VtxoId, roundSeq, attempt, in.OwnershipSig, userPk) {
			return fmt.Errorf("%w: invalid ownership proof for %s", ark.ErrInvalidSignature, in.VtxoId)
		}

		owners[in.VtxoId] = userPk
		inputIds = append(inputIds, in.VtxoId)
		inputsSum += row.Vtxo.Amount()
	}

	var outputsSum int64
	for _, r := range p.VtxoRequests {
		if r.Amount < ark.DustLimit {
			return fmt.Errorf("%w: vtxo request amount %d below dust", ark.ErrBadArg, r.Amount)
		}
		if c.cfg.MaxVtxoAmount > 0 && r.Amount > c.cfg.MaxVtxoAmount {
			return fmt.Errorf("%w: vtxo request amount %d exceeds round cap %d",
				ark.ErrBadArg, r.Amount, c.cfg.MaxVtxoAmount)
		}
		if len(r.PubNonces) != c.cfg.NbRoundNonces {
			return fmt.Errorf("%w: expected %d nonces, got %d",
				ark.ErrBadArg, c.cfg.NbRoundNonces, len(r.PubNonces))
		}
		outputsSum += r.Amount
	}

	var offboardFees int64
	for _, o := range p.OffboardRequests {
		if o.Amount < ark.DustLimit {
			return fmt.Errorf("%w: offboard amount %d below dust", ark.ErrBadArg, o.Amount)
		}
		outputsSum += o.Amount
		offboardFees += int64(feerate.FeeForWeight(offboardOutputWeight))
	}

	if inputsSum != outputsSum+offboardFees {
		return fmt.Errorf(
			"%w: inputs sum %d does not match outputs sum %d plus offboard fees %d",
			ark.ErrBadArg, inputsSum, outputsSum, offboardFees,
		)
	}

	if err := c.guard.CheckPut(inputIds); err != nil {
		return err
	}

	for _, r := range p.VtxoRequests {
		b.add(leafEntry{req: r, inputIds: inputIds, pubNonces: r.PubNonces}, owners)
	}
	b.addOffboards(p.OffboardRequests)

	return nil
}
