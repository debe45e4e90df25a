// Package oor builds and cosigns out-of-round ("Arkoor") payments: direct
// two-round-trip VTXO transfers cosigned by the ASP without a full round.
package oor

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

// OutputRequest is one requested new VTXO: the recipient's pubkey and the
// amount to send them. The spec's "exit_delta" is shared with the inputs
// being spent (fixed by the ASP at handshake time).
type OutputRequest struct {
	UserPubkey *btcec.PublicKey
	Amount     int64
}

// Payment is an OOR payment in flight: the spending inputs, the requested
// outputs, and (once built) the unsigned transaction.
type Payment struct {
	Inputs      []ark.Vtxo
	Outputs     []OutputRequest
	AspPubkey   *btcec.PublicKey
	ExitDelta   uint16
	Tx          *wire.MsgTx
}

// Build constructs the unsigned OOR transaction: one input per spent
// VTXO (via its own exit output), one output per request (a fresh exit
// spk for the recipient), plus one P2A fee anchor. It rejects the
// payment with ErrBadArg if inputs don't cover outputs.
func Build(inputs []ark.Vtxo, outputs []OutputRequest, aspPk *btcec.PublicKey, exitDelta uint16) (*Payment, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: oor payment needs at least one input", ark.ErrBadArg)
	}

	var inSum, outSum int64
	for _, in := range inputs {
		inSum += in.Amount()
	}
	for _, out := range outputs {
		if out.Amount < ark.DustLimit {
			return nil, fmt.Errorf("%w: output amount %d below dust", ark.ErrBadArg, out.Amount)
		}
		outSum += out.Amount
	}
	if inSum < outSum {
		return nil, fmt.Errorf(
			"%w: oor inputs %d do not cover outputs %d", ark.ErrBadArg, inSum, outSum,
		)
	}

	tx := wire.NewMsgTx(2)
	for _, in := range inputs {
		id := in.Id()
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: id.OutPoint(), Sequence: wire.MaxTxInSequenceNum})
	}
	for _, out := range outputs {
		spk, err := ark.BuildExitTapscript(out.UserPubkey, aspPk, exitDelta)
		if err != nil {
			return nil, err
		}
		script, err := spk.ExitPkScript()
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(out.Amount, script))
	}
	tx.AddTxOut(wire.NewTxOut(ark.AnchorAmount, ark.AnchorScript))

	return &Payment{
		Inputs: inputs, Outputs: outputs, AspPubkey: aspPk,
		ExitDelta: exitDelta, Tx: tx,
	}, nil
}

// Sighash computes the key-path SIGHASH_DEFAULT sighash for spending
// input i of the payment's transaction.
func (p *Payment) Sighash(i int) ([32]byte, error) {
	return vtxoInputSighash(p.Tx, p.Inputs, i)
}

// ClientSign generates one fresh nonce pair per input, ready to send to
// the ASP alongside the unsigned payment.
func ClientSign(p *Payment, userKeys []*btcec.PrivateKey) ([]*musig.NoncePair, error) {
	if len(userKeys) != len(p.Inputs) {
		return nil, fmt.Errorf(
			"%w: expected %d input keys, got %d", ark.ErrBadArg, len(p.Inputs), len(userKeys),
		)
	}

	pairs := make([]*musig.NoncePair, len(p.Inputs))
	for i, key := range userKeys {
		pair, err := musig.NonceGen(key.PubKey())
		if err != nil {
			return nil, fmt.Errorf("ark/oor: generating nonce for input %d: %w", i, err)
		}
		pairs[i] = pair
	}
	return pairs, nil
}

// AspCosign is the ASP-side cosigning step: for each input it verifies
// the payment balances (done by the caller before this is invoked, as it
// requires wallet/db context this package doesn't own), then produces a
// deterministic partial signature per input without ever persisting a
// secret nonce.
func AspCosign(
	aspKey func(userPk *btcec.PublicKey) *btcec.PrivateKey, p *Payment,
	userPks []*btcec.PublicKey, userPubNonces []musig.PubNonce,
) ([]musig.PubNonce, []*musig.PartialSig, error) {

	if len(userPks) != len(p.Inputs) || len(userPubNonces) != len(p.Inputs) {
		return nil, nil, fmt.Errorf("%w: input/nonce count mismatch", ark.ErrBadArg)
	}

	aspNonces := make([]musig.PubNonce, len(p.Inputs))
	aspSigs := make([]*musig.PartialSig, len(p.Inputs))

	for i, in := range p.Inputs {
		msg, err := p.Sighash(i)
		if err != nil {
			return nil, nil, err
		}

		spec := in.VtxoSpec()
		ts, err := ark.BuildExitTapscript(spec.UserPubkey, spec.AspPubkey, spec.ExitDelta)
		if err != nil {
			return nil, nil, err
		}

		privKey := aspKey(userPks[i])
		pubNonce, sig, err := musig.DeterministicPartialSign(
			privKey, []*btcec.PublicKey{userPks[i]},
			[]musig.PubNonce{userPubNonces[i]}, msg, ts.MerkleRoot,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("ark/oor: cosigning input %d: %w", i, err)
		}

		aspNonces[i] = pubNonce
		aspSigs[i] = sig
	}

	return aspNonces, aspSigs, nil
}

// ClientFinalize aggregates the client's own and the ASP's partial
// signatures for every input into the final Schnorr signatures, verifies
// each against the spent output's Taproot key, and attaches witnesses to
// the payment's transaction. A verification failure is fatal and nothing
// is committed by the caller.
func ClientFinalize(
	p *Payment, userPairs []*musig.NoncePair, userKeys []*btcec.PrivateKey,
	aspNonces []musig.PubNonce, aspSigs []*musig.PartialSig,
) error {
	for i, in := range p.Inputs {
		spec := in.VtxoSpec()
		ts, err := ark.BuildExitTapscript(spec.UserPubkey, spec.AspPubkey, spec.ExitDelta)
		if err != nil {
			return err
		}

		aggNonce, err := musig.NonceAgg([]musig.PubNonce{userPairs[i].Pub, aspNonces[i]})
		if err != nil {
			return err
		}

		msg, err := p.Sighash(i)
		if err != nil {
			return err
		}

		pks := []*btcec.PublicKey{spec.UserPubkey, spec.AspPubkey}
		_, finalSig, err := musig.PartialSign(
			pks, aggNonce, userKeys[i], userPairs[i].Sec, msg,
			ts.MerkleRoot, []*musig.PartialSig{aspSigs[i]},
		)
		if err != nil {
			return fmt.Errorf("ark/oor: finalizing input %d signature: %w", i, err)
		}
		if finalSig == nil {
			return fmt.Errorf("ark/oor: expected a final signature for input %d", i)
		}
		if !finalSig.Verify(msg[:], ts.OutputKey) {
			return fmt.Errorf("%w: invalid oor signature on input %d", ark.ErrInvalidSignature, i)
		}

		p.Tx.TxIn[i].Witness = wire.TxWitness{finalSig.Serialize()}
	}

	return nil
}
