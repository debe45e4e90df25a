package lightning

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

// Sighash computes the key-path sighash for input i of the payment's
// transaction, committing to every input's own exit prevout.
func (p *Payment) Sighash(i int) ([32]byte, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for j, in := range p.Inputs {
		spec := in.VtxoSpec()
		ts, err := ark.BuildExitTapscript(spec.UserPubkey, spec.AspPubkey, spec.ExitDelta)
		if err != nil {
			return [32]byte{}, err
		}
		script, err := ts.ExitPkScript()
		if err != nil {
			return [32]byte{}, err
		}
		fetcher.AddPrevOut(p.Tx.TxIn[j].PreviousOutPoint, wire.NewTxOut(spec.Amount, script))
	}

	sigHashes := txscript.NewTxSigHashes(p.Tx, fetcher)
	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, p.Tx, i, fetcher,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ark/lightning: computing input %d sighash: %w", i, err)
	}

	var out [32]byte
	copy(out[:], sigHash)
	return out, nil
}

// Revocation spends a failed HTLC's output cooperatively back to a fresh
// exit VTXO for the client, recovering the original input sum minus
// ForwardingFee. It is itself a two-round MuSig2 exchange, mirroring the
// OOR cosigning dance but over the HTLC's single cooperative input.
type Revocation struct {
	Payment  *Payment
	Tx       *wire.MsgTx
	NewSpec  ark.VtxoSpec
}

// BuildRevocation constructs the unsigned transaction spending the HTLC
// output (key-path, cooperative) into a fresh exit VTXO for the client
// worth the original HTLC amount minus the forwarding fee, once the ASP
// has confirmed the underlying Lightning payment failed.
func BuildRevocation(p *Payment, newSpec ark.VtxoSpec) (*Revocation, error) {
	htlcOutpoint := wire.OutPoint{Hash: p.Tx.TxHash(), Index: 0}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: htlcOutpoint, Sequence: wire.MaxTxInSequenceNum})

	script, err := newSpec.ExitPkScript()
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(newSpec.Amount-ark.AnchorAmount, script))
	tx.AddTxOut(wire.NewTxOut(ark.AnchorAmount, ark.AnchorScript))

	return &Revocation{Payment: p, Tx: tx, NewSpec: newSpec}, nil
}

// Sighash computes the key-path sighash for the revocation's single
// input, spending the HTLC output cooperatively.
func (r *Revocation) Sighash() ([32]byte, error) {
	script, err := r.Payment.Htlc.PkScript()
	if err != nil {
		return [32]byte{}, err
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(script, r.Payment.HtlcAmount)
	sigHashes := txscript.NewTxSigHashes(r.Tx, fetcher)

	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, r.Tx, 0, fetcher,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ark/lightning: computing revocation sighash: %w", err)
	}

	var out [32]byte
	copy(out[:], sigHash)
	return out, nil
}

// Finalize aggregates the client's and ASP's partial signatures into the
// final cooperative signature and attaches it to the revocation tx's
// witness, verifying against the HTLC's internal (cooperative) output key
// tweaked by its own merkle root.
func Finalize(
	r *Revocation, userKey *btcec.PrivateKey, userNonce *musig.NoncePair,
	aspPubNonce musig.PubNonce, aspSig *musig.PartialSig, userPk, aspPk *btcec.PublicKey,
) error {
	msg, err := r.Sighash()
	if err != nil {
		return err
	}

	aggNonce, err := musig.NonceAgg([]musig.PubNonce{userNonce.Pub, aspPubNonce})
	if err != nil {
		return err
	}

	pks := []*btcec.PublicKey{userPk, aspPk}
	_, finalSig, err := musig.PartialSign(
		pks, aggNonce, userKey, userNonce.Sec, msg,
		r.Payment.Htlc.MerkleRoot, []*musig.PartialSig{aspSig},
	)
	if err != nil {
		return fmt.Errorf("ark/lightning: finalizing revocation signature: %w", err)
	}
	if finalSig == nil {
		return fmt.Errorf("ark/lightning: expected a final revocation signature")
	}
	if !finalSig.Verify(msg[:], r.Payment.Htlc.OutputKey) {
		return fmt.Errorf("%w: invalid revocation signature", ark.ErrInvalidSignature)
	}

	r.Tx.TxIn[0].Witness = wire.TxWitness{finalSig.Serialize()}
	return nil
}
