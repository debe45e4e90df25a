package oor

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
)

// vtxoInputSighash computes the Taproot key-path SIGHASH_DEFAULT sighash
// for spending input i of tx, where every input spends one of inputs'
// own exit outputs (key-path, cooperative MuSig2 spend).
func vtxoInputSighash(tx *wire.MsgTx, inputs []ark.Vtxo, i int) ([32]byte, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for j, in := range inputs {
		spec := in.VtxoSpec()
		ts, err := ark.BuildExitTapscript(spec.UserPubkey, spec.AspPubkey, spec.ExitDelta)
		if err != nil {
			return [32]byte{}, err
		}
		script, err := ts.ExitPkScript()
		if err != nil {
			return [32]byte{}, err
		}
		fetcher.AddPrevOut(tx.TxIn[j].PreviousOutPoint, wire.NewTxOut(spec.Amount, script))
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, tx, i, fetcher,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ark/oor: computing input %d sighash: %w", i, err)
	}

	var out [32]byte
	copy(out[:], sigHash)
	return out, nil
}
