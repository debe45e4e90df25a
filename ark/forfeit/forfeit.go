// Package forfeit computes the sighash a VTXO owner signs to hand an
// already-spent input over to the ASP during a round, and builds the
// connector chain that makes those forfeits atomic within the round.
package forfeit

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
)

// Tx builds the two-input forfeit transaction for vtxo: input 0 spends
// the VTXO's own exit output, input 1 spends the connector output
// assigned to it. The single output pays the full forfeited value (VTXO
// amount plus connector amount) to the ASP's wallet script.
func Tx(
	vtxoOutpoint, connectorOutpoint wire.OutPoint, vtxoAmount, connectorAmount int64,
	aspScript []byte,
) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: vtxoOutpoint, Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: connectorOutpoint, Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxOut(wire.NewTxOut(vtxoAmount+connectorAmount, aspScript))

	return tx
}

// Sighash computes the SIGHASH_ALL Taproot key-path sighash for input 0
// (the VTXO exit output being forfeited), committing to both prevouts
// (Prevouts::All) so the forfeit can't be replayed against a different
// connector.
func Sighash(
	tx *wire.MsgTx, vtxoPkScript []byte, vtxoAmount int64,
	connectorPkScript []byte, connectorAmount int64,
) ([32]byte, error) {

	prevOuts := []*wire.TxOut{
		wire.NewTxOut(vtxoAmount, vtxoPkScript),
		wire.NewTxOut(connectorAmount, connectorPkScript),
	}
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	fetcher.AddPrevOut(tx.TxIn[0].PreviousOutPoint, prevOuts[0])
	fetcher.AddPrevOut(tx.TxIn[1].PreviousOutPoint, prevOuts[1])

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	sigHash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashAll, tx, 0, fetcher,
	)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ark/forfeit: computing sighash: %w", err)
	}

	var out [32]byte
	copy(out[:], sigHash)
	return out, nil
}

// ConnectorChain is a linear chain of transactions, each spending one
// connector output and producing two more: one real connector (used by a
// forfeit) and one continuation feeding the next chain link. It supplies
// exactly one connector per forfeited round input.
type ConnectorChain struct {
	Txs        []*wire.MsgTx
	Connectors []wire.OutPoint
}

// NewConnectorChain builds a chain of n connectors rooted at rootOutpoint,
// each connector output carrying connectorAmount and paying connectorSpk.
// Every link but the last also pays the continuation (rootAmount minus the
// connectors created so far) to connectorSpk; the last link carries a
// zero-value P2A anchor in its place, and what remains of rootAmount there
// is not assigned to any output.
func NewConnectorChain(
	rootOutpoint wire.OutPoint, rootAmount int64, n int,
	connectorSpk []byte, connectorAmount int64,
) (*ConnectorChain, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: connector chain needs at least one connector", ark.ErrBadArg)
	}

	chain := &ConnectorChain{
		Txs:        make([]*wire.MsgTx, 0, n),
		Connectors: make([]wire.OutPoint, 0, n),
	}

	in := rootOutpoint
	remaining := rootAmount
	for i := 0; i < n; i++ {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: in, Sequence: wire.MaxTxInSequenceNum})
		tx.AddTxOut(wire.NewTxOut(connectorAmount, connectorSpk))

		remaining -= connectorAmount
		if i == n-1 {
			tx.AddTxOut(wire.NewTxOut(ark.AnchorAmount, ark.AnchorScript))
		} else {
			tx.AddTxOut(wire.NewTxOut(remaining, connectorSpk))
		}

		txid := tx.TxHash()
		chain.Txs = append(chain.Txs, tx)
		chain.Connectors = append(chain.Connectors, wire.OutPoint{Hash: txid, Index: 0})

		in = wire.OutPoint{Hash: txid, Index: 1}
	}

	return chain, nil
}

// ConnectorAt resolves the connector outpoint assigned to forfeited input
// index i, matching the order connectors were requested in.
func (c *ConnectorChain) ConnectorAt(i int) (wire.OutPoint, error) {
	if i < 0 || i >= len(c.Connectors) {
		return wire.OutPoint{}, fmt.Errorf("%w: connector index %d out of range", ark.ErrBadArg, i)
	}
	return c.Connectors[i], nil
}

// VerifyForfeitSig checks a forfeit partial/aggregate signature against
// the exit taproot key of the VTXO being forfeited.
func VerifyForfeitSig(sigHash [32]byte, sig []byte, exitOutputKey *btcec.PublicKey) error {
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return fmt.Errorf("ark/forfeit: parsing signature: %w", err)
	}
	if !s.Verify(sigHash[:], exitOutputKey) {
		return fmt.Errorf("%w: forfeit signature does not verify", ark.ErrInvalidSignature)
	}
	return nil
}
