// Package rounds defines RoundEvent, the stream type emitted by the ASP's
// round coordinator and consumed by every client's round participant —
// the single wire shared between arkd/round and arkclient/wallet.
package rounds

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"

	"github.com/arklabs/ark/ark/musig"
	"github.com/arklabs/ark/ark/tree"
)

// Kind discriminates the five event types a round ever emits, always in
// the order Start, Attempt, VtxoProposal, RoundProposal, Finished (an
// abandoned round simply stops short of Finished).
type Kind int

const (
	KindStart Kind = iota
	KindAttempt
	KindVtxoProposal
	KindRoundProposal
	KindFinished
)

// Event is the tagged union delivered on the round event stream. Exactly
// one of the Kind-named fields is populated, matching Kind.
type Event struct {
	Kind Kind

	Start         *Start
	Attempt       *Attempt
	VtxoProposal  *VtxoProposal
	RoundProposal *RoundProposal
	Finished      *Finished
}

// Start opens a new round. RoundSeq is stable for the round's lifetime;
// OffboardFeerate is fixed for every attempt within it.
type Start struct {
	RoundSeq        uint64
	OffboardFeerate chainfee.SatPerKWeight
}

// Attempt announces the beginning of one cosigning attempt within the
// round; Attempt numbers increase monotonically within a RoundSeq as
// non-responders are excluded and the coordinator retries.
type Attempt struct {
	RoundSeq uint64
	Attempt  uint32
}

// VtxoProposal is the coordinator's draft of the round: the tree spec,
// the unsigned round transaction, one aggregated nonce per tree node (in
// UnsignedTree.InternalNodes() order), and the connector root pubkey.
type VtxoProposal struct {
	RoundSeq        uint64
	Attempt         uint32
	VtxosSpec       *tree.Spec
	UnsignedRoundTx *wire.MsgTx
	CosignAggNonces []musig.PubNonce
	ConnectorPubkey *btcec.PublicKey
}

// RoundProposal follows VTXO tree cosigning: the finalized tree node
// signatures and, per forfeited input, the ASP's nonce for each connector
// slot it must be signed against.
type RoundProposal struct {
	RoundSeq    uint64
	Attempt     uint32
	Signed      *tree.SignedTree
	ForfeitNonces map[string][]musig.PubNonce // keyed by VtxoId.Hex()
}

// Finished concludes a round successfully: the fully signed round
// transaction, broadcast by the ASP.
type Finished struct {
	RoundSeq      uint64
	SignedRoundTx *wire.MsgTx
}

// Txid is a small helper returning the round tx's id once Finished.
func (f *Finished) Txid() chainhash.Hash {
	return f.SignedRoundTx.TxHash()
}
