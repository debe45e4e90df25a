package round

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

// VtxoRequest is one requested round output: the owner's pubkey, the
// ephemeral cosign key used only for this round's tree-signing ceremony,
// the amount, and the nb_round_nonces cosign nonce pairs its owner
// generated up front (only the first levels are actually consumed, once
// the tree's depth for this leaf is known).
type VtxoRequest struct {
	UserPubkey   *btcec.PublicKey
	CosignPubkey *btcec.PublicKey
	Amount       int64
	PubNonces    []musig.PubNonce
}

// OffboardRequest pays directly to an on-chain script instead of minting
// a new vtxo.
type OffboardRequest struct {
	PkScript []byte
	Amount   int64
}

// InputProof is one spent input: the vtxo being consumed and a Schnorr
// ownership proof over sighash(vtxo_id, round_seq, attempt) under the
// vtxo's own user key, looked up server-side rather than supplied here.
type InputProof struct {
	VtxoId       ark.VtxoId
	OwnershipSig *schnorr.Signature
}

// SubmitPayment is the CollectingPayments request: a batch of spent
// inputs and the outputs (vtxo requests and/or offboards) they pay to.
type SubmitPayment struct {
	Inputs           []InputProof
	VtxoRequests     []VtxoRequest
	OffboardRequests []OffboardRequest
}

// VtxoSignatures is the AwaitingVtxoSigs request: one participant's
// partial signature for every node on their cosign key's tree branch,
// root-first, matching tree.Path order.
type VtxoSignatures struct {
	CosignPubkey  *btcec.PublicKey
	PartialSigs   []*musig.PartialSig
}

// ForfeitSignatures is the AwaitingForfeitSigs request: the forfeit
// partial signature for one input against every connector it was
// assigned, in ConnectorAt order.
type ForfeitSignatures struct {
	VtxoId      ark.VtxoId
	PubNonces   []musig.PubNonce
	PartialSigs []*musig.PartialSig
}
