// Package lightning builds the HTLC bridge used to pay a Lightning
// invoice from a VTXO: the three-output HTLC transaction, its two
// script branches, and the cooperative revocation path taken when the
// underlying Lightning payment fails.
package lightning

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

// ForwardingFee is the flat ASP forwarding fee (sat) subtracted from the
// HTLC input sum when computing the change output. Hardcoded upstream;
// carried here as the same constant rather than made configurable, since
// nothing in the protocol negotiates it per-payment.
const ForwardingFee = 350

// DefaultHtlcExpiryBlocks is the HTLC's absolute CLTV expiry window,
// expressed as a block count added to the tip at construction time.
const DefaultHtlcExpiryBlocks = 7 * 18

// HtlcTapscript resolves an HTLC output's two script leaves and
// cooperative (musig) internal key.
type HtlcTapscript struct {
	InternalKey  *btcec.PublicKey
	OutputKey    *btcec.PublicKey
	AspBranch    []byte
	ClientBranch []byte
	MerkleRoot   []byte
}

// aspBranchScript: <payment_hash> OP_HASH160 OP_EQUALVERIFY <asp_x_only> CHECKSIG
func aspBranchScript(paymentHash160 []byte, aspPk *btcec.PublicKey) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddData(paymentHash160)
	b.AddOp(txscript.OP_HASH160)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(schnorr.SerializePubKey(aspPk))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// clientBranchScript: <htlc_expiry> CLTV DROP <exit_delta> CSV DROP <user_x_only> CHECKSIG
func clientBranchScript(htlcExpiry uint32, exitDelta uint16, userPk *btcec.PublicKey) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	b.AddInt64(int64(htlcExpiry))
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddInt64(int64(exitDelta))
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(schnorr.SerializePubKey(userPk))
	b.AddOp(txscript.OP_CHECKSIG)
	return b.Script()
}

// BuildHtlcTapscript builds the two-leaf HTLC Taproot output: the ASP's
// preimage-reveal branch and the client's post-expiry reclaim branch,
// with a cooperative MuSig2(user, asp) internal key for the settlement
// path both sides prefer to take.
func BuildHtlcTapscript(
	userPk, aspPk *btcec.PublicKey, paymentHash160 []byte,
	htlcExpiry uint32, exitDelta uint16,
) (*HtlcTapscript, error) {

	aspScript, err := aspBranchScript(paymentHash160, aspPk)
	if err != nil {
		return nil, fmt.Errorf("ark/lightning: building asp branch: %w", err)
	}
	clientScript, err := clientBranchScript(htlcExpiry, exitDelta, userPk)
	if err != nil {
		return nil, fmt.Errorf("ark/lightning: building client branch: %w", err)
	}

	aspLeaf := txscript.NewBaseTapLeaf(aspScript)
	clientLeaf := txscript.NewBaseTapLeaf(clientScript)
	tree := txscript.AssembleTaprootScriptTree(aspLeaf, clientLeaf)
	merkleRoot := tree.RootNode.TapHash()

	internalKey, err := musig.CombineKeys([]*btcec.PublicKey{userPk, aspPk}, nil)
	if err != nil {
		return nil, err
	}
	outputKey, err := musig.CombineKeys([]*btcec.PublicKey{userPk, aspPk}, merkleRoot[:])
	if err != nil {
		return nil, err
	}

	return &HtlcTapscript{
		InternalKey:  internalKey,
		OutputKey:    outputKey,
		AspBranch:    aspScript,
		ClientBranch: clientScript,
		MerkleRoot:   merkleRoot[:],
	}, nil
}

// PkScript returns the HTLC output's P2TR scriptPubKey.
func (h *HtlcTapscript) PkScript() ([]byte, error) {
	return txscript.PayToTaprootScript(h.OutputKey)
}

// Payment is an in-flight Lightning payment bridge: its inputs (spent
// VTXOs), the HTLC amount, the change recipient, and (once built) the
// three-output transaction: (0) HTLC, (1) change, (2) P2A anchor.
type Payment struct {
	Inputs     []ark.Vtxo
	HtlcAmount int64
	ChangePk   *btcec.PublicKey
	ChangeAmt  int64
	Htlc       *HtlcTapscript
	Tx         *wire.MsgTx
}

// Build constructs the unsigned HTLC payment transaction. changeAmount is
// the caller-computed input sum minus htlcAmount minus ForwardingFee;
// Build rejects a negative change as ErrBadArg. Only a single change
// output is supported (no multi-output HTLC change).
func Build(
	inputs []ark.Vtxo, htlcTapscript *HtlcTapscript, htlcAmount int64,
	changePk, aspPk *btcec.PublicKey, exitDelta uint16, changeAmount int64,
) (*Payment, error) {
	if changeAmount < 0 {
		return nil, fmt.Errorf("%w: htlc payment change is negative", ark.ErrBadArg)
	}

	tx := wire.NewMsgTx(2)
	for _, in := range inputs {
		id := in.Id()
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: id.OutPoint(), Sequence: wire.MaxTxInSequenceNum})
	}

	htlcScript, err := htlcTapscript.PkScript()
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(htlcAmount, htlcScript))

	changeTs, err := ark.BuildExitTapscript(changePk, aspPk, exitDelta)
	if err != nil {
		return nil, err
	}
	changeScript, err := changeTs.ExitPkScript()
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(changeAmount, changeScript))

	tx.AddTxOut(wire.NewTxOut(ark.AnchorAmount, ark.AnchorScript))

	return &Payment{
		Inputs: inputs, HtlcAmount: htlcAmount, ChangePk: changePk,
		ChangeAmt: changeAmount, Htlc: htlcTapscript, Tx: tx,
	}, nil
}
