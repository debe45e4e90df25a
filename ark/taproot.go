package ark

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"github.com/arklabs/ark/ark/musig"
)

// AnchorAmount is the fixed (zero) value of a P2A fee anchor. Every
// off-chain transaction in the system carries exactly one, letting the
// spender's on-chain wallet CPFP it.
const AnchorAmount = 0

// AnchorScript is the fixed pay-to-anchor script: OP_1 <2-byte marker>.
// It is unspendable except via CPFP and is the same script for every
// anchor output in the system.
var AnchorScript = []byte{txscript.OP_1, 0x02, 0x4e, 0x73}

// ExitLeafScript builds the single Taproot leaf covering a VTXO's
// unilateral exit path: <exit_delta> CSV DROP <user_pubkey> CHECKSIG.
func ExitLeafScript(exitDelta uint16, userPk *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(exitDelta))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(schnorr.SerializePubKey(userPk))
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// ExitTapscript is a resolved exit output: the Taproot output key, the
// leaf script, the control block needed to spend it via the script path,
// and the merkle root used when MuSig2-tweaking the internal key.
type ExitTapscript struct {
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey
	LeafScript  []byte
	MerkleRoot  []byte
	ControlBlock []byte
}

// BuildExitTapscript computes the exit Taproot output for (user_pk, asp_pk,
// exit_delta): internal key is the MuSig2 aggregate of the two keys,
// tweaked by a single-leaf script tree holding ExitLeafScript.
func BuildExitTapscript(userPk, aspPk *btcec.PublicKey, exitDelta uint16) (*ExitTapscript, error) {
	leafScript, err := ExitLeafScript(exitDelta, userPk)
	if err != nil {
		return nil, fmt.Errorf("ark: building exit leaf script: %w", err)
	}

	leaf := txscript.NewBaseTapLeaf(leafScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	merkleRoot := tree.RootNode.TapHash()

	internalKey, err := musig.CombineKeys([]*btcec.PublicKey{userPk, aspPk}, nil)
	if err != nil {
		return nil, fmt.Errorf("ark: aggregating exit internal key: %w", err)
	}

	outputKey, err := musig.CombineKeys(
		[]*btcec.PublicKey{userPk, aspPk}, merkleRoot[:],
	)
	if err != nil {
		return nil, fmt.Errorf("ark: aggregating exit output key: %w", err)
	}

	proof := tree.LeafMerkleProofs[0]
	ctrlBlock := proof.ToControlBlock(internalKey)
	ctrlBlockBytes, err := ctrlBlock.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("ark: serializing control block: %w", err)
	}

	return &ExitTapscript{
		InternalKey:  internalKey,
		OutputKey:    outputKey,
		LeafScript:   leafScript,
		MerkleRoot:   merkleRoot[:],
		ControlBlock: ctrlBlockBytes,
	}, nil
}

// ExitPkScript returns the P2TR scriptPubKey for the exit output.
func (e *ExitTapscript) ExitPkScript() ([]byte, error) {
	return txscript.PayToTaprootScript(e.OutputKey)
}
