package round

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/arklabs/ark/ark"
)

// ownershipTag domain-separates the proof-of-ownership sighash from
// every other Schnorr message signed in the protocol.
var ownershipTag = []byte("ark/round/ownership")

// ownershipSighash computes sighash(vtxo_id, round_seq, attempt), the
// message an input's owner signs to prove the right to spend it in this
// specific round attempt, preventing replay across attempts or rounds.
func ownershipSighash(id ark.VtxoId, roundSeq uint64, attempt uint32) chainhash.Hash {
	idBytes := id.Bytes()
	seqBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqBytes, roundSeq)
	attemptBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(attemptBytes, attempt)

	h := chainhash.TaggedHash(ownershipTag, idBytes[:], seqBytes, attemptBytes)
	return *h
}

// verifyOwnership checks an input's proof against its vtxo's own user
// key.
func verifyOwnership(
	id ark.VtxoId, roundSeq uint64, attempt uint32,
	sig *schnorr.Signature, userPubkey *btcec.PublicKey,
) bool {
	msg := ownershipSighash(id, roundSeq, attempt)
	return sig.Verify(msg[:], userPubkey)
}
