package round

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

// leafEntry is one admitted vtxo_request: the requested output plus the
// inputs funding it and the nonces its owner supplied up front.
type leafEntry struct {
	req       VtxoRequest
	inputIds  []ark.VtxoId
	pubNonces []musig.PubNonce
}

func cosignKeyHex(pk *btcec.PublicKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(pk))
}

// batch accumulates the admitted leaves and offboards of a single
// RoundSeq across attempts: excluded sub-batches are dropped between
// attempts but the survivors carry forward unchanged.
type batch struct {
	leaves     []leafEntry
	byCosign   map[string]*leafEntry
	offboards  []OffboardRequest
	inputOwner map[ark.VtxoId]*btcec.PublicKey // vtxo_id -> its own user key, for ownership/forfeit verification
}

func newBatch() *batch {
	return &batch{
		byCosign:   make(map[string]*leafEntry),
		inputOwner: make(map[ark.VtxoId]*btcec.PublicKey),
	}
}

func (b *batch) add(e leafEntry, owners map[ark.VtxoId]*btcec.PublicKey) {
	b.leaves = append(b.leaves, e)
	b.byCosign[cosignKeyHex(e.req.CosignPubkey)] = &b.leaves[len(b.leaves)-1]
	for id, pk := range owners {
		b.inputOwner[id] = pk
	}
}

func (b *batch) addOffboards(reqs []OffboardRequest) {
	b.offboards = append(b.offboards, reqs...)
}

// allInputIds returns every input vtxo id currently admitted, the set
// the in-flux guard must release once the round concludes or abandons.
func (b *batch) allInputIds() []ark.VtxoId {
	var out []ark.VtxoId
	for _, l := range b.leaves {
		out = append(out, l.inputIds...)
	}
	return out
}

// cosignKeysForInput returns the cosign key (hex) of every leaf funded by
// id, the sub-batch that must be excluded if id's forfeit fails.
func (b *batch) cosignKeysForInput(id ark.VtxoId) []string {
	var out []string
	for _, l := range b.leaves {
		for _, in := range l.inputIds {
			if in == id {
				out = append(out, cosignKeyHex(l.req.CosignPubkey))
				break
			}
		}
	}
	return out
}

// exclude drops every leaf whose cosign key is in failedKeys, the
// sub-batch a non-responding or invalid participant belongs to.
func (b *batch) exclude(failedKeys []string) {
	failed := make(map[string]struct{}, len(failedKeys))
	for _, k := range failedKeys {
		failed[k] = struct{}{}
	}

	kept := b.leaves[:0]
	for _, l := range b.leaves {
		if _, drop := failed[cosignKeyHex(l.req.CosignPubkey)]; drop {
			delete(b.byCosign, cosignKeyHex(l.req.CosignPubkey))
			continue
		}
		kept = append(kept, l)
	}
	b.leaves = kept

	// Rebuild byCosign since slice append may have relocated entries.
	b.byCosign = make(map[string]*leafEntry, len(b.leaves))
	for i := range b.leaves {
		b.byCosign[cosignKeyHex(b.leaves[i].req.CosignPubkey)] = &b.leaves[i]
	}
}
