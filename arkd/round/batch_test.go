package round

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark"
)

func genPk(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func vtxoId(b byte) ark.VtxoId {
	return ark.NewVtxoId(wire.OutPoint{Hash: chainhash.Hash{b}, Index: 0})
}

func TestBatchAllInputIdsCollectsEveryLeaf(t *testing.T) {
	b := newBatch()

	in1, in2, in3 := vtxoId(1), vtxoId(2), vtxoId(3)
	owner := genPk(t)

	b.add(leafEntry{
		req:      VtxoRequest{CosignPubkey: genPk(t), UserPubkey: owner, Amount: 1000},
		inputIds: []ark.VtxoId{in1, in2},
	}, map[ark.VtxoId]*btcec.PublicKey{in1: owner, in2: owner})
	b.add(leafEntry{
		req:      VtxoRequest{CosignPubkey: genPk(t), UserPubkey: owner, Amount: 2000},
		inputIds: []ark.VtxoId{in3},
	}, map[ark.VtxoId]*btcec.PublicKey{in3: owner})

	require.ElementsMatch(t, []ark.VtxoId{in1, in2, in3}, b.allInputIds())
	require.Equal(t, owner, b.inputOwner[in1])
}

func TestBatchCosignKeysForInputFindsOwningLeaf(t *testing.T) {
	b := newBatch()

	in1, in2 := vtxoId(1), vtxoId(2)
	owner := genPk(t)
	cosign1, cosign2 := genPk(t), genPk(t)

	b.add(leafEntry{
		req:      VtxoRequest{CosignPubkey: cosign1, UserPubkey: owner, Amount: 1000},
		inputIds: []ark.VtxoId{in1},
	}, map[ark.VtxoId]*btcec.PublicKey{in1: owner})
	b.add(leafEntry{
		req:      VtxoRequest{CosignPubkey: cosign2, UserPubkey: owner, Amount: 500},
		inputIds: []ark.VtxoId{in2},
	}, map[ark.VtxoId]*btcec.PublicKey{in2: owner})

	require.Equal(t, []string{cosignKeyHex(cosign1)}, b.cosignKeysForInput(in1))
	require.Equal(t, []string{cosignKeyHex(cosign2)}, b.cosignKeysForInput(in2))
	require.Empty(t, b.cosignKeysForInput(vtxoId(99)))
}

func TestBatchExcludeDropsOnlyTheFailedSubBatch(t *testing.T) {
	b := newBatch()

	in1, in2 := vtxoId(1), vtxoId(2)
	owner := genPk(t)
	keep, drop := genPk(t), genPk(t)

	b.add(leafEntry{
		req:      VtxoRequest{CosignPubkey: keep, UserPubkey: owner, Amount: 1000},
		inputIds: []ark.VtxoId{in1},
	}, map[ark.VtxoId]*btcec.PublicKey{in1: owner})
	b.add(leafEntry{
		req:      VtxoRequest{CosignPubkey: drop, UserPubkey: owner, Amount: 2000},
		inputIds: []ark.VtxoId{in2},
	}, map[ark.VtxoId]*btcec.PublicKey{in2: owner})
	require.Len(t, b.leaves, 2)

	b.exclude([]string{cosignKeyHex(drop)})

	require.Len(t, b.leaves, 1)
	require.Equal(t, keep, b.leaves[0].req.CosignPubkey)
	require.Contains(t, b.byCosign, cosignKeyHex(keep))
	require.NotContains(t, b.byCosign, cosignKeyHex(drop))

	// Survivors still carry their original input, the failed one's
	// input ownership record is simply unreferenced by any remaining leaf.
	require.ElementsMatch(t, []ark.VtxoId{in1}, b.allInputIds())
}

func TestBatchAddOffboardsAccumulates(t *testing.T) {
	b := newBatch()
	b.addOffboards([]OffboardRequest{{PkScript: []byte{0x01}, Amount: 100}})
	b.addOffboards([]OffboardRequest{{PkScript: []byte{0x02}, Amount: 200}})
	require.Len(t, b.offboards, 2)
}
