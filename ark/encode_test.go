package ark_test

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark"
)

func randPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func randTx(t *testing.T) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(2)
	var h chainhash.Hash
	_, err := rand.Read(h[:])
	require.NoError(t, err)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: h, Index: 0}})
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51, 0x02, 0x4e, 0x73}))
	return tx
}

func testSpec(t *testing.T) ark.VtxoSpec {
	t.Helper()
	return ark.VtxoSpec{
		UserPubkey:   randPubkey(t),
		AspPubkey:    randPubkey(t),
		ExpiryHeight: 800_000,
		ExitDelta:    144,
		Amount:       50_000,
	}
}

func TestEncodeDecodeBoardVtxo(t *testing.T) {
	v := &ark.BoardVtxo{
		Spec:    testSpec(t),
		BoardTx: randTx(t),
		Vout:    0,
		ExitTx:  randTx(t),
	}

	encoded, err := ark.EncodeVtxo(v)
	require.NoError(t, err)

	decoded, err := ark.DecodeVtxo(encoded)
	require.NoError(t, err)

	got, ok := decoded.(*ark.BoardVtxo)
	require.True(t, ok)
	require.Equal(t, v.Spec.Amount, got.Spec.Amount)
	require.Equal(t, v.Spec.ExpiryHeight, got.Spec.ExpiryHeight)
	require.Equal(t, v.BoardTx.TxHash(), got.BoardTx.TxHash())
	require.Equal(t, v.ExitTx.TxHash(), got.ExitTx.TxHash())
}

func TestEncodeDecodeRoundVtxo(t *testing.T) {
	v := &ark.RoundVtxo{
		Spec:      testSpec(t),
		RoundTxid: chainhash.Hash{1, 2, 3},
		Vout:      1,
		Path: []ark.TreeStep{
			{SiblingHash: chainhash.Hash{4, 5, 6}, NodeTx: randTx(t)},
			{SiblingHash: chainhash.Hash{7, 8, 9}, NodeTx: randTx(t)},
		},
	}

	encoded, err := ark.EncodeVtxo(v)
	require.NoError(t, err)

	decoded, err := ark.DecodeVtxo(encoded)
	require.NoError(t, err)

	got, ok := decoded.(*ark.RoundVtxo)
	require.True(t, ok)
	require.Equal(t, v.RoundTxid, got.RoundTxid)
	require.Len(t, got.Path, 2)
	require.Equal(t, v.Path[0].SiblingHash, got.Path[0].SiblingHash)
	require.Equal(t, v.Path[1].NodeTx.TxHash(), got.Path[1].NodeTx.TxHash())
}

func TestEncodeDecodeArkoorVtxo(t *testing.T) {
	ancestor := &ark.BoardVtxo{Spec: testSpec(t), BoardTx: randTx(t), ExitTx: randTx(t)}

	v := &ark.ArkoorVtxo{
		Spec:      testSpec(t),
		Ancestors: []ark.Vtxo{ancestor},
		OorTx:     randTx(t),
		Vout:      0,
	}

	encoded, err := ark.EncodeVtxo(v)
	require.NoError(t, err)

	decoded, err := ark.DecodeVtxo(encoded)
	require.NoError(t, err)

	got, ok := decoded.(*ark.ArkoorVtxo)
	require.True(t, ok)
	require.Len(t, got.Ancestors, 1)
	require.Equal(t, v.OorTx.TxHash(), got.OorTx.TxHash())
}

func TestEncodeDecodeBolt11ChangeVtxo(t *testing.T) {
	ancestor := &ark.BoardVtxo{Spec: testSpec(t), BoardTx: randTx(t), ExitTx: randTx(t)}

	v := &ark.Bolt11ChangeVtxo{
		Spec:      testSpec(t),
		Ancestors: []ark.Vtxo{ancestor},
		HtlcTx:    randTx(t),
		Vout:      1,
	}

	encoded, err := ark.EncodeVtxo(v)
	require.NoError(t, err)

	decoded, err := ark.DecodeVtxo(encoded)
	require.NoError(t, err)

	got, ok := decoded.(*ark.Bolt11ChangeVtxo)
	require.True(t, ok)
	require.Equal(t, v.Vout, got.Vout)
	require.Equal(t, v.HtlcTx.TxHash(), got.HtlcTx.TxHash())
}

func TestExpiryInheritsTightestAncestorBound(t *testing.T) {
	spec := testSpec(t)
	spec.ExpiryHeight = 900_000

	tighter := testSpec(t)
	tighter.ExpiryHeight = 800_000
	ancestor := &ark.BoardVtxo{Spec: tighter, BoardTx: randTx(t), ExitTx: randTx(t)}

	v := &ark.ArkoorVtxo{Spec: spec, Ancestors: []ark.Vtxo{ancestor}, OorTx: randTx(t)}

	require.Equal(t, uint32(800_000), v.ExpiryHeight())
}

func TestVtxoIdRoundTrip(t *testing.T) {
	op := wire.OutPoint{Hash: chainhash.Hash{9, 9, 9}, Index: 7}
	id := ark.NewVtxoId(op)

	b := id.Bytes()
	back, err := ark.VtxoIdFromBytes(b[:])
	require.NoError(t, err)
	require.Equal(t, id, back)

	hexForm := id.Hex()
	fromHex, err := ark.VtxoIdFromHex(hexForm)
	require.NoError(t, err)
	require.Equal(t, id, fromHex)
}
