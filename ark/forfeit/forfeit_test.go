package forfeit_test

import (
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark/forfeit"
)

func randOutpoint() wire.OutPoint {
	var op wire.OutPoint
	rand.Read(op.Hash[:])
	return op
}

func randScript() []byte {
	b := make([]byte, 34)
	rand.Read(b)
	return b
}

func TestTxSumsVtxoAndConnectorAmounts(t *testing.T) {
	tx := forfeit.Tx(randOutpoint(), randOutpoint(), 50_000, 1_000, randScript())

	require.Len(t, tx.TxIn, 2)
	require.Len(t, tx.TxOut, 1)
	require.Equal(t, int64(51_000), tx.TxOut[0].Value)
}

func TestSighashDeterministic(t *testing.T) {
	vtxoOut, connOut := randOutpoint(), randOutpoint()
	vtxoScript, connScript := randScript(), randScript()
	tx := forfeit.Tx(vtxoOut, connOut, 50_000, 1_000, randScript())

	h1, err := forfeit.Sighash(tx, vtxoScript, 50_000, connScript, 1_000)
	require.NoError(t, err)
	h2, err := forfeit.Sighash(tx, vtxoScript, 50_000, connScript, 1_000)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestSighashChangesWithConnectorAmount(t *testing.T) {
	vtxoOut, connOut := randOutpoint(), randOutpoint()
	vtxoScript, connScript := randScript(), randScript()
	tx := forfeit.Tx(vtxoOut, connOut, 50_000, 1_000, randScript())

	h1, err := forfeit.Sighash(tx, vtxoScript, 50_000, connScript, 1_000)
	require.NoError(t, err)
	h2, err := forfeit.Sighash(tx, vtxoScript, 50_000, connScript, 2_000)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestConnectorChainLength(t *testing.T) {
	root := randOutpoint()
	spk := randScript()

	chain, err := forfeit.NewConnectorChain(root, 10_000, 4, spk, 1_000)
	require.NoError(t, err)
	require.Len(t, chain.Txs, 4)
	require.Len(t, chain.Connectors, 4)

	for i, tx := range chain.Txs {
		require.Len(t, tx.TxOut, 2)
		if i == len(chain.Txs)-1 {
			require.Equal(t, int64(0), tx.TxOut[1].Value)
		}
	}
}

func TestConnectorChainRejectsZeroLength(t *testing.T) {
	_, err := forfeit.NewConnectorChain(randOutpoint(), 10_000, 0, randScript(), 1_000)
	require.Error(t, err)
}

func TestConnectorAtOutOfRange(t *testing.T) {
	chain, err := forfeit.NewConnectorChain(randOutpoint(), 10_000, 2, randScript(), 1_000)
	require.NoError(t, err)

	_, err = chain.ConnectorAt(5)
	require.Error(t, err)
}

func TestVerifyForfeitSigRejectsGarbage(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	var sigHash [32]byte
	rand.Read(sigHash[:])

	err = forfeit.VerifyForfeitSig(sigHash, make([]byte, 64), priv.PubKey())
	require.Error(t, err)
}
