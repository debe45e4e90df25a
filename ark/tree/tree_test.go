package tree_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark/tree"
)

func randPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func buildTestSpec(t *testing.T, n int) *tree.Spec {
	t.Helper()
	leaves := make([]tree.LeafRequest, n)
	for i := range leaves {
		leaves[i] = tree.LeafRequest{
			UserPubkey:   randPubkey(t),
			CosignPubkey: randPubkey(t),
			Amount:       int64(1000 + i),
		}
	}
	return &tree.Spec{
		Leaves:       leaves,
		AspPubkey:    randPubkey(t),
		ExpiryHeight: 900_000,
		ExitDelta:    144,
	}
}

func rootOutpoint() wire.OutPoint {
	var op wire.OutPoint
	rand.Read(op.Hash[:])
	return op
}

func totalAmount(spec *tree.Spec) int64 {
	var total int64
	for _, l := range spec.Leaves {
		total += l.Amount
	}
	return total
}

func TestBuildOddLeafCountPromotesUnpaired(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7, 8} {
		spec := buildTestSpec(t, n)
		op := rootOutpoint()
		tr, err := tree.Build(spec, op, totalAmount(spec))
		require.NoError(t, err, "n=%d", n)
		require.NotNil(t, tr.Root)
	}
}

func TestBuildRejectsAmountMismatch(t *testing.T) {
	spec := buildTestSpec(t, 4)
	_, err := tree.Build(spec, rootOutpoint(), totalAmount(spec)+1)
	require.Error(t, err)
}

func TestInternalNodesCoverEveryNonLeaf(t *testing.T) {
	spec := buildTestSpec(t, 5)
	tr, err := tree.Build(spec, rootOutpoint(), totalAmount(spec))
	require.NoError(t, err)

	internal := tr.InternalNodes()
	require.NotEmpty(t, internal)
	for _, n := range internal {
		require.NotNil(t, n.Tx())
	}
}

func TestLeafPathReachesEveryLeaf(t *testing.T) {
	spec := buildTestSpec(t, 6)
	tr, err := tree.Build(spec, rootOutpoint(), totalAmount(spec))
	require.NoError(t, err)

	for i := range spec.Leaves {
		path, err := tr.Path(i)
		require.NoError(t, err)
		require.NotEmpty(t, path)
	}
}

func TestEncodeDecodeTreeRoundTrip(t *testing.T) {
	spec := buildTestSpec(t, 5)
	tr, err := tree.Build(spec, rootOutpoint(), totalAmount(spec))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tree.Encode(&buf, tr))

	decoded, err := tree.Decode(buf.Bytes())
	require.NoError(t, err)

	require.Equal(t, len(tr.InternalNodes()), len(decoded.InternalNodes()))
	for i := range spec.Leaves {
		path, err := tr.Path(i)
		require.NoError(t, err)
		decodedPath, err := decoded.Path(i)
		require.NoError(t, err)
		require.Equal(t, len(path), len(decodedPath))
	}
}
