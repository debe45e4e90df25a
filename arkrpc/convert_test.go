package arkrpc

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
)

func TestPartialSigWireRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pks := []*btcec.PublicKey{priv.PubKey()}

	nonces, err := musig.NonceGen(priv.PubKey())
	require.NoError(t, err)
	aggNonce, err := musig.NonceAgg([]musig.PubNonce{nonces.Pub})
	require.NoError(t, err)

	msg := chainhash.HashH([]byte("arkrpc wire test"))
	sig, _, err := musig.PartialSign(pks, aggNonce, priv, nonces.Sec, msg, nil, nil)
	require.NoError(t, err)

	wired := partialSigToWire(sig)
	back, err := partialSigFromWire(wired)
	require.NoError(t, err)
	require.Equal(t, sig.S.Bytes(), back.S.Bytes())
}

func TestPubKeyWireRoundTrip(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	w := pubKeyToWire(priv.PubKey())
	back, err := pubKeyFromWire(w)
	require.NoError(t, err)
	require.Equal(t, schnorr.SerializePubKey(priv.PubKey()), schnorr.SerializePubKey(back))
}

func TestToSubmitPaymentRejectsBadVtxoId(t *testing.T) {
	_, err := ToSubmitPayment(&SubmitPaymentRequest{
		Inputs: []InputProof{{VtxoId: "not-hex", OwnershipSig: []byte{}}},
	})
	require.Error(t, err)
}

func TestToSubmitPaymentConvertsValidRequest(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	cosign, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	id := ark.NewVtxoId(wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0})

	msg := chainhash.HashH([]byte("ownership"))
	sig, err := schnorr.Sign(priv, msg[:])
	require.NoError(t, err)

	req := &SubmitPaymentRequest{
		Inputs: []InputProof{{VtxoId: id.Hex(), OwnershipSig: sig.Serialize()}},
		VtxoRequests: []VtxoRequest{{
			UserPubkey: pubKeyToWire(priv.PubKey()), CosignPubkey: pubKeyToWire(cosign.PubKey()), Amount: 50_000,
		}},
	}

	out, err := ToSubmitPayment(req)
	require.NoError(t, err)
	require.Len(t, out.Inputs, 1)
	require.Equal(t, id, out.Inputs[0].VtxoId)
	require.Len(t, out.VtxoRequests, 1)
	require.Equal(t, int64(50_000), out.VtxoRequests[0].Amount)
}
