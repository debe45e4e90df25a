package musig_test

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark/musig"
)

func genKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestCombineKeysIsOrderIndependent(t *testing.T) {
	a, b := genKey(t), genKey(t)

	k1, err := musig.CombineKeys([]*btcec.PublicKey{a.PubKey(), b.PubKey()}, nil)
	require.NoError(t, err)
	k2, err := musig.CombineKeys([]*btcec.PublicKey{b.PubKey(), a.PubKey()}, nil)
	require.NoError(t, err)

	require.True(t, k1.IsEqual(k2))
}

func TestInteractiveTwoPartySignRoundTrip(t *testing.T) {
	alice, bob := genKey(t), genKey(t)
	pks := []*btcec.PublicKey{alice.PubKey(), bob.PubKey()}

	aggKey, err := musig.CombineKeys(pks, nil)
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("round proposal"))

	aliceNonces, err := musig.NonceGen(alice.PubKey())
	require.NoError(t, err)
	bobNonces, err := musig.NonceGen(bob.PubKey())
	require.NoError(t, err)

	aggNonce, err := musig.NonceAgg([]musig.PubNonce{aliceNonces.Pub, bobNonces.Pub})
	require.NoError(t, err)

	aliceSig, _, err := musig.PartialSign(
		pks, aggNonce, alice, aliceNonces.Sec, msg, nil, nil,
	)
	require.NoError(t, err)

	bobSig, finalSig, err := musig.PartialSign(
		pks, aggNonce, bob, bobNonces.Sec, msg, nil, []*musig.PartialSig{aliceSig},
	)
	require.NoError(t, err)
	require.NotNil(t, finalSig)

	require.NoError(t, musig.VerifyPartial(
		aliceSig, aliceNonces.Pub, aggNonce, pks, alice.PubKey(), msg, nil,
	))
	require.NoError(t, musig.VerifyPartial(
		bobSig, bobNonces.Pub, aggNonce, pks, bob.PubKey(), msg, nil,
	))

	combined, err := musig.CombineSigs(aggNonce, []*musig.PartialSig{aliceSig, bobSig}, nil)
	require.NoError(t, err)
	require.True(t, combined.Verify(msg[:], aggKey))
	require.Equal(t, finalSig.Serialize(), combined.Serialize())
}

func TestDeterministicPartialSignIsReproducible(t *testing.T) {
	asp := genKey(t)
	client := genKey(t)

	clientNonces, err := musig.NonceGen(client.PubKey())
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("oor payment"))
	otherPks := []*btcec.PublicKey{client.PubKey()}
	otherNonces := []musig.PubNonce{clientNonces.Pub}

	pub1, sig1, err := musig.DeterministicPartialSign(asp, otherPks, otherNonces, msg, nil)
	require.NoError(t, err)
	pub2, sig2, err := musig.DeterministicPartialSign(asp, otherPks, otherNonces, msg, nil)
	require.NoError(t, err)

	require.Equal(t, pub1, pub2)
	require.Equal(t, sig1.S.Bytes(), sig2.S.Bytes())
}

func TestDeterministicNonceSurvivesACounterpartyArriving(t *testing.T) {
	asp := genKey(t)
	client := genKey(t)
	pks := []*btcec.PublicKey{asp.PubKey(), client.PubKey()}

	msg := sha256.Sum256([]byte("forfeit sighash"))

	// Published before the client's nonce exists.
	published, err := musig.DeterministicNonce(asp, msg)
	require.NoError(t, err)

	// Re-derived later, once the client's nonce is known, must match
	// exactly what was published.
	reDerived, err := musig.DeterministicNonce(asp, msg)
	require.NoError(t, err)
	require.Equal(t, published.Pub, reDerived.Pub)
	require.Equal(t, published.Sec, reDerived.Sec)

	clientNonces, err := musig.NonceGen(client.PubKey())
	require.NoError(t, err)

	aggNonce, err := musig.NonceAgg([]musig.PubNonce{reDerived.Pub, clientNonces.Pub})
	require.NoError(t, err)

	aspSig, err := musig.PartialSignWithNonce(reDerived.Sec, asp, aggNonce, pks, msg, nil)
	require.NoError(t, err)
	require.NoError(t, musig.VerifyPartial(aspSig, reDerived.Pub, aggNonce, pks, asp.PubKey(), msg, nil))

	clientSig, _, err := musig.PartialSign(pks, aggNonce, client, clientNonces.Sec, msg, nil, nil)
	require.NoError(t, err)

	combined, err := musig.CombineSigs(aggNonce, []*musig.PartialSig{aspSig, clientSig}, nil)
	require.NoError(t, err)

	aggKey, err := musig.CombineKeys(pks, nil)
	require.NoError(t, err)
	require.True(t, combined.Verify(msg[:], aggKey))
}

func TestDeterministicPartialSignVariesWithMessage(t *testing.T) {
	asp := genKey(t)
	client := genKey(t)

	clientNonces, err := musig.NonceGen(client.PubKey())
	require.NoError(t, err)

	otherPks := []*btcec.PublicKey{client.PubKey()}
	otherNonces := []musig.PubNonce{clientNonces.Pub}

	msg1 := sha256.Sum256([]byte("payment one"))
	msg2 := sha256.Sum256([]byte("payment two"))

	pub1, _, err := musig.DeterministicPartialSign(asp, otherPks, otherNonces, msg1, nil)
	require.NoError(t, err)
	pub2, _, err := musig.DeterministicPartialSign(asp, otherPks, otherNonces, msg2, nil)
	require.NoError(t, err)

	require.NotEqual(t, pub1, pub2)
}
