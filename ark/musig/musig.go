// Package musig wraps github.com/btcsuite/btcd/btcec/v2/schnorr/musig2
// (BIP-327) with the handful of operations the round coordinator and the
// client protocol need: key aggregation, nonce generation/aggregation,
// interactive partial signing and ASP-side deterministic partial signing.
package musig

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
)

// PubNonce is a single party's 66-byte public nonce pair.
type PubNonce = [musig2.PubNonceSize]byte

// SecNonce is the corresponding secret nonce, never transmitted.
type SecNonce = [musig2.SecNonceSize]byte

// NoncePair bundles a fresh public/secret nonce, as returned by NonceGen.
type NoncePair struct {
	Pub PubNonce
	Sec SecNonce
}

// PartialSig is one signer's partial signature over an aggregated nonce.
type PartialSig = musig2.PartialSignature

// CombineKeys computes the MuSig2 aggregate public key for pks, applying
// BIP-327 key sorting so the result is independent of caller-supplied
// order. tapTweak, if non-nil, is folded in as the Taproot script-tree
// merkle root; an empty non-nil slice gives a BIP-86 style tweak with no
// script path, and nil returns the untweaked aggregate key.
func CombineKeys(pks []*btcec.PublicKey, tapTweak []byte) (*btcec.PublicKey, error) {
	if len(pks) == 0 {
		return nil, fmt.Errorf("musig: no public keys to aggregate")
	}

	var opts []musig2.KeyAggOption
	if tapTweak != nil {
		opts = append(opts, musig2.WithTaprootKeyTweak(tapTweak))
	}

	aggKey, _, _, err := musig2.AggregateKeys(pks, true, opts...)
	if err != nil {
		return nil, fmt.Errorf("musig: aggregating keys: %w", err)
	}

	return aggKey.FinalKey, nil
}

// NonceGen produces a fresh, randomly sourced nonce pair for signer pk.
func NonceGen(pk *btcec.PublicKey) (*NoncePair, error) {
	nonces, err := musig2.GenNonces(musig2.WithPublicKey(pk))
	if err != nil {
		return nil, fmt.Errorf("musig: generating nonces: %w", err)
	}

	return &NoncePair{Pub: nonces.PubNonce, Sec: nonces.SecNonce}, nil
}

// NonceAgg combines every participant's public nonce into the single
// aggregate nonce used for the signing session.
func NonceAgg(pubNonces []PubNonce) (PubNonce, error) {
	agg, err := musig2.AggregateNonces(pubNonces)
	if err != nil {
		return PubNonce{}, fmt.Errorf("musig: aggregating nonces: %w", err)
	}

	return agg, nil
}

// PartialSign produces this signer's partial signature over msg32 under
// the key set pks (BIP-327 order-independent; sorted internally),
// aggregate nonce aggNonce, using the fresh secret nonce secNonce. When
// tapTweak is non-nil, the same script-tree tweak passed to CombineKeys
// must be supplied here so the partial signs against the tweaked key.
// If otherPartials is non-empty, the final aggregate Schnorr signature is
// also returned.
func PartialSign(
	pks []*btcec.PublicKey, aggNonce PubNonce, privKey *btcec.PrivateKey,
	secNonce SecNonce, msg32 [32]byte, tapTweak []byte,
	otherPartials []*PartialSig,
) (*PartialSig, *schnorr.Signature, error) {

	signOpts, combineOpts := tweakOpts(tapTweak)

	sig, err := musig2.Sign(
		secNonce, privKey, aggNonce, pks, msg32, signOpts...,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("musig: partial signing: %w", err)
	}

	if len(otherPartials) == 0 {
		return sig, nil, nil
	}

	allSigs := append([]*PartialSig{sig}, otherPartials...)
	finalSig, err := musig2.CombineSigs(aggNonce, allSigs, combineOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("musig: combining signatures: %w", err)
	}

	return sig, finalSig, nil
}

// CombineSigs aggregates every partial into the final Schnorr signature,
// for the case where the caller collects all partials before combining
// (as the ASP does once the last cosigner has responded).
func CombineSigs(aggNonce PubNonce, partials []*PartialSig, tapTweak []byte) (*schnorr.Signature, error) {
	_, combineOpts := tweakOpts(tapTweak)

	finalSig, err := musig2.CombineSigs(aggNonce, partials, combineOpts...)
	if err != nil {
		return nil, fmt.Errorf("musig: combining signatures: %w", err)
	}

	return finalSig, nil
}

// VerifyPartial checks that partial was produced correctly by the holder
// of pubNonce/signerKey over msg32, against the aggregate key set pks and
// aggregate nonce aggNonce.
func VerifyPartial(
	partial *PartialSig, pubNonce, aggNonce PubNonce, pks []*btcec.PublicKey,
	signerKey *btcec.PublicKey, msg32 [32]byte, tapTweak []byte,
) error {
	signOpts, _ := tweakOpts(tapTweak)

	err := musig2.VerifyPartialSig(
		partial, pubNonce, aggNonce, pks, signerKey, msg32, signOpts...,
	)
	if err != nil {
		return fmt.Errorf("musig: invalid partial signature: %w", err)
	}

	return nil
}

// DeterministicPartialSign is the ASP-side signing path: it never persists
// a secret nonce across a restart. Instead the nonce is re-derived
// deterministically from (secret_key, msg, other_pub_nonces) every time
// it's needed, so a crash between generating the nonce and using it can
// never leak the key (the same nonce is simply regenerated on retry).
// Returns the ASP's own public nonce (so the caller can aggregate it with
// the counterparty's) and its partial signature.
func DeterministicPartialSign(
	privKey *btcec.PrivateKey, otherPks []*btcec.PublicKey,
	otherPubNonces []PubNonce, msg32 [32]byte, tapTweak []byte,
) (PubNonce, *PartialSig, error) {

	pk := privKey.PubKey()
	rand := deterministicRand(privKey, msg32, otherPubNonces)

	nonces, err := musig2.GenNonces(
		musig2.WithPublicKey(pk), musig2.WithCustomRand(rand),
	)
	if err != nil {
		return PubNonce{}, nil, fmt.Errorf("musig: deterministic nonce gen: %w", err)
	}

	allPks := append(append([]*btcec.PublicKey{}, otherPks...), pk)
	allNonces := append(append([]PubNonce{}, otherPubNonces...), nonces.PubNonce)

	aggNonce, err := NonceAgg(allNonces)
	if err != nil {
		return PubNonce{}, nil, err
	}

	signOpts, _ := tweakOpts(tapTweak)
	sig, err := musig2.Sign(
		nonces.SecNonce, privKey, aggNonce, allPks, msg32, signOpts...,
	)
	if err != nil {
		return PubNonce{}, nil, fmt.Errorf("musig: deterministic partial sign: %w", err)
	}

	return nonces.PubNonce, sig, nil
}

// DeterministicNonce derives a nonce pair bound only to (secret_key, msg),
// with no counterparty nonce folded in. Unlike DeterministicPartialSign,
// the same call can be repeated once the real aggregate nonce is known
// (after a counterparty publishes theirs) and reproduces the identical
// pair, so the pubkey half can be committed to early and the signature
// itself produced later against the true aggregate.
func DeterministicNonce(privKey *btcec.PrivateKey, msg32 [32]byte) (*NoncePair, error) {
	rand := deterministicRand(privKey, msg32, nil)
	nonces, err := musig2.GenNonces(
		musig2.WithPublicKey(privKey.PubKey()), musig2.WithCustomRand(rand),
	)
	if err != nil {
		return nil, fmt.Errorf("musig: deterministic nonce gen: %w", err)
	}
	return &NoncePair{Pub: nonces.PubNonce, Sec: nonces.SecNonce}, nil
}

// PartialSignWithNonce signs with an already-derived secret nonce against
// the caller-supplied aggregate nonce, the counterpart to
// DeterministicNonce for a signer that committed to its nonce before the
// rest of the nonce set existed.
func PartialSignWithNonce(
	secNonce SecNonce, privKey *btcec.PrivateKey, aggNonce PubNonce,
	pks []*btcec.PublicKey, msg32 [32]byte, tapTweak []byte,
) (*PartialSig, error) {
	signOpts, _ := tweakOpts(tapTweak)
	sig, err := musig2.Sign(secNonce, privKey, aggNonce, pks, msg32, signOpts...)
	if err != nil {
		return nil, fmt.Errorf("musig: partial signing: %w", err)
	}
	return sig, nil
}

// deterministicRand derives a stream of pseudorandom bytes bound to the
// signing secret, the message and the counterparty's nonces, so that
// repeating the same signing request after a crash reproduces the exact
// same nonce instead of requiring durable nonce storage.
func deterministicRand(privKey *btcec.PrivateKey, msg32 [32]byte, otherNonces []PubNonce) io.Reader {
	mac := hmac.New(sha256.New, privKey.Serialize())
	mac.Write(msg32[:])
	for _, n := range otherNonces {
		mac.Write(n[:])
	}

	return &hmacReader{seed: mac.Sum(nil)}
}

// hmacReader is a deterministic io.Reader that expands a fixed seed via
// repeated HMAC, used only to feed musig2.WithCustomRand.
type hmacReader struct {
	seed    []byte
	counter uint64
}

func (r *hmacReader) Read(p []byte) (int, error) {
	mac := hmac.New(sha256.New, r.seed)
	var ctr [8]byte
	for i := range ctr {
		ctr[i] = byte(r.counter >> (8 * i))
	}
	r.counter++
	mac.Write(ctr[:])
	block := mac.Sum(nil)

	n := copy(p, block)
	return n, nil
}

func tweakOpts(tapTweak []byte) ([]musig2.SignOption, []musig2.CombineOption) {
	sortOpt := musig2.WithSortedKeys()
	if tapTweak == nil {
		return []musig2.SignOption{sortOpt}, nil
	}

	tweak := musig2.KeyTweakDesc{
		Tweak:   sha256.Sum256(tapTweak),
		IsXOnly: true,
	}

	return []musig2.SignOption{sortOpt, musig2.WithTweaks(tweak)},
		[]musig2.CombineOption{musig2.WithTweakedCombine(
			[32]byte{}, nil, []musig2.KeyTweakDesc{tweak}, true,
		)}
}
