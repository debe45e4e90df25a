package arkrpc

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/musig"
	"github.com/arklabs/ark/ark/rounds"
	"github.com/arklabs/ark/ark/tree"
	"github.com/arklabs/ark/arkd/round"
)

func pubKeyToWire(pk *btcec.PublicKey) PubKey {
	return hex.EncodeToString(schnorr.SerializePubKey(pk))
}

func pubKeyFromWire(s PubKey) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("arkrpc: decoding pubkey: %w", err)
	}
	return schnorr.ParsePubKey(b)
}

func pubNonceToWire(n musig.PubNonce) []byte {
	b := make([]byte, len(n))
	copy(b, n[:])
	return b
}

func pubNonceFromWire(b []byte) (musig.PubNonce, error) {
	var n musig.PubNonce
	if len(b) != len(n) {
		return n, fmt.Errorf("arkrpc: pub nonce is %d bytes, want %d", len(b), len(n))
	}
	copy(n[:], b)
	return n, nil
}

func partialSigToWire(s *musig.PartialSig) PartialSig {
	b := s.S.Bytes()
	return PartialSig{Bytes: b[:]}
}

func partialSigFromWire(w PartialSig) (*musig.PartialSig, error) {
	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(w.Bytes); overflow {
		return nil, fmt.Errorf("arkrpc: partial signature scalar overflows the group order")
	}
	return &musig2.PartialSignature{S: &scalar}, nil
}

// ToSubmitPayment converts a wire SubmitPaymentRequest into the domain
// request the round coordinator accepts. Ownership signatures and vtxo
// ids are looked up/verified server-side by round.Coordinator itself.
func ToSubmitPayment(req *SubmitPaymentRequest) (*round.SubmitPayment, error) {
	out := &round.SubmitPayment{
		OffboardRequests: make([]round.OffboardRequest, len(req.OffboardRequests)),
	}

	for i, in := range req.Inputs {
		id, err := ark.VtxoIdFromHex(in.VtxoId)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: input %d: %w", i, err)
		}
		sig, err := schnorr.ParseSignature(in.OwnershipSig)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: input %d: parsing ownership sig: %w", i, err)
		}
		out.Inputs = append(out.Inputs, round.InputProof{VtxoId: id, OwnershipSig: sig})
	}

	for i, r := range req.VtxoRequests {
		userPk, err := pubKeyFromWire(r.UserPubkey)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: vtxo request %d: %w", i, err)
		}
		cosignPk, err := pubKeyFromWire(r.CosignPubkey)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: vtxo request %d: %w", i, err)
		}
		nonces := make([]musig.PubNonce, len(r.PubNonces))
		for j, n := range r.PubNonces {
			nonce, err := pubNonceFromWire(n)
			if err != nil {
				return nil, fmt.Errorf("arkrpc: vtxo request %d nonce %d: %w", i, j, err)
			}
			nonces[j] = nonce
		}
		out.VtxoRequests = append(out.VtxoRequests, round.VtxoRequest{
			UserPubkey: userPk, CosignPubkey: cosignPk, Amount: r.Amount, PubNonces: nonces,
		})
	}

	for i, o := range req.OffboardRequests {
		out.OffboardRequests[i] = round.OffboardRequest{PkScript: o.PkScript, Amount: o.Amount}
	}

	return out, nil
}

// ToVtxoSignatures converts a wire VtxoSignaturesRequest.
func ToVtxoSignatures(req *VtxoSignaturesRequest) (*round.VtxoSignatures, error) {
	cosignPk, err := pubKeyFromWire(req.CosignPubkey)
	if err != nil {
		return nil, fmt.Errorf("arkrpc: %w", err)
	}
	partials := make([]*musig.PartialSig, len(req.PartialSigs))
	for i, p := range req.PartialSigs {
		sig, err := partialSigFromWire(p)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: partial %d: %w", i, err)
		}
		partials[i] = sig
	}
	return &round.VtxoSignatures{CosignPubkey: cosignPk, PartialSigs: partials}, nil
}

// ToForfeitSignatures converts a wire ForfeitSignaturesRequest.
func ToForfeitSignatures(req *ForfeitSignaturesRequest) (*round.ForfeitSignatures, error) {
	id, err := ark.VtxoIdFromHex(req.VtxoId)
	if err != nil {
		return nil, fmt.Errorf("arkrpc: %w", err)
	}
	nonces := make([]musig.PubNonce, len(req.PubNonces))
	for i, n := range req.PubNonces {
		nonce, err := pubNonceFromWire(n)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: nonce %d: %w", i, err)
		}
		nonces[i] = nonce
	}
	partials := make([]*musig.PartialSig, len(req.PartialSigs))
	for i, p := range req.PartialSigs {
		sig, err := partialSigFromWire(p)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: partial %d: %w", i, err)
		}
		partials[i] = sig
	}
	return &round.ForfeitSignatures{VtxoId: id, PubNonces: nonces, PartialSigs: partials}, nil
}

// FromRoundEvent converts a domain rounds.Event into its wire form.
func FromRoundEvent(ev rounds.Event) (*RoundEvent, error) {
	switch ev.Kind {
	case rounds.KindStart:
		return &RoundEvent{
			Kind:            EventKindStart,
			RoundSeq:        ev.Start.RoundSeq,
			OffboardFeerate: uint64(ev.Start.OffboardFeerate),
		}, nil

	case rounds.KindAttempt:
		return &RoundEvent{
			Kind: EventKindAttempt, RoundSeq: ev.Attempt.RoundSeq, Attempt: ev.Attempt.Attempt,
		}, nil

	case rounds.KindVtxoProposal:
		vp := ev.VtxoProposal
		leaves := make([]LeafRequest, len(vp.VtxosSpec.Leaves))
		for i, l := range vp.VtxosSpec.Leaves {
			leaves[i] = LeafRequest{
				UserPubkey: pubKeyToWire(l.UserPubkey), CosignPubkey: pubKeyToWire(l.CosignPubkey),
				Amount: l.Amount,
			}
		}
		var txBuf []byte
		{
			var buf wireBuffer
			if err := vp.UnsignedRoundTx.Serialize(&buf); err != nil {
				return nil, fmt.Errorf("arkrpc: serializing unsigned round tx: %w", err)
			}
			txBuf = buf.Bytes()
		}
		nonces := make([][]byte, len(vp.CosignAggNonces))
		for i, n := range vp.CosignAggNonces {
			nonces[i] = pubNonceToWire(n)
		}
		return &RoundEvent{
			Kind: EventKindVtxoProposal, RoundSeq: vp.RoundSeq, Attempt: vp.Attempt,
			Leaves:          leaves,
			AspPubkey:       pubKeyToWire(vp.VtxosSpec.AspPubkey),
			ExpiryHeight:    vp.VtxosSpec.ExpiryHeight,
			ExitDelta:       uint32(vp.VtxosSpec.ExitDelta),
			UnsignedRoundTx: txBuf,
			CosignAggNonces: nonces,
			ConnectorPubkey: pubKeyToWire(vp.ConnectorPubkey),
		}, nil

	case rounds.KindRoundProposal:
		rp := ev.RoundProposal
		var treeBuf []byte
		{
			var buf wireBuffer
			if err := tree.EncodeSignedTree(&buf, rp.Signed); err != nil {
				return nil, fmt.Errorf("arkrpc: encoding signed tree: %w", err)
			}
			treeBuf = buf.Bytes()
		}
		forfeitNonces := make(map[VtxoId][][]byte, len(rp.ForfeitNonces))
		for id, nonces := range rp.ForfeitNonces {
			wireNonces := make([][]byte, len(nonces))
			for i, n := range nonces {
				wireNonces[i] = pubNonceToWire(n)
			}
			forfeitNonces[id] = wireNonces
		}
		return &RoundEvent{
			Kind: EventKindRoundProposal, RoundSeq: rp.RoundSeq, Attempt: rp.Attempt,
			SignedTree: treeBuf, ForfeitNonces: forfeitNonces,
		}, nil

	case rounds.KindFinished:
		var txBuf []byte
		{
			var buf wireBuffer
			if err := ev.Finished.SignedRoundTx.Serialize(&buf); err != nil {
				return nil, fmt.Errorf("arkrpc: serializing signed round tx: %w", err)
			}
			txBuf = buf.Bytes()
		}
		return &RoundEvent{
			Kind: EventKindFinished, RoundSeq: ev.Finished.RoundSeq, SignedRoundTx: txBuf,
		}, nil

	default:
		return nil, fmt.Errorf("arkrpc: unknown round event kind %d", ev.Kind)
	}
}

// wireBuffer is a tiny bytes.Buffer-shaped io.Writer, avoiding an extra
// import of bytes purely for its zero-value Buffer in the helpers above.
type wireBuffer struct {
	buf []byte
}

func (b *wireBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *wireBuffer) Bytes() []byte { return b.buf }
