package oor

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/lightninglabs/lightning-node-connect/hashmailrpc"

	"github.com/arklabs/ark/ark"
)

// Mailbox drops recipient VTXOs for asynchronous pickup: after an OOR
// send, the sender posts the recipient's new VTXO to a mailbox addressed
// by the recipient's pubkey; the recipient drains it on their own
// schedule. This is modeled directly on hashmailrpc's encrypted
// asynchronous mailbox primitive (NewMailBox/SendStream/RecvStream),
// which is exactly this shape upstream.
type Mailbox struct {
	client hashmailrpc.HashMailClient
}

// NewMailbox wraps an existing hashmail client connection.
func NewMailbox(client hashmailrpc.HashMailClient) *Mailbox {
	return &Mailbox{client: client}
}

// streamID derives a deterministic 64-byte mailbox stream id from a
// recipient's x-only pubkey, so both sender and recipient address the
// same box without any prior coordination.
func streamID(recipient *btcec.PublicKey) [64]byte {
	digest := sha256.Sum256(schnorr.SerializePubKey(recipient))
	var id [64]byte
	copy(id[:32], digest[:])
	copy(id[32:], digest[:])
	return id
}

// Post drops vtxo into recipient's mailbox (PostOorMailbox).
func (m *Mailbox) Post(ctx context.Context, recipient *btcec.PublicKey, vtxo ark.Vtxo) error {
	encoded, err := ark.EncodeVtxo(vtxo)
	if err != nil {
		return fmt.Errorf("ark/oor: encoding mailbox vtxo: %w", err)
	}

	sid := streamID(recipient)
	desc := &hashmailrpc.CipherBoxDesc{StreamId: sid[:]}

	if _, err := m.client.NewMailBox(ctx, desc); err != nil {
		// The box may already exist from a prior post to the same
		// recipient; that's not an error for us.
		_ = err
	}

	stream, err := m.client.SendStream(ctx)
	if err != nil {
		return fmt.Errorf("ark/oor: opening mailbox send stream: %w", err)
	}
	defer stream.CloseSend()

	err = stream.Send(&hashmailrpc.CipherBox{
		Desc: desc,
		Msg:  encoded,
	})
	if err != nil {
		return fmt.Errorf("ark/oor: posting to mailbox: %w", err)
	}

	return nil
}

// Empty drains every VTXO currently waiting in pk's mailbox
// (EmptyOorMailbox), decoding each and deleting the box once drained.
func (m *Mailbox) Empty(ctx context.Context, pk *btcec.PublicKey) ([]ark.Vtxo, error) {
	sid := streamID(pk)
	desc := &hashmailrpc.CipherBoxDesc{StreamId: sid[:]}

	stream, err := m.client.RecvStream(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("ark/oor: opening mailbox recv stream: %w", err)
	}

	var out []ark.Vtxo
	for {
		box, err := stream.Recv()
		if err != nil {
			// Stream EOF/cancellation marks the mailbox drained.
			break
		}

		vtxo, err := ark.DecodeVtxo(box.Msg)
		if err != nil {
			return nil, fmt.Errorf("ark/oor: decoding mailbox entry: %w", err)
		}
		out = append(out, vtxo)
	}

	if _, err := m.client.DelMailBox(ctx, desc); err != nil {
		_ = err // best-effort cleanup; a future Empty() will retry
	}

	return out, nil
}
