package arkrpc

import (
	"context"
	"fmt"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"google.golang.org/grpc"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/oor"
	"github.com/arklabs/ark/arkd/keyring"
	"github.com/arklabs/ark/arkd/round"
)

// Server implements the ArkService RPCs over a *round.Coordinator, an
// OOR mailbox and the ASP's static parameters.
type Server struct {
	coord   *round.Coordinator
	mailbox *oor.Mailbox
	keyring *keyring.KeyRing
	cfg     *round.Config
	network string
}

// NewServer builds a Server.
func NewServer(coord *round.Coordinator, mailbox *oor.Mailbox, kr *keyring.KeyRing, cfg *round.Config, network string) *Server {
	return &Server{coord: coord, mailbox: mailbox, keyring: kr, cfg: cfg, network: network}
}

// GetInfo returns the ASP's fixed round-independent parameters.
func (s *Server) GetInfo(ctx context.Context, _ *GetInfoRequest) (*GetInfoResponse, error) {
	return &GetInfoResponse{
		AspPubkey:       pubKeyToWire(s.keyring.Identity()),
		Network:         s.network,
		RoundInterval:   int64(s.cfg.RoundInterval.Seconds()),
		NbRoundNonces:   int32(s.cfg.NbRoundNonces),
		ConnectorAmount: s.cfg.ConnectorAmount,
		ExitDelta:       uint32(s.cfg.ExitDelta),
		RoundLifetime:   s.cfg.RoundLifetime,
	}, nil
}

// SubmitPayment admits one CollectingPayments request.
func (s *Server) SubmitPayment(ctx context.Context, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	p, err := ToSubmitPayment(req)
	if err != nil {
		return nil, err
	}
	if err := s.coord.SubmitPayment(ctx, p); err != nil {
		return nil, err
	}
	return &SubmitPaymentResponse{}, nil
}

// SubmitVtxoSignatures admits one AwaitingVtxoSigs request.
func (s *Server) SubmitVtxoSignatures(ctx context.Context, req *VtxoSignaturesRequest) (*Ack, error) {
	sigs, err := ToVtxoSignatures(req)
	if err != nil {
		return nil, err
	}
	if err := s.coord.VtxoSignatures(ctx, sigs); err != nil {
		return nil, err
	}
	return &Ack{}, nil
}

// SubmitForfeitSignatures admits one AwaitingForfeitSigs request.
func (s *Server) SubmitForfeitSignatures(ctx context.Context, req *ForfeitSignaturesRequest) (*Ack, error) {
	sigs, err := ToForfeitSignatures(req)
	if err != nil {
		return nil, err
	}
	if err := s.coord.ForfeitSignatures(ctx, sigs); err != nil {
		return nil, err
	}
	return &Ack{}, nil
}

// roundEventsStream is the server-streaming half of RoundEvents, matching
// the shape protoc-gen-go-grpc would generate for a server-streaming RPC.
type roundEventsStream interface {
	Send(*RoundEvent) error
	grpc.ServerStream
}

// RoundEvents streams every round event from the moment the caller
// connects onward; it never returns until the stream's context is done.
func (s *Server) RoundEvents(_ *RoundEventsRequest, stream roundEventsStream) error {
	ch, cancel := s.coord.Subscribe()
	defer cancel()

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			wireEv, err := FromRoundEvent(ev)
			if err != nil {
				return err
			}
			if err := stream.Send(wireEv); err != nil {
				return err
			}
		}
	}
}

// PostOorMailbox drops a freshly signed OOR vtxo into its recipient's
// mailbox.
func (s *Server) PostOorMailbox(ctx context.Context, req *PostOorMailboxRequest) (*Ack, error) {
	pk, err := pubKeyFromWire(req.RecipientPubkey)
	if err != nil {
		return nil, err
	}
	vtxo, err := ark.DecodeVtxo(req.Vtxo)
	if err != nil {
		return nil, fmt.Errorf("arkrpc: decoding posted vtxo: %w", err)
	}
	if err := s.mailbox.Post(ctx, pk, vtxo); err != nil {
		return nil, err
	}
	return &Ack{}, nil
}

// EmptyOorMailbox drains every vtxo left for the caller's own key.
func (s *Server) EmptyOorMailbox(ctx context.Context, req *EmptyOorMailboxRequest) (*EmptyOorMailboxResponse, error) {
	pk, err := pubKeyFromWire(req.Pubkey)
	if err != nil {
		return nil, err
	}
	vtxos, err := s.mailbox.Empty(ctx, pk)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vtxos))
	for i, v := range vtxos {
		b, err := ark.EncodeVtxo(v)
		if err != nil {
			return nil, fmt.Errorf("arkrpc: encoding mailbox vtxo %d: %w", i, err)
		}
		out[i] = b
	}
	return &EmptyOorMailboxResponse{Vtxos: out}, nil
}

// NewGRPCServer builds a *grpc.Server using the JSON codec above and the
// per-RPC Prometheus metrics grpc-middleware provides, matching how the
// rest of the daemon instruments its own subsystems.
func NewGRPCServer(metrics *grpc_prometheus.ServerMetrics) *grpc.Server {
	return grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(
			grpc_middleware.ChainUnaryServer(metrics.UnaryServerInterceptor()),
		),
		grpc.ChainStreamInterceptor(
			grpc_middleware.ChainStreamServer(metrics.StreamServerInterceptor()),
		),
	)
}
