package ark

import "errors"

// Sentinel error kinds shared across the ASP and client protocol. Callers
// wrap these with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
var (
	// ErrBadArg marks malformed client input: wrong nonce count, amount
	// below dust, invalid invoice network. Surfaced verbatim, not retried.
	ErrBadArg = errors.New("bad argument")

	// ErrVtxoInFlux marks a requested input already reserved by a
	// concurrent operation. Caller may retry after backoff.
	ErrVtxoInFlux = errors.New("vtxo in flux")

	// ErrAlreadySpent marks an OOR/HTLC/round attempt over an input
	// already marked spent. Non-retriable.
	ErrAlreadySpent = errors.New("vtxo already spent")

	// ErrRoundAbandoned marks a round dropped before Finished; the
	// client should resubmit into the next round.
	ErrRoundAbandoned = errors.New("round abandoned")

	// ErrNetworkMismatch and ErrProtocolVersionMismatch are fatal at
	// handshake time.
	ErrNetworkMismatch         = errors.New("network mismatch")
	ErrProtocolVersionMismatch = errors.New("protocol version mismatch")

	// ErrInvalidSignature marks a counterparty signature that failed
	// verification. Fatal for the operation; the local side must not
	// commit any state for it.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInternal wraps a DB or chain-backend failure. Round machine:
	// abandon current attempt. RPC layer: return Internal to caller.
	ErrInternal = errors.New("internal error")
)
