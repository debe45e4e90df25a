package arkrpc

// VtxoId is the wire form of ark.VtxoId: the Hex() encoding, txid:vout
// reversed-hex || vout little-endian, used everywhere a vtxo is named on
// the wire.
type VtxoId = string

// PubKey is a 32-byte x-only Schnorr pubkey, hex-encoded.
type PubKey = string

// InputProof is one spent input of a SubmitPaymentRequest.
type InputProof struct {
	VtxoId       VtxoId `json:"vtxo_id"`
	OwnershipSig []byte `json:"ownership_sig"`
}

// VtxoRequest is one requested round output.
type VtxoRequest struct {
	UserPubkey   PubKey   `json:"user_pubkey"`
	CosignPubkey PubKey   `json:"cosign_pubkey"`
	Amount       int64    `json:"amount"`
	PubNonces    [][]byte `json:"pub_nonces"`
}

// OffboardRequest pays directly to an on-chain script.
type OffboardRequest struct {
	PkScript []byte `json:"pk_script"`
	Amount   int64  `json:"amount"`
}

// SubmitPaymentRequest is the CollectingPayments RPC request.
type SubmitPaymentRequest struct {
	Inputs           []InputProof      `json:"inputs"`
	VtxoRequests     []VtxoRequest     `json:"vtxo_requests"`
	OffboardRequests []OffboardRequest `json:"offboard_requests"`
}

// SubmitPaymentResponse acknowledges admission. Server.SubmitPayment
// returns it with RoundSeq and Attempt left at zero.
type SubmitPaymentResponse struct {
	RoundSeq uint64 `json:"round_seq"`
	Attempt  uint32 `json:"attempt"`
}

// PartialSig is the wire form of a musig.PartialSig: the 32 bytes of its
// scalar S only; no other field of musig2.PartialSignature is carried.
type PartialSig struct {
	Bytes []byte `json:"bytes"`
}

// VtxoSignaturesRequest is the AwaitingVtxoSigs RPC request: one
// participant's cosign partials for every node on their tree branch,
// root-first.
type VtxoSignaturesRequest struct {
	CosignPubkey PubKey       `json:"cosign_pubkey"`
	PartialSigs  []PartialSig `json:"partial_sigs"`
}

// ForfeitSignaturesRequest is the AwaitingForfeitSigs RPC request: one
// input's forfeit partial against its assigned connector.
type ForfeitSignaturesRequest struct {
	VtxoId      VtxoId       `json:"vtxo_id"`
	PubNonces   [][]byte     `json:"pub_nonces"`
	PartialSigs []PartialSig `json:"partial_sigs"`
}

// Ack is the empty success response shared by the sig-submission RPCs.
type Ack struct{}

// RoundEventsRequest opens the round event stream; it carries nothing,
// a subscriber only ever sees events from the moment it connects.
type RoundEventsRequest struct{}

// EventKind mirrors rounds.Kind on the wire.
type EventKind int32

const (
	EventKindStart EventKind = iota
	EventKindAttempt
	EventKindVtxoProposal
	EventKindRoundProposal
	EventKindFinished
)

// LeafRequest is the wire form of tree.LeafRequest, used inside
// VtxoProposal.
type LeafRequest struct {
	UserPubkey   PubKey `json:"user_pubkey"`
	CosignPubkey PubKey `json:"cosign_pubkey"`
	Amount       int64  `json:"amount"`
}

// RoundEvent is the tagged union delivered on the RoundEvents stream;
// exactly one of the Kind-named fields is populated.
type RoundEvent struct {
	Kind EventKind `json:"kind"`

	// Start
	RoundSeq        uint64 `json:"round_seq,omitempty"`
	OffboardFeerate uint64 `json:"offboard_feerate,omitempty"`

	// Attempt
	Attempt uint32 `json:"attempt,omitempty"`

	// VtxoProposal
	Leaves          []LeafRequest `json:"leaves,omitempty"`
	AspPubkey       PubKey        `json:"asp_pubkey,omitempty"`
	ExpiryHeight    uint32        `json:"expiry_height,omitempty"`
	ExitDelta       uint32        `json:"exit_delta,omitempty"`
	UnsignedRoundTx []byte        `json:"unsigned_round_tx,omitempty"`
	CosignAggNonces [][]byte      `json:"cosign_agg_nonces,omitempty"`
	ConnectorPubkey PubKey        `json:"connector_pubkey,omitempty"`

	// RoundProposal
	SignedTree    []byte              `json:"signed_tree,omitempty"`
	ForfeitNonces map[VtxoId][][]byte `json:"forfeit_nonces,omitempty"`

	// Finished
	SignedRoundTx []byte `json:"signed_round_tx,omitempty"`
}

// GetInfoRequest carries nothing; GetInfo is a static capabilities call.
type GetInfoRequest struct{}

// GetInfoResponse describes the ASP's fixed, round-independent
// parameters a client needs before it can ever submit a payment.
type GetInfoResponse struct {
	AspPubkey       PubKey `json:"asp_pubkey"`
	Network         string `json:"network"`
	RoundInterval   int64  `json:"round_interval_seconds"`
	NbRoundNonces   int32  `json:"nb_round_nonces"`
	ConnectorAmount int64  `json:"connector_amount"`
	ExitDelta       uint32 `json:"exit_delta"`
	RoundLifetime   uint32 `json:"round_lifetime_blocks"`
}

// PostOorMailboxRequest hands a freshly signed OOR vtxo to the
// recipient's mailbox.
type PostOorMailboxRequest struct {
	RecipientPubkey PubKey `json:"recipient_pubkey"`
	Vtxo            []byte `json:"vtxo"` // ark.Encode'd Vtxo
}

// EmptyOorMailboxRequest drains every vtxo left for pk.
type EmptyOorMailboxRequest struct {
	Pubkey PubKey `json:"pubkey"`
}

// EmptyOorMailboxResponse returns the drained vtxos, still ark.Encode'd.
type EmptyOorMailboxResponse struct {
	Vtxos [][]byte `json:"vtxos"`
}
