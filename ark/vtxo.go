package ark

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Vtxo is the tagged union of every VTXO variant. There is no dynamic
// dispatch beyond this interface: every operation on a VTXO is a total
// function implemented once per constructor, matched here rather than
// modeled through per-variant subclassing.
type Vtxo interface {
	// Id is the canonical VtxoId of this VTXO's leaf exit output.
	Id() VtxoId

	// VtxoSpec returns the common spec fields.
	VtxoSpec() *VtxoSpec

	// ExpiryHeight is the minimum expiry over this VTXO and all of its
	// ancestors (OOR/Bolt11Change inherit the tightest input bound).
	ExpiryHeight() uint32

	// Amount is the VTXO's value in satoshis.
	Amount() int64

	// ExitChain returns every ancestor transaction that must be
	// broadcast, in dependency order, to unilaterally settle this VTXO
	// on-chain: for Board the single exit tx; for Round the branch from
	// root to leaf; for Arkoor/Bolt11Change the OOR/HTLC tx plus,
	// recursively, each input's own exit chain.
	ExitChain() []*wire.MsgTx

	isVtxo()
}

// TreeStep is one hop of a Round VTXO's path from the tree root down to
// its leaf: the sibling subtree's root hash (needed to recompute parent
// sighashes independently) and the node transaction itself.
type TreeStep struct {
	SiblingHash chainhash.Hash
	NodeTx      *wire.MsgTx
}

// BoardVtxo is created when the user funds a P2TR output on-chain and
// cosigns a presigned exit transaction with the ASP.
type BoardVtxo struct {
	Spec    VtxoSpec
	BoardTx *wire.MsgTx
	Vout    uint32
	ExitTx  *wire.MsgTx
}

func (v *BoardVtxo) isVtxo() {}

func (v *BoardVtxo) Id() VtxoId {
	return NewVtxoId(wire.OutPoint{Hash: v.ExitTx.TxHash(), Index: 0})
}

func (v *BoardVtxo) VtxoSpec() *VtxoSpec   { return &v.Spec }
func (v *BoardVtxo) ExpiryHeight() uint32  { return v.Spec.ExpiryHeight }
func (v *BoardVtxo) Amount() int64         { return v.Spec.Amount }
func (v *BoardVtxo) ExitChain() []*wire.MsgTx {
	return []*wire.MsgTx{v.ExitTx}
}

// RoundVtxo is a leaf of a VTXO tree produced by a round.
type RoundVtxo struct {
	Spec      VtxoSpec
	RoundTxid chainhash.Hash
	Vout      uint32
	Path      []TreeStep
}

func (v *RoundVtxo) isVtxo() {}

func (v *RoundVtxo) Id() VtxoId {
	if len(v.Path) == 0 {
		return NewVtxoId(wire.OutPoint{Hash: v.RoundTxid, Index: v.Vout})
	}
	leafTx := v.Path[len(v.Path)-1].NodeTx
	return NewVtxoId(wire.OutPoint{Hash: leafTx.TxHash(), Index: 0})
}

func (v *RoundVtxo) VtxoSpec() *VtxoSpec  { return &v.Spec }
func (v *RoundVtxo) ExpiryHeight() uint32 { return v.Spec.ExpiryHeight }
func (v *RoundVtxo) Amount() int64        { return v.Spec.Amount }

func (v *RoundVtxo) ExitChain() []*wire.MsgTx {
	chain := make([]*wire.MsgTx, len(v.Path))
	for i, step := range v.Path {
		chain[i] = step.NodeTx
	}
	return chain
}

// ArkoorVtxo is an off-round ("Arkoor") transfer, carrying the full
// signed OOR transaction and its ancestor input VTXOs.
type ArkoorVtxo struct {
	Spec      VtxoSpec
	Ancestors []Vtxo
	OorTx     *wire.MsgTx
	Vout      uint32
}

func (v *ArkoorVtxo) isVtxo() {}

func (v *ArkoorVtxo) Id() VtxoId {
	return NewVtxoId(wire.OutPoint{Hash: v.OorTx.TxHash(), Index: v.Vout})
}

func (v *ArkoorVtxo) VtxoSpec() *VtxoSpec { return &v.Spec }

func (v *ArkoorVtxo) ExpiryHeight() uint32 {
	return minAncestorExpiry(v.Spec.ExpiryHeight, v.Ancestors)
}

func (v *ArkoorVtxo) Amount() int64 { return v.Spec.Amount }

func (v *ArkoorVtxo) ExitChain() []*wire.MsgTx {
	chain := make([]*wire.MsgTx, 0, len(v.Ancestors)+1)
	for _, a := range v.Ancestors {
		chain = append(chain, a.ExitChain()...)
	}
	return append(chain, v.OorTx)
}

// Bolt11ChangeVtxo is the change output of a Lightning payment's HTLC
// transaction.
type Bolt11ChangeVtxo struct {
	Spec      VtxoSpec
	Ancestors []Vtxo
	HtlcTx    *wire.MsgTx
	Vout      uint32
}

func (v *Bolt11ChangeVtxo) isVtxo() {}

func (v *Bolt11ChangeVtxo) Id() VtxoId {
	return NewVtxoId(wire.OutPoint{Hash: v.HtlcTx.TxHash(), Index: v.Vout})
}

func (v *Bolt11ChangeVtxo) VtxoSpec() *VtxoSpec { return &v.Spec }

func (v *Bolt11ChangeVtxo) ExpiryHeight() uint32 {
	return minAncestorExpiry(v.Spec.ExpiryHeight, v.Ancestors)
}

func (v *Bolt11ChangeVtxo) Amount() int64 { return v.Spec.Amount }

func (v *Bolt11ChangeVtxo) ExitChain() []*wire.MsgTx {
	chain := make([]*wire.MsgTx, 0, len(v.Ancestors)+1)
	for _, a := range v.Ancestors {
		chain = append(chain, a.ExitChain()...)
	}
	return append(chain, v.HtlcTx)
}

func minAncestorExpiry(own uint32, ancestors []Vtxo) uint32 {
	min := own
	for _, a := range ancestors {
		if e := a.ExpiryHeight(); e < min {
			min = e
		}
	}
	return min
}
