// Package round implements the ASP's round coordinator: a single
// goroutine state machine that batches VTXO requests into a round tree,
// collects cosignatures and forfeit signatures, and broadcasts the
// finalized round transaction.
package round

import (
	"fmt"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/arklabs/ark/ark/rounds"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger, as every other daemon
// subsystem does.
func UseLogger(l btclog.Logger) { log = l }

// Config fixes the timing budgets and protocol parameters a Coordinator
// runs with.
type Config struct {
	// RoundInterval is how long Idle waits before opening a new round.
	RoundInterval time.Duration

	// SubmitTime is the CollectingPayments window.
	SubmitTime time.Duration

	// SignTime budgets AwaitingVtxoSigs and AwaitingForfeitSigs, each.
	SignTime time.Duration

	// MaxAttempts bounds the retries within one RoundSeq before the
	// round is abandoned.
	MaxAttempts uint32

	// NbRoundNonces is the number of MuSig2 nonce pairs a client must
	// supply per requested vtxo output.
	NbRoundNonces int

	// MaxVtxoAmount caps a single requested vtxo output, zero meaning
	// unbounded. A supplemented guard against one round starving the
	// tree with a single oversized leaf.
	MaxVtxoAmount int64

	// ConnectorAmount is the value every connector-chain output carries.
	ConnectorAmount int64

	// ExitDelta is the relative timelock, in blocks, of the exit script
	// of every VTXO a round creates.
	ExitDelta uint16

	// RoundLifetime is added to the chain tip at Attempt time to fix
	// this round's output expiry height.
	RoundLifetime uint32
}

// DefaultConfig matches the timing the wire protocol documents as
// typical for a well-connected client population.
func DefaultConfig() *Config {
	return &Config{
		RoundInterval:   10 * time.Second,
		SubmitTime:      5 * time.Second,
		SignTime:        3 * time.Second,
		MaxAttempts:     3,
		NbRoundNonces:   1,
		ConnectorAmount: 1_000,
		ExitDelta:       144,
		RoundLifetime:   4_032, // ~4 weeks of blocks
	}
}

func (c *Config) validate() error {
	if c.SubmitTime <= 0 || c.SignTime <= 0 {
		return fmt.Errorf("arkd/round: submit and sign windows must be positive")
	}
	if c.NbRoundNonces <= 0 {
		return fmt.Errorf("arkd/round: nb_round_nonces must be positive")
	}
	if c.ConnectorAmount <= 0 {
		return fmt.Errorf("arkd/round: connector amount must be positive")
	}
	return nil
}

// state names the coordinator's position within a single round attempt.
// Idle sits outside any round; the rest mirror one attempt's lifecycle.
type state int

const (
	stateIdle state = iota
	stateCollectingPayments
	stateBuildingTree
	stateAwaitingVtxoSigs
	statePublishingRound
	stateAwaitingForfeitSigs
	stateFinalizing
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCollectingPayments:
		return "collecting_payments"
	case stateBuildingTree:
		return "building_tree"
	case stateAwaitingVtxoSigs:
		return "awaiting_vtxo_sigs"
	case statePublishingRound:
		return "publishing_round"
	case stateAwaitingForfeitSigs:
		return "awaiting_forfeit_sigs"
	case stateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// eventBus fans out rounds.Event to every live subscriber. A late
// subscriber only ever sees events from its own Subscribe call onward,
// matching the "joins at the next Start" rule; in-flight history is not
// replayed.
type eventBus struct {
	subs map[int]chan rounds.Event
	next int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan rounds.Event)}
}

func (b *eventBus) subscribe() (int, <-chan rounds.Event) {
	id := b.next
	b.next++
	ch := make(chan rounds.Event, 32)
	b.subs[id] = ch
	return id, ch
}

func (b *eventBus) unsubscribe(id int) {
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// deadlineTimer is a small wrapper so phase windows read the same way
// at every call site.
func deadlineTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

func (b *eventBus) publish(ev rounds.Event) {
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than block the round. It
			// will see a gap and can resync on the next Start.
		}
	}
}
