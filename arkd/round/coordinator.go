package round

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark/rounds"
	"github.com/arklabs/ark/arkd/chainio"
	"github.com/arklabs/ark/arkd/db"
	"github.com/arklabs/ark/arkd/influx"
	"github.com/arklabs/ark/arkd/keyring"
	"github.com/arklabs/ark/arkd/wallet"
)

// submission is a pending SubmitPayment call, parked on submitCh until
// the coordinator's CollectingPayments phase drains it.
type submission struct {
	payment *SubmitPayment
	resp    chan error
}

type vtxoSigSubmission struct {
	sigs *VtxoSignatures
	resp chan error
}

type forfeitSigSubmission struct {
	sigs *ForfeitSignatures
	resp chan error
}

// Coordinator runs exactly one round at a time, driving it through
// Idle -> CollectingPayments -> BuildingTree -> AwaitingVtxoSigs ->
// PublishingRound -> AwaitingForfeitSigs -> Finalizing and back to Idle.
type Coordinator struct {
	cfg     *Config
	network *chaincfg.Params

	store   *db.Store
	wallet  *wallet.OnchainWallet
	bridge  *chainio.ChainBridge
	keyring *keyring.KeyRing
	guard   *influx.Guard

	bus *eventBus

	submitCh      chan submission
	vtxoSigCh     chan vtxoSigSubmission
	forfeitSigCh  chan forfeitSigSubmission

	mu       sync.Mutex
	phase    state
	roundSeq uint64

	quit chan struct{}
	wg   sync.WaitGroup
}

// New builds a Coordinator. Run must be called to start its round loop.
func New(
	cfg *Config, network *chaincfg.Params, store *db.Store,
	w *wallet.OnchainWallet, bridge *chainio.ChainBridge, kr *keyring.KeyRing,
) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:          cfg,
		network:      network,
		store:        store,
		wallet:       w,
		bridge:       bridge,
		keyring:      kr,
		guard:        influx.New(),
		bus:          newEventBus(),
		submitCh:     make(chan submission),
		vtxoSigCh:    make(chan vtxoSigSubmission),
		forfeitSigCh: make(chan forfeitSigSubmission),
		phase:        stateIdle,
		quit:         make(chan struct{}),
	}, nil
}

// Subscribe joins the round event stream. The returned cancel func must
// be called once the subscriber is done.
func (c *Coordinator) Subscribe() (<-chan rounds.Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ch := c.bus.subscribe()
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.bus.unsubscribe(id)
	}
}

// Run drives the round loop until ctx is cancelled or Stop is called.
func (c *Coordinator) Run(ctx context.Context) {
	c.wg.Add(1)
	defer c.wg.Done()

	timer := time.NewTimer(c.cfg.RoundInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		case <-timer.C:
			c.runRound(ctx)
			timer.Reset(c.cfg.RoundInterval)
		}
	}
}

// Stop signals Run to exit and waits for it.
func (c *Coordinator) Stop() {
	close(c.quit)
	c.wg.Wait()
}

// SubmitPayment is the CollectingPayments entry point: validated and
// staged, then admitted or rejected once the phase drains its queue.
func (c *Coordinator) SubmitPayment(ctx context.Context, p *SubmitPayment) error {
	resp := make(chan error, 1)
	select {
	case c.submitCh <- submission{payment: p, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VtxoSignatures is the AwaitingVtxoSigs entry point.
func (c *Coordinator) VtxoSignatures(ctx context.Context, s *VtxoSignatures) error {
	resp := make(chan error, 1)
	select {
	case c.vtxoSigCh <- vtxoSigSubmission{sigs: s, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForfeitSignatures is the AwaitingForfeitSigs entry point.
func (c *Coordinator) ForfeitSignatures(ctx context.Context, f *ForfeitSignatures) error {
	resp := make(chan error, 1)
	select {
	case c.forfeitSigCh <- forfeitSigSubmission{sigs: f, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) setPhase(s state) {
	c.mu.Lock()
	c.phase = s
	c.mu.Unlock()
}

// runRound drives exactly one RoundSeq from Start through Finished, or
// abandons it early, always returning to Idle.
func (c *Coordinator) runRound(ctx context.Context) {
	c.mu.Lock()
	c.roundSeq++
	roundSeq := c.roundSeq
	c.mu.Unlock()

	feerate, err := c.bridge.EstimateFee(ctx, 6)
	if err != nil {
		log.Errorf("round %d: estimating offboard feerate: %v", roundSeq, err)
		return
	}

	c.bus.publish(rounds.Event{Kind: rounds.KindStart, Start: &rounds.Start{
		RoundSeq: roundSeq, OffboardFeerate: feerate,
	}})

	batch := newBatch()

	for attempt := uint32(0); attempt < c.cfg.MaxAttempts; attempt++ {
		c.bus.publish(rounds.Event{Kind: rounds.KindAttempt, Attempt: &rounds.Attempt{
			RoundSeq: roundSeq, Attempt: attempt,
		}})

		c.setPhase(stateCollectingPayments)
		c.collectPayments(ctx, roundSeq, attempt, batch)

		if len(batch.leaves) == 0 {
			log.Infof("round %d attempt %d: no participants, abandoning round", roundSeq, attempt)
			c.guard.Release(batch.allInputIds())
			return
		}

		c.setPhase(stateBuildingTree)
		att, err := c.buildAttempt(ctx, roundSeq, attempt, batch)
		if err != nil {
			log.Errorf("round %d attempt %d: building tree: %v", roundSeq, attempt, err)
			c.guard.Release(batch.allInputIds())
			return
		}

		c.bus.publish(rounds.Event{Kind: rounds.KindVtxoProposal, VtxoProposal: att.proposal})

		c.setPhase(stateAwaitingVtxoSigs)
		failed := c.collectVtxoSigs(ctx, att)
		if len(failed) > 0 {
			batch.exclude(failed)
			continue
		}

		c.setPhase(statePublishingRound)
		if err := c.buildRoundProposal(att); err != nil {
			log.Errorf("round %d attempt %d: aggregating tree sigs: %v", roundSeq, attempt, err)
			c.guard.Release(batch.allInputIds())
			return
		}
		c.bus.publish(rounds.Event{Kind: rounds.KindRoundProposal, RoundProposal: att.roundProposal})

		c.setPhase(stateAwaitingForfeitSigs)
		failed = c.collectForfeitSigs(ctx, att)
		if len(failed) > 0 {
			batch.exclude(failed)
			continue
		}

		c.setPhase(stateFinalizing)
		finished, err := c.finalize(ctx, att)
		if err != nil {
			log.Errorf("round %d attempt %d: finalizing: %v", roundSeq, attempt, err)
			c.guard.Release(batch.allInputIds())
			return
		}

		c.bus.publish(rounds.Event{Kind: rounds.KindFinished, Finished: finished})
		c.guard.Release(batch.allInputIds())
		c.setPhase(stateIdle)
		return
	}

	log.Warnf("round %d: exhausted %d attempts, abandoning", roundSeq, c.cfg.MaxAttempts)
	c.guard.Release(batch.allInputIds())
	c.setPhase(stateIdle)
}

// aspExitScript resolves the scriptPubKey the ASP's own wallet receives
// forfeited value into.
func (c *Coordinator) aspExitScript(ctx context.Context) ([]byte, error) {
	addr, err := c.wallet.NewAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("arkd/round: deriving asp payout address: %w", err)
	}
	return txscript.PayToAddrScript(addr)
}

// offboardOutputs returns one output per offboard request, appended after
// the tree and connector roots. It adds no fee anchor output.
func offboardOutputs(reqs []OffboardRequest) []*wire.TxOut {
	outs := make([]*wire.TxOut, len(reqs))
	for i, r := range reqs {
		outs[i] = wire.NewTxOut(r.Amount, r.PkScript)
	}
	return outs
}
