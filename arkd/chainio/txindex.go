package chainio

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DeeplyConfirmed is the confirmation depth at which a registered tx (and
// the VTXOs it produced) is considered settled enough for the sweeper and
// exit engine to act on.
const DeeplyConfirmed = 12

// TxIndex is a background task tracking the confirmation status of every
// round, onboard-exit, OOR and HTLC txid registered with it. The tracked
// set is held in memory only and is filled through Register; nothing in
// this package reloads it after a restart.
type TxIndex struct {
	bridge *ChainBridge
	cadence time.Duration

	mu     sync.RWMutex
	status map[chainhash.Hash]uint32 // txid -> confirmations

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewTxIndex creates a TxIndex polling at the given cadence.
func NewTxIndex(bridge *ChainBridge, cadence time.Duration) *TxIndex {
	if cadence == 0 {
		cadence = 10 * time.Second
	}
	return &TxIndex{
		bridge:  bridge,
		cadence: cadence,
		status:  make(map[chainhash.Hash]uint32),
		quit:    make(chan struct{}),
	}
}

// Register adds txid to the tracked set (idempotent).
func (idx *TxIndex) Register(txid chainhash.Hash) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.status[txid]; !ok {
		idx.status[txid] = 0
	}
}

// Confirmations returns the last-known confirmation count for a
// registered txid, or (0, false) if it isn't tracked.
func (idx *TxIndex) Confirmations(txid chainhash.Hash) (uint32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.status[txid]
	return c, ok
}

// IsDeeplyConfirmed reports whether txid has reached DeeplyConfirmed depth.
func (idx *TxIndex) IsDeeplyConfirmed(txid chainhash.Hash) bool {
	c, ok := idx.Confirmations(txid)
	return ok && c >= DeeplyConfirmed
}

// Start launches the background scan loop.
func (idx *TxIndex) Start(ctx context.Context) {
	idx.wg.Add(1)
	go idx.run(ctx)
}

// Stop signals the scan loop to exit and waits for it.
func (idx *TxIndex) Stop() {
	close(idx.quit)
	idx.wg.Wait()
}

func (idx *TxIndex) run(ctx context.Context) {
	defer idx.wg.Done()

	ticker := time.NewTicker(idx.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			idx.scanOnce(ctx)
		case <-idx.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (idx *TxIndex) scanOnce(ctx context.Context) {
	idx.mu.RLock()
	txids := make([]chainhash.Hash, 0, len(idx.status))
	for txid := range idx.status {
		txids = append(txids, txid)
	}
	idx.mu.RUnlock()

	for _, txid := range txids {
		confs, err := idx.bridge.Confirmations(ctx, txid)
		if err != nil {
			log.Debugf("tx index: confirmations for %s: %v", txid, err)
			continue
		}

		idx.mu.Lock()
		idx.status[txid] = confs
		idx.mu.Unlock()
	}
}
