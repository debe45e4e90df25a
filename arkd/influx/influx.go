// Package influx implements the VTXO "in flux" guard: a transient
// reservation of VTXO ids for the duration of an in-progress OOR, HTLC,
// or round-submission operation, so two concurrent requests can never
// both proceed against the same input.
package influx

import (
	"fmt"
	"sync"

	"github.com/arklabs/ark/ark"
)

// Guard is a single-process mutex-protected set of VtxoId. Every VTXO
// participating in OOR, HTLC start, or round submission must be in flux
// from the moment it is admitted until the operation commits or aborts —
// never both at once across concurrent callers.
type Guard struct {
	mu sync.Mutex
	set map[ark.VtxoId]struct{}
}

// New returns an empty guard.
func New() *Guard {
	return &Guard{set: make(map[ark.VtxoId]struct{})}
}

// CheckPut atomically reserves every id in ids: if any id is already in
// flux, every insertion this call made is rolled back (pre-existing
// members are left untouched) and the offending id is returned in the
// error. On success the caller owns all of ids until it calls Release.
func (g *Guard) CheckPut(ids []ark.VtxoId) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	inserted := make([]ark.VtxoId, 0, len(ids))
	for _, id := range ids {
		if _, exists := g.set[id]; exists {
			for _, done := range inserted {
				delete(g.set, done)
			}
			return fmt.Errorf("%w: %s", ark.ErrVtxoInFlux, id)
		}
		g.set[id] = struct{}{}
		inserted = append(inserted, id)
	}

	return nil
}

// Release removes every id in ids from the in-flux set. Safe to call
// with ids that are already absent (e.g. on a partially-completed abort
// path); it is the caller's responsibility to call this on every exit
// path of an operation that previously succeeded at CheckPut.
func (g *Guard) Release(ids []ark.VtxoId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		delete(g.set, id)
	}
}

// Len reports how many ids are currently in flux, for metrics/tests.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.set)
}
