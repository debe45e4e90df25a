package influx_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/arkd/influx"
)

func id(b byte) ark.VtxoId {
	return ark.NewVtxoId(wire.OutPoint{Hash: chainhash.Hash{b}, Index: 0})
}

func TestCheckPutRollsBackOnlyThisCallsInsertions(t *testing.T) {
	g := influx.New()

	require.NoError(t, g.CheckPut([]ark.VtxoId{id(1), id(2)}))
	require.Equal(t, 2, g.Len())

	// id(2) is already a member from the prior call; this call should
	// roll back only id(3) (which it itself inserted), leaving id(1) and
	// id(2) untouched.
	err := g.CheckPut([]ark.VtxoId{id(3), id(2)})
	require.Error(t, err)
	require.True(t, errors.Is(err, ark.ErrVtxoInFlux))
	require.Equal(t, 2, g.Len())

	require.NoError(t, g.CheckPut([]ark.VtxoId{id(3)}))
	require.Equal(t, 3, g.Len())
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := influx.New()
	require.NoError(t, g.CheckPut([]ark.VtxoId{id(1)}))

	g.Release([]ark.VtxoId{id(1)})
	require.Equal(t, 0, g.Len())

	// Releasing again, or releasing an id never inserted, must not panic
	// or error.
	g.Release([]ark.VtxoId{id(1), id(99)})
	require.Equal(t, 0, g.Len())
}

func TestConcurrentDisjointSetsBothSucceed(t *testing.T) {
	g := influx.New()

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = g.CheckPut([]ark.VtxoId{id(1), id(2)})
	}()
	go func() {
		defer wg.Done()
		errs[1] = g.CheckPut([]ark.VtxoId{id(3), id(4)})
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 4, g.Len())
}

func TestConcurrentOverlappingSetsExactlyOneWins(t *testing.T) {
	g := influx.New()

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = g.CheckPut([]ark.VtxoId{id(5)})
	}()
	go func() {
		defer wg.Done()
		errs[1] = g.CheckPut([]ark.VtxoId{id(5)})
	}()
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			require.True(t, errors.Is(err, ark.ErrVtxoInFlux))
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, g.Len())
}
