package db_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/arkclient/db"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Open(&db.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func randPubkey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func testBoardVtxo(t *testing.T) ark.Vtxo {
	t.Helper()
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(50_000, []byte{0x51}))

	spec := ark.VtxoSpec{
		UserPubkey:   randPubkey(t),
		AspPubkey:    randPubkey(t),
		ExpiryHeight: 800_000,
		ExitDelta:    144,
		Amount:       50_000,
	}
	return &ark.BoardVtxo{Spec: spec, BoardTx: tx, Vout: 0, ExitTx: tx}
}

func TestWalletPropertiesRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, err := s.WalletProperties()
	require.Error(t, err)

	var fp [4]byte
	fp[0] = 0xAB
	require.NoError(t, s.InitWalletProperties(&chaincfg.MainNetParams, fp))

	props, err := s.WalletProperties()
	require.NoError(t, err)
	require.Equal(t, fp, props.SeedFingerprint)
	require.NoError(t, props.CheckFingerprint(fp))
	require.Error(t, props.CheckFingerprint([4]byte{0, 0, 0, 0}))
}

func TestVtxoReserveReleaseSpendCycle(t *testing.T) {
	s := openTestStore(t)
	v := testBoardVtxo(t)

	require.NoError(t, s.PutVtxo(v, 0))

	spendable, err := s.SpendableVtxos()
	require.NoError(t, err)
	require.Len(t, spendable, 1)

	ok, err := s.TryReserve(v.Id())
	require.NoError(t, err)
	require.True(t, ok)

	// second reservation attempt must fail: already in flight
	ok, err = s.TryReserve(v.Id())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Release(v.Id()))

	ok, err = s.TryReserve(v.Id())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.MarkSpent(v.Id()))

	spendable, err = s.SpendableVtxos()
	require.NoError(t, err)
	require.Empty(t, spendable)
}

func TestMovementWithRecipients(t *testing.T) {
	s := openTestStore(t)

	id, err := s.PutMovement(&db.Movement{
		Kind:   db.MovementOorSend,
		Amount: -1_350,
		Fee:    350,
		Recipients: []db.Recipient{
			{Pubkey: randPubkey(t), Amount: 1_000},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	movements, err := s.Movements(10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, int64(350), movements[0].Fee)
	require.Len(t, movements[0].Recipients, 1)
}

func TestExitPlanLifecycle(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ExitPlan()
	require.Error(t, err)

	require.NoError(t, s.PutExitPlan([]byte("plan-v1")))
	data, err := s.ExitPlan()
	require.NoError(t, err)
	require.Equal(t, []byte("plan-v1"), data)

	require.NoError(t, s.ClearExitPlan())
	_, err = s.ExitPlan()
	require.Error(t, err)
}

func TestLastSyncedHeight(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.LastSyncedHeight()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetLastSyncedHeight(123))
	h, ok, err := s.LastSyncedHeight()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(123), h)
}
