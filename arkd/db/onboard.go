package db

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/wire"
)

// OnboardPending is a boarding VTXO staged for idempotent mempool-accept
// registration: recorded before the exit tx is ever broadcast, confirmed
// present in the mempool, then marked registered once the round
// coordinator has admitted it as a spendable input candidate.
type OnboardPending struct {
	TapTreeKey *btcec.PublicKey
	UserPubkey *btcec.PublicKey
	Amount     int64
	ExitTx     *wire.MsgTx
	Registered bool
}

// PutOnboardPending stages a new boarding VTXO. Re-staging the same
// tap-tree key is a no-op, which is what makes the registration flow
// idempotent across ASP restarts.
func (s *Store) PutOnboardPending(rec *OnboardPending) error {
	var txBuf bytes.Buffer
	if err := rec.ExitTx.Serialize(&txBuf); err != nil {
		return fmt.Errorf("arkd/db: serializing exit tx: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT INTO onboard_pending (tap_tree_key, user_pubkey, amount, exit_tx, registered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		schnorr.SerializePubKey(rec.TapTreeKey), schnorr.SerializePubKey(rec.UserPubkey),
		rec.Amount, txBuf.Bytes(), false, s.clock.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("arkd/db: staging onboard: %w", err)
	}
	return nil
}

// MarkOnboardRegistered flips a staged boarding VTXO to registered. Safe
// to call repeatedly.
func (s *Store) MarkOnboardRegistered(tapTreeKey *btcec.PublicKey) error {
	_, err := s.db.Exec(
		`UPDATE onboard_pending SET registered = TRUE WHERE tap_tree_key = ?`,
		schnorr.SerializePubKey(tapTreeKey),
	)
	if err != nil {
		return fmt.Errorf("arkd/db: marking onboard registered: %w", err)
	}
	return nil
}

// UnregisteredOnboards returns every staged boarding VTXO not yet marked
// registered, scanned at startup to resume any interrupted registration.
func (s *Store) UnregisteredOnboards() ([]*OnboardPending, error) {
	rows, err := s.db.Query(
		`SELECT tap_tree_key, user_pubkey, amount, exit_tx FROM onboard_pending WHERE registered = FALSE`,
	)
	if err != nil {
		return nil, fmt.Errorf("arkd/db: querying unregistered onboards: %w", err)
	}
	defer rows.Close()

	var out []*OnboardPending
	for rows.Next() {
		var tapTreeKeyB, userPkB, txB []byte
		var amount int64
		if err := rows.Scan(&tapTreeKeyB, &userPkB, &amount, &txB); err != nil {
			return nil, err
		}

		tapTreeKey, err := schnorr.ParsePubKey(tapTreeKeyB)
		if err != nil {
			return nil, err
		}
		userPk, err := schnorr.ParsePubKey(userPkB)
		if err != nil {
			return nil, err
		}
		tx := wire.NewMsgTx(2)
		if err := tx.Deserialize(bytes.NewReader(txB)); err != nil {
			return nil, err
		}

		out = append(out, &OnboardPending{
			TapTreeKey: tapTreeKey, UserPubkey: userPk, Amount: amount, ExitTx: tx,
		})
	}
	return out, rows.Err()
}
