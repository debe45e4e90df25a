package db

import (
	"database/sql"
	"fmt"

	"github.com/arklabs/ark/ark"
)

// VtxoState is a client-owned VTXO's local lifecycle state. Distinct
// from arkd/db's VtxoStatus: "in flight" here means the client has
// tentatively committed this VTXO to an in-progress round or OOR send
// and must not offer it again until that attempt resolves.
type VtxoState int

const (
	VtxoSpendable VtxoState = iota
	VtxoInFlight
	VtxoSpent
)

// PutVtxo records a newly owned VTXO as spendable.
func (s *Store) PutVtxo(v ark.Vtxo, derivationIndex uint32) error {
	data, err := ark.EncodeVtxo(v)
	if err != nil {
		return fmt.Errorf("arkclient/db: encoding vtxo: %w", err)
	}

	id := v.Id().Bytes()
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO vtxo (vtxo_id, data, amount, expiry_height, derivation_index)
			 VALUES (?, ?, ?, ?, ?)`,
			id[:], data, v.Amount(), v.ExpiryHeight(), derivationIndex,
		); err != nil {
			return fmt.Errorf("arkclient/db: inserting vtxo %s: %w", v.Id(), err)
		}
		if _, err := tx.Exec(
			`INSERT INTO vtxo_state (vtxo_id, state, version) VALUES (?, ?, 0)`,
			id[:], VtxoSpendable,
		); err != nil {
			return fmt.Errorf("arkclient/db: inserting vtxo state %s: %w", v.Id(), err)
		}
		return nil
	})
}

// SpendableVtxos returns every VTXO currently in the Spendable state,
// the candidate input set for a round or OOR send.
func (s *Store) SpendableVtxos() ([]ark.Vtxo, error) {
	rows, err := s.db.Query(
		`SELECT v.data FROM vtxo v JOIN vtxo_state vs ON v.vtxo_id = vs.vtxo_id WHERE vs.state = ?`,
		VtxoSpendable,
	)
	if err != nil {
		return nil, fmt.Errorf("arkclient/db: querying spendable vtxos: %w", err)
	}
	defer rows.Close()

	var out []ark.Vtxo
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		v, err := ark.DecodeVtxo(data)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// TryReserve compare-and-swaps a VTXO from Spendable to InFlight,
// returning false if another in-progress attempt already reserved it
// (or it doesn't exist / is already spent) — the local counterpart of
// the ASP's in-flux guard.
func (s *Store) TryReserve(id ark.VtxoId) (bool, error) {
	idBytes := id.Bytes()
	res, err := s.db.Exec(
		`UPDATE vtxo_state SET state = ?, version = version + 1
		 WHERE vtxo_id = ? AND state = ?`,
		VtxoInFlight, idBytes[:], VtxoSpendable,
	)
	if err != nil {
		return false, fmt.Errorf("arkclient/db: reserving vtxo %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release reverts a reserved VTXO back to Spendable — used when a round
// attempt aborts and the spec requires restoring inputs to the
// "un-reserved" state.
func (s *Store) Release(id ark.VtxoId) error {
	idBytes := id.Bytes()
	_, err := s.db.Exec(
		`UPDATE vtxo_state SET state = ?, version = version + 1
		 WHERE vtxo_id = ? AND state = ?`,
		VtxoSpendable, idBytes[:], VtxoInFlight,
	)
	if err != nil {
		return fmt.Errorf("arkclient/db: releasing vtxo %s: %w", id, err)
	}
	return nil
}

// MarkSpent commits a reserved VTXO as permanently spent once the
// consuming round tx or OOR send has been finalized.
func (s *Store) MarkSpent(id ark.VtxoId) error {
	idBytes := id.Bytes()
	res, err := s.db.Exec(
		`UPDATE vtxo_state SET state = ?, version = version + 1
		 WHERE vtxo_id = ? AND state = ?`,
		VtxoSpent, idBytes[:], VtxoInFlight,
	)
	if err != nil {
		return fmt.Errorf("arkclient/db: marking vtxo %s spent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("arkclient/db: vtxo %s not in flight: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("arkclient/db: beginning tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
