package db

import (
	"database/sql"
	"fmt"

	"github.com/arklabs/ark/ark"
)

// VtxoStatus is a VTXO's lifecycle state, per spec: Active, or Spent by
// one of the three consuming protocols.
type VtxoStatus int

const (
	VtxoActive VtxoStatus = iota
	VtxoSpentByRound
	VtxoSpentByOor
	VtxoSpentByLn
)

// VtxoRow is a persisted VTXO and its lifecycle status.
type VtxoRow struct {
	Id           ark.VtxoId
	Vtxo         ark.Vtxo
	Status       VtxoStatus
	SpentBy      *ark.VtxoId
}

// PutVtxo inserts a newly minted VTXO in Active status.
func (s *Store) PutVtxo(v ark.Vtxo) error {
	data, err := ark.EncodeVtxo(v)
	if err != nil {
		return fmt.Errorf("arkd/db: encoding vtxo: %w", err)
	}

	id := v.Id().Bytes()
	now := s.clock.Now().Unix()
	_, err = s.db.Exec(
		`INSERT INTO vtxos (vtxo_id, data, amount, expiry_height, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id[:], data, v.Amount(), v.ExpiryHeight(), VtxoActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("arkd/db: inserting vtxo %s: %w", v.Id(), err)
	}
	return nil
}

// VtxoByID loads a persisted VTXO and its current status.
func (s *Store) VtxoByID(id ark.VtxoId) (*VtxoRow, error) {
	idBytes := id.Bytes()

	var data []byte
	var status int
	var spentBy []byte
	row := s.db.QueryRow(
		`SELECT data, status, spent_by FROM vtxos WHERE vtxo_id = ?`, idBytes[:],
	)
	if err := row.Scan(&data, &status, &spentBy); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("arkd/db: vtxo %s: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("arkd/db: loading vtxo %s: %w", id, err)
	}

	v, err := ark.DecodeVtxo(data)
	if err != nil {
		return nil, fmt.Errorf("arkd/db: decoding vtxo %s: %w", id, err)
	}

	out := &VtxoRow{Id: id, Vtxo: v, Status: VtxoStatus(status)}
	if spentBy != nil {
		sb, err := ark.VtxoIdFromBytes(spentBy)
		if err != nil {
			return nil, err
		}
		out.SpentBy = &sb
	}
	return out, nil
}

// MarkSpent transitions a VTXO's status from Active to Spent, the one
// allowed state transition in the lifecycle. Returns an error wrapping
// sql.ErrNoRows both when the VTXO was already spent and when it does not
// exist; the two cases are not told apart.
func (s *Store) MarkSpent(id ark.VtxoId, by ark.VtxoId, status VtxoStatus) error {
	idBytes, byBytes := id.Bytes(), by.Bytes()
	now := s.clock.Now().Unix()

	res, err := s.db.Exec(
		`UPDATE vtxos SET status = ?, spent_by = ?, updated_at = ? WHERE vtxo_id = ? AND status = ?`,
		status, byBytes[:], now, idBytes[:], VtxoActive,
	)
	if err != nil {
		return fmt.Errorf("arkd/db: marking vtxo %s spent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("arkd/db: vtxo %s not active: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ExpiringVtxos returns every Active VTXO, of any variant, with
// expiry_height below tip, the sweeper's input set.
func (s *Store) ExpiringVtxos(tip uint32) ([]ark.VtxoId, error) {
	rows, err := s.db.Query(
		`SELECT vtxo_id FROM vtxos WHERE status = ? AND expiry_height < ?`,
		VtxoActive, tip,
	)
	if err != nil {
		return nil, fmt.Errorf("arkd/db: querying expiring vtxos: %w", err)
	}
	defer rows.Close()

	var out []ark.VtxoId
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		id, err := ark.VtxoIdFromBytes(b)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
