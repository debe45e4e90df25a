package db

import (
	"database/sql"
	"fmt"
)

// PutExitPlan persists the single serialized in-progress exit plan,
// overwriting any prior one.
func (s *Store) PutExitPlan(data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO exit_plan (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		data, s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("arkclient/db: saving exit plan: %w", err)
	}
	return nil
}

// ExitPlan loads the persisted exit plan, or (nil, sql.ErrNoRows) if
// none is in progress.
func (s *Store) ExitPlan() ([]byte, error) {
	var data []byte
	row := s.db.QueryRow(`SELECT data FROM exit_plan WHERE id = 1`)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("arkclient/db: loading exit plan: %w", err)
	}
	return data, nil
}

// ClearExitPlan deletes the persisted exit plan once every output has
// been claimed.
func (s *Store) ClearExitPlan() error {
	_, err := s.db.Exec(`DELETE FROM exit_plan WHERE id = 1`)
	return err
}
