package db

import (
	"database/sql"
	"fmt"
)

// LastSyncedHeight returns the last chain height the client has backfilled
// round data up to, or (0, false) if it has never synced.
func (s *Store) LastSyncedHeight() (uint32, bool, error) {
	var h uint32
	row := s.db.QueryRow(`SELECT last_height FROM ark_sync WHERE id = 1`)
	if err := row.Scan(&h); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("arkclient/db: loading sync height: %w", err)
	}
	return h, true, nil
}

// SetLastSyncedHeight records the backfill progress height.
func (s *Store) SetLastSyncedHeight(h uint32) error {
	_, err := s.db.Exec(
		`INSERT INTO ark_sync (id, last_height) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET last_height = excluded.last_height`,
		h,
	)
	if err != nil {
		return fmt.Errorf("arkclient/db: saving sync height: %w", err)
	}
	return nil
}
