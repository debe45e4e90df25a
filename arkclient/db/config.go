package db

import (
	"database/sql"
	"fmt"
)

// ClientConfig is the client's persisted runtime configuration.
type ClientConfig struct {
	AspAddress       string
	ChainSource      string
	RefreshThreshold uint32
}

// PutConfig upserts the client's configuration.
func (s *Store) PutConfig(cfg *ClientConfig) error {
	_, err := s.db.Exec(
		`INSERT INTO config (id, asp_address, chain_source, refresh_threshold)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   asp_address = excluded.asp_address,
		   chain_source = excluded.chain_source,
		   refresh_threshold = excluded.refresh_threshold`,
		cfg.AspAddress, cfg.ChainSource, cfg.RefreshThreshold,
	)
	if err != nil {
		return fmt.Errorf("arkclient/db: saving config: %w", err)
	}
	return nil
}

// Config loads the client's configuration.
func (s *Store) Config() (*ClientConfig, error) {
	var cfg ClientConfig
	row := s.db.QueryRow(`SELECT asp_address, chain_source, refresh_threshold FROM config WHERE id = 1`)
	if err := row.Scan(&cfg.AspAddress, &cfg.ChainSource, &cfg.RefreshThreshold); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("arkclient/db: loading config: %w", err)
	}
	return &cfg, nil
}
