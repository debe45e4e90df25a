package db

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// PutVtxoKey records the derivation index a public key was derived at,
// so a scanned VTXO can be mapped back to its signing key.
func (s *Store) PutVtxoKey(index uint32, pk *btcec.PublicKey) error {
	_, err := s.db.Exec(
		`INSERT INTO vtxo_key (derivation_index, public_key) VALUES (?, ?)
		 ON CONFLICT(derivation_index) DO NOTHING`,
		index, schnorr.SerializePubKey(pk),
	)
	if err != nil {
		return fmt.Errorf("arkclient/db: recording vtxo key %d: %w", index, err)
	}
	return nil
}

// DerivationIndexForKey resolves a public key back to its derivation
// index.
func (s *Store) DerivationIndexForKey(pk *btcec.PublicKey) (uint32, error) {
	var index uint32
	row := s.db.QueryRow(
		`SELECT derivation_index FROM vtxo_key WHERE public_key = ?`,
		schnorr.SerializePubKey(pk),
	)
	if err := row.Scan(&index); err != nil {
		return 0, fmt.Errorf("arkclient/db: key not found: %w", err)
	}
	return index, nil
}
