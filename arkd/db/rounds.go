package db

import (
	"bytes"
	"database/sql"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/arklabs/ark/ark"
	"github.com/arklabs/ark/ark/tree"
)

// RoundRecord is a finalized round, durable enough to reconstruct the
// VTXO tree and forfeited-input set across a restart.
type RoundRecord struct {
	RoundID        chainhash.Hash
	RoundSeq       uint64
	RoundTx        *wire.MsgTx
	SignedTree     *tree.SignedTree
	ForfeitedVtxos []ark.VtxoId
}

// PutRound persists a finalized round and its forfeited-input set in a
// single transaction.
func (s *Store) PutRound(rec *RoundRecord) error {
	var txBuf, treeBuf bytes.Buffer
	if err := rec.RoundTx.Serialize(&txBuf); err != nil {
		return fmt.Errorf("arkd/db: serializing round tx: %w", err)
	}
	if err := tree.EncodeSignedTree(&treeBuf, rec.SignedTree); err != nil {
		return fmt.Errorf("arkd/db: serializing signed tree: %w", err)
	}

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO rounds (round_id, round_seq, round_tx, signed_tree, connector_chain, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.RoundID[:], rec.RoundSeq, txBuf.Bytes(), treeBuf.Bytes(), []byte{}, s.clock.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("arkd/db: inserting round: %w", err)
		}

		for _, id := range rec.ForfeitedVtxos {
			idBytes := id.Bytes()
			if _, err := tx.Exec(
				`INSERT INTO round_forfeited_vtxos (round_id, vtxo_id) VALUES (?, ?)`,
				rec.RoundID[:], idBytes[:],
			); err != nil {
				return fmt.Errorf("arkd/db: inserting forfeited vtxo: %w", err)
			}
		}
		return nil
	})
}

// RoundByID loads a previously finalized round.
func (s *Store) RoundByID(id chainhash.Hash) (*RoundRecord, error) {
	var seq uint64
	var txBytes, treeBytes []byte

	row := s.db.QueryRow(
		`SELECT round_seq, round_tx, signed_tree FROM rounds WHERE round_id = ?`, id[:],
	)
	if err := row.Scan(&seq, &txBytes, &treeBytes); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("arkd/db: round %s: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("arkd/db: loading round %s: %w", id, err)
	}

	var roundTx wire.MsgTx
	if err := roundTx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, fmt.Errorf("arkd/db: decoding round tx: %w", err)
	}
	signedTree, err := tree.DecodeSignedTree(treeBytes)
	if err != nil {
		return nil, fmt.Errorf("arkd/db: decoding signed tree: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT vtxo_id FROM round_forfeited_vtxos WHERE round_id = ?`, id[:],
	)
	if err != nil {
		return nil, fmt.Errorf("arkd/db: loading forfeited vtxos: %w", err)
	}
	defer rows.Close()

	var forfeited []ark.VtxoId
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		vid, err := ark.VtxoIdFromBytes(b)
		if err != nil {
			return nil, err
		}
		forfeited = append(forfeited, vid)
	}

	return &RoundRecord{
		RoundID:        id,
		RoundSeq:       seq,
		RoundTx:        &roundTx,
		SignedTree:     signedTree,
		ForfeitedVtxos: forfeited,
	}, nil
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("arkd/db: beginning tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
