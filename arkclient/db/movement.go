package db

import (
	"database/sql"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// MovementKind classifies an entry in the client's ledger.
type MovementKind int

const (
	MovementBoard MovementKind = iota
	MovementRound
	MovementOorSend
	MovementOorReceive
	MovementLnSend
	MovementLnReceive
)

// Recipient is one output of a movement: a change or payment
// destination and the amount it received.
type Recipient struct {
	Pubkey *btcec.PublicKey // nil for an offboard (non-Ark) recipient
	Amount int64
}

// Movement is one entry in the client's ledger: a net-amount change to
// the wallet's VTXO balance plus the fee paid (if any, per the
// supplemented forwarding-fee tracking feature) and its recipients.
type Movement struct {
	Kind       MovementKind
	Amount     int64
	Fee        int64
	Recipients []Recipient
}

// PutMovement records a ledger entry and its recipients in one
// transaction.
func (s *Store) PutMovement(m *Movement) (int64, error) {
	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`INSERT INTO movement (kind, amount, fee, created_at) VALUES (?, ?, ?, ?)`,
			m.Kind, m.Amount, m.Fee, s.clock.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("arkclient/db: inserting movement: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		for _, r := range m.Recipients {
			var pkBytes []byte
			if r.Pubkey != nil {
				pkBytes = schnorr.SerializePubKey(r.Pubkey)
			}
			if _, err := tx.Exec(
				`INSERT INTO recipient (movement_id, pubkey, amount) VALUES (?, ?, ?)`,
				id, pkBytes, r.Amount,
			); err != nil {
				return fmt.Errorf("arkclient/db: inserting recipient: %w", err)
			}
		}
		return nil
	})
	return id, err
}

// Movements returns the ledger in reverse-chronological order.
func (s *Store) Movements(limit int) ([]*Movement, error) {
	rows, err := s.db.Query(
		`SELECT movement_id, kind, amount, fee FROM movement ORDER BY movement_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("arkclient/db: querying movements: %w", err)
	}
	defer rows.Close()

	var out []*Movement
	var ids []int64
	for rows.Next() {
		var id int64
		m := &Movement{}
		var kind int
		if err := rows.Scan(&id, &kind, &m.Amount, &m.Fee); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		out = append(out, m)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		recipients, err := s.recipientsFor(id)
		if err != nil {
			return nil, err
		}
		out[i].Recipients = recipients
	}
	return out, nil
}

func (s *Store) recipientsFor(movementID int64) ([]Recipient, error) {
	rows, err := s.db.Query(
		`SELECT pubkey, amount FROM recipient WHERE movement_id = ?`, movementID,
	)
	if err != nil {
		return nil, fmt.Errorf("arkclient/db: querying recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var pkBytes []byte
		var r Recipient
		if err := rows.Scan(&pkBytes, &r.Amount); err != nil {
			return nil, err
		}
		if len(pkBytes) > 0 {
			pk, err := schnorr.ParsePubKey(pkBytes)
			if err != nil {
				return nil, err
			}
			r.Pubkey = pk
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
