package db

import (
	"database/sql"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// WalletProperties pins the network and seed fingerprint a client
// database was created with, checked on every open so a mismatched
// mnemonic is rejected instead of silently producing wrong addresses.
type WalletProperties struct {
	Network          *chaincfg.Params
	SeedFingerprint  [4]byte
}

// InitWalletProperties records the network and seed fingerprint for a
// freshly created database. Errors if already set.
func (s *Store) InitWalletProperties(network *chaincfg.Params, fingerprint [4]byte) error {
	_, err := s.db.Exec(
		`INSERT INTO wallet_properties (id, network, seed_fingerprint) VALUES (1, ?, ?)`,
		network.Name, fingerprint[:],
	)
	if err != nil {
		return fmt.Errorf("arkclient/db: initializing wallet properties: %w", err)
	}
	return nil
}

// WalletProperties loads the stored network/fingerprint, or
// (nil, sql.ErrNoRows) if this is a fresh database.
func (s *Store) WalletProperties() (*WalletProperties, error) {
	var networkName string
	var fp []byte
	row := s.db.QueryRow(`SELECT network, seed_fingerprint FROM wallet_properties WHERE id = 1`)
	if err := row.Scan(&networkName, &fp); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("arkclient/db: loading wallet properties: %w", err)
	}

	params, err := networkParams(networkName)
	if err != nil {
		return nil, err
	}

	var out WalletProperties
	out.Network = params
	copy(out.SeedFingerprint[:], fp)
	return &out, nil
}

func networkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case chaincfg.MainNetParams.Name:
		return &chaincfg.MainNetParams, nil
	case chaincfg.TestNet3Params.Name:
		return &chaincfg.TestNet3Params, nil
	case chaincfg.SigNetParams.Name:
		return &chaincfg.SigNetParams, nil
	case chaincfg.RegressionNetParams.Name:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("arkclient/db: unknown network %q", name)
	}
}

// CheckFingerprint compares fingerprint against the stored one, the
// mnemonic-correctness check run on every open.
func (p *WalletProperties) CheckFingerprint(fingerprint [4]byte) error {
	if p.SeedFingerprint != fingerprint {
		return fmt.Errorf("arkclient/db: mnemonic does not match this wallet's seed")
	}
	return nil
}
