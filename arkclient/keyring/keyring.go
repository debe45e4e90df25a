// Package keyring manages the client's VTXO signing keys, derived from a
// 12-word mnemonic at m/350'/<index>' and indexed monotonically.
package keyring

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// DerivationPurpose fixes the client VTXO key path's account-level
// component: m/350'/<index>'.
const DerivationPurpose = 350

// KeyRing derives and caches the client's per-VTXO keys.
type KeyRing struct {
	mu      sync.Mutex
	purpose *hdkeychain.ExtendedKey
	derived map[uint32]*btcec.PrivateKey
}

// NewMnemonic generates a fresh 12-word BIP-39 mnemonic for a new wallet.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("arkclient/keyring: generating entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// FromMnemonic opens a KeyRing rooted at mnemonic's m/350' branch.
func FromMnemonic(mnemonic string, network *chaincfg.Params) (*KeyRing, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("arkclient/keyring: invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, network)
	if err != nil {
		return nil, fmt.Errorf("arkclient/keyring: deriving master key: %w", err)
	}

	purpose, err := master.DeriveNonStandard(hdkeychain.HardenedKeyStart + DerivationPurpose)
	if err != nil {
		return nil, fmt.Errorf("arkclient/keyring: deriving purpose branch: %w", err)
	}

	return &KeyRing{purpose: purpose, derived: make(map[uint32]*btcec.PrivateKey)}, nil
}

// Fingerprint derives a stable, non-secret identifier for this mnemonic's
// vtxo-seed branch, stored in the client DB's wallet properties and
// checked against on every open to catch a mismatched mnemonic.
func (kr *KeyRing) Fingerprint() ([4]byte, error) {
	var fp [4]byte
	pub, err := kr.purpose.Neuter()
	if err != nil {
		return fp, fmt.Errorf("arkclient/keyring: neutering purpose key: %w", err)
	}
	parent := pub.ParentFingerprint()
	fp[0] = byte(parent >> 24)
	fp[1] = byte(parent >> 16)
	fp[2] = byte(parent >> 8)
	fp[3] = byte(parent)
	return fp, nil
}

// KeyAt derives (or returns from cache) the private key at m/350'/index'.
func (kr *KeyRing) KeyAt(index uint32) (*btcec.PrivateKey, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	if priv, ok := kr.derived[index]; ok {
		return priv, nil
	}

	child, err := kr.purpose.DeriveNonStandard(hdkeychain.HardenedKeyStart + index)
	if err != nil {
		return nil, fmt.Errorf("arkclient/keyring: deriving index %d: %w", index, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("arkclient/keyring: extracting private key %d: %w", index, err)
	}

	kr.derived[index] = priv
	return priv, nil
}

// PubkeyAt is the x-only public key at index, the form embedded in VTXOs.
func (kr *KeyRing) PubkeyAt(index uint32) (*btcec.PublicKey, error) {
	priv, err := kr.KeyAt(index)
	if err != nil {
		return nil, err
	}
	return priv.PubKey(), nil
}
