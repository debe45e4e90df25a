// Package keyring manages the ASP's single long-lived identity keypair,
// derived from a 12-word mnemonic at m/2'/0'.
package keyring

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// DerivationPurpose and DerivationAccount fix the ASP key's BIP32 path,
// m/2'/0', per the wire protocol's identity-key convention.
const (
	DerivationPurpose = 2
	DerivationAccount = 0
)

// MnemonicWords is the fixed 12-word mnemonic length used for the ASP
// seed, matching the client's own seed phrase length.
const MnemonicWords = 12

// KeyRing holds the ASP's single derived Schnorr identity keypair.
type KeyRing struct {
	mu      sync.RWMutex
	priv    *btcec.PrivateKey
	network *chaincfg.Params
}

// NewMnemonic generates a fresh 12-word BIP-39 mnemonic, the ASP's
// durable root of key material.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("arkd/keyring: generating entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("arkd/keyring: generating mnemonic: %w", err)
	}
	return mnemonic, nil
}

// FromMnemonic derives the ASP keypair at m/2'/0' from mnemonic (with no
// BIP-39 passphrase, matching how the client derives its own seed).
func FromMnemonic(mnemonic string, network *chaincfg.Params) (*KeyRing, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("arkd/keyring: invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, network)
	if err != nil {
		return nil, fmt.Errorf("arkd/keyring: deriving master key: %w", err)
	}

	purpose, err := master.DeriveNonStandard(hdkeychain.HardenedKeyStart + DerivationPurpose)
	if err != nil {
		return nil, fmt.Errorf("arkd/keyring: deriving purpose: %w", err)
	}
	account, err := purpose.DeriveNonStandard(hdkeychain.HardenedKeyStart + DerivationAccount)
	if err != nil {
		return nil, fmt.Errorf("arkd/keyring: deriving account: %w", err)
	}

	priv, err := account.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("arkd/keyring: extracting private key: %w", err)
	}

	return &KeyRing{priv: priv, network: network}, nil
}

// Identity returns the ASP's x-only Schnorr public key, its protocol
// identity.
func (kr *KeyRing) Identity() *btcec.PublicKey {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.priv.PubKey()
}

// PrivateKey returns the ASP's signing key. Callers must not persist it;
// it lives only in process memory for the lifetime of the daemon.
func (kr *KeyRing) PrivateKey() *btcec.PrivateKey {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.priv
}
