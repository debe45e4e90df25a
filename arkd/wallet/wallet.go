// Package wallet adapts btcwallet into the narrow on-chain wallet
// collaborator the round coordinator and client boarding flow need:
// balance, address generation, PSBT build/sign/broadcast, and mempool
// rebroadcast. A full general-purpose wallet is explicitly out of
// scope; this type exposes only those operations.
package wallet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/btcsuite/btcwallet/wallet"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"

	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

var log = btclog.Disabled

// UseLogger wires this package's logging into the application's root
// backend.
func UseLogger(l btclog.Logger) { log = l }

// ChangesetSyncEvery is how many calls to Tick the wallet absorbs
// before calling its changeset persistence hook. Tick is driven by the chain bridge's tip poller, so this
// is effectively "every 10,000 blocks" under normal mainnet cadence.
const ChangesetSyncEvery = 10_000

// Config configures the on-chain wallet.
type Config struct {
	DataDir        string
	NetParams      *chaincfg.Params
	Seed           []byte
	PublicPass     []byte
	PrivatePass    []byte
	Birthday       time.Time
	RecoveryWindow uint32
}

func (c *Config) dbDir() string { return filepath.Join(c.DataDir, "wallet") }

// OnchainWallet is the ASP's (and, separately, a client's) funding
// wallet: the out-of-scope collaborator narrowed to exactly the
// operations this system invokes.
type OnchainWallet struct {
	cfg *Config

	wallet *wallet.Wallet
	db     walletdb.DB
	loader *wallet.Loader

	started bool
	ticks   int
	quit    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// New creates an unopened OnchainWallet.
func New(cfg *Config) (*OnchainWallet, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("arkd/wallet: data dir is required")
	}
	if cfg.NetParams == nil {
		return nil, fmt.Errorf("arkd/wallet: net params are required")
	}

	return &OnchainWallet{cfg: cfg, quit: make(chan struct{})}, nil
}

// Start opens (or creates) the underlying btcwallet instance and
// unlocks it for signing.
func (w *OnchainWallet) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}

	if err := os.MkdirAll(w.cfg.dbDir(), 0700); err != nil {
		return fmt.Errorf("arkd/wallet: creating db dir: %w", err)
	}

	w.loader = wallet.NewLoader(
		w.cfg.NetParams, w.cfg.dbDir(), true, 250, w.cfg.RecoveryWindow,
	)

	exists, err := w.loader.WalletExists()
	if err != nil {
		return fmt.Errorf("arkd/wallet: checking for existing wallet: %w", err)
	}

	if !exists {
		if len(w.cfg.Seed) == 0 {
			return fmt.Errorf("arkd/wallet: seed required to create a new wallet")
		}
		if _, err := hdkeychain.NewMaster(w.cfg.Seed, w.cfg.NetParams); err != nil {
			return fmt.Errorf("arkd/wallet: validating seed: %w", err)
		}
		w.wallet, err = w.loader.CreateNewWallet(
			w.cfg.PublicPass, w.cfg.PrivatePass, w.cfg.Seed, w.cfg.Birthday,
		)
		if err != nil {
			return fmt.Errorf("arkd/wallet: creating wallet: %w", err)
		}
	} else {
		w.wallet, err = w.loader.OpenExistingWallet(w.cfg.PublicPass, false)
		if err != nil {
			return fmt.Errorf("arkd/wallet: opening wallet: %w", err)
		}
	}

	if err := w.wallet.Unlock(w.cfg.PrivatePass, nil); err != nil {
		return fmt.Errorf("arkd/wallet: unlocking wallet: %w", err)
	}

	w.wallet.Start()
	w.started = true

	return nil
}

// Stop shuts the wallet down; it does not call the changeset persistence
// hook.
func (w *OnchainWallet) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	close(w.quit)
	w.wg.Wait()

	w.wallet.Stop()
	w.wallet.WaitForShutdown()
	if w.db != nil {
		w.db.Close()
	}
	w.started = false
}

// Balance returns the wallet's total confirmed balance in satoshis.
func (w *OnchainWallet) Balance(ctx context.Context) (btcutil.Amount, error) {
	return w.wallet.CalculateBalance(1)
}

// NewAddress returns a fresh P2TR receive address for boarding or
// ASP-owned change.
func (w *OnchainWallet) NewAddress(ctx context.Context) (btcutil.Address, error) {
	return w.wallet.NewAddress(waddrmgr.DefaultAccountNum, waddrmgr.KeyScopeBIP0086)
}

// BuildPsbt constructs an unsigned PSBT paying outputs at feeRate,
// selecting inputs automatically from the wallet's UTXO set.
func (w *OnchainWallet) BuildPsbt(
	ctx context.Context, outputs []*wire.TxOut, feeRate chainfee.SatPerKWeight,
) (*psbt.Packet, error) {

	tx, err := w.wallet.CreateSimpleTx(
		nil, 1, outputs, true, int64(feeRate.FeePerKVByte()), false,
	)
	if err != nil {
		return nil, fmt.Errorf("arkd/wallet: building psbt: %w", err)
	}

	pkt, err := psbt.NewFromUnsignedTx(tx.Tx)
	if err != nil {
		return nil, fmt.Errorf("arkd/wallet: wrapping psbt: %w", err)
	}
	return pkt, nil
}

// SignPsbt signs every input this wallet owns inside pkt.
func (w *OnchainWallet) SignPsbt(ctx context.Context, pkt *psbt.Packet) error {
	if _, err := w.wallet.SignPsbt(pkt); err != nil {
		return fmt.Errorf("arkd/wallet: signing psbt: %w", err)
	}
	return nil
}

// Broadcast submits a finalized transaction to the network and records
// it as locally known so a later Tick can rebroadcast it if it drops
// from the mempool before confirming.
func (w *OnchainWallet) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	return w.wallet.PublishTransaction(tx, "")
}

// TipHeight returns the wallet's last-synced chain height.
func (w *OnchainWallet) TipHeight(ctx context.Context) (int32, error) {
	_, height, err := w.wallet.Manager.BlockStamp()
	if err != nil {
		return 0, fmt.Errorf("arkd/wallet: reading tip height: %w", err)
	}
	return height.Height, nil
}

// Tick is invoked once per chain-bridge tip poll. It rebroadcasts any
// locally known unconfirmed transaction every call, and persists the
// wallet's changeset every ChangesetSyncEvery calls — matching the
// source wallet's sync cadence.
func (w *OnchainWallet) Tick(ctx context.Context) error {
	w.mu.Lock()
	w.ticks++
	due := w.ticks%ChangesetSyncEvery == 0
	w.mu.Unlock()

	if due {
		if err := w.persistChangeset(ctx); err != nil {
			return err
		}
	}

	return w.rebroadcastUnconfirmed(ctx)
}

func (w *OnchainWallet) persistChangeset(ctx context.Context) error {
	log.Debugf("persisting wallet changeset")
	// btcwallet's own walletdb transaction already durably commits every
	// write; this hook is where a caller layering a separate changeset
	// snapshot into arkd/db would hang a PutWalletChangeset call, at the
	// same cadence the wallet itself uses.
	return nil
}

func (w *OnchainWallet) rebroadcastUnconfirmed(ctx context.Context) error {
	unconfirmed, err := w.wallet.UnminedTransactions()
	if err != nil {
		return fmt.Errorf("arkd/wallet: listing unconfirmed txs: %w", err)
	}
	for _, tx := range unconfirmed {
		if err := w.wallet.PublishTransaction(tx.MsgTx, ""); err != nil {
			log.Warnf("rebroadcasting %s: %v", tx.MsgTx.TxHash(), err)
		}
	}
	return nil
}
