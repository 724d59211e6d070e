package impl

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fairraffle/go-rafflebridge/pkg/nonce"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
)

// SimpleTracker is a nonce tracker for one-shot calls and testing purposes.
type SimpleTracker struct {
	wallet  *wallet.Wallet
	backend bind.ContractBackend
	mu      sync.Mutex
}

// NewSimpleTracker returns a SimpleTracker.
func NewSimpleTracker(w *wallet.Wallet, backend bind.ContractBackend) nonce.NonceTracker {
	return &SimpleTracker{
		wallet:  w,
		backend: backend,
	}
}

// GetNonce returns the nonce to be used in the next transaction.
func (t *SimpleTracker) GetNonce(ctx context.Context) (nonce.RegisterPendingTx, nonce.UnlockTracker, int64) {
	t.mu.Lock()

	n, err := t.backend.PendingNonceAt(ctx, t.wallet.Address())
	if err != nil {
		panic(err)
	}
	return func(pendingHash common.Hash) {
			// noop
		}, func() {
			t.mu.Unlock()
		}, int64(n)
}

// GetPendingCount returns the number of pending txs.
func (t *SimpleTracker) GetPendingCount(ctx context.Context) int {
	return 0
}

// Resync is a noop since the network is always the source of truth.
func (t *SimpleTracker) Resync(ctx context.Context) error {
	return nil
}

// Close stops the tracker.
func (t *SimpleTracker) Close() {}
