// Package nonce keeps track of the relayer account nonce and its pending txs.
package nonce

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
)

// PendingTx represents a pending tx.
type PendingTx struct {
	ChainID   bridge.ChainID
	Hash      common.Hash
	Nonce     int64
	Address   common.Address
	CreatedAt time.Time
}

// ErrBlockDiffNotEnough indicates that the pending block is not old enough.
var ErrBlockDiffNotEnough = errors.New("the block number is not old enough to be considered not pending")

// ErrPendingTxMayBeStuck indicates that the pending tx may be stuck.
var ErrPendingTxMayBeStuck = errors.New("pending tx may be stuck")

// RegisterPendingTx registers a pending tx in the nonce tracker.
type RegisterPendingTx func(common.Hash)

// UnlockTracker unlocks the tracker so another thread can call GetNonce.
type UnlockTracker func()

// NonceTracker manages the relayer nonce by keeping track of pending txs.
type NonceTracker interface {
	// GetNonce returns the nonce to be used in the next transaction.
	// The call is blocked until the client calls unlock.
	// The client should also call registerPendingTx if it managed to submit
	// a transaction successfully.
	GetNonce(context.Context) (RegisterPendingTx, UnlockTracker, int64)

	// GetPendingCount returns the number of pending txs.
	GetPendingCount(context.Context) int

	// Resync resyncs nonce tracker state with the network.
	// NOTICE: must not call Resync(..) if there's still an open call to GetNonce(...).
	Resync(context.Context) error

	// Close stops the tracker.
	Close()
}

// ChainClient provides the chain APIs a NonceTracker needs.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error)
}

// NonceStore provides the API for the storage of pending txs.
type NonceStore interface {
	ListPendingTx(context.Context, bridge.ChainID, common.Address) ([]PendingTx, error)
	InsertPendingTx(context.Context, bridge.ChainID, common.Address, int64, common.Hash) error
	DeletePendingTxByHash(context.Context, bridge.ChainID, common.Hash) error
}
