package impl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/nonce"
	noncepkg "github.com/fairraffle/go-rafflebridge/pkg/nonce"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// LocalTracker implements a nonce tracker that stores
// nonce and pending txs locally.
type LocalTracker struct {
	log        zerolog.Logger
	currNonce  int64
	chainID    bridge.ChainID
	pendingTxs []noncepkg.PendingTx
	wallet     *wallet.Wallet

	// control attributes
	mu       sync.Mutex
	quit     chan struct{}
	isClosed bool

	// external dependencies
	nonceStore  noncepkg.NonceStore
	chainClient noncepkg.ChainClient

	// configs
	checkInterval      time.Duration
	minBlockChainDepth int
	stuckInterval      time.Duration

	// metrics
	mBaseLabels []attribute.KeyValue
}

// NewLocalTracker creates a new local tracker.
func NewLocalTracker(
	ctx context.Context,
	w *wallet.Wallet,
	nonceStore noncepkg.NonceStore,
	chainID bridge.ChainID,
	chainClient noncepkg.ChainClient,
	checkInterval time.Duration,
	minBlockChainDepth int,
	stuckInterval time.Duration,
) (*LocalTracker, error) {
	log := logger.With().
		Str("component", "noncetracker").
		Int64("chain_id", int64(chainID)).
		Logger()
	t := &LocalTracker{
		log:         log,
		wallet:      w,
		chainID:     chainID,
		nonceStore:  nonceStore,
		chainClient: chainClient,

		isClosed: false,

		checkInterval:      checkInterval,
		minBlockChainDepth: minBlockChainDepth,
		stuckInterval:      stuckInterval,
	}
	if err := t.initialize(ctx); err != nil {
		return nil, fmt.Errorf("tracker initialization: %s", err)
	}
	if err := t.initMetrics(chainID, w.Address()); err != nil {
		return nil, fmt.Errorf("initializing metrics: %s", err)
	}

	ticker := time.NewTicker(t.checkInterval)
	t.quit = make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				h, err := t.chainClient.HeaderByNumber(ctx, nil)
				if err != nil {
					log.Error().Err(err).Msg("get chain tip header")
					continue
				}

				// copy to avoid data race
				t.mu.Lock()
				pendingTxs := make([]noncepkg.PendingTx, len(t.pendingTxs))
				copy(pendingTxs, t.pendingTxs)
				t.mu.Unlock()

				for _, pendingTx := range pendingTxs {
					if err := t.checkIfPendingTxWasIncluded(ctx, pendingTx, h); err != nil {
						if err == noncepkg.ErrBlockDiffNotEnough {
							break
						}
						log.Error().Err(err).Msg("check if pending tx was included")
					}
				}
			case <-t.quit:
				ticker.Stop()
				return
			}
		}
	}()

	log.Info().
		Str("wallet", t.wallet.Address().Hex()).
		Int64("currentNonce", t.currNonce).
		Msg("initializing tracker")

	return t, nil
}

// GetNonce returns the nonce to be used in the next transaction.
// The call is blocked until the client calls unlock.
// The client should also call registerPendingTx if it managed to submit a transaction successfully.
func (t *LocalTracker) GetNonce(ctx context.Context) (nonce.RegisterPendingTx, nonce.UnlockTracker, int64) {
	t.mu.Lock()

	nonce := t.currNonce

	// this function adds a pending transaction to the list and advances the nonce
	registerPendingTx := func(pendingHash common.Hash) {
		if err := t.nonceStore.InsertPendingTx(
			ctx,
			t.chainID,
			t.wallet.Address(),
			nonce,
			pendingHash); err != nil {
			t.log.Error().
				Err(err).
				Int64("nonce", nonce).
				Str("hash", pendingHash.Hex()).
				Msg("failed to store pending tx")
		}

		t.pendingTxs = append(t.pendingTxs, noncepkg.PendingTx{
			ChainID:   t.chainID,
			Hash:      pendingHash,
			Nonce:     nonce,
			Address:   t.wallet.Address(),
			CreatedAt: time.Now(),
		})
		t.currNonce = nonce + 1
	}

	// this function frees the mutex without incrementing the nonce
	unlock := func() {
		t.mu.Unlock()
	}

	return registerPendingTx, unlock, nonce
}

// Close closes the background goroutine.
func (t *LocalTracker) Close() {
	if t.isClosed {
		return
	}
	close(t.quit)
	t.isClosed = true
}

// GetPendingCount returns the number of pending txs.
func (t *LocalTracker) GetPendingCount(_ context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pendingTxs)
}

// Resync resyncs the tracker state with the network.
// NOTICE: must not call Resync(..) if there's still an open call to GetNonce(...).
func (t *LocalTracker) Resync(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pendingTx := range t.pendingTxs {
		if err := t.nonceStore.DeletePendingTxByHash(ctx, t.chainID, pendingTx.Hash); err != nil {
			return fmt.Errorf("deleting pending tx %s: %s", pendingTx.Hash, err)
		}
	}
	t.pendingTxs = nil

	networkNonce, err := t.chainClient.PendingNonceAt(ctx, t.wallet.Address())
	if err != nil {
		return fmt.Errorf("get pending nonce at: %s", err)
	}
	t.currNonce = int64(networkNonce)

	return nil
}

func (t *LocalTracker) initialize(ctx context.Context) error {
	// The network is the source of truth for the next nonce. Pending txs
	// submitted before a crash are already accounted for by the node's
	// pending view.
	networkNonce, err := t.chainClient.PendingNonceAt(ctx, t.wallet.Address())
	if err != nil {
		return fmt.Errorf("get pending nonce at: %s", err)
	}

	pendingTxs, err := t.nonceStore.ListPendingTx(ctx, t.chainID, t.wallet.Address())
	if err != nil {
		return fmt.Errorf("list pending txs for tracker initialization: %s", err)
	}

	t.pendingTxs = pendingTxs
	t.currNonce = int64(networkNonce)

	return nil
}

func (t *LocalTracker) checkIfPendingTxWasIncluded(
	ctx context.Context,
	pendingTx noncepkg.PendingTx,
	h *types.Header,
) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Debug().
		Str("hash", pendingTx.Hash.Hex()).
		Int64("nonce", pendingTx.Nonce).
		Msg("checking pending tx...")

	txReceipt, err := t.chainClient.TransactionReceipt(ctx, pendingTx.Hash)
	if err != nil {
		if time.Since(pendingTx.CreatedAt) > t.stuckInterval {
			t.log.Error().
				Str("hash", pendingTx.Hash.Hex()).
				Int64("nonce", pendingTx.Nonce).
				Time("createdAt", pendingTx.CreatedAt).
				Msg("pending tx may be stuck")

			return noncepkg.ErrPendingTxMayBeStuck
		}

		return fmt.Errorf("get transaction receipt: %s", err)
	}

	blockDiff := h.Number.Int64() - txReceipt.BlockNumber.Int64()
	if blockDiff < int64(t.minBlockChainDepth) {
		t.log.Debug().
			Str("hash", pendingTx.Hash.Hex()).
			Int64("nonce", pendingTx.Nonce).
			Int64("blockDiff", blockDiff).
			Int64("headNumber", h.Number.Int64()).
			Int64("blockNumber", txReceipt.BlockNumber.Int64()).
			Msg("block difference is not enough")

		return noncepkg.ErrBlockDiffNotEnough
	}

	if err := t.deletePendingTxByHash(ctx, pendingTx.Hash); err != nil {
		return err
	}

	return nil
}

func (t *LocalTracker) deletePendingTxByHash(ctx context.Context, hash common.Hash) error {
	if err := t.nonceStore.DeletePendingTxByHash(ctx, t.chainID, hash); err != nil {
		return fmt.Errorf("delete pending tx: %s", err)
	}

	var deleteIndex int
	for i, pTx := range t.pendingTxs {
		if pTx.Hash.Hex() == hash.Hex() {
			deleteIndex = i
		}
	}
	t.pendingTxs = append(t.pendingTxs[:deleteIndex], t.pendingTxs[deleteIndex+1:]...)

	return nil
}
