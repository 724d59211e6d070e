// Package relay implements the outbound side of the bridge: pollers that
// turn queued work in the mirror database into signed on-chain transactions.
package relay

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/pkg/gas"
	"github.com/fairraffle/go-rafflebridge/pkg/registry"
	"github.com/fairraffle/go-rafflebridge/pkg/store"
	logger "github.com/rs/zerolog/log"
)

// CallbackBatchSize is the maximum amount of callbacks relayed in one tx.
const CallbackBatchSize = 15

// CallbackStore is the slice of the mirror store the callback queue needs.
type CallbackStore interface {
	ListPendingCallbacks(ctx context.Context, limit int) ([]store.Callback, error)
	MarkCallbacksProcessed(ctx context.Context, ids []int64) error
}

// RaffleDeadlineStore is the slice of the mirror store the deadline scanner
// needs.
type RaffleDeadlineStore interface {
	ListExpiredRaffles(ctx context.Context, deadline int64) ([]int64, error)
}

// CallbackQueue polls the callbacks outbox and relays pending rows to the
// escrow contract in batches. A batch is marked processed only after its
// transaction is confirmed on chain; any failure leaves the whole batch
// pending so the next cycle retries it in full.
type CallbackQueue struct {
	store    CallbackStore
	escrow   registry.EscrowRegistry
	gate     *gas.FeeGate
	backend  bind.DeployBackend
	interval time.Duration

	ctx       context.Context
	ctxCancel context.CancelFunc
	quitOnce  sync.Once
	quit      chan struct{}
}

var log = logger.With().
	Str("component", "relay").
	Logger()

// NewCallbackQueue creates a new callback queue poller.
func NewCallbackQueue(
	s CallbackStore,
	escrow registry.EscrowRegistry,
	gate *gas.FeeGate,
	backend bind.DeployBackend,
	interval time.Duration,
) *CallbackQueue {
	ctx, cls := context.WithCancel(context.Background())
	return &CallbackQueue{
		store:    s,
		escrow:   escrow,
		gate:     gate,
		backend:  backend,
		interval: interval,

		ctx:       ctx,
		ctxCancel: cls,
		quit:      make(chan struct{}),
	}
}

// Start starts the poller. Cycles never overlap: a new tick is handled only
// after the previous cycle finished.
func (q *CallbackQueue) Start() {
	ticker := time.NewTicker(q.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := q.relayPendingCallbacks(q.ctx); err != nil {
					log.Err(err).Msg("failed to relay pending callbacks")
				}
			case <-q.quit:
				log.Info().Msg("quiting callback queue")
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the poller goroutine and cancels any in-flight cycle.
func (q *CallbackQueue) Stop() {
	q.quitOnce.Do(func() {
		q.ctxCancel()
		q.quit <- struct{}{}
		close(q.quit)
	})
}

func (q *CallbackQueue) relayPendingCallbacks(ctx context.Context) error {
	callbacks, err := q.store.ListPendingCallbacks(ctx, CallbackBatchSize)
	if err != nil {
		return fmt.Errorf("list pending callbacks: %s", err)
	}
	if len(callbacks) == 0 {
		return nil
	}

	allowed, err := q.gate.Allow(ctx)
	if err != nil {
		return fmt.Errorf("fee gate: %s", err)
	}
	if !allowed {
		return nil
	}

	records := make([]registry.CallbackRecord, len(callbacks))
	ids := make([]int64, len(callbacks))
	for i, cb := range callbacks {
		record, err := toCallbackRecord(cb)
		if err != nil {
			return fmt.Errorf("building callback record %d: %s", cb.ID, err)
		}
		records[i] = record
		ids[i] = cb.ID
	}

	tx, err := q.escrow.BatchCallback(ctx, records)
	if err != nil {
		return fmt.Errorf("submitting batch callback tx: %s", err)
	}

	receipt, err := bind.WaitMined(ctx, q.backend, tx)
	if err != nil {
		return fmt.Errorf("waiting for batch callback tx %s: %s", tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("batch callback tx %s reverted", tx.Hash())
	}

	// Only a confirmed successful tx flips the rows; the flip is never
	// reverted afterwards.
	if err := q.store.MarkCallbacksProcessed(ctx, ids); err != nil {
		return fmt.Errorf("marking callbacks processed: %s", err)
	}
	log.Info().Int("callbacks", len(ids)).Str("tx", tx.Hash().Hex()).Msg("relayed callback batch")

	return nil
}

func toCallbackRecord(cb store.Callback) (registry.CallbackRecord, error) {
	amount, ok := new(big.Int).SetString(cb.AmountOrNftID, 10)
	if !ok {
		return registry.CallbackRecord{}, fmt.Errorf("parsing amount %q", cb.AmountOrNftID)
	}
	claimable, ok := new(big.Int).SetString(cb.ClaimableDelta, 10)
	if !ok {
		return registry.CallbackRecord{}, fmt.Errorf("parsing claimable delta %q", cb.ClaimableDelta)
	}
	return registry.CallbackRecord{
		Receiver:                     common.HexToAddress(cb.Receiver),
		AssetContract:                common.HexToAddress(cb.AssetContract),
		IsERC721:                     cb.IsERC721,
		AmountOrNftIdToReceiver:      amount,
		IncreaseTotalAmountClaimable: claimable,
	}, nil
}

// DeadlineScanner polls for raffles whose deadline passed while still in
// progress and finalizes each with an independent completeRaffle tx.
// Failures are isolated per raffle.
type DeadlineScanner struct {
	store    RaffleDeadlineStore
	raffles  registry.RaffleRegistry
	gate     *gas.FeeGate
	backend  bind.DeployBackend
	interval time.Duration

	ctx       context.Context
	ctxCancel context.CancelFunc
	quitOnce  sync.Once
	quit      chan struct{}
}

// NewDeadlineScanner creates a new deadline scanner.
func NewDeadlineScanner(
	s RaffleDeadlineStore,
	raffles registry.RaffleRegistry,
	gate *gas.FeeGate,
	backend bind.DeployBackend,
	interval time.Duration,
) *DeadlineScanner {
	ctx, cls := context.WithCancel(context.Background())
	return &DeadlineScanner{
		store:    s,
		raffles:  raffles,
		gate:     gate,
		backend:  backend,
		interval: interval,

		ctx:       ctx,
		ctxCancel: cls,
		quit:      make(chan struct{}),
	}
}

// Start starts the scanner. Cycles never overlap.
func (s *DeadlineScanner) Start() {
	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.completeExpiredRaffles(s.ctx); err != nil {
					log.Err(err).Msg("failed to complete expired raffles")
				}
			case <-s.quit:
				log.Info().Msg("quiting deadline scanner")
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the scanner goroutine and cancels any in-flight cycle.
func (s *DeadlineScanner) Stop() {
	s.quitOnce.Do(func() {
		s.ctxCancel()
		s.quit <- struct{}{}
		close(s.quit)
	})
}

func (s *DeadlineScanner) completeExpiredRaffles(ctx context.Context) error {
	raffleIDs, err := s.store.ListExpiredRaffles(ctx, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("list expired raffles: %s", err)
	}

	for _, raffleID := range raffleIDs {
		if ctx.Err() != nil {
			return nil
		}
		allowed, err := s.gate.Allow(ctx)
		if err != nil {
			return fmt.Errorf("fee gate: %s", err)
		}
		if !allowed {
			return nil
		}

		if err := s.completeRaffle(ctx, raffleID); err != nil {
			// A failed raffle doesn't block the others; it stays expired and
			// is retried next cycle.
			log.Error().Int64("raffle_id", raffleID).Err(err).Msg("completing raffle")
			continue
		}
		log.Info().Int64("raffle_id", raffleID).Msg("completed raffle")
	}

	return nil
}

func (s *DeadlineScanner) completeRaffle(ctx context.Context, raffleID int64) error {
	tx, err := s.raffles.CompleteRaffle(ctx, big.NewInt(raffleID))
	if err != nil {
		return fmt.Errorf("submitting complete raffle tx: %s", err)
	}
	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		return fmt.Errorf("waiting for complete raffle tx %s: %s", tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("complete raffle tx %s reverted", tx.Hash())
	}
	return nil
}
