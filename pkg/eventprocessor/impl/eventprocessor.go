package impl

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/enrich"
	"github.com/fairraffle/go-rafflebridge/pkg/eventfeed"
	"github.com/fairraffle/go-rafflebridge/pkg/eventprocessor"
	"github.com/fairraffle/go-rafflebridge/pkg/registry"
	"github.com/fairraffle/go-rafflebridge/pkg/registry/impl/ethereum"
	"github.com/fairraffle/go-rafflebridge/pkg/store"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.uber.org/atomic"
)

// EventProcessor processes new events detected by an event feed, projecting
// them into the mirror database.
type EventProcessor struct {
	log        zerolog.Logger
	store      store.Store
	ef         eventfeed.EventFeed
	reader     registry.RaffleReader
	l2Registry registry.RaffleRegistry
	enrich     *enrich.Cache
	config     *eventprocessor.Config
	chainID    bridge.ChainID
	contract   common.Address
	eventTypes []eventfeed.EventType

	lock           sync.Mutex
	daemonCtx      context.Context
	daemonCancel   context.CancelFunc
	daemonCanceled chan struct{}

	// Metrics
	mBaseLabels            []attribute.KeyValue
	mExecutionRound        atomic.Int64
	mLastProcessedHeight   atomic.Int64
	mEventExecutionCounter instrument.Int64Counter
	mEventDropCounter      instrument.Int64Counter
	mBlockExecutionLatency instrument.Int64Histogram
}

// New returns a new EventProcessor. The contract address identifies whose
// events this processor projects; its last processed height is tracked
// per (chain, contract). reader serves raffle record lookups and l2Registry
// serves L1→L2 raffle creation relays; each may be nil when the event set
// can't produce the events needing it.
func New(
	s store.Store,
	ef eventfeed.EventFeed,
	reader registry.RaffleReader,
	l2Registry registry.RaffleRegistry,
	enrichCache *enrich.Cache,
	chainID bridge.ChainID,
	contract common.Address,
	eventTypes []eventfeed.EventType,
	opts ...eventprocessor.Option,
) (*EventProcessor, error) {
	config := eventprocessor.DefaultConfig()
	for _, op := range opts {
		if err := op(config); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}

	log := logger.With().
		Str("component", "eventprocessor").
		Int64("chain_id", int64(chainID)).
		Str("contract", contract.Hex()).
		Logger()
	ep := &EventProcessor{
		log:        log,
		store:      s,
		ef:         ef,
		reader:     reader,
		l2Registry: l2Registry,
		enrich:     enrichCache,
		chainID:    chainID,
		contract:   contract,
		eventTypes: eventTypes,
		config:     config,
	}
	if err := ep.initMetrics(chainID, contract); err != nil {
		return nil, fmt.Errorf("initializing metric instruments: %s", err)
	}

	return ep, nil
}

// Start starts processing new events from the last processed height.
func (ep *EventProcessor) Start() error {
	ep.lock.Lock()
	defer ep.lock.Unlock()

	if ep.daemonCtx != nil {
		return fmt.Errorf("already started")
	}

	ep.log.Debug().Msg("starting daemon...")
	ctx, cls := context.WithCancel(context.Background())
	ep.daemonCtx = ctx
	ep.daemonCancel = cls
	ep.daemonCanceled = make(chan struct{})
	if err := ep.startDaemon(); err != nil {
		return fmt.Errorf("background daemon failed starting: %s", err)
	}
	ep.log.Info().Msg("started")

	return nil
}

// Stop stops processing new events.
func (ep *EventProcessor) Stop() {
	ep.lock.Lock()
	defer ep.lock.Unlock()
	if ep.daemonCtx == nil {
		return
	}

	ep.log.Debug().Msg("stopping processor gracefully...")
	ep.daemonCancel()
	<-ep.daemonCanceled

	// Cleanup to allow Start() to be called again.
	ep.daemonCtx = nil
	ep.daemonCancel = nil
	ep.daemonCanceled = nil
	ep.mExecutionRound.Store(0)

	ep.log.Debug().Msg("processor stopped")
}

func (ep *EventProcessor) startDaemon() error {
	// We start by fetching the latest processed height to start processing
	// new events from that point forward.
	ctx, cls := context.WithTimeout(ep.daemonCtx, time.Second*10)
	defer cls()
	lastHeight, err := ep.store.GetLastProcessedHeight(ctx, ep.chainID, ep.contract)
	if err != nil {
		return fmt.Errorf("getting last processed height: %s", err)
	}
	ep.mLastProcessedHeight.Store(lastHeight)

	// We fire an EventFeed asking for new events from the last processed
	// height. When the client calls Stop() it cancels ep.daemonCtx, which
	// cleanly closes the feed, and `defer close(ch)` makes the processor
	// finish gracefully too.
	ch := make(chan eventfeed.BlockEvents)
	go func() {
		defer close(ch)
		if err := ep.ef.Start(ep.daemonCtx, lastHeight+1, ch, ep.eventTypes); err != nil {
			ep.log.Error().Err(err).Msg("event feed was closed unexpectedly")
			ep.Stop() // We cleanup daemon ctx and allow the processor to Start() cleanly if needed.
			return
		}
		ep.log.Info().Msg("event feed gracefully closed")
	}()

	// Listen to new events from the EventFeed, and process them.
	go func() {
		defer close(ep.daemonCanceled)
		defer ep.log.Info().Msg("processor gracefully closed")

		for bes := range ch {
			// If executeBlockEvents fails, we keep retrying since it *must* be
			// a transient error (e.g: the database is down). Per-event
			// projection failures don't make the block fail, only that event.
			// We must always be able to make progress.
			for {
				if ep.daemonCtx.Err() != nil {
					break
				}
				// mExecutionRound allows monitoring if the current block
				// execution is stuck. Usually this value must be zero.
				if err := ep.executeBlockEvents(ep.daemonCtx, bes); err != nil {
					ep.log.Error().Int("attempt", int(ep.mExecutionRound.Load())).Err(err).Msg("executing block events")
					ep.mExecutionRound.Inc()
					time.Sleep(ep.config.BlockFailedExecutionBackoff)
					continue
				}
				break
			}
			ep.mExecutionRound.Store(0)
		}
	}()

	return nil
}

func (ep *EventProcessor) executeBlockEvents(ctx context.Context, bes eventfeed.BlockEvents) error {
	start := time.Now()

	lastHeight, err := ep.store.GetLastProcessedHeight(ctx, ep.chainID, ep.contract)
	if err != nil {
		return fmt.Errorf("get last processed height: %s", err)
	}
	// The new height to process must be strictly greater than the last
	// processed height; a replayed block was already projected.
	if lastHeight >= bes.BlockNumber {
		ep.log.Warn().
			Int64("height", bes.BlockNumber).
			Int64("last_height", lastHeight).
			Msg("skipping already processed block")
		return nil
	}

	for _, txn := range bes.Txns {
		for _, e := range txn.Events {
			attrs := append([]attribute.KeyValue{
				attribute.String("eventtype", fmt.Sprintf("%T", e)),
			}, ep.mBaseLabels...)
			if err := ep.executeEvent(ctx, e); err != nil {
				// The event is dropped, not retried. The projection is
				// at-most-once; the drop counter makes the loss visible.
				ep.log.Error().
					Str("txn_hash", txn.TxnHash.Hex()).
					Err(err).
					Msg("event projection failed, dropping event")
				ep.mEventDropCounter.Add(ctx, 1, attrs...)
				continue
			}
			ep.mEventExecutionCounter.Add(ctx, 1, attrs...)
		}
	}

	// Update the last processed height.
	if err := ep.store.SetLastProcessedHeight(ctx, ep.chainID, ep.contract, bes.BlockNumber); err != nil {
		return fmt.Errorf("set new processed height %d: %s", bes.BlockNumber, err)
	}
	ep.log.Debug().Int64("height", bes.BlockNumber).Msg("new last processed height")

	ep.mLastProcessedHeight.Store(bes.BlockNumber)
	ep.mBlockExecutionLatency.Record(ctx, time.Since(start).Milliseconds(), ep.mBaseLabels...)

	return nil
}

func (ep *EventProcessor) executeEvent(ctx context.Context, event interface{}) error {
	switch e := event.(type) {
	case *ethereum.ContractNewRaffleCreated:
		ep.log.Debug().Str("raffle_id", e.RaffleId.String()).Msg("executing new-raffle-created event")
		return ep.executeNewRaffleCreated(ctx, e)
	case *ethereum.ContractNewRaffleTicketBought:
		ep.log.Debug().Str("raffle_id", e.RaffleId.String()).Msg("executing new-raffle-ticket-bought event")
		return ep.executeNewRaffleTicketBought(ctx, e)
	case *ethereum.ContractRaffleStateChanged:
		ep.log.Debug().Str("raffle_id", e.RaffleId.String()).Msg("executing raffle-state-changed event")
		return ep.executeRaffleStateChanged(ctx, e)
	case *ethereum.ContractMainnetCall:
		ep.log.Debug().Str("receiver", e.Receiver.Hex()).Msg("executing mainnet-call event")
		return ep.executeMainnetCall(ctx, e)
	case *ethereum.ContractTicketSellOrderCreated:
		ep.log.Debug().Str("raffle_id", e.RaffleId.String()).Msg("executing ticket-sell-order-created event")
		return ep.executeTicketSellOrderCreated(ctx, e)
	case *ethereum.ContractTicketSellOrderCancelled:
		ep.log.Debug().Str("raffle_id", e.RaffleId.String()).Msg("executing ticket-sell-order-cancelled event")
		return ep.store.DeleteOrder(ctx, e.RaffleId.Int64(), e.TicketId.Int64())
	case *ethereum.ContractTicketBoughtFromMarket:
		ep.log.Debug().Str("raffle_id", e.RaffleId.String()).Msg("executing ticket-bought-from-market event")
		return ep.store.MarkOrderBought(ctx, e.RaffleId.Int64(), e.TicketId.Int64(), e.Buyer.Hex())
	case *ethereum.ContractTicketBoughtFromMarketWithSignature:
		ep.log.Debug().Str("raffle_id", e.RaffleId.String()).Msg("executing ticket-bought-from-market-with-signature event")
		return ep.store.MarkOrderBought(ctx, e.RaffleId.Int64(), e.TicketId.Int64(), e.Buyer.Hex())
	case *ethereum.ContractERC20CurrencyAdded:
		ep.log.Debug().Str("currency", e.Currency.Hex()).Msg("executing erc20-currency-added event")
		return ep.executeERC20CurrencyAdded(ctx, e)
	case *ethereum.ContractERC20CurrencyRemoved:
		ep.log.Debug().Str("currency", e.Currency.Hex()).Msg("executing erc20-currency-removed event")
		return ep.store.DeleteCurrency(ctx, e.Currency.Hex())
	case *ethereum.ContractRaffleCreated:
		ep.log.Debug().Str("asset", e.AssetRaffled.Hex()).Msg("executing raffle-created event")
		return ep.executeRaffleCreated(ctx, e)
	case *ethereum.ContractNewLotteryStarted:
		ep.log.Debug().Str("lottery_id", e.LotteryId.String()).Msg("executing new-lottery-started event")
		return ep.store.InsertLottery(ctx, store.Lottery{
			Contract:  ep.contract.Hex(),
			LotteryID: e.LotteryId.Int64(),
			Status:    bridge.LotteryStateInProgress.String(),
			Winner:    (common.Address{}).Hex(),
		})
	case *ethereum.ContractTicketAssigned:
		ep.log.Debug().Str("lottery_id", e.LotteryId.String()).Msg("executing ticket-assigned event")
		return ep.store.AssignLotteryTickets(ctx, store.LotteryTicketRange{
			Contract:   ep.contract.Hex(),
			LotteryID:  e.LotteryId.Int64(),
			InitTicket: e.InitTicketId.Int64(),
			EndTicket:  e.EndTicketId.Int64(),
			Account:    e.User.Hex(),
		})
	case *ethereum.ContractLotteryStateChanged:
		ep.log.Debug().Str("lottery_id", e.LotteryId.String()).Msg("executing lottery-state-changed event")
		return ep.executeLotteryStateChanged(ctx, e)
	case *ethereum.ContractTokenAdded:
		ep.log.Debug().Str("lottery_id", e.LotteryId.String()).Msg("executing token-added event")
		return ep.store.AddLotteryPrize(
			ctx, ep.contract.Hex(), e.LotteryId.Int64(), e.Currency.Hex(), e.Amount.String())
	case *ethereum.ContractNFTAdded:
		ep.log.Debug().Str("lottery_id", e.LotteryId.String()).Msg("executing nft-added event")
		return ep.store.AddLotteryAsset(
			ctx, ep.contract.Hex(), e.LotteryId.Int64(), e.AssetContract.Hex(), e.NftId.String())
	case *ethereum.ContractLotteryCurrencyAdded:
		ep.log.Debug().Str("currency", e.Currency.Hex()).Msg("executing lottery-currency-added event")
		return ep.executeLotteryCurrencyAdded(ctx, e)
	case *ethereum.ContractLotteryCurrencyRemoved:
		ep.log.Debug().Str("currency", e.Currency.Hex()).Msg("executing lottery-currency-removed event")
		return ep.store.DeleteLotteryCurrency(ctx, ep.contract.Hex(), e.Currency.Hex())
	default:
		return fmt.Errorf("unknown event type %T", e)
	}
}

func (ep *EventProcessor) executeNewRaffleCreated(ctx context.Context, e *ethereum.ContractNewRaffleCreated) error {
	data, err := ep.reader.GetRaffle(ctx, e.RaffleId)
	if err != nil {
		return fmt.Errorf("fetching raffle record: %s", err)
	}

	state, err := bridge.RaffleStateFromOrdinal(data.RaffleState)
	if err != nil {
		return fmt.Errorf("decoding raffle state: %s", err)
	}
	raffleType, err := bridge.RaffleTypeFromOrdinal(data.RaffleType)
	if err != nil {
		return fmt.Errorf("decoding raffle type: %s", err)
	}

	// Enrichment is best effort. Every lookup degrades to a documented
	// default instead of failing the projection.
	var tokenURI string
	decimals := int64(enrich.DefaultDecimals)
	if raffleType == bridge.RaffleTypeERC721 {
		tokenURI = ep.enrich.TokenURI(ctx, data.AssetContract, data.NftIdOrAmount)
	} else {
		decimals = int64(ep.enrich.TokenInfo(ctx, data.AssetContract).Decimals)
	}
	assetInfo := ep.enrich.TokenInfo(ctx, data.AssetContract)
	currencyInfo := ep.enrich.TokenInfo(ctx, data.Currency)

	return ep.store.InsertRaffle(ctx, store.Raffle{
		RaffleID:           e.RaffleId.Int64(),
		AssetContract:      data.AssetContract.Hex(),
		Owner:              data.RaffleOwner.Hex(),
		Winner:             (common.Address{}).Hex(),
		State:              state.String(),
		Type:               raffleType.String(),
		NftIDOrAmount:      data.NftIdOrAmount.String(),
		Currency:           data.Currency.Hex(),
		PricePerTicket:     data.PricePerTicket.String(),
		MerkleRoot:         common.BytesToHash(data.MerkleRoot[:]).Hex(),
		EndTimestamp:       data.EndTimestamp.Int64(),
		TicketsSold:        data.TicketsSold.Int64(),
		MinimumTicketsSold: data.MinimumTicketsSold.Int64(),
		NumberOfTickets:    data.NumberOfTickets.Int64(),

		AssetName:        assetInfo.Name,
		TokenURI:         tokenURI,
		CurrencyName:     currencyInfo.Name,
		Decimals:         decimals,
		CurrencyDecimals: int64(currencyInfo.Decimals),
		Symbol:           assetInfo.Symbol,
	})
}

func (ep *EventProcessor) executeNewRaffleTicketBought(
	ctx context.Context,
	e *ethereum.ContractNewRaffleTicketBought,
) error {
	raffleID := e.RaffleId.Int64()
	// The contract reports ticket ids as an inclusive range; ticketsSold is
	// always the end ticket id plus one.
	if err := ep.store.SetTicketsSold(ctx, raffleID, e.EndTicketId.Int64()+1); err != nil {
		return fmt.Errorf("updating tickets sold: %s", err)
	}

	init, end := e.InitTicketId.Int64(), e.EndTicketId.Int64()
	tickets := make([]store.Ticket, 0, end-init+1)
	for ticketID := init; ticketID <= end; ticketID++ {
		tickets = append(tickets, store.Ticket{
			RaffleID: raffleID,
			TicketID: ticketID,
			Account:  e.Buyer.Hex(),
		})
	}
	if err := ep.store.InsertTickets(ctx, tickets); err != nil {
		return fmt.Errorf("inserting tickets: %s", err)
	}
	return nil
}

func (ep *EventProcessor) executeRaffleStateChanged(ctx context.Context, e *ethereum.ContractRaffleStateChanged) error {
	state, err := bridge.RaffleStateFromOrdinal(e.NewRaffleState)
	if err != nil {
		return fmt.Errorf("decoding raffle state: %s", err)
	}
	return ep.store.SetRaffleState(ctx, e.RaffleId.Int64(), state.String())
}

func (ep *EventProcessor) executeMainnetCall(ctx context.Context, e *ethereum.ContractMainnetCall) error {
	return ep.store.InsertCallback(ctx, store.Callback{
		Receiver:       e.Receiver.Hex(),
		AssetContract:  e.AssetContract.Hex(),
		IsERC721:       e.IsERC721,
		AmountOrNftID:  e.AmountOrNftIdToReceiver.String(),
		ClaimableDelta: e.IncreaseTotalAmountClaimable.String(),
		CreatedAt:      time.Now().Unix(),
		Processed:      false,
	})
}

func (ep *EventProcessor) executeTicketSellOrderCreated(
	ctx context.Context,
	e *ethereum.ContractTicketSellOrderCreated,
) error {
	info := ep.enrich.TokenInfo(ctx, e.Currency)
	return ep.store.ReplaceOrder(ctx, store.Order{
		RaffleID:         e.RaffleId.Int64(),
		TicketID:         e.TicketId.Int64(),
		Seller:           e.Seller.Hex(),
		Currency:         e.Currency.Hex(),
		Price:            e.Price.String(),
		Bought:           false,
		BoughtBy:         "0",
		CurrencyName:     info.Name,
		CurrencyDecimals: int64(info.Decimals),
	})
}

func (ep *EventProcessor) executeERC20CurrencyAdded(ctx context.Context, e *ethereum.ContractERC20CurrencyAdded) error {
	info := ep.enrich.TokenInfo(ctx, e.Currency)
	return ep.store.InsertCurrency(ctx, store.Currency{
		Address:  e.Currency.Hex(),
		Name:     info.Name,
		Symbol:   info.Symbol,
		Decimals: int64(info.Decimals),
	})
}

func (ep *EventProcessor) executeLotteryStateChanged(
	ctx context.Context,
	e *ethereum.ContractLotteryStateChanged,
) error {
	state, err := bridge.LotteryStateFromOrdinal(e.NewLotteryState)
	if err != nil {
		return fmt.Errorf("decoding lottery state: %s", err)
	}
	return ep.store.SetLotteryStatus(ctx, ep.contract.Hex(), e.LotteryId.Int64(), state.String())
}

func (ep *EventProcessor) executeLotteryCurrencyAdded(
	ctx context.Context,
	e *ethereum.ContractLotteryCurrencyAdded,
) error {
	info := ep.enrich.TokenInfo(ctx, e.Currency)
	return ep.store.InsertLotteryCurrency(ctx, ep.contract.Hex(), store.Currency{
		Address:  e.Currency.Hex(),
		Name:     info.Name,
		Symbol:   info.Symbol,
		Decimals: int64(info.Decimals),
	})
}

// executeRaffleCreated relays an escrow deposit into a raffle creation on
// the L2 contract. The winner, state and tickets-sold fields always start
// zeroed.
func (ep *EventProcessor) executeRaffleCreated(ctx context.Context, e *ethereum.ContractRaffleCreated) error {
	data := registry.RaffleData{
		AssetContract:      e.AssetRaffled,
		RaffleOwner:        e.RaffleOwner,
		RaffleWinner:       common.Address{},
		RaffleState:        uint8(bridge.RaffleStateInProgress),
		RaffleType:         e.RaffleType,
		Currency:           e.PaymentCurrency,
		MerkleRoot:         e.MerkleRoot,
		NftIdOrAmount:      e.NftIdOrAmount,
		PricePerTicket:     e.PricePerTicket,
		EndTimestamp:       e.EndTimestamp,
		NumberOfTickets:    e.NumberOfTotalTickets,
		TicketsSold:        big.NewInt(0),
		MinimumTicketsSold: e.MinimumTicketsSold,
	}
	if _, err := ep.l2Registry.CreateRaffle(ctx, data, e.FairRaffleFee); err != nil {
		return fmt.Errorf("submitting create raffle tx: %s", err)
	}
	return nil
}
