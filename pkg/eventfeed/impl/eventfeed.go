package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/eventfeed"
	"github.com/fairraffle/go-rafflebridge/pkg/store"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.uber.org/atomic"
)

const (
	maxBlocksFetchSizeStart = 100_000
)

// EventFeed provides a stream of filtered events from a smart contract.
type EventFeed struct {
	log                zerolog.Logger
	store              store.Store
	chainID            bridge.ChainID
	ethClient          eventfeed.ChainClient
	scAddress          common.Address
	scABI              *abi.ABI
	eventSet           eventfeed.EventSet
	config             *eventfeed.Config
	maxBlocksFetchSize int

	// Metrics
	mBaseLabels       []attribute.KeyValue
	mEventTypeCounter instrument.Int64Counter
	mCurrentHeight    atomic.Int64
}

// New returns a new EventFeed for one contract.
func New(
	s store.Store,
	chainID bridge.ChainID,
	ethClient eventfeed.ChainClient,
	scAddress common.Address,
	scABI *abi.ABI,
	eventSet eventfeed.EventSet,
	opts ...eventfeed.Option,
) (*EventFeed, error) {
	config := eventfeed.DefaultConfig()
	for _, o := range opts {
		if err := o(config); err != nil {
			return nil, fmt.Errorf("applying provided option: %s", err)
		}
	}
	log := logger.With().
		Str("component", "eventfeed").
		Int64("chain_id", int64(chainID)).
		Str("contract", scAddress.Hex()).
		Logger()
	ef := &EventFeed{
		log:                log,
		store:              s,
		chainID:            chainID,
		ethClient:          ethClient,
		scAddress:          scAddress,
		scABI:              scABI,
		eventSet:           eventSet,
		config:             config,
		maxBlocksFetchSize: maxBlocksFetchSizeStart,
	}
	if err := ef.initMetrics(chainID, scAddress); err != nil {
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}

	return ef, nil
}

// Start sends a stream of filtered events from a smart contract since `fromHeight` to the provided channel.
// This is a blocking call, so the caller must cancel the provided context to shut down the feed gracefully.
// The received channel won't be closed.
func (ef *EventFeed) Start(
	ctx context.Context,
	fromHeight int64,
	ch chan<- eventfeed.BlockEvents,
	filterEventTypes []eventfeed.EventType,
) error {
	ef.log.Debug().Msg("starting...")
	defer ef.log.Debug().Msg("stopped")

	// Spin up a background process that will post to chHeads when a new block is detected.
	// This channel is the heart-beat to pull new logs from the chain.
	ctx, cls := context.WithCancel(ctx)
	defer cls()
	chHeads := make(chan *types.Header, 1)
	if err := ef.notifyNewBlocks(ctx, chHeads); err != nil {
		return fmt.Errorf("creating background head notificator: %s", err)
	}

	// Create filterTopics that will be used to only listen for the desired events.
	filterTopics, err := ef.getTopicsForEventTypes(filterEventTypes)
	if err != nil {
		return fmt.Errorf("creating topics for filtered event types: %s", err)
	}

	// Listen for new blocks, and get new events.
	for h := range chHeads {
		if h.Number.Int64()%100 == 0 {
			ef.log.Debug().
				Int64("height", h.Number.Int64()).
				Int64("max_blocks_fetch_size", int64(ef.maxBlocksFetchSize)).
				Msg("received new chain header")
		}
		// We catch up from fromHeight to the new reported head in batches of at
		// most maxBlocksFetchSize blocks, to avoid asking the API for ranges it
		// would refuse or that would consume too much memory.
	Loop:
		for {
			if ctx.Err() != nil {
				break
			}
			// Only blocks at least minChainDepth behind the new known head are
			// accepted as final, to avoid reorg side effects.
			toHeight := h.Number.Int64() - int64(ef.config.MinBlockChainDepth)
			if toHeight < fromHeight {
				break
			}

			if toHeight-fromHeight+1 > int64(ef.maxBlocksFetchSize) {
				toHeight = fromHeight + int64(ef.maxBlocksFetchSize) - 1
			}

			query := ethereum.FilterQuery{
				FromBlock: big.NewInt(fromHeight),
				ToBlock:   big.NewInt(toHeight),
				Addresses: []common.Address{ef.scAddress},
				Topics:    [][]common.Hash{filterTopics},
			}
			logs, err := ef.ethClient.FilterLogs(ctx, query)
			if err != nil {
				// Log it but allow to be retried in the next head. The API can
				// have transient unavailability.
				ef.log.Warn().Err(err).Msgf("filter logs from %d to %d", fromHeight, toHeight)
				if strings.Contains(err.Error(), "read limit exceeded") ||
					strings.Contains(err.Error(), "is greater than the limit") {
					ef.maxBlocksFetchSize = ef.maxBlocksFetchSize * 80 / 100
				} else {
					time.Sleep(ef.config.ChainAPIBackoff)
				}
				continue Loop
			}

			if len(logs) > 0 {
				events := make([]interface{}, len(logs))
				for i, l := range logs {
					events[i], err = ef.parseEvent(l)
					if err != nil {
						ef.log.
							Error().
							Str("txn_hash", l.TxHash.Hex()).
							Err(err).
							Msg("parsing event")
						time.Sleep(ef.config.ChainAPIBackoff)
						continue Loop
					}
				}

				if ef.config.PersistEvents {
					if err := ef.persistEvents(ctx, logs, events); err != nil {
						ef.log.
							Error().
							Err(err).
							Msg("persist events")
						time.Sleep(ef.config.ChainAPIBackoff)
						continue Loop
					}
				}

				blocksEvents := ef.packEvents(logs, events)
				for i := range blocksEvents {
					select {
					case ch <- *blocksEvents[i]:
					case <-ctx.Done():
						return nil
					}
				}
			}

			// Update our fromHeight to the latest processed height plus one.
			fromHeight = toHeight + 1
			ef.mCurrentHeight.Store(fromHeight)
			ef.log.Debug().
				Int64("height", fromHeight).
				Str("progress", fmt.Sprintf("%d%%", fromHeight*100/h.Number.Int64())).
				Msg("processing height")
		}
	}
	return nil
}

// packEvents packs a linear stream of events in two nested groups:
// 1) First, by block_number.
// 2) Within a block_number, by txn_hash.
// Remember that one block contains multiple txns, and each txn can have more than one event.
func (ef *EventFeed) packEvents(logs []types.Log, parsedEvents []interface{}) []*eventfeed.BlockEvents {
	if len(logs) == 0 {
		return nil
	}

	var ret []*eventfeed.BlockEvents
	var curr *eventfeed.BlockEvents
	for i, l := range logs {
		// New block number detected? -> Close the block grouping.
		if curr == nil || curr.BlockNumber != int64(l.BlockNumber) {
			curr = &eventfeed.BlockEvents{
				BlockNumber: int64(l.BlockNumber),
			}
			ret = append(ret, curr)
		}
		// New txn hash detected? -> Close the txn hash event grouping, and continue with the next.
		if len(curr.Txns) == 0 || curr.Txns[len(curr.Txns)-1].TxnHash.String() != l.TxHash.String() {
			curr.Txns = append(curr.Txns, eventfeed.TxnEvents{
				TxnHash: l.TxHash,
			})
		}
		curr.Txns[len(curr.Txns)-1].Events = append(curr.Txns[len(curr.Txns)-1].Events, parsedEvents[i])
	}

	return ret
}

// parseEvent deconstructs a raw event that was received from the Ethereum
// node to a structured representation. Since the event can be of different
// types, we return an interface. Every possible concrete type is one of the
// Contract* structs registered in the feed's event set.
func (ef *EventFeed) parseEvent(l types.Log) (interface{}, error) {
	// Topic[0] in events is always an ID for the kind of event.
	eventDescr, err := ef.scABI.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("detecting event type: %s", err)
	}

	se, ok := ef.eventSet[eventfeed.EventType(eventDescr.Name)]
	if !ok {
		return nil, fmt.Errorf("unknown event type %s", eventDescr.Name)
	}
	// Create a new *ContractXXXX struct that corresponds to this event.
	i := reflect.New(se).Interface()

	// First, we unmarshal the information contained in the `data` of the
	// event, which are non-indexed fields of the event.
	if len(l.Data) > 0 {
		if err := ef.scABI.UnpackIntoInterface(i, eventDescr.Name, l.Data); err != nil {
			return nil, fmt.Errorf("unpacking into interface: %s", err)
		}
	}
	// Second, we unmarshal indexed fields which aren't in data but in Topics[1:].
	var indexed abi.Arguments
	for _, arg := range eventDescr.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopics(i, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("unpacking indexed topics: %s", err)
	}

	if raw := reflect.ValueOf(i).Elem().FieldByName("Raw"); raw.IsValid() && raw.CanSet() {
		raw.Set(reflect.ValueOf(l))
	}

	attrs := append([]attribute.KeyValue{attribute.String("name", eventDescr.Name)}, ef.mBaseLabels...)
	ef.mEventTypeCounter.Add(context.Background(), 1, attrs...)

	return i, nil
}

func (ef *EventFeed) getTopicsForEventTypes(ets []eventfeed.EventType) ([]common.Hash, error) {
	for _, fet := range ets {
		if _, ok := ef.eventSet[fet]; !ok {
			return nil, fmt.Errorf("event type filter %s isn't supported", fet)
		}
	}
	topics := make([]common.Hash, len(ets))
	for i, et := range ets {
		e, ok := ef.scABI.Events[string(et)]
		if !ok {
			return nil, fmt.Errorf("event type %s wasn't found in compiled contract", et)
		}
		topics[i] = e.ID
	}
	return topics, nil
}

// notifyNewBlocks will send to the provided channel new detected blocks in the chain.
// It's mandatory that the caller cancels the provided context to gracefully close the background process.
// When this happens the provided channel will be closed.
func (ef *EventFeed) notifyNewBlocks(ctx context.Context, clientCh chan *types.Header) error {
	// Always push as fast as possible the latest block.
	hbnCtx, hbnCls := context.WithTimeout(ctx, time.Second*10)
	defer hbnCls()
	h, err := ef.ethClient.HeaderByNumber(hbnCtx, nil)
	if err != nil {
		return fmt.Errorf("get current block: %s", err)
	}
	clientCh <- h

	ch := make(chan *types.Header, 1)
	notifierSignaler := make(chan struct{}, 1)
	notifierSignaler <- struct{}{}
	// Fire a goroutine that relays new detected blocks to the client, while also inspecting
	// the healthiness of the subscription. If the subscription is faulty, it notifies
	// that the subscription should be regenerated.
	go func() {
		defer close(clientCh)
		defer close(notifierSignaler)

		for {
			select {
			case <-ctx.Done():
				ef.log.Info().Msg("gracefully closing new blocks subscription")
				return
			case h := <-ch:
				select {
				case clientCh <- h:
				default:
					ef.log.Warn().Int("height", int(h.Number.Int64())).Msg("dropping new height")
				}
			case <-time.After(ef.config.NewBlockTimeout):
				ef.log.Warn().Dur("timeout", ef.config.NewBlockTimeout).Msgf("new blocks subscription is quiet, rebuilding")
				notifierSignaler <- struct{}{}
			}
		}
	}()

	// This goroutine is responsible for always having a **single** subscription. It can receive a signal from
	// the above goroutine to re-generate the current subscription since it was detected faulty.
	go func() {
		var sub ethereum.Subscription
		for range notifierSignaler {
			if sub != nil {
				sub.Unsubscribe()
			}
			sub, err = ef.ethClient.SubscribeNewHead(ctx, ch)
			if err != nil {
				sub = nil
				ef.log.Error().Err(err).Msg("subscribing to blocks")
				continue
			}
		}
		if sub != nil {
			sub.Unsubscribe()
		}
		ef.log.Info().Msg("gracefully closing notifier")
	}()

	return nil
}

func (ef *EventFeed) persistEvents(ctx context.Context, logs []types.Log, parsedEvents []interface{}) error {
	// All Contract* structs contain a `Raw` field which we want to avoid
	// appearing in the JSON serialization. The only thing we know about
	// events is that they're interface{}, so we use jsoniter to configure the
	// Marshal(...) function to omit any field named `Raw` dynamically.
	cfg := jsoniter.Config{}.Froze()
	cfg.RegisterExtension(&OmitRawFieldExtension{})

	shouldPersistTxnHashEvents := map[common.Hash]bool{}
	blockHeaderCache := map[common.Hash]*types.Header{}
	evmEvents := make([]bridge.EVMEvent, 0, len(logs))
	for i, e := range logs {
		// If we already have registered events for the TxHash, we skip persisting this log.
		// This happens when a crash occurred after persisting but before the
		// processor advanced the processed height; on restart the same range
		// is fetched and the events show up again.
		if _, ok := shouldPersistTxnHashEvents[e.TxHash]; !ok {
			areTxnEventsPersisted, err := ef.store.AreEVMEventsPersisted(ctx, ef.chainID, e.TxHash)
			if err != nil {
				return fmt.Errorf("check if evm txn events are persisted: %s", err)
			}
			shouldPersistTxnHashEvents[e.TxHash] = !areTxnEventsPersisted
		}
		if !shouldPersistTxnHashEvents[e.TxHash] {
			continue
		}

		blockHeader, ok := blockHeaderCache[e.BlockHash]
		if !ok {
			var err error
			blockHeader, err = ef.ethClient.HeaderByNumber(ctx, big.NewInt(int64(e.BlockNumber)))
			if err != nil {
				return fmt.Errorf("get block header %d: %s", e.BlockNumber, err)
			}
			blockHeaderCache[e.BlockHash] = blockHeader
		}

		eventJSONBytes, err := cfg.Marshal(parsedEvents[i])
		if err != nil {
			return fmt.Errorf("marshaling event: %s", err)
		}

		topicsHex := make([]string, len(e.Topics))
		for i, t := range e.Topics {
			topicsHex[i] = t.Hex()
		}
		topicsJSONBytes, err := json.Marshal(topicsHex)
		if err != nil {
			return fmt.Errorf("marshaling topics array: %s", err)
		}
		evmEvents = append(evmEvents, bridge.EVMEvent{
			// Direct mapping from types.Log
			Address:     e.Address,
			Topics:      topicsJSONBytes,
			Data:        e.Data,
			BlockNumber: e.BlockNumber,
			TxHash:      e.TxHash,
			TxIndex:     e.TxIndex,
			BlockHash:   e.BlockHash,
			Index:       e.Index,

			// Enhanced fields
			ChainID:   ef.chainID,
			EventJSON: eventJSONBytes,
			Timestamp: blockHeader.Time,
		})
	}

	if err := ef.store.SaveEVMEvents(ctx, evmEvents); err != nil {
		return fmt.Errorf("persisting events: %s", err)
	}

	return nil
}

// OmitRawFieldExtension configures jsoniter to skip any struct field named
// Raw. Based on https://github.com/json-iterator/go/issues/392.
type OmitRawFieldExtension struct {
	jsoniter.DummyExtension
}

// UpdateStructDescriptor implements jsoniter.Extension.
func (e *OmitRawFieldExtension) UpdateStructDescriptor(structDescriptor *jsoniter.StructDescriptor) {
	if binding := structDescriptor.GetField("Raw"); binding != nil {
		binding.ToNames = []string{}
	}
}
