// Package eventfeed provides a stream of filtered on-chain events from a
// smart contract.
package eventfeed

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventType is an event name in a contract ABI.
type EventType string

// EventSet maps the event names of one contract to the struct type their
// payload is decoded into.
type EventSet map[EventType]reflect.Type

// EventFeed provides a stream of filtered events of one contract.
type EventFeed interface {
	Start(ctx context.Context, fromHeight int64, ch chan<- BlockEvents, filterEventTypes []EventType) error
}

// BlockEvents contains the events of one block, grouped by transaction.
type BlockEvents struct {
	BlockNumber int64
	Txns        []TxnEvents
}

// TxnEvents contains the events fired by one transaction.
type TxnEvents struct {
	TxnHash common.Hash
	Events  []interface{}
}

// ChainClient provides the chain APIs an event feed needs.
type ChainClient interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Config contains configuration attributes for an event feed.
type Config struct {
	MinBlockChainDepth int
	ChainAPIBackoff    time.Duration
	NewBlockTimeout    time.Duration
	PersistEvents      bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MinBlockChainDepth: 5,
		ChainAPIBackoff:    time.Second * 15,
		NewBlockTimeout:    time.Second * 30,
		PersistEvents:      false,
	}
}

// Option modifies a configuration attribute.
type Option func(*Config) error

// WithMinBlockDepth provides the confirmation depth a block must have to be
// considered final.
func WithMinBlockDepth(depth int) Option {
	return func(c *Config) error {
		if depth < 0 {
			return fmt.Errorf("depth must be non-negative")
		}
		c.MinBlockChainDepth = depth
		return nil
	}
}

// WithChainAPIBackoff provides the time to wait before retrying after a
// transient chain API error.
func WithChainAPIBackoff(backoff time.Duration) Option {
	return func(c *Config) error {
		if backoff < time.Second {
			return fmt.Errorf("chain api backoff is too low (<1s)")
		}
		c.ChainAPIBackoff = backoff
		return nil
	}
}

// WithNewBlockTimeout provides the quiet period after which the new-heads
// subscription is considered faulty and rebuilt.
func WithNewBlockTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < time.Second {
			return fmt.Errorf("new block timeout is too low (<1s)")
		}
		c.NewBlockTimeout = timeout
		return nil
	}
}

// WithEventPersistence indicates that decoded events should be saved in an
// audit table.
func WithEventPersistence(enabled bool) Option {
	return func(c *Config) error {
		c.PersistEvents = enabled
		return nil
	}
}
