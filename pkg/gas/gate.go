// Package gas implements the admission controller that keeps the relayer
// from submitting transactions when gas is expensive.
package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/metrics"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

// DefaultMaxGasPrice is the default submission ceiling, 200 gwei.
var DefaultMaxGasPrice = big.NewInt(200_000_000_000)

// GasPricer provides the current gas price of a chain.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// FeeGate decides whether a submission cycle may proceed at the current gas
// price. A skipped cycle is not an error: pending work stays queued and is
// retried next cycle.
type FeeGate struct {
	pricer      GasPricer
	maxGasPrice *big.Int

	mBaseLabels  []attribute.KeyValue
	mSkipCounter instrument.Int64Counter
}

// NewFeeGate creates a new fee gate with the provided ceiling in wei. A nil
// ceiling uses DefaultMaxGasPrice.
func NewFeeGate(pricer GasPricer, chainID bridge.ChainID, maxGasPrice *big.Int) (*FeeGate, error) {
	if maxGasPrice == nil {
		maxGasPrice = DefaultMaxGasPrice
	}
	g := &FeeGate{
		pricer:      pricer,
		maxGasPrice: maxGasPrice,
		mBaseLabels: append([]attribute.KeyValue{
			attribute.Int64("chain_id", int64(chainID)),
		}, metrics.BaseAttrs...),
	}

	meter := global.MeterProvider().Meter("rafflebridge")
	var err error
	g.mSkipCounter, err = meter.Int64Counter("rafflebridge.feegate.skips.count")
	if err != nil {
		return nil, fmt.Errorf("creating skip counter: %s", err)
	}

	return g, nil
}

// Allow reports whether a submission may proceed right now. The error is
// non-nil only if the gas price couldn't be fetched.
func (g *FeeGate) Allow(ctx context.Context) (bool, error) {
	gasPrice, err := g.pricer.SuggestGasPrice(ctx)
	if err != nil {
		return false, fmt.Errorf("suggest gas price: %s", err)
	}
	if gasPrice.Cmp(g.maxGasPrice) > 0 {
		logger.Info().
			Str("gas_price", gasPrice.String()).
			Str("max_gas_price", g.maxGasPrice.String()).
			Msg("gas price above ceiling, skipping cycle")
		g.mSkipCounter.Add(ctx, 1, g.mBaseLabels...)
		return false, nil
	}
	return true, nil
}
