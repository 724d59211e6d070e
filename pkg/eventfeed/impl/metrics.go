package impl

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

func (ef *EventFeed) initMetrics(chainID bridge.ChainID, scAddress common.Address) error {
	meter := global.MeterProvider().Meter("rafflebridge")
	ef.mBaseLabels = append([]attribute.KeyValue{
		attribute.Int64("chain_id", int64(chainID)),
		attribute.String("contract_address", scAddress.Hex()),
	}, metrics.BaseAttrs...)

	var err error
	ef.mEventTypeCounter, err = meter.Int64Counter("rafflebridge.eventfeed.eventypes.count")
	if err != nil {
		return fmt.Errorf("creating event types counter: %s", err)
	}

	mCurrentHeight, err := meter.Int64ObservableGauge("rafflebridge.eventfeed.height")
	if err != nil {
		return fmt.Errorf("creating current height gauge: %s", err)
	}
	if _, err := meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mCurrentHeight, ef.mCurrentHeight.Load(), ef.mBaseLabels...)
			return nil
		}, []instrument.Asynchronous{mCurrentHeight}...); err != nil {
		return fmt.Errorf("registering async metric callback: %s", err)
	}

	return nil
}
