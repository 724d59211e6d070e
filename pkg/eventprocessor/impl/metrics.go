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

func (ep *EventProcessor) initMetrics(chainID bridge.ChainID, contract common.Address) error {
	meter := global.MeterProvider().Meter("rafflebridge")
	ep.mBaseLabels = append([]attribute.KeyValue{
		attribute.Int64("chain_id", int64(chainID)),
		attribute.String("contract_address", contract.Hex()),
	}, metrics.BaseAttrs...)

	mExecutionRound, err := meter.Int64ObservableGauge("rafflebridge.eventprocessor.execution.round")
	if err != nil {
		return fmt.Errorf("creating execution round gauge: %s", err)
	}
	mLastProcessedHeight, err := meter.Int64ObservableGauge("rafflebridge.eventprocessor.last.processed.height")
	if err != nil {
		return fmt.Errorf("creating last processed height gauge: %s", err)
	}
	if _, err := meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mExecutionRound, ep.mExecutionRound.Load(), ep.mBaseLabels...)
			o.ObserveInt64(mLastProcessedHeight, ep.mLastProcessedHeight.Load(), ep.mBaseLabels...)
			return nil
		}, []instrument.Asynchronous{
			mExecutionRound,
			mLastProcessedHeight,
		}...); err != nil {
		return fmt.Errorf("registering async metric callback: %s", err)
	}

	ep.mEventExecutionCounter, err = meter.Int64Counter("rafflebridge.eventprocessor.event.execution.count")
	if err != nil {
		return fmt.Errorf("creating event execution counter: %s", err)
	}
	ep.mEventDropCounter, err = meter.Int64Counter("rafflebridge.eventprocessor.event.drop.count")
	if err != nil {
		return fmt.Errorf("creating event drop counter: %s", err)
	}
	ep.mBlockExecutionLatency, err = meter.Int64Histogram("rafflebridge.eventprocessor.block.execution.latency")
	if err != nil {
		return fmt.Errorf("creating block execution latency histogram: %s", err)
	}

	return nil
}
