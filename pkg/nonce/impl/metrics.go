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

func (t *LocalTracker) initMetrics(chainID bridge.ChainID, addr common.Address) error {
	meter := global.MeterProvider().Meter("rafflebridge")
	t.mBaseLabels = append([]attribute.KeyValue{
		attribute.Int64("chain_id", int64(chainID)),
		attribute.String("wallet_address", addr.String()),
	}, metrics.BaseAttrs...)

	mNonce, err := meter.Int64ObservableGauge("rafflebridge.wallettracker.nonce")
	if err != nil {
		return fmt.Errorf("creating nonce metric: %s", err)
	}
	mPendingTxns, err := meter.Int64ObservableGauge("rafflebridge.wallettracker.pending.txns")
	if err != nil {
		return fmt.Errorf("creating pending txns metric: %s", err)
	}

	if _, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			o.ObserveInt64(mNonce, t.currNonce, t.mBaseLabels...)
			o.ObserveInt64(mPendingTxns, int64(len(t.pendingTxs)), t.mBaseLabels...)

			return nil
		}, []instrument.Asynchronous{
			mNonce,
			mPendingTxns,
		}...); err != nil {
		return fmt.Errorf("registering async metric callback: %s", err)
	}

	return nil
}
