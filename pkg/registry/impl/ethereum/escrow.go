package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/nonce"
	"github.com/fairraffle/go-rafflebridge/pkg/registry"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
)

// EscrowClient is the Ethereum implementation of the escrow registry client.
type EscrowClient struct {
	contract *EscrowContract
	backend  bind.ContractBackend
	wallet   *wallet.Wallet
	chainID  bridge.ChainID
	tracker  nonce.NonceTracker
}

var _ registry.EscrowRegistry = (*EscrowClient)(nil)

// NewEscrowClient creates a new EscrowClient.
func NewEscrowClient(
	backend bind.ContractBackend,
	chainID bridge.ChainID,
	contractAddr common.Address,
	wallet *wallet.Wallet,
	tracker nonce.NonceTracker,
) (*EscrowClient, error) {
	contract, err := NewEscrowContract(contractAddr, backend)
	if err != nil {
		return nil, fmt.Errorf("creating contract: %v", err)
	}
	return &EscrowClient{
		contract: contract,
		backend:  backend,
		wallet:   wallet,
		chainID:  chainID,
		tracker:  tracker,
	}, nil
}

// BatchCallback implements BatchCallback.
func (c *EscrowClient) BatchCallback(
	ctx context.Context,
	records []registry.CallbackRecord,
) (*types.Transaction, error) {
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %s", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.wallet.PrivateKey(), big.NewInt(int64(c.chainID)))
	if err != nil {
		return nil, fmt.Errorf("creating keyed transactor: %s", err)
	}

	tx, err := callWithRetry(ctx, c.tracker, func() (*types.Transaction, error) {
		registerPendingTx, unlock, nonce := c.tracker.GetNonce(ctx)
		defer unlock()

		opts := &bind.TransactOpts{
			Context:  ctx,
			Signer:   auth.Signer,
			From:     auth.From,
			Nonce:    big.NewInt(0).SetInt64(nonce),
			GasPrice: gasPrice,
		}

		tx, err := c.contract.BatchCallback(opts, records)
		if err != nil {
			return nil, err
		}
		registerPendingTx(tx.Hash())
		return tx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retryable BatchCallback call: %s", err)
	}
	return tx, nil
}
