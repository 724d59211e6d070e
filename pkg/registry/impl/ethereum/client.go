package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/nonce"
	"github.com/fairraffle/go-rafflebridge/pkg/registry"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
	"github.com/rs/zerolog/log"
)

// Client is the Ethereum implementation of the raffles registry client.
type Client struct {
	contract *RafflesContract
	backend  bind.ContractBackend
	wallet   *wallet.Wallet
	chainID  bridge.ChainID
	tracker  nonce.NonceTracker
}

var _ registry.RaffleRegistry = (*Client)(nil)

// NewClient creates a new Client.
func NewClient(
	backend bind.ContractBackend,
	chainID bridge.ChainID,
	contractAddr common.Address,
	wallet *wallet.Wallet,
	tracker nonce.NonceTracker,
) (*Client, error) {
	contract, err := NewRafflesContract(contractAddr, backend)
	if err != nil {
		return nil, fmt.Errorf("creating contract: %v", err)
	}
	return &Client{
		contract: contract,
		backend:  backend,
		wallet:   wallet,
		chainID:  chainID,
		tracker:  tracker,
	}, nil
}

// GetRaffle implements GetRaffle.
func (c *Client) GetRaffle(ctx context.Context, raffleID *big.Int) (registry.RaffleData, error) {
	opts := &bind.CallOpts{Context: ctx}
	data, err := c.contract.Raffles(opts, raffleID)
	if err != nil {
		return registry.RaffleData{}, fmt.Errorf("calling raffles view: %s", err)
	}
	return data, nil
}

// CreateRaffle implements CreateRaffle.
func (c *Client) CreateRaffle(
	ctx context.Context,
	data registry.RaffleData,
	fairRaffleFee *big.Int,
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

		tx, err := c.contract.CreateRaffle(opts, data, fairRaffleFee)
		if err != nil {
			return nil, err
		}
		registerPendingTx(tx.Hash())
		return tx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retryable CreateRaffle call: %s", err)
	}
	return tx, nil
}

// CompleteRaffle implements CompleteRaffle.
func (c *Client) CompleteRaffle(ctx context.Context, raffleID *big.Int) (*types.Transaction, error) {
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

		tx, err := c.contract.CompleteRaffle(opts, raffleID)
		if err != nil {
			return nil, err
		}
		registerPendingTx(tx.Hash())
		return tx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retryable CompleteRaffle call: %s", err)
	}
	return tx, nil
}

func callWithRetry(
	ctx context.Context,
	tracker nonce.NonceTracker,
	f func() (*types.Transaction, error),
) (*types.Transaction, error) {
	tx, err := f()

	possibleErrMgs := []string{"nonce too low", "invalid transaction nonce"}
	if err != nil {
		for _, errMsg := range possibleErrMgs {
			if strings.Contains(err.Error(), errMsg) {
				log.Warn().Err(err).Msg("retrying smart contract call")
				if err := tracker.Resync(ctx); err != nil {
					return nil, fmt.Errorf("resync: %s", err)
				}
				tx, err = f()
				if err != nil {
					return nil, fmt.Errorf("retry contract call: %s", err)
				}

				return tx, nil
			}
		}

		return nil, fmt.Errorf("contract call: %s", err)
	}

	return tx, nil
}
