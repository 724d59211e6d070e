package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fairraffle/go-rafflebridge/pkg/registry"
)

// Reader is a read-only client of the raffles contract. Listener processes
// use it since they carry no relayer wallet.
type Reader struct {
	contract *RafflesContract
}

var _ registry.RaffleReader = (*Reader)(nil)

// NewReader creates a new Reader.
func NewReader(backend bind.ContractBackend, contractAddr common.Address) (*Reader, error) {
	contract, err := NewRafflesContract(contractAddr, backend)
	if err != nil {
		return nil, fmt.Errorf("creating contract: %v", err)
	}
	return &Reader{contract: contract}, nil
}

// GetRaffle implements GetRaffle.
func (r *Reader) GetRaffle(ctx context.Context, raffleID *big.Int) (registry.RaffleData, error) {
	opts := &bind.CallOpts{Context: ctx}
	data, err := r.contract.Raffles(opts, raffleID)
	if err != nil {
		return registry.RaffleData{}, fmt.Errorf("calling raffles view: %s", err)
	}
	return data, nil
}
