// Package registry defines the clients used to interact with the raffle
// smart contracts.
package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RaffleData is the full on-chain record of a raffle.
type RaffleData struct {
	AssetContract      common.Address
	RaffleOwner        common.Address
	RaffleWinner       common.Address
	RaffleState        uint8
	RaffleType         uint8
	Currency           common.Address
	MerkleRoot         [32]byte
	NftIdOrAmount      *big.Int
	PricePerTicket     *big.Int
	EndTimestamp       *big.Int
	NumberOfTickets    *big.Int
	TicketsSold        *big.Int
	MinimumTicketsSold *big.Int
}

// CallbackRecord is one escrow payout instruction.
type CallbackRecord struct {
	Receiver                     common.Address
	AssetContract                common.Address
	IsERC721                     bool
	AmountOrNftIdToReceiver      *big.Int
	IncreaseTotalAmountClaimable *big.Int
}

// RaffleReader reads raffle records from the L2 raffles contract.
type RaffleReader interface {
	// GetRaffle reads the full raffle record.
	GetRaffle(ctx context.Context, raffleID *big.Int) (RaffleData, error)
}

// RaffleRegistry is the full client of the L2 raffles contract.
type RaffleRegistry interface {
	RaffleReader

	// CreateRaffle submits a createRaffle transaction.
	CreateRaffle(ctx context.Context, data RaffleData, fairRaffleFee *big.Int) (*types.Transaction, error)

	// CompleteRaffle submits a completeRaffle transaction.
	CompleteRaffle(ctx context.Context, raffleID *big.Int) (*types.Transaction, error)
}

// EscrowRegistry is the client of the L1 escrow contract.
type EscrowRegistry interface {
	// BatchCallback submits one transaction carrying a batch of payout
	// instructions.
	BatchCallback(ctx context.Context, records []CallbackRecord) (*types.Transaction, error)
}
