package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/pkg/registry"
)

// RafflesMetaData contains the ABI of the L2 raffles contract, reduced to the
// events and functions this service uses.
var RafflesMetaData = &bind.MetaData{
	ABI: `[
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"raffleId","type":"uint256"}],"name":"NewRaffleCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"raffleId","type":"uint256"},{"indexed":false,"internalType":"address","name":"buyer","type":"address"},{"indexed":false,"internalType":"uint256","name":"numberOfTickets","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"initTicketId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"endTicketId","type":"uint256"}],"name":"NewRaffleTicketBought","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"raffleId","type":"uint256"},{"indexed":false,"internalType":"uint8","name":"oldRaffleState","type":"uint8"},{"indexed":false,"internalType":"uint8","name":"newRaffleState","type":"uint8"}],"name":"RaffleStateChanged","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"receiver","type":"address"},{"indexed":false,"internalType":"address","name":"assetContract","type":"address"},{"indexed":false,"internalType":"bool","name":"isERC721","type":"bool"},{"indexed":false,"internalType":"uint256","name":"amountOrNftIdToReceiver","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"increaseTotalAmountClaimable","type":"uint256"}],"name":"MainnetCall","type":"event"},
{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"raffles","outputs":[{"internalType":"address","name":"assetContract","type":"address"},{"internalType":"address","name":"raffleOwner","type":"address"},{"internalType":"address","name":"raffleWinner","type":"address"},{"internalType":"uint8","name":"raffleState","type":"uint8"},{"internalType":"uint8","name":"raffleType","type":"uint8"},{"internalType":"address","name":"currency","type":"address"},{"internalType":"bytes32","name":"merkleRoot","type":"bytes32"},{"internalType":"uint256","name":"nftIdOrAmount","type":"uint256"},{"internalType":"uint256","name":"pricePerTicket","type":"uint256"},{"internalType":"uint256","name":"endTimestamp","type":"uint256"},{"internalType":"uint256","name":"numberOfTickets","type":"uint256"},{"internalType":"uint256","name":"ticketsSold","type":"uint256"},{"internalType":"uint256","name":"minimumTicketsSold","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"components":[{"internalType":"address","name":"assetContract","type":"address"},{"internalType":"address","name":"raffleOwner","type":"address"},{"internalType":"address","name":"raffleWinner","type":"address"},{"internalType":"uint8","name":"raffleState","type":"uint8"},{"internalType":"uint8","name":"raffleType","type":"uint8"},{"internalType":"address","name":"currency","type":"address"},{"internalType":"bytes32","name":"merkleRoot","type":"bytes32"},{"internalType":"uint256","name":"nftIdOrAmount","type":"uint256"},{"internalType":"uint256","name":"pricePerTicket","type":"uint256"},{"internalType":"uint256","name":"endTimestamp","type":"uint256"},{"internalType":"uint256","name":"numberOfTickets","type":"uint256"},{"internalType":"uint256","name":"ticketsSold","type":"uint256"},{"internalType":"uint256","name":"minimumTicketsSold","type":"uint256"}],"internalType":"struct RaffleData","name":"raffleData","type":"tuple"},{"internalType":"uint256","name":"fairRaffleFee","type":"uint256"}],"name":"createRaffle","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint256","name":"raffleId","type":"uint256"}],"name":"completeRaffle","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`,
}

// MarketMetaData contains the ABI of the L2 ticket resale market contract,
// reduced to the events this service uses.
var MarketMetaData = &bind.MetaData{
	ABI: `[
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"seller","type":"address"},{"indexed":false,"internalType":"uint256","name":"raffleId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"ticketId","type":"uint256"},{"indexed":false,"internalType":"address","name":"currency","type":"address"},{"indexed":false,"internalType":"uint256","name":"price","type":"uint256"}],"name":"TicketSellOrderCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"seller","type":"address"},{"indexed":false,"internalType":"uint256","name":"raffleId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"ticketId","type":"uint256"},{"indexed":false,"internalType":"address","name":"currency","type":"address"},{"indexed":false,"internalType":"uint256","name":"price","type":"uint256"}],"name":"TicketSellOrderCancelled","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"buyer","type":"address"},{"indexed":false,"internalType":"address","name":"seller","type":"address"},{"indexed":false,"internalType":"uint256","name":"raffleId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"ticketId","type":"uint256"},{"indexed":false,"internalType":"address","name":"currency","type":"address"},{"indexed":false,"internalType":"uint256","name":"price","type":"uint256"}],"name":"TicketBoughtFromMarket","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"buyer","type":"address"},{"indexed":false,"internalType":"address","name":"seller","type":"address"},{"indexed":false,"internalType":"uint256","name":"raffleId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"ticketId","type":"uint256"},{"indexed":false,"internalType":"address","name":"currency","type":"address"},{"indexed":false,"internalType":"uint256","name":"price","type":"uint256"}],"name":"TicketBoughtFromMarketWithSignature","type":"event"}
]`,
}

// EscrowMetaData contains the ABI of the L1 escrow contract, reduced to the
// events and functions this service uses.
var EscrowMetaData = &bind.MetaData{
	ABI: `[
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"currency","type":"address"}],"name":"ERC20CurrencyAdded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"currency","type":"address"}],"name":"ERC20CurrencyRemoved","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"assetRaffled","type":"address"},{"indexed":false,"internalType":"address","name":"raffleOwner","type":"address"},{"indexed":false,"internalType":"uint8","name":"raffleType","type":"uint8"},{"indexed":false,"internalType":"uint256","name":"nftIdOrAmount","type":"uint256"},{"indexed":false,"internalType":"address","name":"paymentCurrency","type":"address"},{"indexed":false,"internalType":"uint256","name":"pricePerTicket","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"numberOfTotalTickets","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"minimumTicketsSold","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"endTimestamp","type":"uint256"},{"indexed":false,"internalType":"bytes32","name":"merkleRoot","type":"bytes32"},{"indexed":false,"internalType":"uint256","name":"fairRaffleFee","type":"uint256"}],"name":"RaffleCreated","type":"event"},
{"inputs":[{"components":[{"internalType":"address","name":"receiver","type":"address"},{"internalType":"address","name":"assetContract","type":"address"},{"internalType":"bool","name":"isERC721","type":"bool"},{"internalType":"uint256","name":"amountOrNftIdToReceiver","type":"uint256"},{"internalType":"uint256","name":"increaseTotalAmountClaimable","type":"uint256"}],"internalType":"struct CallbackRecord[]","name":"records","type":"tuple[]"}],"name":"batchCallback","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`,
}

// LotteryMetaData contains the ABI shared by the weekly and monthly lottery
// contracts, reduced to the events this service uses. The monthly contract
// never emits TokenAdded or the currency events, the weekly one never emits
// NFTAdded; the unused definitions are harmless.
var LotteryMetaData = &bind.MetaData{
	ABI: `[
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"lotteryId","type":"uint256"}],"name":"NewLotteryStarted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"lotteryId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"initTicketId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"endTicketId","type":"uint256"},{"indexed":false,"internalType":"address","name":"user","type":"address"}],"name":"TicketAssigned","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"lotteryId","type":"uint256"},{"indexed":false,"internalType":"uint8","name":"oldLotteryState","type":"uint8"},{"indexed":false,"internalType":"uint8","name":"newLotteryState","type":"uint8"}],"name":"LotteryStateChanged","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"lotteryId","type":"uint256"},{"indexed":false,"internalType":"address","name":"currency","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"TokenAdded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"lotteryId","type":"uint256"},{"indexed":false,"internalType":"address","name":"assetContract","type":"address"},{"indexed":false,"internalType":"uint256","name":"nftId","type":"uint256"}],"name":"NFTAdded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"currency","type":"address"}],"name":"ERC20CurrencyAdded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"address","name":"currency","type":"address"}],"name":"ERC20CurrencyRemoved","type":"event"}
]`,
}

// RafflesContract is a Go binding around the raffles contract.
type RafflesContract struct {
	contract *bind.BoundContract
}

// NewRafflesContract creates a new instance of the binding.
func NewRafflesContract(address common.Address, backend bind.ContractBackend) (*RafflesContract, error) {
	parsed, err := RafflesMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("parsing raffles abi: %s", err)
	}
	return &RafflesContract{
		contract: bind.NewBoundContract(address, *parsed, backend, backend, backend),
	}, nil
}

// Raffles calls the raffles(uint256) view.
func (c *RafflesContract) Raffles(opts *bind.CallOpts, raffleID *big.Int) (registry.RaffleData, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "raffles", raffleID); err != nil {
		return registry.RaffleData{}, err
	}

	return registry.RaffleData{
		AssetContract:      *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		RaffleOwner:        *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		RaffleWinner:       *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		RaffleState:        *abi.ConvertType(out[3], new(uint8)).(*uint8),
		RaffleType:         *abi.ConvertType(out[4], new(uint8)).(*uint8),
		Currency:           *abi.ConvertType(out[5], new(common.Address)).(*common.Address),
		MerkleRoot:         *abi.ConvertType(out[6], new([32]byte)).(*[32]byte),
		NftIdOrAmount:      *abi.ConvertType(out[7], new(*big.Int)).(**big.Int),
		PricePerTicket:     *abi.ConvertType(out[8], new(*big.Int)).(**big.Int),
		EndTimestamp:       *abi.ConvertType(out[9], new(*big.Int)).(**big.Int),
		NumberOfTickets:    *abi.ConvertType(out[10], new(*big.Int)).(**big.Int),
		TicketsSold:        *abi.ConvertType(out[11], new(*big.Int)).(**big.Int),
		MinimumTicketsSold: *abi.ConvertType(out[12], new(*big.Int)).(**big.Int),
	}, nil
}

// CreateRaffle invokes createRaffle(raffleData, fairRaffleFee).
func (c *RafflesContract) CreateRaffle(
	opts *bind.TransactOpts,
	data registry.RaffleData,
	fairRaffleFee *big.Int,
) (*types.Transaction, error) {
	return c.contract.Transact(opts, "createRaffle", data, fairRaffleFee)
}

// CompleteRaffle invokes completeRaffle(raffleId).
func (c *RafflesContract) CompleteRaffle(opts *bind.TransactOpts, raffleID *big.Int) (*types.Transaction, error) {
	return c.contract.Transact(opts, "completeRaffle", raffleID)
}

// EscrowContract is a Go binding around the escrow contract.
type EscrowContract struct {
	contract *bind.BoundContract
}

// NewEscrowContract creates a new instance of the binding.
func NewEscrowContract(address common.Address, backend bind.ContractBackend) (*EscrowContract, error) {
	parsed, err := EscrowMetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("parsing escrow abi: %s", err)
	}
	return &EscrowContract{
		contract: bind.NewBoundContract(address, *parsed, backend, backend, backend),
	}, nil
}

// BatchCallback invokes batchCallback(records).
func (c *EscrowContract) BatchCallback(
	opts *bind.TransactOpts,
	records []registry.CallbackRecord,
) (*types.Transaction, error) {
	return c.contract.Transact(opts, "batchCallback", records)
}
