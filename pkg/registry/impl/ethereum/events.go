package ethereum

import (
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fairraffle/go-rafflebridge/pkg/eventfeed"
)

// ContractNewRaffleCreated represents a NewRaffleCreated event raised by the
// raffles contract.
type ContractNewRaffleCreated struct {
	RaffleId *big.Int
	Raw      types.Log
}

// ContractNewRaffleTicketBought represents a NewRaffleTicketBought event
// raised by the raffles contract.
type ContractNewRaffleTicketBought struct {
	RaffleId        *big.Int
	Buyer           common.Address
	NumberOfTickets *big.Int
	InitTicketId    *big.Int
	EndTicketId     *big.Int
	Raw             types.Log
}

// ContractRaffleStateChanged represents a RaffleStateChanged event raised by
// the raffles contract.
type ContractRaffleStateChanged struct {
	RaffleId       *big.Int
	OldRaffleState uint8
	NewRaffleState uint8
	Raw            types.Log
}

// ContractMainnetCall represents a MainnetCall event raised by the raffles
// contract.
type ContractMainnetCall struct {
	Receiver                     common.Address
	AssetContract                common.Address
	IsERC721                     bool
	AmountOrNftIdToReceiver      *big.Int
	IncreaseTotalAmountClaimable *big.Int
	Raw                          types.Log
}

// ContractTicketSellOrderCreated represents a TicketSellOrderCreated event
// raised by the market contract.
type ContractTicketSellOrderCreated struct {
	Seller   common.Address
	RaffleId *big.Int
	TicketId *big.Int
	Currency common.Address
	Price    *big.Int
	Raw      types.Log
}

// ContractTicketSellOrderCancelled represents a TicketSellOrderCancelled
// event raised by the market contract.
type ContractTicketSellOrderCancelled struct {
	Seller   common.Address
	RaffleId *big.Int
	TicketId *big.Int
	Currency common.Address
	Price    *big.Int
	Raw      types.Log
}

// ContractTicketBoughtFromMarket represents a TicketBoughtFromMarket event
// raised by the market contract.
type ContractTicketBoughtFromMarket struct {
	Buyer    common.Address
	Seller   common.Address
	RaffleId *big.Int
	TicketId *big.Int
	Currency common.Address
	Price    *big.Int
	Raw      types.Log
}

// ContractTicketBoughtFromMarketWithSignature represents a
// TicketBoughtFromMarketWithSignature event raised by the market contract.
type ContractTicketBoughtFromMarketWithSignature struct {
	Buyer    common.Address
	Seller   common.Address
	RaffleId *big.Int
	TicketId *big.Int
	Currency common.Address
	Price    *big.Int
	Raw      types.Log
}

// ContractERC20CurrencyAdded represents an ERC20CurrencyAdded event raised by
// the escrow contract.
type ContractERC20CurrencyAdded struct {
	Currency common.Address
	Raw      types.Log
}

// ContractERC20CurrencyRemoved represents an ERC20CurrencyRemoved event
// raised by the escrow contract.
type ContractERC20CurrencyRemoved struct {
	Currency common.Address
	Raw      types.Log
}

// ContractRaffleCreated represents a RaffleCreated event raised by the escrow
// contract.
type ContractRaffleCreated struct {
	AssetRaffled         common.Address
	RaffleOwner          common.Address
	RaffleType           uint8
	NftIdOrAmount        *big.Int
	PaymentCurrency      common.Address
	PricePerTicket       *big.Int
	NumberOfTotalTickets *big.Int
	MinimumTicketsSold   *big.Int
	EndTimestamp         *big.Int
	MerkleRoot           [32]byte
	FairRaffleFee        *big.Int
	Raw                  types.Log
}

// ContractNewLotteryStarted represents a NewLotteryStarted event raised by a
// lottery contract.
type ContractNewLotteryStarted struct {
	LotteryId *big.Int
	Raw       types.Log
}

// ContractTicketAssigned represents a TicketAssigned event raised by a
// lottery contract.
type ContractTicketAssigned struct {
	LotteryId    *big.Int
	InitTicketId *big.Int
	EndTicketId  *big.Int
	User         common.Address
	Raw          types.Log
}

// ContractLotteryStateChanged represents a LotteryStateChanged event raised
// by a lottery contract.
type ContractLotteryStateChanged struct {
	LotteryId       *big.Int
	OldLotteryState uint8
	NewLotteryState uint8
	Raw             types.Log
}

// ContractTokenAdded represents a TokenAdded event raised by a lottery
// contract when ERC-20 prize funds are deposited.
type ContractTokenAdded struct {
	LotteryId *big.Int
	Currency  common.Address
	Amount    *big.Int
	Raw       types.Log
}

// ContractNFTAdded represents an NFTAdded event raised by a lottery contract
// when an ERC-721 prize is deposited.
type ContractNFTAdded struct {
	LotteryId     *big.Int
	AssetContract common.Address
	NftId         *big.Int
	Raw           types.Log
}

// ContractLotteryCurrencyAdded represents an ERC20CurrencyAdded event raised
// by a lottery contract. Lottery allowlists are tracked apart from the escrow
// allowlist, so the event gets its own type.
type ContractLotteryCurrencyAdded struct {
	Currency common.Address
	Raw      types.Log
}

// ContractLotteryCurrencyRemoved represents an ERC20CurrencyRemoved event
// raised by a lottery contract.
type ContractLotteryCurrencyRemoved struct {
	Currency common.Address
	Raw      types.Log
}

// RafflesEvents is the set of raffles contract events the feed can decode.
var RafflesEvents = eventfeed.EventSet{
	"NewRaffleCreated":      reflect.TypeOf(ContractNewRaffleCreated{}),
	"NewRaffleTicketBought": reflect.TypeOf(ContractNewRaffleTicketBought{}),
	"RaffleStateChanged":    reflect.TypeOf(ContractRaffleStateChanged{}),
	"MainnetCall":           reflect.TypeOf(ContractMainnetCall{}),
}

// MarketEvents is the set of market contract events the feed can decode.
var MarketEvents = eventfeed.EventSet{
	"TicketSellOrderCreated":              reflect.TypeOf(ContractTicketSellOrderCreated{}),
	"TicketSellOrderCancelled":            reflect.TypeOf(ContractTicketSellOrderCancelled{}),
	"TicketBoughtFromMarket":              reflect.TypeOf(ContractTicketBoughtFromMarket{}),
	"TicketBoughtFromMarketWithSignature": reflect.TypeOf(ContractTicketBoughtFromMarketWithSignature{}),
}

// EscrowEvents is the set of escrow contract events the feed can decode.
var EscrowEvents = eventfeed.EventSet{
	"ERC20CurrencyAdded":   reflect.TypeOf(ContractERC20CurrencyAdded{}),
	"ERC20CurrencyRemoved": reflect.TypeOf(ContractERC20CurrencyRemoved{}),
	"RaffleCreated":        reflect.TypeOf(ContractRaffleCreated{}),
}

// LotteryEvents is the set of lottery contract events the feed can decode.
// The weekly and monthly contracts share this set; a contract that lacks one
// of these events simply never produces a matching log.
var LotteryEvents = eventfeed.EventSet{
	"NewLotteryStarted":    reflect.TypeOf(ContractNewLotteryStarted{}),
	"TicketAssigned":       reflect.TypeOf(ContractTicketAssigned{}),
	"LotteryStateChanged":  reflect.TypeOf(ContractLotteryStateChanged{}),
	"TokenAdded":           reflect.TypeOf(ContractTokenAdded{}),
	"NFTAdded":             reflect.TypeOf(ContractNFTAdded{}),
	"ERC20CurrencyAdded":   reflect.TypeOf(ContractLotteryCurrencyAdded{}),
	"ERC20CurrencyRemoved": reflect.TypeOf(ContractLotteryCurrencyRemoved{}),
}
