package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID is a supported EVM chain identifier.
type ChainID int64

// RaffleState is the lifecycle state of a raffle.
type RaffleState uint8

// Raffle lifecycle states, in contract ordinal order.
const (
	RaffleStateInProgress RaffleState = iota
	RaffleStateFinished
	RaffleStateCompleted
	RaffleStateRefunded
	RaffleStateClaimed
)

var raffleStateNames = []string{
	"IN_PROGRESS",
	"FINISHED",
	"COMPLETED",
	"REFUNDED",
	"CLAIMED",
}

// String returns the display name of the state, as stored in the mirror.
func (s RaffleState) String() string {
	if int(s) >= len(raffleStateNames) {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
	return raffleStateNames[s]
}

// RaffleStateFromOrdinal maps a contract state ordinal to a RaffleState.
func RaffleStateFromOrdinal(ordinal uint8) (RaffleState, error) {
	if int(ordinal) >= len(raffleStateNames) {
		return 0, fmt.Errorf("raffle state ordinal %d out of range", ordinal)
	}
	return RaffleState(ordinal), nil
}

// LotteryState is the lifecycle state of a lottery. Lotteries have an extra
// NOT_STARTED state before ticket sales open.
type LotteryState uint8

// Lottery lifecycle states, in contract ordinal order.
const (
	LotteryStateNotStarted LotteryState = iota
	LotteryStateInProgress
	LotteryStateFinished
	LotteryStateCompleted
	LotteryStateClaimed
)

var lotteryStateNames = []string{
	"NOT_STARTED",
	"IN_PROGRESS",
	"FINISHED",
	"COMPLETED",
	"CLAIMED",
}

// String returns the display name of the state.
func (s LotteryState) String() string {
	if int(s) >= len(lotteryStateNames) {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
	return lotteryStateNames[s]
}

// LotteryStateFromOrdinal maps a contract state ordinal to a LotteryState.
func LotteryStateFromOrdinal(ordinal uint8) (LotteryState, error) {
	if int(ordinal) >= len(lotteryStateNames) {
		return 0, fmt.Errorf("lottery state ordinal %d out of range", ordinal)
	}
	return LotteryState(ordinal), nil
}

// RaffleType is the kind of asset being raffled.
type RaffleType uint8

// Raffle asset kinds, in contract ordinal order.
const (
	RaffleTypeERC721 RaffleType = iota
	RaffleTypeERC20
)

var raffleTypeNames = []string{
	"ERC721",
	"ERC20",
}

// String returns the display name of the raffle type.
func (t RaffleType) String() string {
	if int(t) >= len(raffleTypeNames) {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
	return raffleTypeNames[t]
}

// RaffleTypeFromOrdinal maps a contract type ordinal to a RaffleType.
func RaffleTypeFromOrdinal(ordinal uint8) (RaffleType, error) {
	if int(ordinal) >= len(raffleTypeNames) {
		return 0, fmt.Errorf("raffle type ordinal %d out of range", ordinal)
	}
	return RaffleType(ordinal), nil
}

// EVMEvent is a Ethereum event that is persisted in the audit table.
type EVMEvent struct {
	Address     common.Address
	Topics      []byte
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	TxIndex     uint
	BlockHash   common.Hash
	Index       uint

	// Enhanced fields
	ChainID   ChainID
	EventJSON []byte
	Timestamp uint64
}
