// Package store defines the persistence API for the off-chain mirror.
package store

import (
	"context"
	"database/sql"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fairraffle/go-rafflebridge/internal/bridge"
)

// Raffle is a row of the raffles table, the mirror of the on-chain raffle
// record plus best-effort enrichment fields.
type Raffle struct {
	RaffleID           int64
	AssetContract      string
	Owner              string
	Winner             string
	State              string
	Type               string
	NftIDOrAmount      string
	Currency           string
	PricePerTicket     string
	MerkleRoot         string
	EndTimestamp       int64
	TicketsSold        int64
	MinimumTicketsSold int64
	NumberOfTickets    int64

	// Enrichment (may carry defaults, see package enrich)
	AssetName        string
	TokenURI         string
	CurrencyName     string
	Decimals         int64
	CurrencyDecimals int64
	Symbol           string
}

// Ticket is a single ticket owned by an account. Purchases are reported as
// inclusive index ranges and materialized one row per index.
type Ticket struct {
	RaffleID int64
	TicketID int64
	Account  string
}

// Order is a resale order for a single ticket.
type Order struct {
	RaffleID         int64
	TicketID         int64
	Seller           string
	Currency         string
	Price            string
	Bought           bool
	BoughtBy         string
	CurrencyName     string
	CurrencyDecimals int64
}

// Currency is an allowlisted payment currency.
type Currency struct {
	Address  string
	Name     string
	Symbol   string
	Decimals int64
}

// Lottery is a row of the lotteries table. The weekly and monthly lottery
// contracts share the table, keyed by contract address.
type Lottery struct {
	Contract    string
	LotteryID   int64
	Status      string
	Winner      string
	TicketsSold int64
}

// LotteryTicketRange is a block of lottery tickets assigned to an account.
// Unlike raffle tickets, assignments stay stored as inclusive ranges.
type LotteryTicketRange struct {
	Contract   string
	LotteryID  int64
	InitTicket int64
	EndTicket  int64
	Account    string
}

// Callback is a row of the callbacks outbox. It is inserted by the event
// processor with Processed=false and flipped to true by the relayer exactly
// once, after the corresponding L1 transaction is confirmed.
type Callback struct {
	ID             int64
	Receiver       string
	AssetContract  string
	IsERC721       bool
	AmountOrNftID  string
	ClaimableDelta string
	CreatedAt      int64
	Processed      bool
}

// Store is the persistence API of the mirror database. It is the only writer
// of raffle/ticket/order/currency rows; the callbacks outbox is written here
// and consumed by the relayer.
type Store interface {
	InsertRaffle(ctx context.Context, r Raffle) error
	GetRaffle(ctx context.Context, raffleID int64) (Raffle, error)
	SetTicketsSold(ctx context.Context, raffleID int64, ticketsSold int64) error
	SetRaffleState(ctx context.Context, raffleID int64, state string) error
	InsertTickets(ctx context.Context, tickets []Ticket) error
	ListExpiredRaffles(ctx context.Context, deadline int64) ([]int64, error)

	ReplaceOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, raffleID int64, ticketID int64) error
	MarkOrderBought(ctx context.Context, raffleID int64, ticketID int64, buyer string) error

	InsertCurrency(ctx context.Context, c Currency) error
	DeleteCurrency(ctx context.Context, address string) error

	InsertLottery(ctx context.Context, l Lottery) error
	GetLottery(ctx context.Context, contract string, lotteryID int64) (Lottery, error)
	SetLotteryStatus(ctx context.Context, contract string, lotteryID int64, status string) error
	AssignLotteryTickets(ctx context.Context, r LotteryTicketRange) error
	AddLotteryPrize(ctx context.Context, contract string, lotteryID int64, currency string, amount string) error
	AddLotteryAsset(ctx context.Context, contract string, lotteryID int64, assetContract string, nftID string) error
	InsertLotteryCurrency(ctx context.Context, contract string, c Currency) error
	DeleteLotteryCurrency(ctx context.Context, contract string, address string) error

	InsertCallback(ctx context.Context, cb Callback) error
	ListPendingCallbacks(ctx context.Context, limit int) ([]Callback, error)
	MarkCallbacksProcessed(ctx context.Context, ids []int64) error

	GetLastProcessedHeight(ctx context.Context, chainID bridge.ChainID, contract common.Address) (int64, error)
	SetLastProcessedHeight(ctx context.Context, chainID bridge.ChainID, contract common.Address, height int64) error

	AreEVMEventsPersisted(ctx context.Context, chainID bridge.ChainID, txnHash common.Hash) (bool, error)
	SaveEVMEvents(ctx context.Context, events []bridge.EVMEvent) error

	Close() error
}

// DBGetter exposes the underlying handle for components that share the
// mirror database, such as the nonce store.
type DBGetter interface {
	DB() *sql.DB
}
