package impl

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"testing"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/database"
	"github.com/fairraffle/go-rafflebridge/pkg/enrich"
	"github.com/fairraffle/go-rafflebridge/pkg/eventfeed"
	"github.com/fairraffle/go-rafflebridge/pkg/registry"
	"github.com/fairraffle/go-rafflebridge/pkg/registry/impl/ethereum"
	storeimpl "github.com/fairraffle/go-rafflebridge/pkg/store/impl"
	"github.com/fairraffle/go-rafflebridge/tests"
)

var (
	assetAddr    = common.HexToAddress("0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704")
	ownerAddr    = common.HexToAddress("0x29921406E90fD5136DeD6b853049907630EA3210")
	currencyAddr = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
)

func TestExecuteNewRaffleCreated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader := &fakeReader{data: registry.RaffleData{
		AssetContract:      assetAddr,
		RaffleOwner:        ownerAddr,
		RaffleWinner:       common.Address{},
		RaffleState:        uint8(bridge.RaffleStateInProgress),
		RaffleType:         uint8(bridge.RaffleTypeERC20),
		Currency:           currencyAddr,
		NftIdOrAmount:      big.NewInt(1000),
		PricePerTicket:     big.NewInt(5),
		EndTimestamp:       big.NewInt(1893456000),
		NumberOfTickets:    big.NewInt(100),
		TicketsSold:        big.NewInt(0),
		MinimumTicketsSold: big.NewInt(10),
	}}
	ep, s, _ := newProcessor(t, reader, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractNewRaffleCreated{RaffleId: big.NewInt(1)})
	require.NoError(t, err)

	raffle, err := s.GetRaffle(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, assetAddr.Hex(), raffle.AssetContract)
	require.Equal(t, ownerAddr.Hex(), raffle.Owner)
	// the winner always starts zeroed
	require.Equal(t, (common.Address{}).Hex(), raffle.Winner)
	require.Equal(t, "IN_PROGRESS", raffle.State)
	require.Equal(t, "ERC20", raffle.Type)
	require.Equal(t, "1000", raffle.NftIDOrAmount)
	// the enrichment backend is down, every lookup degrades to its default
	require.Equal(t, "", raffle.AssetName)
	require.Equal(t, "", raffle.CurrencyName)
	require.Equal(t, int64(18), raffle.Decimals)
	require.Equal(t, int64(18), raffle.CurrencyDecimals)
}

func TestExecuteNewRaffleCreatedReaderError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, _, _ := newProcessor(t, &fakeReader{err: errors.New("rpc down")}, nil)
	err := ep.executeEvent(ctx, &ethereum.ContractNewRaffleCreated{RaffleId: big.NewInt(1)})
	require.Error(t, err)
}

func TestExecuteNewRaffleTicketBought(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, _, db := newProcessor(t, nil, nil)
	insertRaffle(t, db, 1)

	err := ep.executeEvent(ctx, &ethereum.ContractNewRaffleTicketBought{
		RaffleId:        big.NewInt(1),
		Buyer:           ownerAddr,
		NumberOfTickets: big.NewInt(5),
		InitTicketId:    big.NewInt(10),
		EndTicketId:     big.NewInt(14),
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM tickets WHERE raffle_id = 1").Scan(&count))
	require.Equal(t, 5, count)

	// tickets sold is the end ticket id plus one
	var sold int64
	require.NoError(t, db.QueryRow("SELECT tickets_sold FROM raffles WHERE raffle_id = 1").Scan(&sold))
	require.Equal(t, int64(15), sold)
}

func TestExecuteRaffleStateChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, s, db := newProcessor(t, nil, nil)
	insertRaffle(t, db, 1)

	err := ep.executeEvent(ctx, &ethereum.ContractRaffleStateChanged{
		RaffleId:       big.NewInt(1),
		OldRaffleState: 0,
		NewRaffleState: 2,
	})
	require.NoError(t, err)

	raffle, err := s.GetRaffle(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "COMPLETED", raffle.State)

	// an out-of-range ordinal is rejected
	err = ep.executeEvent(ctx, &ethereum.ContractRaffleStateChanged{
		RaffleId:       big.NewInt(1),
		NewRaffleState: 9,
	})
	require.Error(t, err)
}

func TestExecuteMainnetCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, s, _ := newProcessor(t, nil, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractMainnetCall{
		Receiver:                     ownerAddr,
		AssetContract:                assetAddr,
		IsERC721:                     true,
		AmountOrNftIdToReceiver:      big.NewInt(7),
		IncreaseTotalAmountClaimable: big.NewInt(0),
	})
	require.NoError(t, err)

	pending, err := s.ListPendingCallbacks(ctx, 15)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, ownerAddr.Hex(), pending[0].Receiver)
	require.True(t, pending[0].IsERC721)
	require.Equal(t, "7", pending[0].AmountOrNftID)
	require.False(t, pending[0].Processed)
}

func TestExecuteMarketOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, _, db := newProcessor(t, nil, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractTicketSellOrderCreated{
		Seller:   ownerAddr,
		RaffleId: big.NewInt(1),
		TicketId: big.NewInt(7),
		Currency: currencyAddr,
		Price:    big.NewInt(100),
	})
	require.NoError(t, err)

	var boughtBy string
	require.NoError(t, db.QueryRow(
		"SELECT bought_by FROM orders WHERE raffle_id = 1 AND ticket_id = 7").Scan(&boughtBy))
	require.Equal(t, "0", boughtBy)

	err = ep.executeEvent(ctx, &ethereum.ContractTicketBoughtFromMarket{
		Buyer:    assetAddr,
		Seller:   ownerAddr,
		RaffleId: big.NewInt(1),
		TicketId: big.NewInt(7),
		Currency: currencyAddr,
		Price:    big.NewInt(100),
	})
	require.NoError(t, err)

	var bought bool
	require.NoError(t, db.QueryRow(
		"SELECT bought FROM orders WHERE raffle_id = 1 AND ticket_id = 7").Scan(&bought))
	require.True(t, bought)

	err = ep.executeEvent(ctx, &ethereum.ContractTicketSellOrderCancelled{
		Seller:   ownerAddr,
		RaffleId: big.NewInt(1),
		TicketId: big.NewInt(7),
		Currency: currencyAddr,
		Price:    big.NewInt(100),
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM orders").Scan(&count))
	require.Zero(t, count)
}

func TestExecuteCurrencyAllowlist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, _, db := newProcessor(t, nil, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractERC20CurrencyAdded{Currency: currencyAddr})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM currencies").Scan(&count))
	require.Equal(t, 1, count)

	err = ep.executeEvent(ctx, &ethereum.ContractERC20CurrencyRemoved{Currency: currencyAddr})
	require.NoError(t, err)

	require.NoError(t, db.QueryRow("SELECT count(1) FROM currencies").Scan(&count))
	require.Zero(t, count)
}

func TestExecuteNewLotteryStarted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, s, _ := newProcessor(t, nil, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractNewLotteryStarted{LotteryId: big.NewInt(3)})
	require.NoError(t, err)

	lottery, err := s.GetLottery(ctx, assetAddr.Hex(), 3)
	require.NoError(t, err)
	require.Equal(t, "IN_PROGRESS", lottery.Status)
	// the winner always starts zeroed
	require.Equal(t, (common.Address{}).Hex(), lottery.Winner)
	require.Zero(t, lottery.TicketsSold)
}

func TestExecuteTicketAssigned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, s, db := newProcessor(t, nil, nil)
	require.NoError(t, ep.executeEvent(ctx, &ethereum.ContractNewLotteryStarted{LotteryId: big.NewInt(3)}))

	err := ep.executeEvent(ctx, &ethereum.ContractTicketAssigned{
		LotteryId:    big.NewInt(3),
		InitTicketId: big.NewInt(10),
		EndTicketId:  big.NewInt(14),
		User:         ownerAddr,
	})
	require.NoError(t, err)

	// assignments are stored as a single range row, not one row per ticket
	var count int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM lottery_tickets WHERE lottery_id = 3").Scan(&count))
	require.Equal(t, 1, count)

	// the tickets-sold counter is the end ticket id as-is
	lottery, err := s.GetLottery(ctx, assetAddr.Hex(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(14), lottery.TicketsSold)
}

func TestExecuteLotteryStateChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, s, _ := newProcessor(t, nil, nil)
	require.NoError(t, ep.executeEvent(ctx, &ethereum.ContractNewLotteryStarted{LotteryId: big.NewInt(3)}))

	err := ep.executeEvent(ctx, &ethereum.ContractLotteryStateChanged{
		LotteryId:       big.NewInt(3),
		OldLotteryState: 1,
		NewLotteryState: 3,
	})
	require.NoError(t, err)

	lottery, err := s.GetLottery(ctx, assetAddr.Hex(), 3)
	require.NoError(t, err)
	require.Equal(t, "COMPLETED", lottery.Status)

	// an out-of-range ordinal is rejected
	err = ep.executeEvent(ctx, &ethereum.ContractLotteryStateChanged{
		LotteryId:       big.NewInt(3),
		NewLotteryState: 9,
	})
	require.Error(t, err)
}

func TestExecuteTokenAddedAccumulates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, _, db := newProcessor(t, nil, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractTokenAdded{
		LotteryId: big.NewInt(3),
		Currency:  currencyAddr,
		Amount:    big.NewInt(100),
	})
	require.NoError(t, err)
	err = ep.executeEvent(ctx, &ethereum.ContractTokenAdded{
		LotteryId: big.NewInt(3),
		Currency:  currencyAddr,
		Amount:    big.NewInt(50),
	})
	require.NoError(t, err)

	// deposits for the same (lottery, currency) accumulate into one row
	var amount string
	require.NoError(t, db.QueryRow(
		"SELECT amount FROM lottery_prizes WHERE lottery_id = 3 AND currency = ?1",
		currencyAddr.Hex()).Scan(&amount))
	require.Equal(t, "150", amount)
}

func TestExecuteNFTAdded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, _, db := newProcessor(t, nil, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractNFTAdded{
		LotteryId:     big.NewInt(3),
		AssetContract: assetAddr,
		NftId:         big.NewInt(7),
	})
	require.NoError(t, err)

	var nftID string
	require.NoError(t, db.QueryRow(
		"SELECT nft_id FROM lottery_assets WHERE lottery_id = 3 AND asset_contract = ?1",
		assetAddr.Hex()).Scan(&nftID))
	require.Equal(t, "7", nftID)
}

func TestExecuteLotteryCurrencyAllowlist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, _, db := newProcessor(t, nil, nil)

	err := ep.executeEvent(ctx, &ethereum.ContractLotteryCurrencyAdded{Currency: currencyAddr})
	require.NoError(t, err)

	// the lottery allowlist is its own table; the escrow one stays empty
	var count int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM lottery_currencies").Scan(&count))
	require.Equal(t, 1, count)
	require.NoError(t, db.QueryRow("SELECT count(1) FROM currencies").Scan(&count))
	require.Zero(t, count)

	// the enrichment backend is down, the decimals degrade to the default
	var decimals int64
	require.NoError(t, db.QueryRow(
		"SELECT decimals FROM lottery_currencies WHERE address = ?1", currencyAddr.Hex()).Scan(&decimals))
	require.Equal(t, int64(18), decimals)

	err = ep.executeEvent(ctx, &ethereum.ContractLotteryCurrencyRemoved{Currency: currencyAddr})
	require.NoError(t, err)

	require.NoError(t, db.QueryRow("SELECT count(1) FROM lottery_currencies").Scan(&count))
	require.Zero(t, count)
}

func TestExecuteRaffleCreatedForwards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l2Registry := &fakeRegistry{}
	ep, _, _ := newProcessor(t, nil, l2Registry)

	merkleRoot := [32]byte{0x01}
	err := ep.executeEvent(ctx, &ethereum.ContractRaffleCreated{
		AssetRaffled:         assetAddr,
		RaffleOwner:          ownerAddr,
		RaffleType:           uint8(bridge.RaffleTypeERC721),
		NftIdOrAmount:        big.NewInt(7),
		PaymentCurrency:      currencyAddr,
		PricePerTicket:       big.NewInt(5),
		NumberOfTotalTickets: big.NewInt(100),
		MinimumTicketsSold:   big.NewInt(10),
		EndTimestamp:         big.NewInt(1893456000),
		MerkleRoot:           merkleRoot,
		FairRaffleFee:        big.NewInt(250),
	})
	require.NoError(t, err)

	require.Len(t, l2Registry.created, 1)
	created := l2Registry.created[0]
	require.Equal(t, assetAddr, created.AssetContract)
	require.Equal(t, merkleRoot, created.MerkleRoot)
	// the relayed raffle always starts zeroed
	require.Equal(t, common.Address{}, created.RaffleWinner)
	require.Equal(t, uint8(bridge.RaffleStateInProgress), created.RaffleState)
	require.Zero(t, created.TicketsSold.Int64())
	require.Equal(t, big.NewInt(250), l2Registry.fees[0])
}

func TestExecuteUnknownEvent(t *testing.T) {
	t.Parallel()

	ep, _, _ := newProcessor(t, nil, nil)
	require.Error(t, ep.executeEvent(context.Background(), struct{}{}))
}

func TestExecuteBlockEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ep, s, db := newProcessor(t, nil, nil)
	insertRaffle(t, db, 1)

	bes := eventfeed.BlockEvents{
		BlockNumber: 10,
		Txns: []eventfeed.TxnEvents{
			{
				TxnHash: common.HexToHash("0x01"),
				Events: []interface{}{
					&ethereum.ContractNewRaffleTicketBought{
						RaffleId:        big.NewInt(1),
						Buyer:           ownerAddr,
						NumberOfTickets: big.NewInt(1),
						InitTicketId:    big.NewInt(0),
						EndTicketId:     big.NewInt(0),
					},
					// a failing event is dropped, the block still advances
					struct{}{},
				},
			},
		},
	}
	require.NoError(t, ep.executeBlockEvents(ctx, bes))

	height, err := s.GetLastProcessedHeight(ctx, ep.chainID, ep.contract)
	require.NoError(t, err)
	require.Equal(t, int64(10), height)

	var count int
	require.NoError(t, db.QueryRow("SELECT count(1) FROM tickets").Scan(&count))
	require.Equal(t, 1, count)

	// a replayed block is skipped without reprojecting
	require.NoError(t, ep.executeBlockEvents(ctx, bes))
	require.NoError(t, db.QueryRow("SELECT count(1) FROM tickets").Scan(&count))
	require.Equal(t, 1, count)
}

func newProcessor(t *testing.T, reader registry.RaffleReader, l2Registry registry.RaffleRegistry) (
	*EventProcessor, *storeimpl.MirrorStore, *sql.DB,
) {
	t.Helper()

	db, err := database.Open(tests.MirrorDBURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := storeimpl.New(db)

	enrichCache := enrich.NewCache(&downBackend{}, "Matic", "MATIC")

	ep, err := New(s, nil, reader, l2Registry, enrichCache, 1337, assetAddr, nil)
	require.NoError(t, err)
	return ep, s, db.SQLDB
}

func insertRaffle(t *testing.T, db *sql.DB, id int64) {
	t.Helper()

	_, err := db.Exec(`INSERT INTO raffles (
		raffle_id, asset_contract, raffle_owner, raffle_winner, raffle_state,
		raffle_type, nft_id_or_amount, currency, price_per_ticket, merkle_root,
		end_timestamp, minimum_tickets_sold, number_of_tickets
	) VALUES (?1, '0x', '0x', '0x', 'IN_PROGRESS', 'ERC721', '1', '0x', '1', '0x', 0, 1, 10)`, id)
	require.NoError(t, err)
}

type fakeReader struct {
	data registry.RaffleData
	err  error
}

func (r *fakeReader) GetRaffle(ctx context.Context, raffleID *big.Int) (registry.RaffleData, error) {
	return r.data, r.err
}

type fakeRegistry struct {
	created []registry.RaffleData
	fees    []*big.Int
}

func (r *fakeRegistry) GetRaffle(ctx context.Context, raffleID *big.Int) (registry.RaffleData, error) {
	return registry.RaffleData{}, errors.New("not implemented")
}

func (r *fakeRegistry) CreateRaffle(
	ctx context.Context,
	data registry.RaffleData,
	fairRaffleFee *big.Int,
) (*types.Transaction, error) {
	r.created = append(r.created, data)
	r.fees = append(r.fees, fairRaffleFee)
	return types.NewTx(&types.LegacyTx{}), nil
}

func (r *fakeRegistry) CompleteRaffle(ctx context.Context, raffleID *big.Int) (*types.Transaction, error) {
	return nil, errors.New("not implemented")
}

// downBackend is a bind.ContractBackend whose calls always fail, driving
// every enrichment lookup to its fallback.
type downBackend struct{}

func (b *downBackend) CallContract(
	ctx context.Context,
	call goethereum.CallMsg,
	blockNumber *big.Int,
) ([]byte, error) {
	return nil, errors.New("rpc down")
}

func (b *downBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("rpc down")
}

func (b *downBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return nil, errors.New("rpc down")
}

func (b *downBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return nil, errors.New("rpc down")
}

func (b *downBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, errors.New("rpc down")
}

func (b *downBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return nil, errors.New("rpc down")
}

func (b *downBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return nil, errors.New("rpc down")
}

func (b *downBackend) EstimateGas(ctx context.Context, call goethereum.CallMsg) (uint64, error) {
	return 0, errors.New("rpc down")
}

func (b *downBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return errors.New("rpc down")
}

func (b *downBackend) FilterLogs(ctx context.Context, query goethereum.FilterQuery) ([]types.Log, error) {
	return nil, errors.New("rpc down")
}

func (b *downBackend) SubscribeFilterLogs(
	ctx context.Context,
	query goethereum.FilterQuery,
	ch chan<- types.Log,
) (goethereum.Subscription, error) {
	return nil, errors.New("rpc down")
}
