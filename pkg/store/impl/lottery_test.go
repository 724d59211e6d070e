package impl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/store"
)

var (
	weeklyContract  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	monthlyContract = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
)

func TestInsertAndGetLottery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	lottery := store.Lottery{
		Contract:  weeklyContract,
		LotteryID: 3,
		Status:    bridge.LotteryStateInProgress.String(),
		Winner:    "0x0000000000000000000000000000000000000000",
	}
	require.NoError(t, s.InsertLottery(ctx, lottery))

	got, err := s.GetLottery(ctx, weeklyContract, 3)
	require.NoError(t, err)
	require.Equal(t, lottery, got)

	_, err = s.GetLottery(ctx, weeklyContract, 42)
	require.ErrorIs(t, err, ErrLotteryNotFound)

	// lotteries are keyed per contract, the same id can exist on both
	_, err = s.GetLottery(ctx, monthlyContract, 3)
	require.ErrorIs(t, err, ErrLotteryNotFound)
	lottery.Contract = monthlyContract
	require.NoError(t, s.InsertLottery(ctx, lottery))
}

func TestSetLotteryStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.InsertLottery(ctx, store.Lottery{
		Contract:  weeklyContract,
		LotteryID: 3,
		Status:    bridge.LotteryStateInProgress.String(),
	}))
	require.NoError(t, s.SetLotteryStatus(ctx, weeklyContract, 3, bridge.LotteryStateFinished.String()))

	got, err := s.GetLottery(ctx, weeklyContract, 3)
	require.NoError(t, err)
	require.Equal(t, bridge.LotteryStateFinished.String(), got.Status)
}

func TestAssignLotteryTickets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.InsertLottery(ctx, store.Lottery{
		Contract:  weeklyContract,
		LotteryID: 3,
		Status:    bridge.LotteryStateInProgress.String(),
	}))

	account := "0x29921406E90fD5136DeD6b853049907630EA3210"
	require.NoError(t, s.AssignLotteryTickets(ctx, store.LotteryTicketRange{
		Contract:   weeklyContract,
		LotteryID:  3,
		InitTicket: 1,
		EndTicket:  5,
		Account:    account,
	}))
	require.NoError(t, s.AssignLotteryTickets(ctx, store.LotteryTicketRange{
		Contract:   weeklyContract,
		LotteryID:  3,
		InitTicket: 6,
		EndTicket:  9,
		Account:    account,
	}))

	// one row per assigned range
	var count int
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT count(1) FROM lottery_tickets WHERE contract_address = ?1 AND lottery_id = 3",
		weeklyContract).Scan(&count))
	require.Equal(t, 2, count)

	// the counter tracks the latest end ticket id
	got, err := s.GetLottery(ctx, weeklyContract, 3)
	require.NoError(t, err)
	require.Equal(t, int64(9), got.TicketsSold)
}

func TestAddLotteryPrize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	currency := "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	// amounts can exceed int64
	require.NoError(t, s.AddLotteryPrize(ctx, weeklyContract, 3, currency, "10000000000000000000"))
	require.NoError(t, s.AddLotteryPrize(ctx, weeklyContract, 3, currency, "5000000000000000000"))

	var amount string
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT amount FROM lottery_prizes WHERE contract_address = ?1 AND lottery_id = 3 AND currency = ?2",
		weeklyContract, currency).Scan(&amount))
	require.Equal(t, "15000000000000000000", amount)

	require.Error(t, s.AddLotteryPrize(ctx, weeklyContract, 3, currency, "not-a-number"))
}

func TestAddLotteryAsset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	assetContract := "0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704"
	require.NoError(t, s.AddLotteryAsset(ctx, monthlyContract, 3, assetContract, "7"))
	require.NoError(t, s.AddLotteryAsset(ctx, monthlyContract, 3, assetContract, "8"))

	var count int
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT count(1) FROM lottery_assets WHERE contract_address = ?1 AND lottery_id = 3",
		monthlyContract).Scan(&count))
	require.Equal(t, 2, count)
}

func TestLotteryCurrencies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	addr := "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	require.NoError(t, s.InsertLotteryCurrency(ctx, weeklyContract, store.Currency{
		Address: addr, Name: "USD Coin", Symbol: "USDC", Decimals: 6,
	}))
	// re-adding updates in place
	require.NoError(t, s.InsertLotteryCurrency(ctx, weeklyContract, store.Currency{
		Address: addr, Name: "USD Coin", Symbol: "USDC.e", Decimals: 6,
	}))

	var symbol string
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT symbol FROM lottery_currencies WHERE contract_address = ?1 AND address = ?2",
		weeklyContract, addr).Scan(&symbol))
	require.Equal(t, "USDC.e", symbol)

	require.NoError(t, s.DeleteLotteryCurrency(ctx, weeklyContract, addr))
	var count int
	require.NoError(t, s.db.SQLDB.QueryRow("SELECT count(1) FROM lottery_currencies").Scan(&count))
	require.Zero(t, count)
}
