package impl

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/database"
	"github.com/fairraffle/go-rafflebridge/pkg/store"
	"github.com/fairraffle/go-rafflebridge/tests"
)

func TestInsertAndGetRaffle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	raffle := testRaffle(1)
	require.NoError(t, s.InsertRaffle(ctx, raffle))

	got, err := s.GetRaffle(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, raffle, got)

	_, err = s.GetRaffle(ctx, 42)
	require.ErrorIs(t, err, ErrRaffleNotFound)
}

func TestSetTicketsSoldAndState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.InsertRaffle(ctx, testRaffle(1)))

	require.NoError(t, s.SetTicketsSold(ctx, 1, 15))
	require.NoError(t, s.SetRaffleState(ctx, 1, bridge.RaffleStateCompleted.String()))

	got, err := s.GetRaffle(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(15), got.TicketsSold)
	require.Equal(t, bridge.RaffleStateCompleted.String(), got.State)
}

func TestInsertTicketsIgnoresRedelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	buyer := "0x29921406E90fD5136DeD6b853049907630EA3210"
	tickets := make([]store.Ticket, 0, 5)
	for ticketID := int64(10); ticketID <= 14; ticketID++ {
		tickets = append(tickets, store.Ticket{RaffleID: 1, TicketID: ticketID, Account: buyer})
	}
	require.NoError(t, s.InsertTickets(ctx, tickets))
	// a re-delivered purchase event must not create extra rows
	require.NoError(t, s.InsertTickets(ctx, tickets))

	var count int
	require.NoError(t, s.db.SQLDB.QueryRow("SELECT count(1) FROM tickets WHERE raffle_id = 1").Scan(&count))
	require.Equal(t, 5, count)
}

func TestListExpiredRaffles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	inProgress := testRaffle(1)
	inProgress.EndTimestamp = 100
	require.NoError(t, s.InsertRaffle(ctx, inProgress))

	completed := testRaffle(2)
	completed.EndTimestamp = 100
	completed.State = bridge.RaffleStateCompleted.String()
	require.NoError(t, s.InsertRaffle(ctx, completed))

	notExpired := testRaffle(3)
	notExpired.EndTimestamp = 500
	require.NoError(t, s.InsertRaffle(ctx, notExpired))

	ids, err := s.ListExpiredRaffles(ctx, 200)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids)

	// the deadline bound is strict
	ids, err = s.ListExpiredRaffles(ctx, 100)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestReplaceOrderSupersedes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	seller := "0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704"
	order := store.Order{
		RaffleID: 1, TicketID: 7, Seller: seller,
		Currency: "0x0000000000000000000000000000000000000000",
		Price:    "1000000000000000000", BoughtBy: "0",
	}
	require.NoError(t, s.ReplaceOrder(ctx, order))

	// re-listing the same ticket replaces the previous order
	order.Price = "2000000000000000000"
	require.NoError(t, s.ReplaceOrder(ctx, order))

	var count int
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT count(1) FROM orders WHERE raffle_id = 1 AND ticket_id = 7").Scan(&count))
	require.Equal(t, 1, count)

	var price string
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT price FROM orders WHERE raffle_id = 1 AND ticket_id = 7").Scan(&price))
	require.Equal(t, "2000000000000000000", price)
}

func TestMarkOrderBought(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	seller := "0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704"
	buyer := "0x29921406E90fD5136DeD6b853049907630EA3210"
	require.NoError(t, s.ReplaceOrder(ctx, store.Order{
		RaffleID: 1, TicketID: 7, Seller: seller,
		Currency: "0x0", Price: "10", BoughtBy: "0",
	}))

	require.NoError(t, s.MarkOrderBought(ctx, 1, 7, buyer))

	var bought bool
	var boughtBy string
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT bought, bought_by FROM orders WHERE raffle_id = 1 AND ticket_id = 7").Scan(&bought, &boughtBy))
	require.True(t, bought)
	require.Equal(t, buyer, boughtBy)
}

func TestDeleteOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.ReplaceOrder(ctx, store.Order{
		RaffleID: 1, TicketID: 7, Seller: "0xdead", Currency: "0x0", Price: "10", BoughtBy: "0",
	}))
	require.NoError(t, s.DeleteOrder(ctx, 1, 7))

	var count int
	require.NoError(t, s.db.SQLDB.QueryRow("SELECT count(1) FROM orders").Scan(&count))
	require.Zero(t, count)
}

func TestCurrencies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	addr := "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	require.NoError(t, s.InsertCurrency(ctx, store.Currency{
		Address: addr, Name: "USD Coin", Symbol: "USDC", Decimals: 6,
	}))
	// re-adding updates in place
	require.NoError(t, s.InsertCurrency(ctx, store.Currency{
		Address: addr, Name: "USD Coin", Symbol: "USDC.e", Decimals: 6,
	}))

	var symbol string
	require.NoError(t, s.db.SQLDB.QueryRow(
		"SELECT symbol FROM currencies WHERE address = ?1", addr).Scan(&symbol))
	require.Equal(t, "USDC.e", symbol)

	require.NoError(t, s.DeleteCurrency(ctx, addr))
	var count int
	require.NoError(t, s.db.SQLDB.QueryRow("SELECT count(1) FROM currencies").Scan(&count))
	require.Zero(t, count)
}

func TestCallbacksOutbox(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, s.InsertCallback(ctx, store.Callback{
			Receiver:       "0x29921406E90fD5136DeD6b853049907630EA3210",
			AssetContract:  "0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704",
			IsERC721:       i%2 == 0,
			AmountOrNftID:  "1",
			ClaimableDelta: "0",
			CreatedAt:      int64(1000 + i),
		}))
	}

	pending, err := s.ListPendingCallbacks(ctx, 15)
	require.NoError(t, err)
	require.Len(t, pending, 15)
	// insertion order
	for i := 1; i < len(pending); i++ {
		require.Greater(t, pending[i].ID, pending[i-1].ID)
	}

	ids := make([]int64, len(pending))
	for i, cb := range pending {
		ids[i] = cb.ID
	}
	require.NoError(t, s.MarkCallbacksProcessed(ctx, ids))

	remaining, err := s.ListPendingCallbacks(ctx, 15)
	require.NoError(t, err)
	require.Len(t, remaining, 5)
	for _, cb := range remaining {
		require.NotContains(t, ids, cb.ID)
	}

	// marking twice is harmless
	require.NoError(t, s.MarkCallbacksProcessed(ctx, ids))
	remaining, err = s.ListPendingCallbacks(ctx, 15)
	require.NoError(t, err)
	require.Len(t, remaining, 5)
}

func TestFeedProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	chainID := bridge.ChainID(80001)
	contract := common.HexToAddress("0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704")

	height, err := s.GetLastProcessedHeight(ctx, chainID, contract)
	require.NoError(t, err)
	require.Zero(t, height)

	require.NoError(t, s.SetLastProcessedHeight(ctx, chainID, contract, 100))
	require.NoError(t, s.SetLastProcessedHeight(ctx, chainID, contract, 200))

	height, err = s.GetLastProcessedHeight(ctx, chainID, contract)
	require.NoError(t, err)
	require.Equal(t, int64(200), height)

	// progress is tracked per chain and contract
	height, err = s.GetLastProcessedHeight(ctx, bridge.ChainID(5), contract)
	require.NoError(t, err)
	require.Zero(t, height)
}

func TestEVMEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	chainID := bridge.ChainID(80001)
	txHash := common.HexToHash("0x9221d20f6e9b0e8d76bde0b91d33744e1b2b5e0e0e8ba0427a3f7e64ff4ac91d")

	persisted, err := s.AreEVMEventsPersisted(ctx, chainID, txHash)
	require.NoError(t, err)
	require.False(t, persisted)

	events := []bridge.EVMEvent{
		{
			ChainID:     chainID,
			Address:     common.HexToAddress("0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704"),
			Topics:      []byte(`["0xabc"]`),
			Data:        []byte{0x01},
			BlockNumber: 10,
			TxHash:      txHash,
			TxIndex:     0,
			BlockHash:   common.HexToHash("0x01"),
			Index:       0,
			EventJSON:   []byte(`{"raffleId":"1"}`),
			Timestamp:   1000,
		},
	}
	require.NoError(t, s.SaveEVMEvents(ctx, events))
	// saving the same events again is a noop
	require.NoError(t, s.SaveEVMEvents(ctx, events))

	persisted, err = s.AreEVMEventsPersisted(ctx, chainID, txHash)
	require.NoError(t, err)
	require.True(t, persisted)

	var count int
	require.NoError(t, s.db.SQLDB.QueryRow("SELECT count(1) FROM evm_events").Scan(&count))
	require.Equal(t, 1, count)
}

func newStore(t *testing.T) *MirrorStore {
	t.Helper()

	db, err := database.Open(tests.MirrorDBURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(db)
}

func testRaffle(id int64) store.Raffle {
	return store.Raffle{
		RaffleID:           id,
		AssetContract:      "0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704",
		Owner:              "0x29921406E90fD5136DeD6b853049907630EA3210",
		Winner:             "0x0000000000000000000000000000000000000000",
		State:              bridge.RaffleStateInProgress.String(),
		Type:               bridge.RaffleTypeERC721.String(),
		NftIDOrAmount:      "1",
		Currency:           "0x0000000000000000000000000000000000000000",
		PricePerTicket:     "1000000000000000000",
		MerkleRoot:         "0x0000000000000000000000000000000000000000000000000000000000000000",
		EndTimestamp:       1893456000,
		TicketsSold:        0,
		MinimumTicketsSold: 10,
		NumberOfTickets:    100,
		AssetName:          "Cool Cats",
		TokenURI:           "https://ipfs.io/ipfs/Qm/1",
		CurrencyName:       "Matic",
		Decimals:           18,
		CurrencyDecimals:   18,
		Symbol:             "MATIC",
	}
}
