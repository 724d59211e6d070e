package impl

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/fairraffle/go-rafflebridge/pkg/eventfeed"
	"github.com/fairraffle/go-rafflebridge/pkg/registry/impl/ethereum"
)

func TestParseEvent(t *testing.T) {
	t.Parallel()

	ef := newFeed(t)

	buyer := common.HexToAddress("0x29921406E90fD5136DeD6b853049907630EA3210")
	l := packLog(t, ef, "NewRaffleTicketBought",
		big.NewInt(1), buyer, big.NewInt(5), big.NewInt(10), big.NewInt(14))
	l.TxHash = common.HexToHash("0xabc")

	parsed, err := ef.parseEvent(l)
	require.NoError(t, err)

	event, ok := parsed.(*ethereum.ContractNewRaffleTicketBought)
	require.True(t, ok)
	require.Equal(t, int64(1), event.RaffleId.Int64())
	require.Equal(t, buyer, event.Buyer)
	require.Equal(t, int64(5), event.NumberOfTickets.Int64())
	require.Equal(t, int64(10), event.InitTicketId.Int64())
	require.Equal(t, int64(14), event.EndTicketId.Int64())
	require.Equal(t, l.TxHash, event.Raw.TxHash)
}

func TestParseEventStateChanged(t *testing.T) {
	t.Parallel()

	ef := newFeed(t)

	l := packLog(t, ef, "RaffleStateChanged", big.NewInt(7), uint8(0), uint8(2))

	parsed, err := ef.parseEvent(l)
	require.NoError(t, err)

	event, ok := parsed.(*ethereum.ContractRaffleStateChanged)
	require.True(t, ok)
	require.Equal(t, int64(7), event.RaffleId.Int64())
	require.Equal(t, uint8(0), event.OldRaffleState)
	require.Equal(t, uint8(2), event.NewRaffleState)
}

func TestParseEventUnknownTopic(t *testing.T) {
	t.Parallel()

	ef := newFeed(t)

	l := types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}
	_, err := ef.parseEvent(l)
	require.Error(t, err)
}

func TestPackEvents(t *testing.T) {
	t.Parallel()

	ef := newFeed(t)

	logs := []types.Log{
		{BlockNumber: 10, TxHash: common.HexToHash("0x01")},
		{BlockNumber: 10, TxHash: common.HexToHash("0x01")},
		{BlockNumber: 10, TxHash: common.HexToHash("0x02")},
		{BlockNumber: 11, TxHash: common.HexToHash("0x03")},
	}
	parsed := []interface{}{"a", "b", "c", "d"}

	blocks := ef.packEvents(logs, parsed)
	require.Len(t, blocks, 2)

	require.Equal(t, int64(10), blocks[0].BlockNumber)
	require.Len(t, blocks[0].Txns, 2)
	require.Equal(t, common.HexToHash("0x01"), blocks[0].Txns[0].TxnHash)
	require.Equal(t, []interface{}{"a", "b"}, blocks[0].Txns[0].Events)
	require.Equal(t, common.HexToHash("0x02"), blocks[0].Txns[1].TxnHash)
	require.Equal(t, []interface{}{"c"}, blocks[0].Txns[1].Events)

	require.Equal(t, int64(11), blocks[1].BlockNumber)
	require.Len(t, blocks[1].Txns, 1)
	require.Equal(t, []interface{}{"d"}, blocks[1].Txns[0].Events)
}

func TestPackEventsEmpty(t *testing.T) {
	t.Parallel()

	ef := newFeed(t)
	require.Nil(t, ef.packEvents(nil, nil))
}

func TestGetTopicsForEventTypes(t *testing.T) {
	t.Parallel()

	ef := newFeed(t)

	topics, err := ef.getTopicsForEventTypes([]eventfeed.EventType{
		"NewRaffleCreated", "NewRaffleTicketBought",
	})
	require.NoError(t, err)
	require.Len(t, topics, 2)
	require.Equal(t, ef.scABI.Events["NewRaffleCreated"].ID, topics[0])

	_, err = ef.getTopicsForEventTypes([]eventfeed.EventType{"NotAnEvent"})
	require.Error(t, err)
}

func newFeed(t *testing.T) *EventFeed {
	t.Helper()

	rafflesABI, err := ethereum.RafflesMetaData.GetAbi()
	require.NoError(t, err)

	ef, err := New(
		nil,
		1337,
		nil,
		common.HexToAddress("0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704"),
		rafflesABI,
		ethereum.RafflesEvents,
	)
	require.NoError(t, err)
	return ef
}

func packLog(t *testing.T, ef *EventFeed, name string, args ...interface{}) types.Log {
	t.Helper()

	event, ok := ef.scABI.Events[name]
	require.True(t, ok)
	data, err := event.Inputs.Pack(args...)
	require.NoError(t, err)

	return types.Log{
		Address: ef.scAddress,
		Topics:  []common.Hash{event.ID},
		Data:    data,
	}
}
