package impl

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/fairraffle/go-rafflebridge/internal/bridge"
	"github.com/fairraffle/go-rafflebridge/pkg/database"
	"github.com/fairraffle/go-rafflebridge/pkg/nonce"
	"github.com/fairraffle/go-rafflebridge/pkg/wallet"
	"github.com/fairraffle/go-rafflebridge/tests"
)

const chainID = bridge.ChainID(1337)

func TestGetNonce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tracker, _ := newTracker(t, &fakeChainClient{nonce: 5})
	defer tracker.Close()

	registerPendingTx, unlock, n := tracker.GetNonce(ctx)
	require.Equal(t, int64(5), n)
	registerPendingTx(common.HexToHash("0x01"))
	unlock()

	require.Equal(t, 1, tracker.GetPendingCount(ctx))

	_, unlock, n = tracker.GetNonce(ctx)
	require.Equal(t, int64(6), n)
	unlock()
}

func TestGetNonceWithoutRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tracker, _ := newTracker(t, &fakeChainClient{nonce: 5})
	defer tracker.Close()

	// a failed submission unlocks without registering, the nonce isn't burned
	_, unlock, n := tracker.GetNonce(ctx)
	require.Equal(t, int64(5), n)
	unlock()

	_, unlock, n = tracker.GetNonce(ctx)
	require.Equal(t, int64(5), n)
	unlock()
	require.Zero(t, tracker.GetPendingCount(ctx))
}

func TestInitializationWithStoredPendingTxs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := database.Open(tests.MirrorDBURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	nonceStore := NewNonceStore(db)
	w := trackerWallet(t)

	client := &fakeChainClient{nonce: 7}
	tracker, err := NewLocalTracker(ctx, w, nonceStore, chainID, client, time.Minute, 5, time.Minute)
	require.NoError(t, err)
	registerPendingTx, unlock, _ := tracker.GetNonce(ctx)
	registerPendingTx(common.HexToHash("0x01"))
	unlock()
	tracker.Close()

	// a new tracker over the same store picks up the stored pending txs
	client.nonce = 8
	tracker2, err := NewLocalTracker(ctx, w, nonceStore, chainID, client, time.Minute, 5, time.Minute)
	require.NoError(t, err)
	defer tracker2.Close()

	require.Equal(t, 1, tracker2.GetPendingCount(ctx))
	_, unlock, n := tracker2.GetNonce(ctx)
	require.Equal(t, int64(8), n)
	unlock()
}

func TestResync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &fakeChainClient{nonce: 5}
	tracker, nonceStore := newTracker(t, client)
	defer tracker.Close()

	registerPendingTx, unlock, _ := tracker.GetNonce(ctx)
	registerPendingTx(common.HexToHash("0x01"))
	unlock()

	client.nonce = 9
	require.NoError(t, tracker.Resync(ctx))

	require.Zero(t, tracker.GetPendingCount(ctx))
	txs, err := nonceStore.ListPendingTx(ctx, chainID, tracker.wallet.Address())
	require.NoError(t, err)
	require.Empty(t, txs)

	_, unlock, n := tracker.GetNonce(ctx)
	require.Equal(t, int64(9), n)
	unlock()
}

func TestCheckIfPendingTxWasIncluded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &fakeChainClient{nonce: 5, receiptBlock: 10}
	tracker, nonceStore := newTracker(t, client)
	defer tracker.Close()

	registerPendingTx, unlock, _ := tracker.GetNonce(ctx)
	registerPendingTx(common.HexToHash("0x01"))
	unlock()

	pendingTx := tracker.pendingTxs[0]

	// not deep enough yet
	err := tracker.checkIfPendingTxWasIncluded(ctx, pendingTx, &types.Header{Number: big.NewInt(12)})
	require.ErrorIs(t, err, nonce.ErrBlockDiffNotEnough)
	require.Equal(t, 1, tracker.GetPendingCount(ctx))

	// deep enough, the pending tx is settled
	err = tracker.checkIfPendingTxWasIncluded(ctx, pendingTx, &types.Header{Number: big.NewInt(20)})
	require.NoError(t, err)
	require.Zero(t, tracker.GetPendingCount(ctx))

	txs, err := nonceStore.ListPendingTx(ctx, chainID, tracker.wallet.Address())
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestPendingTxMayBeStuck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := &fakeChainClient{nonce: 5, receiptErr: errors.New("not found")}
	tracker, _ := newTracker(t, client)
	defer tracker.Close()

	registerPendingTx, unlock, _ := tracker.GetNonce(ctx)
	registerPendingTx(common.HexToHash("0x01"))
	unlock()

	pendingTx := tracker.pendingTxs[0]

	// receipt missing but not old enough to be stuck
	err := tracker.checkIfPendingTxWasIncluded(ctx, pendingTx, &types.Header{Number: big.NewInt(20)})
	require.Error(t, err)
	require.NotErrorIs(t, err, nonce.ErrPendingTxMayBeStuck)

	pendingTx.CreatedAt = time.Now().Add(-time.Hour)
	err = tracker.checkIfPendingTxWasIncluded(ctx, pendingTx, &types.Header{Number: big.NewInt(20)})
	require.ErrorIs(t, err, nonce.ErrPendingTxMayBeStuck)
}

func newTracker(t *testing.T, client *fakeChainClient) (*LocalTracker, *NonceStore) {
	t.Helper()

	db, err := database.Open(tests.MirrorDBURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	nonceStore := NewNonceStore(db)

	tracker, err := NewLocalTracker(
		context.Background(),
		trackerWallet(t),
		nonceStore,
		chainID,
		client,
		time.Minute,
		5,
		time.Minute,
	)
	require.NoError(t, err)
	return tracker, nonceStore
}

func trackerWallet(t *testing.T) *wallet.Wallet {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := wallet.NewWallet(hexutil.Encode(crypto.FromECDSA(key))[2:])
	require.NoError(t, err)
	return w
}

type fakeChainClient struct {
	nonce        uint64
	receiptBlock int64
	receiptErr   error
}

func (c *fakeChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if c.receiptErr != nil {
		return nil, c.receiptErr
	}
	return &types.Receipt{BlockNumber: big.NewInt(c.receiptBlock), TxHash: txHash}, nil
}

func (c *fakeChainClient) HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100)}, nil
}
