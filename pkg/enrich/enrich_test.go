package enrich

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestNativeCurrency(t *testing.T) {
	t.Parallel()

	// the zero address resolves without touching the chain
	cache := NewCache(&fakeBackend{err: errors.New("must not be called")}, "Matic", "MATIC")

	info := cache.TokenInfo(context.Background(), common.Address{})
	require.Equal(t, TokenInfo{Name: "Matic", Symbol: "MATIC", Decimals: 18}, info)
}

func TestTokenInfo(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.setAnswer(t, "name", "USD Coin")
	backend.setAnswer(t, "symbol", "USDC")
	backend.setAnswer(t, "decimals", uint8(6))

	cache := NewCache(backend, "Matic", "MATIC")
	addr := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	info := cache.TokenInfo(context.Background(), addr)
	require.Equal(t, TokenInfo{Name: "USD Coin", Symbol: "USDC", Decimals: 6}, info)

	// a complete answer is cached, later chain failures don't matter
	backend.err = errors.New("rpc down")
	info = cache.TokenInfo(context.Background(), addr)
	require.Equal(t, TokenInfo{Name: "USD Coin", Symbol: "USDC", Decimals: 6}, info)
}

func TestTokenInfoFallbacks(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.err = errors.New("rpc down")

	cache := NewCache(backend, "Matic", "MATIC")
	addr := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	info := cache.TokenInfo(context.Background(), addr)
	require.Equal(t, TokenInfo{Name: "", Symbol: "", Decimals: 18}, info)

	// incomplete answers aren't cached; a later full answer wins
	backend.err = nil
	backend.setAnswer(t, "name", "USD Coin")
	backend.setAnswer(t, "symbol", "USDC")
	backend.setAnswer(t, "decimals", uint8(6))
	info = cache.TokenInfo(context.Background(), addr)
	require.Equal(t, TokenInfo{Name: "USD Coin", Symbol: "USDC", Decimals: 6}, info)
}

func TestTokenURI(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.setTokenURIAnswer(t, "ipfs://QmHash/1.json")

	cache := NewCache(backend, "Matic", "MATIC")
	addr := common.HexToAddress("0x8634665c3a9184A7Dbe3e3d1832AE2E4e5d1f704")

	uri := cache.TokenURI(context.Background(), addr, big.NewInt(1))
	require.Equal(t, "https://ipfs.io/ipfs/QmHash/1.json", uri)
}

func TestTokenURIFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(t)
	backend.err = errors.New("rpc down")

	cache := NewCache(backend, "Matic", "MATIC")
	uri := cache.TokenURI(context.Background(), common.HexToAddress("0x01"), big.NewInt(1))
	require.Empty(t, uri)
}

func TestRewriteIPFS(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://ipfs.io/ipfs/QmHash/1.json", RewriteIPFS("ipfs://QmHash/1.json"))
	require.Equal(t, "https://example.com/1.json", RewriteIPFS("https://example.com/1.json"))
	require.Equal(t, "", RewriteIPFS(""))
}

// fakeBackend answers eth_call by method selector.
type fakeBackend struct {
	answers map[[4]byte][]byte
	err     error
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	return &fakeBackend{answers: map[[4]byte][]byte{}}
}

func (b *fakeBackend) setAnswer(t *testing.T, method string, value interface{}) {
	t.Helper()

	parsed, err := erc20MetaData.GetAbi()
	require.NoError(t, err)
	m, ok := parsed.Methods[method]
	require.True(t, ok)
	data, err := m.Outputs.Pack(value)
	require.NoError(t, err)

	var selector [4]byte
	copy(selector[:], m.ID)
	b.answers[selector] = data
}

func (b *fakeBackend) setTokenURIAnswer(t *testing.T, uri string) {
	t.Helper()

	parsed, err := erc721MetaData.GetAbi()
	require.NoError(t, err)
	m := parsed.Methods["tokenURI"]
	data, err := m.Outputs.Pack(uri)
	require.NoError(t, err)

	var selector [4]byte
	copy(selector[:], m.ID)
	b.answers[selector] = data
}

func (b *fakeBackend) CallContract(
	ctx context.Context,
	call ethereum.CallMsg,
	blockNumber *big.Int,
) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	var selector [4]byte
	copy(selector[:], call.Data)
	answer, ok := b.answers[selector]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return answer, nil
}

func (b *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{}, nil
}

func (b *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}

func (b *fakeBackend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(
	ctx context.Context,
	query ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}
