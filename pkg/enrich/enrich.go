// Package enrich provides best-effort token metadata lookups with an
// in-memory cache. Lookups never fail: chain errors fall back to
// documented defaults.
package enrich

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	logger "github.com/rs/zerolog/log"
)

var log = logger.With().Str("component", "enrich").Logger()

const (
	// DefaultDecimals is the decimals fallback when a token doesn't answer.
	DefaultDecimals = 18

	ipfsScheme  = "ipfs://"
	ipfsGateway = "https://ipfs.io/ipfs/"
)

var erc20MetaData = &bind.MetaData{
	ABI: `[
{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`,
}

var erc721MetaData = &bind.MetaData{
	ABI: `[
{"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`,
}

// TokenInfo holds the displayable metadata of an ERC-20 token.
type TokenInfo struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Cache looks up token metadata against one chain and caches successes.
type Cache struct {
	backend bind.ContractBackend

	// metadata used for the zero-address native currency sentinel
	nativeName   string
	nativeSymbol string

	mu     sync.Mutex
	tokens map[common.Address]TokenInfo
}

// NewCache creates a new cache against a chain backend. nativeName and
// nativeSymbol describe the chain's native currency, reported for the
// zero-address sentinel without any RPC lookup.
func NewCache(backend bind.ContractBackend, nativeName string, nativeSymbol string) *Cache {
	return &Cache{
		backend:      backend,
		nativeName:   nativeName,
		nativeSymbol: nativeSymbol,
		tokens:       map[common.Address]TokenInfo{},
	}
}

// TokenInfo returns the name, symbol and decimals of an ERC-20 token.
// A token that doesn't answer yields empty names and 18 decimals; partial
// answers keep whatever fields resolved. Only complete answers are cached.
func (c *Cache) TokenInfo(ctx context.Context, addr common.Address) TokenInfo {
	if addr == (common.Address{}) {
		return TokenInfo{Name: c.nativeName, Symbol: c.nativeSymbol, Decimals: DefaultDecimals}
	}

	c.mu.Lock()
	if info, ok := c.tokens[addr]; ok {
		c.mu.Unlock()
		return info
	}
	c.mu.Unlock()

	info := TokenInfo{Decimals: DefaultDecimals}
	contract, err := c.erc20(addr)
	if err != nil {
		log.Warn().Err(err).Str("address", addr.Hex()).Msg("binding erc20 contract")
		return info
	}

	opts := &bind.CallOpts{Context: ctx}
	complete := true
	var out []interface{}
	if err := contract.Call(opts, &out, "name"); err == nil && len(out) == 1 {
		info.Name, _ = out[0].(string)
	} else {
		complete = false
	}
	out = nil
	if err := contract.Call(opts, &out, "symbol"); err == nil && len(out) == 1 {
		info.Symbol, _ = out[0].(string)
	} else {
		complete = false
	}
	out = nil
	if err := contract.Call(opts, &out, "decimals"); err == nil && len(out) == 1 {
		if decimals, ok := out[0].(uint8); ok {
			info.Decimals = decimals
		} else {
			complete = false
		}
	} else {
		complete = false
	}

	if complete {
		c.mu.Lock()
		c.tokens[addr] = info
		c.mu.Unlock()
	}

	return info
}

// TokenURI returns the media URI of an ERC-721 token, rewriting ipfs://
// URIs to a public gateway. Failure yields an empty string.
func (c *Cache) TokenURI(ctx context.Context, addr common.Address, tokenID *big.Int) string {
	parsed, err := erc721MetaData.GetAbi()
	if err != nil {
		log.Warn().Err(err).Msg("parsing erc721 abi")
		return ""
	}
	contract := bind.NewBoundContract(addr, *parsed, c.backend, c.backend, c.backend)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "tokenURI", tokenID); err != nil || len(out) != 1 {
		return ""
	}
	uri, ok := out[0].(string)
	if !ok {
		return ""
	}
	return RewriteIPFS(uri)
}

// RewriteIPFS rewrites an ipfs:// URI to a public HTTP gateway URL.
func RewriteIPFS(uri string) string {
	if strings.HasPrefix(uri, ipfsScheme) {
		return ipfsGateway + strings.TrimPrefix(uri, ipfsScheme)
	}
	return uri
}

func (c *Cache) erc20(addr common.Address) (*bind.BoundContract, error) {
	parsed, err := erc20MetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("parsing erc20 abi: %s", err)
	}
	return bind.NewBoundContract(addr, *parsed, c.backend, c.backend, c.backend), nil
}
