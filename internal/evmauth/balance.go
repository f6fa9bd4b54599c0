// ABOUTME: ERC-20 balanceOf reads over JSON-RPC, with caching and coalescing.
// ABOUTME: ABI encoding and the RPC client come from go-ethereum.

package evmauth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// ErrChainMismatch is returned when the RPC endpoint serves a different chain.
var ErrChainMismatch = errors.New("rpc chain id does not match configuration")

const erc20BalanceABI = `[{
	"constant": true,
	"inputs": [{"name": "owner", "type": "address"}],
	"name": "balanceOf",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

// BalanceReader reads a holder's balance of an ERC-20 token.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// ERC20Reader calls balanceOf through any contract caller (an *ethclient.Client
// in production).
type ERC20Reader struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
}

// NewERC20Reader builds a reader over caller.
func NewERC20Reader(caller ethereum.ContractCaller) (*ERC20Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20BalanceABI))
	if err != nil {
		return nil, fmt.Errorf("parsing erc20 abi: %w", err)
	}
	return &ERC20Reader{caller: caller, abi: parsed}, nil
}

// BalanceOf returns holder's balance of token in base units.
func (r *ERC20Reader) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("packing balanceOf: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling balanceOf: %w", err)
	}

	values, err := r.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("decoding balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("decoding balanceOf: expected 1 value, got %d", len(values))
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decoding balanceOf: unexpected type %T", values[0])
	}
	return bal, nil
}

// DefaultBalanceCacheSize bounds the number of cached (token, holder) pairs.
const DefaultBalanceCacheSize = 10000

// sharedLookupTimeout bounds one coalesced RPC read.
const sharedLookupTimeout = 15 * time.Second

// CachedReader caches balances for a short TTL and coalesces concurrent reads
// of the same (token, holder) pair into one RPC call.
type CachedReader struct {
	inner   BalanceReader
	cache   *expirable.LRU[string, *big.Int]
	group   singleflight.Group
	timeout time.Duration
}

// NewCachedReader wraps inner with an LRU of at most size entries that expire
// after ttl. A non-positive ttl disables caching but keeps coalescing; a
// non-positive size uses DefaultBalanceCacheSize.
func NewCachedReader(inner BalanceReader, ttl time.Duration, size int) *CachedReader {
	c := &CachedReader{inner: inner, timeout: sharedLookupTimeout}
	if ttl > 0 {
		if size <= 0 {
			size = DefaultBalanceCacheSize
		}
		c.cache = expirable.NewLRU[string, *big.Int](size, nil, ttl)
	}
	return c
}

// BalanceOf implements BalanceReader. The shared RPC call is detached from
// any single caller's context; each caller stops waiting when its own ctx ends.
func (c *CachedReader) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	key := token.Hex() + ":" + holder.Hex()
	if c.cache != nil {
		if bal, ok := c.cache.Get(key); ok {
			return new(big.Int).Set(bal), nil
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		bal, err := c.inner.BalanceOf(lookupCtx, token, holder)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Add(key, bal)
		}
		return bal, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return new(big.Int).Set(res.Val.(*big.Int)), nil
	}
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc: %w", err)
	}
	return client, nil
}

// ChainIDReader reports the chain an RPC endpoint serves.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// CheckChainID fails with ErrChainMismatch when the endpoint's chain differs.
func CheckChainID(ctx context.Context, r ChainIDReader, want int64) error {
	got, err := r.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("reading chain id: %w", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		return fmt.Errorf("%w: rpc serves %s, configured %d", ErrChainMismatch, got, want)
	}
	return nil
}
