// ABOUTME: Tests for EIP-712 proofs, ERC-20 balance reads, and the verifier.
// ABOUTME: Keys are generated per test; the chain is replaced by fakes.

package evmauth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tokengate-mcp/internal/gate"
	"github.com/2389/tokengate-mcp/internal/replay"
	"github.com/2389/tokengate-mcp/internal/tools"
)

var testToken = common.HexToAddress("0x1111111111111111111111111111111111111111")

func testDomain() Domain {
	return Domain{Name: "TokenGate", Version: "1", ChainID: 1337, VerifyingContract: testToken}
}

type fakeBalances struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	err      error
	calls    atomic.Int32
}

func (f *fakeBalances) BalanceOf(_ context.Context, token, holder common.Address) (*big.Int, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if token != testToken {
		return nil, errors.New("unexpected token")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[holder]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

type fakeCaller struct {
	lastMsg ethereum.CallMsg
	out     []byte
	err     error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastMsg = msg
	return f.out, f.err
}

type fakeChain struct{ id int64 }

func (f fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.id), nil }

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newVerifier(t *testing.T, balances BalanceReader, guard *replay.Guard) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		Domain:           testDomain(),
		MinBalance:       big.NewInt(100),
		MaxProofLifetime: 10 * time.Minute,
	}, balances, guard)
	require.NoError(t, err)
	return v
}

func request(tool string, p Proof) gate.Request {
	return gate.Request{
		Tool:      tool,
		Arguments: tools.Arguments{"message": "hi", gate.ProofArgument: p.Arguments()},
	}
}

func TestSignProof_RoundTrip(t *testing.T) {
	key := newKey(t)
	p, err := SignProof(key, testDomain(), "echo", "n-1", time.Now().Add(time.Minute))
	require.NoError(t, err)

	digest, err := testDomain().Digest(common.HexToAddress(p.Wallet), "echo", p.Nonce, p.Expires)
	require.NoError(t, err)
	signer, err := recoverSigner(digest, p.Signature)
	require.NoError(t, err)

	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestDigest_BindsEveryField(t *testing.T) {
	d := testDomain()
	wallet := common.HexToAddress("0x2222222222222222222222222222222222222222")
	base, err := d.Digest(wallet, "echo", "n", 100)
	require.NoError(t, err)

	otherChain := d
	otherChain.ChainID = 1
	variants := map[string]func() ([]byte, error){
		"tool":    func() ([]byte, error) { return d.Digest(wallet, "token_balance", "n", 100) },
		"nonce":   func() ([]byte, error) { return d.Digest(wallet, "echo", "m", 100) },
		"expires": func() ([]byte, error) { return d.Digest(wallet, "echo", "n", 101) },
		"chain":   func() ([]byte, error) { return otherChain.Digest(wallet, "echo", "n", 100) },
	}
	for name, fn := range variants {
		got, err := fn()
		require.NoError(t, err, name)
		assert.NotEqual(t, base, got, name)
	}
}

func TestParseProof(t *testing.T) {
	valid := map[string]any{
		"wallet":    "0x2222222222222222222222222222222222222222",
		"nonce":     "n",
		"expires":   float64(1767225600),
		"signature": "0xdead",
	}

	p, err := ParseProof(valid)
	require.NoError(t, err)
	assert.Equal(t, int64(1767225600), p.Expires)

	_, err = ParseProof(nil)
	assert.ErrorIs(t, err, ErrProofMissing)

	_, err = ParseProof("nope")
	assert.ErrorIs(t, err, ErrMalformedProof)

	for _, field := range []string{"wallet", "nonce", "expires", "signature"} {
		broken := map[string]any{}
		for k, v := range valid {
			if k != field {
				broken[k] = v
			}
		}
		_, err := ParseProof(broken)
		assert.ErrorIs(t, err, ErrMalformedProof, field)
	}

	fractional := map[string]any{}
	for k, v := range valid {
		fractional[k] = v
	}
	fractional["expires"] = 1.5
	_, err = ParseProof(fractional)
	assert.ErrorIs(t, err, ErrMalformedProof)
}

func TestVerifier_Accepts(t *testing.T) {
	key := newKey(t)
	wallet := crypto.PubkeyToAddress(key.PublicKey)
	balances := &fakeBalances{balances: map[common.Address]*big.Int{wallet: big.NewInt(250)}}
	v := newVerifier(t, balances, nil)

	p, err := SignProof(key, testDomain(), "echo", "n-1", time.Now().Add(time.Minute))
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), request("echo", p))
	require.NoError(t, err)
	assert.Equal(t, wallet.Hex(), id.Address)
	assert.Equal(t, "250", id.BalanceString())
}

func TestVerifier_Rejects(t *testing.T) {
	key := newKey(t)
	other := newKey(t)
	wallet := crypto.PubkeyToAddress(key.PublicKey)
	balances := &fakeBalances{balances: map[common.Address]*big.Int{wallet: big.NewInt(250)}}
	future := time.Now().Add(time.Minute)

	t.Run("missing proof", func(t *testing.T) {
		v := newVerifier(t, balances, nil)
		_, err := v.Verify(context.Background(), gate.Request{Tool: "echo", Arguments: tools.Arguments{}})
		assert.ErrorIs(t, err, ErrProofMissing)
	})

	t.Run("expired", func(t *testing.T) {
		v := newVerifier(t, balances, nil)
		p, err := SignProof(key, testDomain(), "echo", "n", time.Now().Add(-time.Second))
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), request("echo", p))
		assert.ErrorIs(t, err, ErrProofExpired)
	})

	t.Run("lifetime too long", func(t *testing.T) {
		v := newVerifier(t, balances, nil)
		p, err := SignProof(key, testDomain(), "echo", "n", time.Now().Add(time.Hour))
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), request("echo", p))
		assert.ErrorIs(t, err, ErrProofLifetime)
	})

	t.Run("signed for another tool", func(t *testing.T) {
		v := newVerifier(t, balances, nil)
		p, err := SignProof(key, testDomain(), "token_balance", "n", future)
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), request("echo", p))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wallet mismatch", func(t *testing.T) {
		v := newVerifier(t, balances, nil)
		p, err := SignProof(other, testDomain(), "echo", "n", future)
		require.NoError(t, err)
		p.Wallet = wallet.Hex()
		_, err = v.Verify(context.Background(), request("echo", p))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("garbage signature", func(t *testing.T) {
		v := newVerifier(t, balances, nil)
		p, err := SignProof(key, testDomain(), "echo", "n", future)
		require.NoError(t, err)
		p.Signature = "0x1234"
		_, err = v.Verify(context.Background(), request("echo", p))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		v := newVerifier(t, balances, nil)
		p, err := SignProof(other, testDomain(), "echo", "n", future)
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), request("echo", p))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("balance unavailable", func(t *testing.T) {
		v := newVerifier(t, &fakeBalances{err: errors.New("rpc down")}, nil)
		p, err := SignProof(key, testDomain(), "echo", "n", future)
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), request("echo", p))
		assert.ErrorIs(t, err, ErrBalanceUnavailable)
	})
}

func TestVerifier_ReplayRejected(t *testing.T) {
	key := newKey(t)
	wallet := crypto.PubkeyToAddress(key.PublicKey)
	balances := &fakeBalances{balances: map[common.Address]*big.Int{wallet: big.NewInt(1000)}}
	guard := replay.New(10*time.Minute, 100)
	defer guard.Close()
	v := newVerifier(t, balances, guard)

	p, err := SignProof(key, testDomain(), "echo", "once", time.Now().Add(time.Minute))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), request("echo", p))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), request("echo", p))
	assert.ErrorIs(t, err, ErrReplayedProof)
}

func TestNewVerifier_Validation(t *testing.T) {
	balances := &fakeBalances{}

	_, err := NewVerifier(Config{Domain: testDomain(), MaxProofLifetime: time.Minute}, nil, nil)
	assert.Error(t, err)

	noToken := testDomain()
	noToken.VerifyingContract = common.Address{}
	_, err = NewVerifier(Config{Domain: noToken, MaxProofLifetime: time.Minute}, balances, nil)
	assert.Error(t, err)

	noChain := testDomain()
	noChain.ChainID = 0
	_, err = NewVerifier(Config{Domain: noChain, MaxProofLifetime: time.Minute}, balances, nil)
	assert.Error(t, err)

	_, err = NewVerifier(Config{Domain: testDomain()}, balances, nil)
	assert.Error(t, err)
}

func TestERC20Reader_BalanceOf(t *testing.T) {
	holder := common.HexToAddress("0x3333333333333333333333333333333333333333")
	caller := &fakeCaller{out: common.LeftPadBytes(big.NewInt(123456).Bytes(), 32)}
	r, err := NewERC20Reader(caller)
	require.NoError(t, err)

	bal, err := r.BalanceOf(context.Background(), testToken, holder)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), bal.Int64())

	require.NotNil(t, caller.lastMsg.To)
	assert.Equal(t, testToken, *caller.lastMsg.To)
	require.Len(t, caller.lastMsg.Data, 4+32)
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, caller.lastMsg.Data[:4], "balanceOf selector")
	assert.Equal(t, holder.Bytes(), caller.lastMsg.Data[4+12:])
}

func TestERC20Reader_Errors(t *testing.T) {
	holder := common.HexToAddress("0x3333333333333333333333333333333333333333")

	r, err := NewERC20Reader(&fakeCaller{err: errors.New("boom")})
	require.NoError(t, err)
	_, err = r.BalanceOf(context.Background(), testToken, holder)
	assert.Error(t, err)

	r, err = NewERC20Reader(&fakeCaller{out: nil})
	require.NoError(t, err)
	_, err = r.BalanceOf(context.Background(), testToken, holder)
	assert.Error(t, err, "empty return data means no contract")
}

func TestCachedReader(t *testing.T) {
	holder := common.HexToAddress("0x4444444444444444444444444444444444444444")
	inner := &fakeBalances{balances: map[common.Address]*big.Int{holder: big.NewInt(9)}}
	c := NewCachedReader(inner, time.Minute, 0)

	for i := 0; i < 3; i++ {
		bal, err := c.BalanceOf(context.Background(), testToken, holder)
		require.NoError(t, err)
		assert.Equal(t, int64(9), bal.Int64())
		bal.SetInt64(0) // callers must not be able to corrupt the cache
	}
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedReader_ErrorsNotCached(t *testing.T) {
	holder := common.HexToAddress("0x4444444444444444444444444444444444444444")
	inner := &fakeBalances{err: errors.New("rpc down")}
	c := NewCachedReader(inner, time.Minute, 0)

	_, err := c.BalanceOf(context.Background(), testToken, holder)
	require.Error(t, err)
	_, err = c.BalanceOf(context.Background(), testToken, holder)
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedReader_BoundedSize(t *testing.T) {
	inner := &fakeBalances{}
	c := NewCachedReader(inner, time.Minute, 2)

	holders := []common.Address{
		common.HexToAddress("0x5555555555555555555555555555555555555551"),
		common.HexToAddress("0x5555555555555555555555555555555555555552"),
		common.HexToAddress("0x5555555555555555555555555555555555555553"),
	}
	for _, h := range holders {
		_, err := c.BalanceOf(context.Background(), testToken, h)
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), inner.calls.Load())

	// The least recently used holder was evicted; the newest is still cached.
	_, err := c.BalanceOf(context.Background(), testToken, holders[2])
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())

	_, err = c.BalanceOf(context.Background(), testToken, holders[0])
	require.NoError(t, err)
	assert.Equal(t, int32(4), inner.calls.Load())
}

func TestCachedReader_NoTTLDisablesCache(t *testing.T) {
	holder := common.HexToAddress("0x4444444444444444444444444444444444444444")
	inner := &fakeBalances{}
	c := NewCachedReader(inner, 0, 10)

	for i := 0; i < 2; i++ {
		_, err := c.BalanceOf(context.Background(), testToken, holder)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

// slowBalances blocks every read until release is closed, failing early only
// if the context it was handed ends.
type slowBalances struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (s *slowBalances) BalanceOf(ctx context.Context, _, _ common.Address) (*big.Int, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return big.NewInt(77), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachedReader_CanceledCallerDoesNotFailOthers(t *testing.T) {
	holder := common.HexToAddress("0x6666666666666666666666666666666666666666")
	inner := &slowBalances{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCachedReader(inner, time.Minute, 0)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.BalanceOf(firstCtx, testToken, holder)
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		bal *big.Int
		err error
	}
	second := make(chan result, 1)
	go func() {
		bal, err := c.BalanceOf(context.Background(), testToken, holder)
		second <- result{bal, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(inner.release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, int64(77), r.bal.Int64())
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestCheckChainID(t *testing.T) {
	assert.NoError(t, CheckChainID(context.Background(), fakeChain{id: 1337}, 1337))
	assert.ErrorIs(t, CheckChainID(context.Background(), fakeChain{id: 1}, 1337), ErrChainMismatch)
}
