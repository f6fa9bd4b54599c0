// ABOUTME: gate.Verifier implementation for EIP-712 proofs and ERC-20 balances.
// ABOUTME: Checks expiry, signer, balance, then claims the nonce.

package evmauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/2389/tokengate-mcp/internal/gate"
	"github.com/2389/tokengate-mcp/internal/replay"
)

// Verification errors
var (
	ErrProofExpired        = errors.New("access proof expired")
	ErrProofLifetime       = errors.New("access proof expiry exceeds allowed lifetime")
	ErrReplayedProof       = errors.New("access proof already used")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrBalanceUnavailable  = errors.New("token balance unavailable")
)

// Config holds verifier settings.
type Config struct {
	Domain           Domain
	MinBalance       *big.Int
	MaxProofLifetime time.Duration
	Logger           *slog.Logger
}

// Verifier checks access proofs. It is safe for concurrent use.
type Verifier struct {
	domain      Domain
	minBalance  *big.Int
	maxLifetime time.Duration
	balances    BalanceReader
	replay      *replay.Guard
	logger      *slog.Logger
	now         func() time.Time
}

var _ gate.Verifier = (*Verifier)(nil)

// NewVerifier creates a verifier. guard may be nil to disable replay checks.
func NewVerifier(cfg Config, balances BalanceReader, guard *replay.Guard) (*Verifier, error) {
	if balances == nil {
		return nil, errors.New("balance reader is required")
	}
	if cfg.Domain.VerifyingContract == (common.Address{}) {
		return nil, errors.New("token contract address is required")
	}
	if cfg.Domain.ChainID <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	if cfg.MaxProofLifetime <= 0 {
		return nil, errors.New("max proof lifetime must be positive")
	}

	minBalance := big.NewInt(1)
	if cfg.MinBalance != nil {
		minBalance = new(big.Int).Set(cfg.MinBalance)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Verifier{
		domain:      cfg.Domain,
		minBalance:  minBalance,
		maxLifetime: cfg.MaxProofLifetime,
		balances:    balances,
		replay:      guard,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Verify implements gate.Verifier.
func (v *Verifier) Verify(ctx context.Context, req gate.Request) (*gate.Identity, error) {
	proof, err := ParseProof(req.Arguments[gate.ProofArgument])
	if err != nil {
		return nil, err
	}

	now := v.now().Unix()
	if proof.Expires <= now {
		return nil, ErrProofExpired
	}
	if proof.Expires-now > int64(v.maxLifetime/time.Second) {
		return nil, ErrProofLifetime
	}

	wallet := common.HexToAddress(proof.Wallet)
	digest, err := v.domain.Digest(wallet, req.Tool, proof.Nonce, proof.Expires)
	if err != nil {
		return nil, err
	}
	signer, err := recoverSigner(digest, proof.Signature)
	if err != nil {
		return nil, err
	}
	if signer != wallet {
		return nil, fmt.Errorf("%w: signer %s does not match wallet %s", ErrInvalidSignature, signer.Hex(), wallet.Hex())
	}

	balance, err := v.balances.BalanceOf(ctx, v.domain.VerifyingContract, wallet)
	if err != nil {
		v.logger.Warn("balance lookup failed", "wallet", wallet.Hex(), "error", err)
		return nil, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}
	if balance.Cmp(v.minBalance) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, v.minBalance)
	}

	if v.replay != nil && !v.replay.Claim(strings.ToLower(wallet.Hex())+":"+proof.Nonce) {
		return nil, ErrReplayedProof
	}

	return &gate.Identity{Address: wallet.Hex(), Balance: balance}, nil
}
