// ABOUTME: Entry point for the token-gated MCP server
// ABOUTME: Verifies EIP-712 proofs against ERC-20 balances before running tools

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/2389/tokengate-mcp/internal/cli"
	"github.com/2389/tokengate-mcp/internal/config"
	"github.com/2389/tokengate-mcp/internal/evmauth"
	"github.com/2389/tokengate-mcp/internal/gate"
	"github.com/2389/tokengate-mcp/internal/ledger"
	"github.com/2389/tokengate-mcp/internal/replay"
	"github.com/2389/tokengate-mcp/internal/tools"
)

// version is set with -ldflags at build time.
var version = "dev"

// replayCapacity bounds remembered nonces; beyond it the oldest are evicted.
const replayCapacity = 100000

func main() {
	cli.Main(cli.App{
		Name:        "gated-server",
		Version:     version,
		DefaultPort: 3000,
		Build:       build,
	})
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *cli.Services, err error) {
	if err := cfg.ValidateGate(); err != nil {
		return nil, fmt.Errorf("invalid gate configuration: %w", err)
	}
	minBalance, err := cfg.Gate.MinBalanceInt()
	if err != nil {
		return nil, err
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = closeAll()
		}
	}()

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := evmauth.Dial(dialCtx, cfg.Gate.RPCURL)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { client.Close(); return nil })

	if err := evmauth.CheckChainID(dialCtx, client, cfg.Gate.ChainID); err != nil {
		return nil, err
	}

	reader, err := evmauth.NewERC20Reader(client)
	if err != nil {
		return nil, err
	}

	guard := replay.New(cfg.Gate.MaxProofLifetime, replayCapacity)
	closers = append(closers, func() error { guard.Close(); return nil })

	token := common.HexToAddress(cfg.Gate.TokenAddress)
	verifier, err := evmauth.NewVerifier(evmauth.Config{
		Domain: evmauth.Domain{
			Name:              cfg.Gate.DomainName,
			Version:           cfg.Gate.DomainVersion,
			ChainID:           cfg.Gate.ChainID,
			VerifyingContract: token,
		},
		MinBalance:       minBalance,
		MaxProofLifetime: cfg.Gate.MaxProofLifetime,
		Logger:           logger.With("component", "evmauth"),
	}, evmauth.NewCachedReader(reader, cfg.Gate.BalanceCacheTTL, cfg.Gate.BalanceCacheSize), guard)
	if err != nil {
		return nil, err
	}

	opts := gate.Options{Logger: logger.With("component", "gate")}
	routes := map[string]http.Handler{}
	ledgerPath := "(disabled)"
	if cfg.Ledger.Path != "" {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		closers = append(closers, l.Close)
		opts.Recorder = l
		routes["/access/stats"] = l.StatsHandler()
		routes["/access/recent"] = l.RecentHandler()
		ledgerPath = cfg.Ledger.Path
	}

	set, err := tools.NewToolset(
		gate.GatedEcho(verifier, opts),
		gate.TokenBalance(verifier, opts),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("token gate ready",
		"chain_id", cfg.Gate.ChainID,
		"token", token.Hex(),
		"min_balance", minBalance.String(),
	)

	return &cli.Services{
		Toolset: set,
		Routes:  routes,
		Summary: [][2]string{
			{"Chain", fmt.Sprintf("%d", cfg.Gate.ChainID)},
			{"Token", token.Hex()},
			{"Min", minBalance.String() + " base units"},
			{"Ledger", ledgerPath},
		},
		Close: closeAll,
	}, nil
}
