// ABOUTME: Tests for gated server startup wiring
// ABOUTME: A fake JSON-RPC endpoint stands in for the chain

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tokengate-mcp/internal/config"
	"github.com/2389/tokengate-mcp/internal/evmauth"
	"github.com/2389/tokengate-mcp/internal/gate"
	"github.com/2389/tokengate-mcp/internal/mcp"
	"github.com/2389/tokengate-mcp/internal/tools"
)

// fakeBalance is what the fake chain reports from every balanceOf call.
var fakeBalance = big.NewInt(500)

func fakeRPC(t *testing.T, chainIDHex string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_chainId":
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": chainIDHex})
		case "eth_call":
			result := hexutil.Encode(common.LeftPadBytes(fakeBalance.Bytes(), 32))
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func gateConfig(rpcURL string) *config.Config {
	cfg := config.Default()
	cfg.Gate.RPCURL = rpcURL
	cfg.Gate.ChainID = 1337
	cfg.Gate.TokenAddress = "0x1111111111111111111111111111111111111111"
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_FailsFastOnMissingGateConfig(t *testing.T) {
	_, err := build(context.Background(), config.Default(), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid gate configuration")
}

func TestBuild_ChainMismatch(t *testing.T) {
	rpc := fakeRPC(t, "0x1")

	_, err := build(context.Background(), gateConfig(rpc.URL), quietLogger())
	assert.ErrorIs(t, err, evmauth.ErrChainMismatch)
}

func TestBuild_Wiring(t *testing.T) {
	rpc := fakeRPC(t, "0x539") // 1337
	cfg := gateConfig(rpc.URL)
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "access.db")

	services, err := build(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer func() { assert.NoError(t, services.Close()) }()

	descs := services.Toolset.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, tools.EchoName, descs[0].Name)
	assert.Equal(t, gate.TokenBalanceName, descs[1].Name)
	assert.Contains(t, services.Routes, "/access/stats")
	assert.Contains(t, services.Routes, "/access/recent")

	// No proof: denied without touching the chain
	res := services.Toolset.Call(context.Background(), tools.EchoName, tools.Arguments{"message": "hi"})
	require.True(t, res.IsError())
	assert.Equal(t, gate.DeniedMessage, res.Text())

	rec := httptest.NewRecorder()
	services.Routes["/access/stats"].ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/access/stats", nil))
	assert.JSONEq(t, `{"total":1,"granted":0,"denied":1,"unique_wallets":0}`, rec.Body.String())

	rec = httptest.NewRecorder()
	services.Routes["/access/recent"].ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/access/recent", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tool":"echo"`)
}

func TestBuild_NoLedger(t *testing.T) {
	rpc := fakeRPC(t, "0x539")

	services, err := build(context.Background(), gateConfig(rpc.URL), quietLogger())
	require.NoError(t, err)
	defer services.Close()

	assert.Empty(t, services.Routes)
}

func TestBuild_SignedProofOverProtocol(t *testing.T) {
	ctx := context.Background()
	rpc := fakeRPC(t, "0x539")
	cfg := gateConfig(rpc.URL)

	services, err := build(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer services.Close()

	server, err := mcp.NewServer(mcp.Config{Name: "gated-server", Toolset: services.Toolset, Logger: quietLogger()})
	require.NoError(t, err)

	clientT, serverT := sdk.NewInMemoryTransports()
	ss, err := server.MCP().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "wallet-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	defer cs.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	domain := evmauth.Domain{
		Name:              cfg.Gate.DomainName,
		Version:           cfg.Gate.DomainVersion,
		ChainID:           cfg.Gate.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Gate.TokenAddress),
	}
	proof, err := evmauth.SignProof(key, domain, tools.EchoName, "nonce-1", time.Now().Add(time.Minute))
	require.NoError(t, err)

	// Arguments cross the wire as JSON, so expires arrives as a float64.
	params := &sdk.CallToolParams{
		Name: tools.EchoName,
		Arguments: map[string]any{
			"message":          "hello",
			gate.ProofArgument: proof.Arguments(),
		},
	}

	res, err := cs.CallTool(ctx, params)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	require.False(t, res.IsError, text.Text)

	wallet := crypto.PubkeyToAddress(key.PublicKey).Hex()
	want := gate.FormatGatedEcho(&gate.Identity{Address: wallet, Balance: fakeBalance}, "hello")
	assert.Equal(t, want, text.Text)

	// The nonce is spent
	res, err = cs.CallTool(ctx, params)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, gate.DeniedMessage, res.Content[0].(*sdk.TextContent).Text)
}
