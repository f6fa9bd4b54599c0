// ABOUTME: Access verification capability and the Protect decorator for tools.
// ABOUTME: Rejections collapse to a generic denial text; causes go to logs only.

package gate

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/2389/tokengate-mcp/internal/tools"
)

// ProofArgument is the reserved argument carrying the caller's access proof.
const ProofArgument = "__evmauth"

// DeniedMessage is the only text a rejected caller receives.
const DeniedMessage = "Access denied: this tool requires a valid signature from a wallet holding the required token balance."

// ErrAccessDenied wraps every verifier rejection.
var ErrAccessDenied = errors.New("access denied")

// Request is the full tool call handed to a Verifier, proof included.
type Request struct {
	Tool      string
	Arguments tools.Arguments
}

// Identity is what a successful verification proves about the caller.
type Identity struct {
	Address string
	Balance *big.Int
}

// BalanceString renders the balance in base units.
func (id *Identity) BalanceString() string {
	if id == nil || id.Balance == nil {
		return "0"
	}
	return id.Balance.String()
}

// Verifier decides whether a request may proceed.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req Request) (*Identity, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, req Request) (*Identity, error) {
	return f(ctx, req)
}

// Access is one grant or denial decision.
type Access struct {
	Tool      string
	Address   string
	Balance   *big.Int
	Granted   bool
	Reason    string
	CreatedAt time.Time
}

// Recorder persists access decisions.
type Recorder interface {
	Record(ctx context.Context, a Access) error
}

// GatedHandler runs after verification with the caller's identity.
type GatedHandler func(ctx context.Context, id *Identity, args tools.Arguments) tools.Result

// Options configures Protect.
type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
}

// Protect returns a handler that verifies each call before running h.
func Protect(name string, v Verifier, h GatedHandler, opts Options) tools.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, args tools.Arguments) tools.Result {
		id, err := v.Verify(ctx, Request{Tool: name, Arguments: args})
		if err == nil && id == nil {
			err = errors.New("verifier returned no identity")
		}
		if err != nil {
			logger.Info("tool access denied", "tool_name", name, "reason", err)
			record(ctx, logger, opts.Recorder, Access{
				Tool:    name,
				Address: claimedWallet(args),
				Granted: false,
				Reason:  err.Error(),
			})
			return tools.Fail(tools.KindAccessDenied, DeniedMessage, errors.Join(ErrAccessDenied, err))
		}

		logger.Debug("tool access granted", "tool_name", name, "wallet", id.Address, "balance", id.BalanceString())
		record(ctx, logger, opts.Recorder, Access{
			Tool:    name,
			Address: id.Address,
			Balance: id.Balance,
			Granted: true,
		})

		return h(ctx, id, args.Without(ProofArgument))
	}
}

func record(ctx context.Context, logger *slog.Logger, r Recorder, a Access) {
	if r == nil {
		return
	}
	a.CreatedAt = time.Now().UTC()
	if err := r.Record(ctx, a); err != nil {
		logger.Warn("failed to record tool access", "tool_name", a.Tool, "error", err)
	}
}

// claimedWallet extracts the unverified wallet from the proof for audit rows.
func claimedWallet(args tools.Arguments) string {
	proof, ok := args[ProofArgument].(map[string]any)
	if !ok {
		return ""
	}
	w, _ := proof["wallet"].(string)
	return w
}
