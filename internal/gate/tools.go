// ABOUTME: Token-gated tools: echo with verified identity and a balance lookup.
// ABOUTME: Both advertise the proof argument so clients know where to put it.

package gate

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/tokengate-mcp/internal/tools"
)

// TokenBalanceName is the name of the gated balance tool.
const TokenBalanceName = "token_balance"

func proofSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: "EIP-712 access proof signed by a token-holding wallet",
		Properties: map[string]*jsonschema.Schema{
			"wallet":    {Type: "string", Description: "0x-prefixed wallet address"},
			"nonce":     {Type: "string", Description: "Single-use nonce"},
			"expires":   {Type: "integer", Description: "Unix expiry time in seconds"},
			"signature": {Type: "string", Description: "0x-prefixed 65-byte signature"},
		},
	}
}

// GatedEcho returns the token-gated echo tool.
func GatedEcho(v Verifier, opts Options) tools.Tool {
	props := tools.EchoSchemaProperties()
	props[ProofArgument] = proofSchema()

	return tools.Tool{
		Name:        tools.EchoName,
		Description: "Echoes back the provided message for verified token holders",
		InputSchema: tools.ObjectSchema(props),
		Handler: Protect(tools.EchoName, v, func(_ context.Context, id *Identity, args tools.Arguments) tools.Result {
			return tools.Success(FormatGatedEcho(id, tools.EchoMessage(args)))
		}, opts),
	}
}

// FormatGatedEcho renders the gated echo reply.
func FormatGatedEcho(id *Identity, message string) string {
	return fmt.Sprintf("Verified wallet %s (token balance: %s)\nEcho: %s", id.Address, id.BalanceString(), message)
}

// TokenBalance returns a gated tool reporting the caller's verified balance.
func TokenBalance(v Verifier, opts Options) tools.Tool {
	return tools.Tool{
		Name:        TokenBalanceName,
		Description: "Reports the verified wallet and its token balance",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			ProofArgument: proofSchema(),
		}),
		Handler: Protect(TokenBalanceName, v, func(_ context.Context, id *Identity, _ tools.Arguments) tools.Result {
			return tools.Success(fmt.Sprintf("Wallet %s holds %s base units of the gating token", id.Address, id.BalanceString()))
		}, opts),
	}
}
