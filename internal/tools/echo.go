// ABOUTME: The open echo tool: returns the caller's message unchanged.
// ABOUTME: A missing or empty message yields a fixed default text.

package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// DefaultEchoMessage is returned when no message argument is supplied.
const DefaultEchoMessage = "No message provided"

// EchoName is the tool name shared by the open and gated echo tools.
const EchoName = "echo"

// EchoMessage returns the message argument or DefaultEchoMessage.
func EchoMessage(args Arguments) string {
	if msg, ok := args.String("message"); ok && msg != "" {
		return msg
	}
	return DefaultEchoMessage
}

// EchoSchemaProperties returns the echo tool's input properties.
func EchoSchemaProperties() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"message": {
			Type:        "string",
			Description: "The message to echo back",
		},
	}
}

// Echo returns the open echo tool.
func Echo() Tool {
	return Tool{
		Name:        EchoName,
		Description: "Echoes back the provided message",
		InputSchema: ObjectSchema(EchoSchemaProperties()),
		Handler: func(_ context.Context, args Arguments) Result {
			return Success(EchoMessage(args))
		},
	}
}
