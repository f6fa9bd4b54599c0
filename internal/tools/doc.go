// Package tools defines the tool descriptors and handlers served over MCP.
//
// A Tool pairs static metadata (name, description, JSON Schema for its input)
// with a Handler. Handlers never return Go errors: they return a Result that is
// either a success carrying text or a tagged Failure. The protocol layer turns a
// Result into wire content; nothing below it knows about MCP framing.
//
// A Toolset is the fixed, ordered collection of tools a server exposes. It
// resolves every schema once at construction, validates call arguments against
// it, and dispatches by name:
//
//	set, err := tools.NewToolset(tools.Echo())
//	res := set.Call(ctx, "echo", tools.Arguments{"message": "hello"})
//	res.Text() // "hello"
//
// Failure kinds:
//
//   - validation: arguments did not match the tool's input schema
//   - access_denied: an access verifier rejected the caller
//   - unknown_tool: the requested name is not in the toolset
//   - upstream: an external service the tool depends on failed
//   - internal: anything else
//
// Only Failure.Message ever reaches the caller. Failure.Err is for logs.
package tools
