// ABOUTME: Typed tool results: a success with text or a tagged failure.
// ABOUTME: Converted to protocol content only at the MCP boundary.

package tools

import "fmt"

// Kind tags why a tool call failed.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindAccessDenied Kind = "access_denied"
	KindUnknownTool  Kind = "unknown_tool"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Failure describes a failed call. Message is safe to show the caller; Err is
// the underlying cause and must only be logged.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

// Result is the outcome of a tool call.
type Result struct {
	text    string
	failure *Failure
}

// Success returns a successful result carrying text.
func Success(text string) Result {
	return Result{text: text}
}

// Fail returns a failed result.
func Fail(kind Kind, message string, err error) Result {
	return Result{failure: &Failure{Kind: kind, Message: message, Err: err}}
}

// Failf is Fail with a formatted message.
func Failf(kind Kind, err error, format string, args ...any) Result {
	return Fail(kind, fmt.Sprintf(format, args...), err)
}

// IsError reports whether the call failed.
func (r Result) IsError() bool {
	return r.failure != nil
}

// Failure returns the failure, or nil for a successful result.
func (r Result) Failure() *Failure {
	return r.failure
}

// Text returns the caller-visible text: the success text or the failure message.
func (r Result) Text() string {
	if r.failure != nil {
		return r.failure.Message
	}
	return r.text
}

// Outcome is a short label for metrics and logs: "ok" or the failure kind.
func (r Result) Outcome() string {
	if r.failure != nil {
		return string(r.failure.Kind)
	}
	return "ok"
}
