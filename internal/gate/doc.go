// Package gate restricts tool calls to callers an access Verifier accepts.
//
// The Verifier is an injected capability. Production servers use the EIP-712
// and ERC-20 verifier from internal/evmauth; tests use VerifierFunc fakes.
//
// Protect wraps a GatedHandler into a tools.Handler:
//
//	echo := gate.GatedEcho(verifier, gate.Options{Logger: logger})
//
// On rejection the caller receives DeniedMessage and nothing else. The
// rejection cause is logged and passed to the optional Recorder, never returned.
// On success the proof argument is stripped before the handler sees the call.
package gate
