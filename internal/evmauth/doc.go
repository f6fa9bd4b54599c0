// Package evmauth verifies token-holder access proofs for gated tools.
//
// A caller proves control of a wallet by signing an EIP-712 ToolAccess message
// and passing it as the __evmauth tool argument:
//
//	{
//	  "message": "hello",
//	  "__evmauth": {
//	    "wallet":    "0x...",
//	    "nonce":     "b1f4...",
//	    "expires":   1767225600,
//	    "signature": "0x..."
//	  }
//	}
//
// The typed data is bound to the chain ID, the gating token contract (as the
// verifying contract) and the tool name, so a proof cannot be replayed against
// another chain, token or tool. Each (wallet, nonce) pair is accepted once.
//
// After the signer is recovered, the wallet's ERC-20 balance is read with
// balanceOf and compared against the configured minimum. Balance reads are
// cached briefly in a bounded LRU, and concurrent reads for the same wallet
// are coalesced into one RPC call that a single caller's cancellation does
// not abort.
package evmauth
