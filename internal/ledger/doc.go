// ABOUTME: Package documentation for the access ledger
// ABOUTME: Explains the access_log table and how the gated server uses it

// Package ledger persists gated tool access decisions in SQLite.
//
// Every call that reaches a gated tool produces one row in access_log,
// whether it was granted or denied. Rows are append-only; the ledger
// never updates or deletes them.
//
// # Schema
//
//	access_log (
//	    id         TEXT PRIMARY KEY,   -- uuid
//	    tool       TEXT NOT NULL,
//	    wallet     TEXT NOT NULL,      -- claimed wallet on denial, may be ''
//	    balance    TEXT,               -- base units, decimal; NULL on denial
//	    granted    INTEGER NOT NULL,   -- 0 or 1
//	    reason     TEXT NOT NULL,      -- denial cause, '' on grant
//	    created_at TEXT NOT NULL       -- RFC3339, UTC
//	)
//
// Wallets are stored lower-cased so lookups are case-insensitive.
//
// # Usage
//
//	l, err := ledger.Open("/var/lib/tokengate/access.db")
//	if err != nil {
//	    return err
//	}
//	defer l.Close()
//
//	handler := gate.Protect(name, verifier, fn, gate.Options{Recorder: l})
//
// The ledger also serves aggregate counts over HTTP via StatsHandler, which
// the gated server mounts at GET /access/stats.
package ledger
