// ABOUTME: Recording and querying access decisions in the access_log table
// ABOUTME: Implements gate.Recorder plus Recent and Stats for reporting

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/tokengate-mcp/internal/gate"
)

// Entry is one stored access decision.
type Entry struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Wallet    string    `json:"wallet"`
	Balance   string    `json:"balance,omitempty"`
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows Stats. Nil fields are ignored.
type Filter struct {
	Tool   *string
	Wallet *string
	Since  *time.Time
	Until  *time.Time
}

// Stats aggregates access decisions.
type Stats struct {
	Total         int64 `json:"total"`
	Granted       int64 `json:"granted"`
	Denied        int64 `json:"denied"`
	UniqueWallets int64 `json:"unique_wallets"`
}

var _ gate.Recorder = (*Ledger)(nil)

// Record stores one access decision.
func (l *Ledger) Record(ctx context.Context, a gate.Access) error {
	if a.Tool == "" {
		return errors.New("access record requires a tool name")
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO access_log (id, tool, wallet, balance, granted, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx, query,
		id,
		a.Tool,
		strings.ToLower(a.Address),
		nullBalance(a.Balance),
		boolToInt(a.Granted),
		a.Reason,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting access record: %w", err)
	}

	l.logger.Debug("recorded tool access",
		"id", id,
		"tool_name", a.Tool,
		"wallet", a.Address,
		"granted", a.Granted,
	)
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tool, wallet, balance, granted, reason, created_at
		FROM access_log
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying access log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access rows: %w", err)
	}
	return entries, nil
}

// Stats returns aggregate counts matching filter.
func (l *Ledger) Stats(ctx context.Context, filter Filter) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(granted), 0) as granted,
			COUNT(DISTINCT NULLIF(wallet, '')) as unique_wallets
		FROM access_log
		WHERE 1=1
	`
	args := []any{}

	if filter.Tool != nil {
		query += " AND tool = ?"
		args = append(args, *filter.Tool)
	}
	if filter.Wallet != nil {
		query += " AND wallet = ?"
		args = append(args, strings.ToLower(*filter.Wallet))
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	var stats Stats
	err := l.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Granted,
		&stats.UniqueWallets,
	)
	if err != nil {
		return nil, fmt.Errorf("querying access stats: %w", err)
	}
	stats.Denied = stats.Total - stats.Granted

	return &stats, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var balance sql.NullString
	var granted int
	var createdAtStr string

	err := rows.Scan(&e.ID, &e.Tool, &e.Wallet, &balance, &granted, &e.Reason, &createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("scanning access row: %w", err)
	}

	if balance.Valid {
		e.Balance = balance.String
	}
	e.Granted = granted == 1

	e.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &e, nil
}

func nullBalance(b *big.Int) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: b.String(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
