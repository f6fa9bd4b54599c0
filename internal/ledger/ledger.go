// ABOUTME: SQLite access ledger using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the schema on first use

package ledger

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Ledger stores access decisions. It is safe for concurrent use.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the ledger at path. Parent directories are created
// if needed. ":memory:" opens a private in-memory database.
func Open(path string) (*Ledger, error) {
	logger := slog.Default().With("component", "ledger")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("access ledger initialized", "path", path)
	return l, nil
}

func (l *Ledger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS access_log (
			id         TEXT PRIMARY KEY,
			tool       TEXT NOT NULL,
			wallet     TEXT NOT NULL,
			balance    TEXT,
			granted    INTEGER NOT NULL,
			reason     TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (granted IN (0, 1))
		);

		CREATE INDEX IF NOT EXISTS idx_access_log_created ON access_log(created_at);
		CREATE INDEX IF NOT EXISTS idx_access_log_wallet ON access_log(wallet, created_at);
		CREATE INDEX IF NOT EXISTS idx_access_log_tool ON access_log(tool, created_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
