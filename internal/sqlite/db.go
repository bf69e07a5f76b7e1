package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// connParams are applied by the driver to every pooled connection. Write
// transactions take the lock at BEGIN so they wait on busy_timeout instead of
// failing when a read lock cannot be upgraded.
const connParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", withConnParams(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database, and shared-cache
	// databases use table locks that ignore busy_timeout.
	if dataSourceName == ":memory:" || strings.Contains(dataSourceName, "cache=shared") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{db}, nil
}

func withConnParams(dataSourceName string) string {
	if strings.Contains(dataSourceName, "?") {
		return dataSourceName + "&" + connParams
	}
	return dataSourceName + "?" + connParams
}

// RunMigrations creates the document table if it does not exist yet
func (db *DB) RunMigrations() error {
	migration := `
-- One row per document; body holds the JSON record as returned to callers.
CREATE TABLE IF NOT EXISTS documents (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    body TEXT NOT NULL CHECK(json_valid(body)),
    inserted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(collection, json_extract(body, '$.user_id'));
`

	if _, err := db.Exec(migration); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
