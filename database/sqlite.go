package database

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Pragmas are applied by the driver on every new connection so they hold for
// the whole pool, not just the first connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// NewSQLiteDB opens a SQLite database. In-memory databases are pinned to a
// single connection because each connection would otherwise see its own
// private database.
func NewSQLiteDB(dsn string) (*DBClient, error) {
	if dsn == "" {
		dsn = "climate_data.db"
	}

	db, err := sqlx.Open(DriverSQLite, withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	slog.Debug("opened SQLite database", "dsn", dsn)
	return &DBClient{DB: db, Driver: DriverSQLite}, nil
}

func withPragmas(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
