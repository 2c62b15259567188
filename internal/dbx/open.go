package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres through the pgx driver and verifies the
// connection. In development, sslmode=disable is appended when absent;
// elsewhere the simple protocol is forced so transaction poolers such as
// pgbouncer work.
func Open(ctx context.Context, dsn, environment string) (*sql.DB, error) {
	if environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn += dsnSeparator(dsn) + "sslmode=disable"
	}
	if environment != "development" && !strings.Contains(dsn, "prefer_simple_protocol") {
		dsn += dsnSeparator(dsn) + "prefer_simple_protocol=true"
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// dsnSeparator picks the separator for appending a parameter to a URL or
// key/value DSN.
func dsnSeparator(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return "&"
		}
		return "?"
	}
	return " "
}
