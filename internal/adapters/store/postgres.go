package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres uses lib/pq placeholders and retries on connection and
// serialization failures.
var Postgres = Dialect{Name: "postgres", Numbered: true, Retryable: postgresRetryable}

func postgresRetryable(err error) bool {
	if isContextErr(err) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		}
		return false
	}
	return false
}

// NewPostgres wraps an open handle.
func NewPostgres(db *sql.DB, table string, opts ...SQLOption) (*SQL, error) {
	return NewSQL(db, table, Postgres, opts...)
}

// OpenPostgres connects with a lib/pq connection string.
func OpenPostgres(dsn, table string, opts ...SQLOption) (*SQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewPostgres(db, table, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
