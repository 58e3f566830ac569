package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/omega-realm/bossdrop/internal/game"
)

// Store is the Postgres implementation of the game persistence ports
type Store struct {
	db *DB
}

var _ game.Store = (*Store)(nil)

// NewStore creates a store over an open connection
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && (constraint == "" || pqErr.Constraint == constraint)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTimeOf(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
