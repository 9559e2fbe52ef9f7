//go:build cgo

package sql

import (
	"database/sql"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/coreoidc/authd/storage"
)

// SQLite3 options for creating a SQLite-backed Store. Intended for local development and tests,
// not production deployments of the authorization server.
type SQLite3 struct {
	File string `json:"file"`
}

// Open creates a new Store backed by SQLite3.
func (s *SQLite3) Open(logger *slog.Logger) (storage.Store, error) {
	return s.open(logger)
}

func (s *SQLite3) open(logger *slog.Logger) (*conn, error) {
	db, err := sql.Open("sqlite3", s.File)
	if err != nil {
		return nil, err
	}

	// SQLite allows only one writer at a time; serialize access through a single connection
	// rather than fight lock contention across a pool.
	db.SetMaxOpenConns(1)

	errCheck := func(err error) bool {
		sqlErr, ok := err.(sqlite3.Error)
		return ok && sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	c := &conn{db, &flavorSQLite3, logger, errCheck}
	if _, err := c.migrate(); err != nil {
		return nil, fmt.Errorf("failed to perform migrations: %v", err)
	}
	return c, nil
}
