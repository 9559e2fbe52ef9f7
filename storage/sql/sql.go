// Package sql provides SQL-backed implementations of storage.Store.
package sql

import (
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"time"

	"github.com/lib/pq"
)

// flavor represents a specific SQL dialect and is used to translate query strings written
// against the Postgres-flavored query set into the target driver's syntax. Flavors don't aim to
// translate arbitrary SQL, only the fixed queries this package issues.
type flavor struct {
	queryReplacers []replacer

	executeTx func(db *sql.DB, fn func(*sql.Tx) error) error

	supportsTimezones bool
}

type replacer struct {
	re   *regexp.Regexp
	with string
}

var bindRegexp = regexp.MustCompile(`\$\d+`)

func matchLiteral(s string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(s) + `\b`)
}

var (
	// flavorPostgres is the default flavor; every query below is written against it.
	flavorPostgres = flavor{
		executeTx: func(db *sql.DB, fn func(sqlTx *sql.Tx) error) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
			for {
				tx, err := db.BeginTx(ctx, opts)
				if err != nil {
					return err
				}
				if err := fn(tx); err != nil {
					tx.Rollback()
					if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "serialization_failure" {
						continue
					}
					return err
				}
				if err := tx.Commit(); err != nil {
					if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "serialization_failure" {
						continue
					}
					return err
				}
				return nil
			}
		},
		supportsTimezones: true,
	}

	flavorMySQL = flavor{
		queryReplacers: []replacer{
			{bindRegexp, "?"},
		},
		supportsTimezones: true,
	}

	flavorSQLite3 = flavor{
		queryReplacers: []replacer{
			{bindRegexp, "?"},
			{matchLiteral("true"), "1"},
			{matchLiteral("false"), "0"},
			{matchLiteral("boolean"), "integer"},
			{matchLiteral("bytea"), "blob"},
			{matchLiteral("timestamptz"), "timestamp"},
			{regexp.MustCompile(`\bnow\(\)`), "date('now')"},
		},
	}
)

func (f flavor) translate(query string) string {
	for _, r := range f.queryReplacers {
		query = r.re.ReplaceAllString(query, r.with)
	}
	return query
}

func (c *conn) translateArgs(args []interface{}) []interface{} {
	if c.flavor.supportsTimezones {
		return args
	}
	for i, arg := range args {
		if t, ok := arg.(time.Time); ok {
			args[i] = t.UTC()
		}
	}
	return args
}

// conn is the main database connection shared by every entity's CRUD methods.
type conn struct {
	db     *sql.DB
	flavor *flavor
	logger *slog.Logger

	alreadyExistsCheck func(err error) bool
}

func (c *conn) Close() error { return c.db.Close() }

func (c *conn) Exec(query string, args ...interface{}) (sql.Result, error) {
	query = c.flavor.translate(query)
	return c.db.Exec(query, c.translateArgs(args)...)
}

func (c *conn) Query(query string, args ...interface{}) (*sql.Rows, error) {
	query = c.flavor.translate(query)
	return c.db.Query(query, c.translateArgs(args)...)
}

func (c *conn) QueryRow(query string, args ...interface{}) *sql.Row {
	query = c.flavor.translate(query)
	return c.db.QueryRow(query, c.translateArgs(args)...)
}

// ExecTx runs fn against a transaction, retrying automatically on serialization failures when
// the flavor supports it.
func (c *conn) ExecTx(fn func(tx *trans) error) error {
	if c.flavor.executeTx != nil {
		return c.flavor.executeTx(c.db, func(sqlTx *sql.Tx) error {
			return fn(&trans{sqlTx, c})
		})
	}
	sqlTx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(&trans{sqlTx, c}); err != nil {
		sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

type trans struct {
	tx *sql.Tx
	c  *conn
}

func (t *trans) Exec(query string, args ...interface{}) (sql.Result, error) {
	query = t.c.flavor.translate(query)
	return t.tx.Exec(query, t.c.translateArgs(args)...)
}

func (t *trans) Query(query string, args ...interface{}) (*sql.Rows, error) {
	query = t.c.flavor.translate(query)
	return t.tx.Query(query, t.c.translateArgs(args)...)
}

func (t *trans) QueryRow(query string, args ...interface{}) *sql.Row {
	query = t.c.flavor.translate(query)
	return t.tx.QueryRow(query, t.c.translateArgs(args)...)
}
