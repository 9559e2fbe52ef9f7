package sql

import (
	"database/sql"
	"fmt"
)

// migrations holds one entry per schema version. Entries are never edited once released; new
// schema changes are appended.
var migrations = []string{
	`
	create table applications (
		id text primary key,
		name text not null,
		client_secret text not null,
		client_type text not null,
		redirect_uris bytea not null,
		post_logout_redirect_uris bytea not null,
		permissions bytea not null,
		consent_type text not null,
		concurrency_token text not null
	);

	create table authorizations (
		id text primary key,
		application_id text not null,
		subject text not null,
		status text not null,
		type text not null,
		scopes bytea not null,
		properties bytea not null,
		creation_date timestamptz not null,
		concurrency_token text not null
	);
	create index authorizations_application_id_subject on authorizations (application_id, subject);

	create table tokens (
		id text primary key,
		reference_id text not null default '',
		application_id text not null,
		authorization_id text not null default '',
		subject text not null,
		type text not null,
		status text not null,
		creation_date timestamptz not null,
		expiration_date timestamptz not null,
		payload bytea not null,
		properties bytea not null,
		concurrency_token text not null
	);
	create unique index tokens_reference_id on tokens (reference_id) where reference_id != '';
	create index tokens_authorization_id on tokens (authorization_id);
	create index tokens_expiration_date on tokens (expiration_date);

	create table scopes (
		name text primary key,
		display_name text not null,
		resources bytea not null
	);
	`,
}

func (c *conn) migrate() (int, error) {
	_, err := c.Exec(`
		create table if not exists migrations (
			num integer not null,
			at timestamptz not null
		);
	`)
	if err != nil {
		return 0, fmt.Errorf("creating migration table: %v", err)
	}

	i := 0
	done := false
	for {
		err := c.ExecTx(func(tx *trans) error {
			var (
				num sql.NullInt64
				n   int
			)
			if err := tx.QueryRow(`select max(num) from migrations;`).Scan(&num); err != nil {
				return fmt.Errorf("select max migration: %v", err)
			}
			if num.Valid {
				n = int(num.Int64)
			}
			if n >= len(migrations) {
				done = true
				return nil
			}

			migrationNum := n + 1
			stmt := migrations[n]
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to perform migration#%d: %v", migrationNum, err)
			}
			if _, err := tx.Exec(`insert into migrations (num, at) values ($1, now());`, migrationNum); err != nil {
				return fmt.Errorf("failed to denote migration #%d: %v", migrationNum, err)
			}
			return nil
		})
		if err != nil {
			return i, err
		}
		if done {
			return i, nil
		}
		i++
	}
}
