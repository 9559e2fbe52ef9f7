package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/coreoidc/authd/storage"
)

var _ storage.Store = (*conn)(nil)

func marshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (c *conn) alreadyExists(err error) bool {
	return err != nil && c.alreadyExistsCheck != nil && c.alreadyExistsCheck(err)
}

func (c *conn) CreateApplication(ctx context.Context, a storage.Application) error {
	_, err := c.Exec(`
		insert into applications (id, name, client_secret, client_type, redirect_uris,
			post_logout_redirect_uris, permissions, consent_type, concurrency_token)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, a.ID, a.Name, a.ClientSecret, string(a.ClientType), marshal(a.RedirectURIs),
		marshal(a.PostLogoutRedirectURIs), marshal(a.Permissions), string(a.ConsentType), storage.NewID())
	if c.alreadyExists(err) {
		return storage.Error{Code: storage.ErrAlreadyExists}
	}
	return err
}

func (c *conn) GetApplication(ctx context.Context, id string) (storage.Application, error) {
	return scanApplication(c.QueryRow(`
		select id, name, client_secret, client_type, redirect_uris,
			post_logout_redirect_uris, permissions, consent_type, concurrency_token
		from applications where id = $1;
	`, id))
}

func (c *conn) ListApplications(ctx context.Context) ([]storage.Application, error) {
	rows, err := c.Query(`
		select id, name, client_secret, client_type, redirect_uris,
			post_logout_redirect_uris, permissions, consent_type, concurrency_token
		from applications;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Application
	for rows.Next() {
		a, err := scanApplicationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *conn) DeleteApplication(ctx context.Context, id string) error {
	return c.delete("applications", "id", id)
}

func (c *conn) UpdateApplication(ctx context.Context, id string, updater storage.ApplicationUpdater) error {
	return c.ExecTx(func(tx *trans) error {
		a, err := scanApplication(tx.QueryRow(`
			select id, name, client_secret, client_type, redirect_uris,
				post_logout_redirect_uris, permissions, consent_type, concurrency_token
			from applications where id = $1 for update;
		`, id))
		if err != nil {
			return err
		}
		a, err = updater(a)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			update applications
			set name = $1, client_secret = $2, client_type = $3, redirect_uris = $4,
				post_logout_redirect_uris = $5, permissions = $6, consent_type = $7, concurrency_token = $8
			where id = $9;
		`, a.Name, a.ClientSecret, string(a.ClientType), marshal(a.RedirectURIs),
			marshal(a.PostLogoutRedirectURIs), marshal(a.Permissions), string(a.ConsentType), storage.NewID(), id)
		return err
	})
}

func scanApplication(row *sql.Row) (a storage.Application, err error) {
	var clientType, consentType string
	var redirectURIs, postLogoutRedirectURIs, permissions []byte
	err = row.Scan(&a.ID, &a.Name, &a.ClientSecret, &clientType, &redirectURIs,
		&postLogoutRedirectURIs, &permissions, &consentType, &a.ConcurrencyToken)
	if err == sql.ErrNoRows {
		return a, storage.Error{Code: storage.ErrNotFound}
	}
	if err != nil {
		return a, err
	}
	a.ClientType = storage.ClientType(clientType)
	a.ConsentType = storage.ConsentType(consentType)
	_ = json.Unmarshal(redirectURIs, &a.RedirectURIs)
	_ = json.Unmarshal(postLogoutRedirectURIs, &a.PostLogoutRedirectURIs)
	_ = json.Unmarshal(permissions, &a.Permissions)
	return a, nil
}

func scanApplicationRow(rows *sql.Rows) (a storage.Application, err error) {
	var clientType, consentType string
	var redirectURIs, postLogoutRedirectURIs, permissions []byte
	err = rows.Scan(&a.ID, &a.Name, &a.ClientSecret, &clientType, &redirectURIs,
		&postLogoutRedirectURIs, &permissions, &consentType, &a.ConcurrencyToken)
	if err != nil {
		return a, err
	}
	a.ClientType = storage.ClientType(clientType)
	a.ConsentType = storage.ConsentType(consentType)
	_ = json.Unmarshal(redirectURIs, &a.RedirectURIs)
	_ = json.Unmarshal(postLogoutRedirectURIs, &a.PostLogoutRedirectURIs)
	_ = json.Unmarshal(permissions, &a.Permissions)
	return a, nil
}

func (c *conn) CreateAuthorization(ctx context.Context, a storage.Authorization) error {
	_, err := c.Exec(`
		insert into authorizations (id, application_id, subject, status, type, scopes, properties,
			creation_date, concurrency_token)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, a.ID, a.ApplicationID, a.Subject, string(a.Status), string(a.Type), marshal(a.Scopes),
		marshal(a.Properties), a.CreationDate, storage.NewID())
	if c.alreadyExists(err) {
		return storage.Error{Code: storage.ErrAlreadyExists}
	}
	return err
}

func (c *conn) GetAuthorization(ctx context.Context, id string) (storage.Authorization, error) {
	return scanAuthorization(c.QueryRow(`
		select id, application_id, subject, status, type, scopes, properties, creation_date, concurrency_token
		from authorizations where id = $1;
	`, id))
}

func (c *conn) ListAuthorizations(ctx context.Context, applicationID, subject string) ([]storage.Authorization, error) {
	rows, err := c.Query(`
		select id, application_id, subject, status, type, scopes, properties, creation_date, concurrency_token
		from authorizations
		where ($1 = '' or application_id = $1) and ($2 = '' or subject = $2);
	`, applicationID, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Authorization
	for rows.Next() {
		a, err := scanAuthorizationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *conn) DeleteAuthorization(ctx context.Context, id string) error {
	return c.ExecTx(func(tx *trans) error {
		res, err := tx.Exec(`delete from authorizations where id = $1;`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.Error{Code: storage.ErrNotFound}
		}
		_, err = tx.Exec(`delete from tokens where authorization_id = $1;`, id)
		return err
	})
}

func (c *conn) UpdateAuthorization(ctx context.Context, id string, updater storage.AuthorizationUpdater) error {
	return c.ExecTx(func(tx *trans) error {
		a, err := scanAuthorization(tx.QueryRow(`
			select id, application_id, subject, status, type, scopes, properties, creation_date, concurrency_token
			from authorizations where id = $1 for update;
		`, id))
		if err != nil {
			return err
		}
		a, err = updater(a)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			update authorizations
			set status = $1, type = $2, scopes = $3, properties = $4, concurrency_token = $5
			where id = $6;
		`, string(a.Status), string(a.Type), marshal(a.Scopes), marshal(a.Properties), storage.NewID(), id)
		return err
	})
}

func scanAuthorization(row *sql.Row) (a storage.Authorization, err error) {
	var status, typ string
	var scopes, properties []byte
	err = row.Scan(&a.ID, &a.ApplicationID, &a.Subject, &status, &typ, &scopes, &properties,
		&a.CreationDate, &a.ConcurrencyToken)
	if err == sql.ErrNoRows {
		return a, storage.Error{Code: storage.ErrNotFound}
	}
	if err != nil {
		return a, err
	}
	a.Status = storage.AuthorizationStatus(status)
	a.Type = storage.AuthorizationType(typ)
	_ = json.Unmarshal(scopes, &a.Scopes)
	_ = json.Unmarshal(properties, &a.Properties)
	return a, nil
}

func scanAuthorizationRow(rows *sql.Rows) (a storage.Authorization, err error) {
	var status, typ string
	var scopes, properties []byte
	err = rows.Scan(&a.ID, &a.ApplicationID, &a.Subject, &status, &typ, &scopes, &properties,
		&a.CreationDate, &a.ConcurrencyToken)
	if err != nil {
		return a, err
	}
	a.Status = storage.AuthorizationStatus(status)
	a.Type = storage.AuthorizationType(typ)
	_ = json.Unmarshal(scopes, &a.Scopes)
	_ = json.Unmarshal(properties, &a.Properties)
	return a, nil
}

func (c *conn) CreateToken(ctx context.Context, t storage.Token) error {
	_, err := c.Exec(`
		insert into tokens (id, reference_id, application_id, authorization_id, subject, type,
			status, creation_date, expiration_date, payload, properties, concurrency_token)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`, t.ID, t.ReferenceID, t.ApplicationID, t.AuthorizationID, t.Subject, string(t.Type),
		string(t.Status), t.CreationDate, t.ExpirationDate, t.Payload, marshal(t.Properties), storage.NewID())
	if c.alreadyExists(err) {
		return storage.Error{Code: storage.ErrAlreadyExists}
	}
	return err
}

func (c *conn) GetToken(ctx context.Context, id string) (storage.Token, error) {
	return scanToken(c.QueryRow(`
		select id, reference_id, application_id, authorization_id, subject, type, status,
			creation_date, expiration_date, payload, properties, concurrency_token
		from tokens where id = $1;
	`, id))
}

func (c *conn) GetTokenByReferenceID(ctx context.Context, referenceID string) (storage.Token, error) {
	return scanToken(c.QueryRow(`
		select id, reference_id, application_id, authorization_id, subject, type, status,
			creation_date, expiration_date, payload, properties, concurrency_token
		from tokens where reference_id = $1;
	`, referenceID))
}

func (c *conn) ListTokens(ctx context.Context, authorizationID string) ([]storage.Token, error) {
	rows, err := c.Query(`
		select id, reference_id, application_id, authorization_id, subject, type, status,
			creation_date, expiration_date, payload, properties, concurrency_token
		from tokens where ($1 = '' or authorization_id = $1);
	`, authorizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Token
	for rows.Next() {
		t, err := scanTokenRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *conn) DeleteToken(ctx context.Context, id string) error {
	return c.delete("tokens", "id", id)
}

func (c *conn) UpdateToken(ctx context.Context, id string, updater storage.TokenUpdater) error {
	return c.ExecTx(func(tx *trans) error {
		t, err := scanToken(tx.QueryRow(`
			select id, reference_id, application_id, authorization_id, subject, type, status,
				creation_date, expiration_date, payload, properties, concurrency_token
			from tokens where id = $1 for update;
		`, id))
		if err != nil {
			return err
		}
		t, err = updater(t)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			update tokens
			set reference_id = $1, status = $2, expiration_date = $3, payload = $4, properties = $5,
				concurrency_token = $6
			where id = $7;
		`, t.ReferenceID, string(t.Status), t.ExpirationDate, t.Payload, marshal(t.Properties), storage.NewID(), id)
		return err
	})
}

func scanToken(row *sql.Row) (t storage.Token, err error) {
	var typ, status string
	var properties []byte
	err = row.Scan(&t.ID, &t.ReferenceID, &t.ApplicationID, &t.AuthorizationID, &t.Subject, &typ,
		&status, &t.CreationDate, &t.ExpirationDate, &t.Payload, &properties, &t.ConcurrencyToken)
	if err == sql.ErrNoRows {
		return t, storage.Error{Code: storage.ErrNotFound}
	}
	if err != nil {
		return t, err
	}
	t.Type = storage.TokenType(typ)
	t.Status = storage.TokenStatus(status)
	_ = json.Unmarshal(properties, &t.Properties)
	return t, nil
}

func scanTokenRow(rows *sql.Rows) (t storage.Token, err error) {
	var typ, status string
	var properties []byte
	err = rows.Scan(&t.ID, &t.ReferenceID, &t.ApplicationID, &t.AuthorizationID, &t.Subject, &typ,
		&status, &t.CreationDate, &t.ExpirationDate, &t.Payload, &properties, &t.ConcurrencyToken)
	if err != nil {
		return t, err
	}
	t.Type = storage.TokenType(typ)
	t.Status = storage.TokenStatus(status)
	_ = json.Unmarshal(properties, &t.Properties)
	return t, nil
}

func (c *conn) CreateScope(ctx context.Context, s storage.Scope) error {
	_, err := c.Exec(`insert into scopes (name, display_name, resources) values ($1, $2, $3);`,
		s.Name, s.DisplayName, marshal(s.Resources))
	if c.alreadyExists(err) {
		return storage.Error{Code: storage.ErrAlreadyExists}
	}
	return err
}

func (c *conn) GetScope(ctx context.Context, name string) (s storage.Scope, err error) {
	var resources []byte
	err = c.QueryRow(`select name, display_name, resources from scopes where name = $1;`, name).
		Scan(&s.Name, &s.DisplayName, &resources)
	if err == sql.ErrNoRows {
		return s, storage.Error{Code: storage.ErrNotFound}
	}
	if err != nil {
		return s, err
	}
	_ = json.Unmarshal(resources, &s.Resources)
	return s, nil
}

func (c *conn) ListScopes(ctx context.Context) ([]storage.Scope, error) {
	rows, err := c.Query(`select name, display_name, resources from scopes;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Scope
	for rows.Next() {
		var s storage.Scope
		var resources []byte
		if err := rows.Scan(&s.Name, &s.DisplayName, &resources); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(resources, &s.Resources)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *conn) DeleteScope(ctx context.Context, name string) error {
	return c.delete("scopes", "name", name)
}

func (c *conn) delete(table, column, value string) error {
	res, err := c.Exec(`delete from `+table+` where `+column+` = $1;`, value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.Error{Code: storage.ErrNotFound}
	}
	return nil
}

func (c *conn) GarbageCollect(ctx context.Context, now time.Time) (storage.GCResult, error) {
	var result storage.GCResult
	err := c.ExecTx(func(tx *trans) error {
		// A zero expiration date means the token never expires (storage.Token.IsExpired).
		res, err := tx.Exec(`delete from tokens where expiration_date < $1 and expiration_date != $2;`, now, time.Time{})
		if err != nil {
			return err
		}
		result.Tokens, _ = res.RowsAffected()

		res, err = tx.Exec(`
			delete from authorizations
			where type = 'ad_hoc' and (
				status = 'revoked'
				or not exists (
					select 1 from tokens
					where tokens.authorization_id = authorizations.id
						and tokens.status = 'valid'
						and (tokens.expiration_date >= $1 or tokens.expiration_date = $2)
				)
			);
		`, now, time.Time{})
		if err != nil {
			return err
		}
		result.Authorizations, _ = res.RowsAffected()
		return nil
	})
	return result, err
}
