// Package memory provides an in memory implementation of the storage.Store interface. It is the
// reference backend: every other backend must pass the same conformance suite this one does.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coreoidc/authd/storage"
)

var _ storage.Store = (*memStore)(nil)

// New returns an in memory Store.
func New(logger *slog.Logger) storage.Store {
	return &memStore{
		applications:  make(map[string]storage.Application),
		authorizations: make(map[string]storage.Authorization),
		tokens:        make(map[string]storage.Token),
		tokensByRef:   make(map[string]string),
		scopes:        make(map[string]storage.Scope),
		logger:        logger,
	}
}

// Config is the no-op configuration for the in-memory store: it holds nothing because there is
// no connection to establish.
type Config struct{}

// Open always returns a new in-memory Store.
func (c *Config) Open(logger *slog.Logger) (storage.Store, error) {
	return New(logger), nil
}

type memStore struct {
	mu sync.Mutex

	applications   map[string]storage.Application
	authorizations map[string]storage.Authorization
	tokens         map[string]storage.Token
	tokensByRef    map[string]string // reference_id -> token id
	scopes         map[string]storage.Scope

	logger *slog.Logger
}

func (s *memStore) tx(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

func (s *memStore) Close() error { return nil }

func (s *memStore) CreateApplication(ctx context.Context, a storage.Application) (err error) {
	s.tx(func() {
		if _, ok := s.applications[a.ID]; ok {
			err = storage.Error{Code: storage.ErrAlreadyExists}
			return
		}
		s.applications[a.ID] = a
	})
	return
}

func (s *memStore) CreateAuthorization(ctx context.Context, a storage.Authorization) (err error) {
	s.tx(func() {
		if _, ok := s.authorizations[a.ID]; ok {
			err = storage.Error{Code: storage.ErrAlreadyExists}
			return
		}
		s.authorizations[a.ID] = a
	})
	return
}

func (s *memStore) CreateToken(ctx context.Context, t storage.Token) (err error) {
	s.tx(func() {
		if _, ok := s.tokens[t.ID]; ok {
			err = storage.Error{Code: storage.ErrAlreadyExists}
			return
		}
		s.tokens[t.ID] = t
		if t.ReferenceID != "" {
			s.tokensByRef[t.ReferenceID] = t.ID
		}
	})
	return
}

func (s *memStore) CreateScope(ctx context.Context, sc storage.Scope) (err error) {
	s.tx(func() {
		if _, ok := s.scopes[sc.Name]; ok {
			err = storage.Error{Code: storage.ErrAlreadyExists}
			return
		}
		s.scopes[sc.Name] = sc
	})
	return
}

func (s *memStore) GetApplication(ctx context.Context, id string) (a storage.Application, err error) {
	s.tx(func() {
		var ok bool
		if a, ok = s.applications[id]; !ok {
			err = storage.Error{Code: storage.ErrNotFound}
		}
	})
	return
}

func (s *memStore) GetAuthorization(ctx context.Context, id string) (a storage.Authorization, err error) {
	s.tx(func() {
		var ok bool
		if a, ok = s.authorizations[id]; !ok {
			err = storage.Error{Code: storage.ErrNotFound}
		}
	})
	return
}

func (s *memStore) GetToken(ctx context.Context, id string) (t storage.Token, err error) {
	s.tx(func() {
		var ok bool
		if t, ok = s.tokens[id]; !ok {
			err = storage.Error{Code: storage.ErrNotFound}
		}
	})
	return
}

func (s *memStore) GetTokenByReferenceID(ctx context.Context, referenceID string) (t storage.Token, err error) {
	s.tx(func() {
		id, ok := s.tokensByRef[referenceID]
		if !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		t, ok = s.tokens[id]
		if !ok {
			err = storage.Error{Code: storage.ErrNotFound}
		}
	})
	return
}

func (s *memStore) GetScope(ctx context.Context, name string) (sc storage.Scope, err error) {
	s.tx(func() {
		var ok bool
		if sc, ok = s.scopes[name]; !ok {
			err = storage.Error{Code: storage.ErrNotFound}
		}
	})
	return
}

func (s *memStore) ListApplications(ctx context.Context) (out []storage.Application, err error) {
	s.tx(func() {
		for _, a := range s.applications {
			out = append(out, a)
		}
	})
	return
}

func (s *memStore) ListAuthorizations(ctx context.Context, applicationID, subject string) (out []storage.Authorization, err error) {
	s.tx(func() {
		for _, a := range s.authorizations {
			if applicationID != "" && a.ApplicationID != applicationID {
				continue
			}
			if subject != "" && a.Subject != subject {
				continue
			}
			out = append(out, a)
		}
	})
	return
}

func (s *memStore) ListTokens(ctx context.Context, authorizationID string) (out []storage.Token, err error) {
	s.tx(func() {
		for _, t := range s.tokens {
			if authorizationID != "" && t.AuthorizationID != authorizationID {
				continue
			}
			out = append(out, t)
		}
	})
	return
}

func (s *memStore) ListScopes(ctx context.Context) (out []storage.Scope, err error) {
	s.tx(func() {
		for _, sc := range s.scopes {
			out = append(out, sc)
		}
	})
	return
}

func (s *memStore) DeleteApplication(ctx context.Context, id string) (err error) {
	s.tx(func() {
		if _, ok := s.applications[id]; !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		delete(s.applications, id)
	})
	return
}

// DeleteAuthorization removes the authorization and every token that refers to it, per the
// cascade-delete relationship in the data model.
func (s *memStore) DeleteAuthorization(ctx context.Context, id string) (err error) {
	s.tx(func() {
		if _, ok := s.authorizations[id]; !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		delete(s.authorizations, id)
		for tid, t := range s.tokens {
			if t.AuthorizationID == id {
				if t.ReferenceID != "" {
					delete(s.tokensByRef, t.ReferenceID)
				}
				delete(s.tokens, tid)
			}
		}
	})
	return
}

func (s *memStore) DeleteToken(ctx context.Context, id string) (err error) {
	s.tx(func() {
		t, ok := s.tokens[id]
		if !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		if t.ReferenceID != "" {
			delete(s.tokensByRef, t.ReferenceID)
		}
		delete(s.tokens, id)
	})
	return
}

func (s *memStore) DeleteScope(ctx context.Context, name string) (err error) {
	s.tx(func() {
		if _, ok := s.scopes[name]; !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		delete(s.scopes, name)
	})
	return
}

func (s *memStore) UpdateApplication(ctx context.Context, id string, updater storage.ApplicationUpdater) (err error) {
	s.tx(func() {
		a, ok := s.applications[id]
		if !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		if a, err = updater(a); err == nil {
			s.applications[id] = a
		}
	})
	return
}

func (s *memStore) UpdateAuthorization(ctx context.Context, id string, updater storage.AuthorizationUpdater) (err error) {
	s.tx(func() {
		a, ok := s.authorizations[id]
		if !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		if a, err = updater(a); err == nil {
			s.authorizations[id] = a
		}
	})
	return
}

func (s *memStore) UpdateToken(ctx context.Context, id string, updater storage.TokenUpdater) (err error) {
	s.tx(func() {
		t, ok := s.tokens[id]
		if !ok {
			err = storage.Error{Code: storage.ErrNotFound}
			return
		}
		old := t
		if t, err = updater(t); err == nil {
			if old.ReferenceID != "" && old.ReferenceID != t.ReferenceID {
				delete(s.tokensByRef, old.ReferenceID)
			}
			if t.ReferenceID != "" {
				s.tokensByRef[t.ReferenceID] = id
			}
			s.tokens[id] = t
		}
	})
	return
}

// GarbageCollect deletes expired tokens and ad-hoc authorizations all of whose tokens are now
// invalid or expired, per the Authorization lifecycle rule in the data model.
func (s *memStore) GarbageCollect(ctx context.Context, now time.Time) (result storage.GCResult, err error) {
	s.tx(func() {
		for id, t := range s.tokens {
			if t.IsExpired(now) {
				if t.ReferenceID != "" {
					delete(s.tokensByRef, t.ReferenceID)
				}
				delete(s.tokens, id)
				result.Tokens++
			}
		}

		liveTokensByAuth := make(map[string]bool)
		for _, t := range s.tokens {
			if t.AuthorizationID != "" && t.IsValid(now) {
				liveTokensByAuth[t.AuthorizationID] = true
			}
		}

		for id, a := range s.authorizations {
			if !a.IsAdHoc() {
				continue
			}
			if a.IsRevoked() || !liveTokensByAuth[id] {
				delete(s.authorizations, id)
				result.Authorizations++
			}
		}
	})
	return result, nil
}
