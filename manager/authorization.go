package manager

import (
	"context"
	"strings"

	"github.com/coreoidc/authd/cache"
	"github.com/coreoidc/authd/storage"
)

// AuthorizationDescriptor is the creation/update shape of an Authorization.
type AuthorizationDescriptor struct {
	ApplicationID string
	Subject       string
	Status        storage.AuthorizationStatus
	Type          storage.AuthorizationType
	Scopes        []string
	Properties    map[string]string
}

// AuthorizationManager implements the Authorization entity manager of spec §4.5.
type AuthorizationManager struct {
	store storage.Store
	opts  Options
}

// NewAuthorizationManager constructs an AuthorizationManager over store.
func NewAuthorizationManager(store storage.Store, opts Options) *AuthorizationManager {
	return &AuthorizationManager{store: store, opts: opts}
}

func authorizationListCacheKey(applicationID, subject string) string {
	return "authorization:list:" + applicationID + ":" + subject
}

// Create persists a new Authorization built from d.
func (m *AuthorizationManager) Create(ctx context.Context, d AuthorizationDescriptor) (storage.Authorization, error) {
	a := storage.Authorization{
		ID:               storage.NewID(),
		ApplicationID:    d.ApplicationID,
		Subject:          d.Subject,
		Status:           d.Status,
		Type:             d.Type,
		Scopes:           normalizeScopes(d.Scopes),
		Properties:       d.Properties,
		CreationDate:     m.opts.clock().Now(),
		ConcurrencyToken: storage.NewID(),
	}
	if a.Status == "" {
		a.Status = storage.AuthorizationValid
	}
	if err := m.Validate(a); err != nil {
		return storage.Authorization{}, err
	}
	if err := m.store.CreateAuthorization(ctx, a); err != nil {
		return storage.Authorization{}, err
	}
	m.invalidateList(ctx, a.ApplicationID, a.Subject)
	return a, nil
}

// FindByID returns the Authorization with the given ID.
func (m *AuthorizationManager) FindByID(ctx context.Context, id string) (storage.Authorization, error) {
	return m.store.GetAuthorization(ctx, id)
}

// Find returns the authorizations for (subject, applicationID), optionally narrowed by status,
// authType, and a required scope set, per spec §4.5's
// "authorization's find(subject, client[, status[, type[, scopes]]])".
func (m *AuthorizationManager) Find(ctx context.Context, subject, applicationID string, status *storage.AuthorizationStatus, authType *storage.AuthorizationType, scopes []string) ([]storage.Authorization, error) {
	var results []storage.Authorization
	cacheKey := authorizationListCacheKey(applicationID, subject)
	if m.opts.Cache != nil {
		if cached, ok, err := cache.GetJSON[[]storage.Authorization](ctx, m.opts.Cache, cacheKey); err == nil && ok {
			results = cached
		}
	}
	if results == nil {
		all, err := m.store.ListAuthorizations(ctx, applicationID, subject)
		if err != nil {
			return nil, err
		}
		results = all
		if m.opts.Cache != nil {
			_ = cache.SetJSON(ctx, m.opts.Cache, cacheKey, all)
		}
	}

	filtered := results[:0:0]
	for _, a := range results {
		if !caseSensitiveEqual(m.opts.DisableCaseSensitiveFilter, a.Subject, subject) {
			continue
		}
		if !caseSensitiveEqual(m.opts.DisableCaseSensitiveFilter, a.ApplicationID, applicationID) {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		if authType != nil && !strings.EqualFold(string(a.Type), string(*authType)) {
			continue
		}
		if len(scopes) > 0 && !a.HasScopes(scopes) {
			continue
		}
		filtered = append(filtered, a)
	}
	return filtered, nil
}

// Update applies mutate to the Authorization identified by id, rejecting the write if
// expectedConcurrencyToken no longer matches the persisted value.
func (m *AuthorizationManager) Update(ctx context.Context, id, expectedConcurrencyToken string, mutate func(*storage.Authorization)) (storage.Authorization, error) {
	var result storage.Authorization
	var applicationID, subject string
	err := m.store.UpdateAuthorization(ctx, id, func(old storage.Authorization) (storage.Authorization, error) {
		if expectedConcurrencyToken != "" && old.ConcurrencyToken != expectedConcurrencyToken {
			return old, &ConcurrencyError{Entity: "authorization", ID: id}
		}
		next := old
		mutate(&next)
		next.Scopes = normalizeScopes(next.Scopes)
		next.ConcurrencyToken = storage.NewID()
		if err := m.Validate(next); err != nil {
			return old, err
		}
		result = next
		applicationID, subject = next.ApplicationID, next.Subject
		return next, nil
	})
	if err != nil {
		return storage.Authorization{}, err
	}
	m.invalidateList(ctx, applicationID, subject)
	return result, nil
}

// Revoke marks the Authorization identified by id as revoked. Revocation is idempotent.
func (m *AuthorizationManager) Revoke(ctx context.Context, id string) error {
	a, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if a.IsRevoked() {
		return nil
	}
	_, err = m.Update(ctx, id, "", func(a *storage.Authorization) {
		a.Status = storage.AuthorizationRevoked
	})
	return err
}

// Delete removes the Authorization identified by id. The store cascades the delete to the
// authorization's tokens, per spec §4.6.
func (m *AuthorizationManager) Delete(ctx context.Context, id string) error {
	a, err := m.store.GetAuthorization(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteAuthorization(ctx, id); err != nil {
		return err
	}
	m.invalidateList(ctx, a.ApplicationID, a.Subject)
	return nil
}

// Prune delegates to the store's garbage collector, which removes expired tokens and ad-hoc
// authorizations whose tokens are all invalid or expired, per spec §4.5 and §4.6.
func (m *AuthorizationManager) Prune(ctx context.Context) (storage.GCResult, error) {
	return m.store.GarbageCollect(ctx, m.opts.clock().Now())
}

// Validate checks the invariants spec §4.5 lists for Authorization explicitly.
func (m *AuthorizationManager) Validate(a storage.Authorization) error {
	var messages []string
	switch a.Type {
	case storage.AuthorizationAdHoc, storage.AuthorizationPermanent:
	default:
		if !strings.EqualFold(string(a.Type), string(storage.AuthorizationAdHoc)) &&
			!strings.EqualFold(string(a.Type), string(storage.AuthorizationPermanent)) {
			messages = append(messages, "type must be ad_hoc or permanent")
		}
	}
	if a.Status == "" {
		messages = append(messages, "status is required")
	}
	if a.Subject == "" {
		messages = append(messages, "subject is required")
	}
	for _, s := range a.Scopes {
		if s == "" || strings.ContainsRune(s, ' ') {
			messages = append(messages, "scopes must not be empty or contain spaces")
			break
		}
	}
	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}

func (m *AuthorizationManager) invalidateList(ctx context.Context, applicationID, subject string) {
	if m.opts.Cache != nil {
		_ = cache.Invalidate(ctx, m.opts.Cache, authorizationListCacheKey(applicationID, subject))
	}
}
