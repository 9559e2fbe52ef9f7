package manager

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/coreoidc/authd/cache"
	"github.com/coreoidc/authd/storage"
)

// maxSecretLength mirrors dex's client/manager constant: bcrypt silently truncates past 72 bytes,
// so secrets longer than that are rejected outright rather than quietly weakened.
const maxSecretLength = 72

// ApplicationDescriptor is the wire/admin-facing shape of an Application. ClientSecret is
// plaintext on input (hashed by the manager before persisting) and always empty on output.
type ApplicationDescriptor struct {
	ID                     string
	Name                   string
	ClientSecret           string
	ClientType             storage.ClientType
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	Permissions            []string
	ConsentType            storage.ConsentType
}

// PopulateDescriptor projects a stored Application into its descriptor form. The secret is never
// round-tripped: callers validate it separately via ValidateClientSecret.
func PopulateDescriptor(a storage.Application) ApplicationDescriptor {
	return ApplicationDescriptor{
		ID:                     a.ID,
		Name:                   a.Name,
		ClientType:             a.ClientType,
		RedirectURIs:           a.RedirectURIs,
		PostLogoutRedirectURIs: a.PostLogoutRedirectURIs,
		Permissions:            a.Permissions,
		ConsentType:            a.ConsentType,
	}
}

// PopulateEntity merges a descriptor into an existing entity, leaving ClientSecret to the caller
// (Create/Update hash it explicitly) so this function stays a pure, side-effect-free merge.
func PopulateEntity(d ApplicationDescriptor, a storage.Application) storage.Application {
	a.ID = d.ID
	a.Name = d.Name
	a.ClientType = d.ClientType
	a.RedirectURIs = d.RedirectURIs
	a.PostLogoutRedirectURIs = d.PostLogoutRedirectURIs
	a.Permissions = d.Permissions
	a.ConsentType = d.ConsentType
	return a
}

// ApplicationManager implements the Application entity manager of spec §4.5.
type ApplicationManager struct {
	store storage.Store
	opts  Options
}

// NewApplicationManager constructs an ApplicationManager over store.
func NewApplicationManager(store storage.Store, opts Options) *ApplicationManager {
	return &ApplicationManager{store: store, opts: opts}
}

func applicationCacheKey(id string) string { return "application:id:" + id }

// Create persists a new Application built from d. If d.ClientSecret is non-empty it is hashed
// with bcrypt before being stored; the caller is responsible for returning the plaintext secret
// to whoever registered the client, since the manager never retains it.
func (m *ApplicationManager) Create(ctx context.Context, d ApplicationDescriptor) (storage.Application, error) {
	a := PopulateEntity(d, storage.Application{})
	if a.ID == "" {
		a.ID = storage.NewID()
	}
	if d.ClientSecret != "" {
		hash, err := hashSecret(d.ClientSecret)
		if err != nil {
			return storage.Application{}, err
		}
		a.ClientSecret = hash
	}
	a.ConcurrencyToken = storage.NewID()

	if err := m.Validate(a); err != nil {
		return storage.Application{}, err
	}
	if err := m.store.CreateApplication(ctx, a); err != nil {
		return storage.Application{}, err
	}
	return a, nil
}

// FindByID returns the Application with the given ID, consulting the cache first when enabled.
func (m *ApplicationManager) FindByID(ctx context.Context, id string) (storage.Application, error) {
	if m.opts.Cache != nil {
		if a, ok, err := cache.GetJSON[storage.Application](ctx, m.opts.Cache, applicationCacheKey(id)); err == nil && ok {
			if caseSensitiveEqual(m.opts.DisableCaseSensitiveFilter, a.ID, id) {
				return a, nil
			}
		}
	}
	a, err := m.store.GetApplication(ctx, id)
	if err != nil {
		return storage.Application{}, err
	}
	if !caseSensitiveEqual(m.opts.DisableCaseSensitiveFilter, a.ID, id) {
		return storage.Application{}, storage.Error{Code: storage.ErrNotFound}
	}
	if m.opts.Cache != nil {
		_ = cache.SetJSON(ctx, m.opts.Cache, applicationCacheKey(id), a)
	}
	return a, nil
}

// List returns every registered Application.
func (m *ApplicationManager) List(ctx context.Context) ([]storage.Application, error) {
	return m.store.ListApplications(ctx)
}

// Update applies mutate to the Application identified by id, rejecting the write if
// expectedConcurrencyToken no longer matches the persisted value.
func (m *ApplicationManager) Update(ctx context.Context, id, expectedConcurrencyToken string, mutate func(*ApplicationDescriptor)) (storage.Application, error) {
	var result storage.Application
	err := m.store.UpdateApplication(ctx, id, func(old storage.Application) (storage.Application, error) {
		if expectedConcurrencyToken != "" && old.ConcurrencyToken != expectedConcurrencyToken {
			return old, &ConcurrencyError{Entity: "application", ID: id}
		}
		d := PopulateDescriptor(old)
		mutate(&d)
		next := PopulateEntity(d, old)
		if d.ClientSecret != "" {
			hash, err := hashSecret(d.ClientSecret)
			if err != nil {
				return old, err
			}
			next.ClientSecret = hash
		}
		next.ConcurrencyToken = storage.NewID()
		if err := m.Validate(next); err != nil {
			return old, err
		}
		result = next
		return next, nil
	})
	if err != nil {
		return storage.Application{}, err
	}
	if m.opts.Cache != nil {
		_ = cache.Invalidate(ctx, m.opts.Cache, applicationCacheKey(id))
	}
	return result, nil
}

// Delete removes the Application identified by id.
func (m *ApplicationManager) Delete(ctx context.Context, id string) error {
	if err := m.store.DeleteApplication(ctx, id); err != nil {
		return err
	}
	if m.opts.Cache != nil {
		_ = cache.Invalidate(ctx, m.opts.Cache, applicationCacheKey(id))
	}
	return nil
}

// Validate checks the invariants spec §4.5 demands of an Application, returning a *ValidationError
// aggregating every violation found.
func (m *ApplicationManager) Validate(a storage.Application) error {
	var messages []string
	if a.ID == "" {
		messages = append(messages, "id is required")
	}
	switch a.ClientType {
	case storage.ClientTypePublic, storage.ClientTypeConfidential:
	default:
		messages = append(messages, fmt.Sprintf("client_type %q is not recognized", a.ClientType))
	}
	if a.ClientType == storage.ClientTypeConfidential && a.ClientSecret == "" {
		messages = append(messages, "confidential clients require a client_secret")
	}
	if a.ClientType == storage.ClientTypePublic && len(a.RedirectURIs) == 0 {
		messages = append(messages, "public clients require at least one redirect_uri")
	}
	for _, u := range a.RedirectURIs {
		if u == "" {
			messages = append(messages, "redirect_uris must not contain empty entries")
			break
		}
	}
	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}

// ValidateClientSecret reports whether secret matches the Application's stored bcrypt hash. A
// public client (no stored hash) never authenticates this way and always fails.
func (m *ApplicationManager) ValidateClientSecret(a storage.Application, secret string) bool {
	if a.ClientSecret == "" || len(secret) > maxSecretLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.ClientSecret), []byte(secret)) == nil
}

// ValidateRedirectURI reports whether uri is registered on a, by exact match.
func (m *ApplicationManager) ValidateRedirectURI(a storage.Application, uri string) bool {
	return a.HasRedirectURI(uri)
}

// ValidatePostLogoutRedirectURI reports whether uri is a registered post-logout target on a.
func (m *ApplicationManager) ValidatePostLogoutRedirectURI(a storage.Application, uri string) bool {
	return a.HasPostLogoutRedirectURI(uri)
}

// HasPermission reports whether a carries the exact permission string.
func (m *ApplicationManager) HasPermission(a storage.Application, permission string) bool {
	return a.HasPermission(permission)
}

func hashSecret(secret string) (string, error) {
	if len(secret) > maxSecretLength {
		return "", &ValidationError{Messages: []string{"client_secret exceeds maximum length"}}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
