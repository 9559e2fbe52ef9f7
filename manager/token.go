package manager

import (
	"context"
	"time"

	"github.com/coreoidc/authd/cache"
	"github.com/coreoidc/authd/storage"
)

// TokenDescriptor is the creation shape of a Token.
type TokenDescriptor struct {
	ReferenceID     string
	ApplicationID   string
	AuthorizationID string
	Subject         string
	Type            storage.TokenType
	ExpirationDate  time.Time
	Payload         []byte
	Properties      map[string]string
}

// TokenManager implements the Token entity manager of spec §4.5.
type TokenManager struct {
	store storage.Store
	opts  Options
}

// NewTokenManager constructs a TokenManager over store.
func NewTokenManager(store storage.Store, opts Options) *TokenManager {
	return &TokenManager{store: store, opts: opts}
}

func tokenCacheKey(id string) string { return "token:id:" + id }

// Create persists a new Token built from d, in TokenValid status.
func (m *TokenManager) Create(ctx context.Context, d TokenDescriptor) (storage.Token, error) {
	t := storage.Token{
		ID:               storage.NewID(),
		ReferenceID:      d.ReferenceID,
		ApplicationID:    d.ApplicationID,
		AuthorizationID:  d.AuthorizationID,
		Subject:          d.Subject,
		Type:             d.Type,
		Status:           storage.TokenValid,
		CreationDate:     m.opts.clock().Now(),
		ExpirationDate:   d.ExpirationDate,
		Payload:          d.Payload,
		Properties:       d.Properties,
		ConcurrencyToken: storage.NewID(),
	}
	if err := m.store.CreateToken(ctx, t); err != nil {
		return storage.Token{}, err
	}
	return t, nil
}

// FindByID returns the Token with the given ID, consulting the cache first when enabled.
func (m *TokenManager) FindByID(ctx context.Context, id string) (storage.Token, error) {
	if m.opts.Cache != nil {
		if t, ok, err := cache.GetJSON[storage.Token](ctx, m.opts.Cache, tokenCacheKey(id)); err == nil && ok {
			return t, nil
		}
	}
	t, err := m.store.GetToken(ctx, id)
	if err != nil {
		return storage.Token{}, err
	}
	if m.opts.Cache != nil {
		_ = cache.SetJSON(ctx, m.opts.Cache, tokenCacheKey(id), t)
	}
	return t, nil
}

// FindByReferenceID returns the Token whose ReferenceID matches referenceID, per spec §4.5's
// "token's find_by_reference_id".
func (m *TokenManager) FindByReferenceID(ctx context.Context, referenceID string) (storage.Token, error) {
	t, err := m.store.GetTokenByReferenceID(ctx, referenceID)
	if err != nil {
		return storage.Token{}, err
	}
	if !caseSensitiveEqual(m.opts.DisableCaseSensitiveFilter, t.ReferenceID, referenceID) {
		return storage.Token{}, storage.Error{Code: storage.ErrNotFound}
	}
	return t, nil
}

// ListByAuthorization returns every Token issued under authorizationID.
func (m *TokenManager) ListByAuthorization(ctx context.Context, authorizationID string) ([]storage.Token, error) {
	return m.store.ListTokens(ctx, authorizationID)
}

// Redeem atomically transitions a valid token to TokenRedeemed and returns the redeemed token.
// Only the first caller against a given token succeeds; every subsequent call observes a status
// other than TokenValid and returns ErrTokenNotRedeemable, matching the "redeem-twice" property in
// spec §8.
func (m *TokenManager) Redeem(ctx context.Context, id string, now time.Time) (storage.Token, error) {
	var result storage.Token
	err := m.store.UpdateToken(ctx, id, func(old storage.Token) (storage.Token, error) {
		if !old.IsValid(now) {
			return old, ErrTokenNotRedeemable
		}
		old.Status = storage.TokenRedeemed
		old.ConcurrencyToken = storage.NewID()
		result = old
		return old, nil
	})
	if err != nil {
		return storage.Token{}, err
	}
	m.invalidate(ctx, id)
	return result, nil
}

// Revoke marks the token identified by id as revoked. Revocation is idempotent: revoking an
// already-revoked token succeeds without error, per spec §8's "revocation is idempotent".
func (m *TokenManager) Revoke(ctx context.Context, id string) error {
	err := m.store.UpdateToken(ctx, id, func(old storage.Token) (storage.Token, error) {
		if old.Status == storage.TokenRevoked {
			return old, nil
		}
		old.Status = storage.TokenRevoked
		old.ConcurrencyToken = storage.NewID()
		return old, nil
	})
	if err != nil {
		return err
	}
	m.invalidate(ctx, id)
	return nil
}

// Delete removes the Token identified by id.
func (m *TokenManager) Delete(ctx context.Context, id string) error {
	if err := m.store.DeleteToken(ctx, id); err != nil {
		return err
	}
	m.invalidate(ctx, id)
	return nil
}

func (m *TokenManager) invalidate(ctx context.Context, id string) {
	if m.opts.Cache != nil {
		_ = cache.Invalidate(ctx, m.opts.Cache, tokenCacheKey(id))
	}
}
