// Package conformance provides a shared test suite that every storage.Store implementation must
// pass, following the same backend-parametrized pattern dex uses for its storage drivers.
package conformance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coreoidc/authd/storage"
)

// neverExpire is used for entities that the test does not want garbage collected mid-run.
var neverExpire = time.Now().UTC().Add(time.Hour * 24 * 365 * 100)

type subTest struct {
	name string
	run  func(t *testing.T, s storage.Store)
}

func runTests(t *testing.T, newStore func() storage.Store, tests []subTest) {
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newStore()
			defer s.Close()
			test.run(t, s)
		})
	}
}

// RunTests runs the conformance suite against newStore. newStore must return an initialized but
// empty Store; it is called once per subtest and closed at the end of each.
func RunTests(t *testing.T, newStore func() storage.Store) {
	runTests(t, newStore, []subTest{
		{"ApplicationCRUD", testApplicationCRUD},
		{"AuthorizationCRUD", testAuthorizationCRUD},
		{"TokenCRUD", testTokenCRUD},
		{"ScopeCRUD", testScopeCRUD},
		{"TokenByReferenceID", testTokenByReferenceID},
		{"AuthorizationCascadeDelete", testAuthorizationCascadeDelete},
		{"ConcurrentUpdate", testConcurrentUpdate},
		{"GarbageCollection", testGC},
	})
}

func testApplicationCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := storage.Application{
		ID:           "client-1",
		Name:         "Test Client",
		ClientType:   storage.ClientTypeConfidential,
		ClientSecret: "hashed-secret",
		RedirectURIs: []string{"https://client.example.com/callback"},
		Permissions:  []string{"ept:token", "gt:authorization_code"},
	}
	require.NoError(t, s.CreateApplication(ctx, a))

	got, err := s.GetApplication(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Name, got.Name)
	require.True(t, got.HasRedirectURI("https://client.example.com/callback"))

	err = s.CreateApplication(ctx, a)
	require.Error(t, err)

	err = s.UpdateApplication(ctx, a.ID, func(old storage.Application) (storage.Application, error) {
		old.Name = "Renamed Client"
		return old, nil
	})
	require.NoError(t, err)

	got, err = s.GetApplication(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed Client", got.Name)

	list, err := s.ListApplications(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteApplication(ctx, a.ID))
	_, err = s.GetApplication(ctx, a.ID)
	require.ErrorIs(t, err, storage.Error{Code: storage.ErrNotFound})
}

func testAuthorizationCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, storage.Application{ID: "client-2", ClientType: storage.ClientTypeConfidential}))

	auth := storage.Authorization{
		ID:            storage.NewID(),
		ApplicationID: "client-2",
		Subject:       "alice",
		Status:        storage.AuthorizationValid,
		Type:          storage.AuthorizationPermanent,
		Scopes:        []string{"openid", "profile"},
		CreationDate:  time.Now().UTC(),
	}
	require.NoError(t, s.CreateAuthorization(ctx, auth))

	got, err := s.GetAuthorization(ctx, auth.ID)
	require.NoError(t, err)
	require.True(t, got.IsValid())
	require.True(t, got.IsPermanent())

	err = s.UpdateAuthorization(ctx, auth.ID, func(old storage.Authorization) (storage.Authorization, error) {
		old.Status = storage.AuthorizationRevoked
		return old, nil
	})
	require.NoError(t, err)

	got, err = s.GetAuthorization(ctx, auth.ID)
	require.NoError(t, err)
	require.True(t, got.IsRevoked())

	list, err := s.ListAuthorizations(ctx, "client-2", "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func testTokenCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, storage.Application{ID: "client-3", ClientType: storage.ClientTypePublic}))

	tok := storage.Token{
		ID:             storage.NewID(),
		ApplicationID:  "client-3",
		Subject:        "bob",
		Type:           storage.TokenAccess,
		Status:         storage.TokenValid,
		CreationDate:   time.Now().UTC(),
		ExpirationDate: neverExpire,
	}
	require.NoError(t, s.CreateToken(ctx, tok))

	got, err := s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	require.True(t, got.IsValid(time.Now()))

	err = s.UpdateToken(ctx, tok.ID, func(old storage.Token) (storage.Token, error) {
		old.Status = storage.TokenRevoked
		return old, nil
	})
	require.NoError(t, err)

	got, err = s.GetToken(ctx, tok.ID)
	require.NoError(t, err)
	require.False(t, got.IsValid(time.Now()))

	require.NoError(t, s.DeleteToken(ctx, tok.ID))
	_, err = s.GetToken(ctx, tok.ID)
	require.Error(t, err)
}

func testScopeCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()
	sc := storage.Scope{Name: "profile", DisplayName: "Profile", Resources: []string{"https://api.example.com"}}
	require.NoError(t, s.CreateScope(ctx, sc))

	got, err := s.GetScope(ctx, "profile")
	require.NoError(t, err)
	require.Equal(t, "Profile", got.DisplayName)

	list, err := s.ListScopes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteScope(ctx, "profile"))
	_, err = s.GetScope(ctx, "profile")
	require.Error(t, err)
}

func testTokenByReferenceID(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, storage.Application{ID: "client-4", ClientType: storage.ClientTypePublic}))

	tok := storage.Token{
		ID:             storage.NewID(),
		ReferenceID:    "ref-" + storage.NewID(),
		ApplicationID:  "client-4",
		Subject:        "carol",
		Type:           storage.TokenRefresh,
		Status:         storage.TokenValid,
		CreationDate:   time.Now().UTC(),
		ExpirationDate: neverExpire,
	}
	require.NoError(t, s.CreateToken(ctx, tok))

	got, err := s.GetTokenByReferenceID(ctx, tok.ReferenceID)
	require.NoError(t, err)
	require.Equal(t, tok.ID, got.ID)
}

func testAuthorizationCascadeDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, storage.Application{ID: "client-5", ClientType: storage.ClientTypePublic}))

	auth := storage.Authorization{
		ID:            storage.NewID(),
		ApplicationID: "client-5",
		Subject:       "dave",
		Status:        storage.AuthorizationValid,
		Type:          storage.AuthorizationPermanent,
		CreationDate:  time.Now().UTC(),
	}
	require.NoError(t, s.CreateAuthorization(ctx, auth))

	tok := storage.Token{
		ID:              storage.NewID(),
		ApplicationID:   "client-5",
		AuthorizationID: auth.ID,
		Subject:         "dave",
		Type:            storage.TokenAccess,
		Status:          storage.TokenValid,
		CreationDate:    time.Now().UTC(),
		ExpirationDate:  neverExpire,
	}
	require.NoError(t, s.CreateToken(ctx, tok))

	require.NoError(t, s.DeleteAuthorization(ctx, auth.ID))

	_, err := s.GetToken(ctx, tok.ID)
	require.Error(t, err, "deleting an authorization must cascade to its tokens")
}

func testConcurrentUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, storage.Application{ID: "client-6", ClientType: storage.ClientTypePublic}))

	tok := storage.Token{
		ID:             storage.NewID(),
		ApplicationID:  "client-6",
		Subject:        "erin",
		Type:           storage.TokenAuthorizationCode,
		Status:         storage.TokenValid,
		CreationDate:   time.Now().UTC(),
		ExpirationDate: neverExpire,
	}
	require.NoError(t, s.CreateToken(ctx, tok))

	var redeemed int
	for i := 0; i < 2; i++ {
		err := s.UpdateToken(ctx, tok.ID, func(old storage.Token) (storage.Token, error) {
			if old.Status != storage.TokenValid {
				return old, storage.Error{Code: storage.ErrConcurrencyTokenMismatch}
			}
			old.Status = storage.TokenRedeemed
			return old, nil
		})
		if err == nil {
			redeemed++
		}
	}
	require.Equal(t, 1, redeemed, "an authorization code must redeem exactly once")
}

func testGC(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateApplication(ctx, storage.Application{ID: "client-7", ClientType: storage.ClientTypePublic}))

	expired := storage.Token{
		ID:             storage.NewID(),
		ApplicationID:  "client-7",
		Subject:        "frank",
		Type:           storage.TokenAccess,
		Status:         storage.TokenValid,
		CreationDate:   time.Now().UTC().Add(-time.Hour),
		ExpirationDate: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, s.CreateToken(ctx, expired))

	result, err := s.GarbageCollect(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, result.IsEmpty())

	_, err = s.GetToken(ctx, expired.ID)
	require.Error(t, err)
}
