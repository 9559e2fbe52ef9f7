// Package manager implements the entity managers — Application, Authorization, Token, Scope —
// that sit between the protocol handlers and the storage layer. A manager owns validation,
// case-sensitivity post-filtering, and entity caching; it never talks to persistence directly
// except through a storage.Store, mirroring the layering dex's client/manager and user/manager
// packages impose over their repos.
package manager

import (
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/coreoidc/authd/cache"
)

// Options configures optional manager behavior, per spec §4.5.
type Options struct {
	// Cache, when set, is consulted on read paths and invalidated on writes. Nil disables caching.
	Cache *cache.Cache

	// Clock supplies "now" for expiry checks and ID/token generation timestamps. Defaults to the
	// real clock.
	Clock clockwork.Clock

	// DisableCaseSensitiveFilter skips the post-store case-sensitive re-filter, for backends already
	// known to compare strings byte-for-byte.
	DisableCaseSensitiveFilter bool
}

func (o Options) clock() clockwork.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clockwork.NewRealClock()
}

// caseSensitiveEqual reports whether a store-returned value still matches want under a
// byte-for-byte comparison, per the case-sensitivity post-filter requirement in spec §4.5.
func caseSensitiveEqual(disabled bool, got, want string) bool {
	if disabled || want == "" {
		return true
	}
	return got == want
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
