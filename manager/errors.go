package manager

import (
	"errors"
	"strings"
)

// ErrTokenNotRedeemable is returned by TokenManager.Redeem when the token is not currently valid
// (already redeemed, revoked, or expired), per spec §8's "redeem-twice yields exactly one success
// and one invalid_grant".
var ErrTokenNotRedeemable = errors.New("token is not redeemable")

// ValidationError aggregates the one-line messages a manager's Validate produced, per spec §4.5
// ("validate(entity) producing a finite sequence of validation messages").
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// ConcurrencyError reports a lost update: the caller's concurrency_token no longer matches the
// persisted value and must reload and retry, per spec §7.
type ConcurrencyError struct {
	Entity string
	ID     string
}

func (e *ConcurrencyError) Error() string {
	return "concurrency conflict updating " + e.Entity + " " + e.ID
}
