package storage

import (
	"context"
	"fmt"
	"time"
)

// NewCustomHealthCheckFunc returns a go-sundheit compatible check function that verifies the
// store accepts writes by round-tripping a throwaway Scope.
func NewCustomHealthCheckFunc(s Store, now func() time.Time) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		name := "healthcheck-" + NewID()
		scope := Scope{Name: name, DisplayName: "health check probe"}

		if err := s.CreateScope(ctx, scope); err != nil {
			return nil, fmt.Errorf("create probe scope: %w", err)
		}
		if err := s.DeleteScope(ctx, name); err != nil {
			return nil, fmt.Errorf("delete probe scope: %w", err)
		}
		return nil, nil
	}
}
