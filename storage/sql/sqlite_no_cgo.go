//go:build !cgo
// +build !cgo

// This is a stub for the no CGO compilation (CGO_ENABLED=0)

package sql

import (
	"fmt"
	"log/slog"

	"github.com/coreoidc/authd/storage"
)

type SQLite3 struct{}

func (s *SQLite3) Open(logger *slog.Logger) (storage.Store, error) {
	return nil, fmt.Errorf("binary was compiled with 'CGO_ENABLED=0', go-sqlite3 requires cgo to work")
}
