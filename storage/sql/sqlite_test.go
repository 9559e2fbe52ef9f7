//go:build cgo

package sql

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/storage/conformance"
)

func TestSQLite3(t *testing.T) {
	conformance.RunTests(t, func() storage.Store {
		dir := t.TempDir()
		s := &SQLite3{File: filepath.Join(dir, "authd.db")}
		store, err := s.Open(slog.Default())
		if err != nil {
			t.Fatalf("open sqlite3: %v", err)
		}
		return store
	})
}
