package memory

import (
	"log/slog"
	"testing"

	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/storage/conformance"
)

func TestStorage(t *testing.T) {
	conformance.RunTests(t, func() storage.Store {
		return New(slog.Default())
	})
}
