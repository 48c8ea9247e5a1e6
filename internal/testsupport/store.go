package testsupport

import (
	"path/filepath"
	"testing"

	"spacesaver/internal/catalog"
)

// MustOpenStore opens a catalog.Store against a fresh temp-dir database
// and registers cleanup.
func MustOpenStore(t testing.TB) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
