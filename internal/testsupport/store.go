package testsupport

import (
	"path/filepath"
	"testing"

	"discrescue/internal/repairmap"
)

// MustOpenStore opens a repair-map store backed by a temp file and registers
// cleanup with the test.
func MustOpenStore(t testing.TB) *repairmap.Store {
	t.Helper()

	store, err := repairmap.OpenStore(filepath.Join(t.TempDir(), "recovery.map.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}
