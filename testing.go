package bitvault

import (
	"os"
	"testing"
)

// SetupTempStore opens a store rooted at a fresh temporary directory and
// registers its cleanup (close the store, remove the directory) with tb.
func SetupTempStore(tb testing.TB, opts ...Option) (engine *Engine, dir string, cleanup func()) {
	tb.Helper()

	dir, err := os.MkdirTemp("", "bitvault_test_*")
	if err != nil {
		tb.Fatalf("MkdirTemp failed: %v", err)
	}

	engine, err = OpenWithOptions(dir, opts...)
	if err != nil {
		_ = os.RemoveAll(dir)
		tb.Fatalf("OpenWithOptions(%q) failed: %v", dir, err)
	}

	cleanup = func() {
		_ = engine.Close()
		_ = os.RemoveAll(dir)
	}
	tb.Cleanup(cleanup)

	return engine, dir, cleanup
}
