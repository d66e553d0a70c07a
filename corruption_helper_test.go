package bitvault_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// corruptSegmentFile flips the last byte of the named segment file,
// simulating a single-byte on-disk corruption for checksum-rejection tests.
func corruptSegmentFile(t *testing.T, dir, name string) {
	t.Helper()

	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
