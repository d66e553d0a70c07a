package bitvault_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kvforge/bitvault"
	"github.com/stretchr/testify/require"
)

func TestOpenDefaultsToReadOnly(t *testing.T) {
	dir := t.TempDir()
	db, err := bitvault.Open(dir)
	require.NoError(t, err)
	defer db.Close()

	err = db.Put([]byte{0}, []byte{0})
	require.Error(t, err)
	require.True(t, bitvault.IsOptionError(err))
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	db, _, _ := bitvault.SetupTempStore(t, bitvault.WithReadWrite(true))

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	val, ok, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), val)

	require.NoError(t, db.Delete([]byte("k")))
	_, ok, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListKeysAndFold(t *testing.T) {
	db, _, _ := bitvault.SetupTempStore(t, bitvault.WithReadWrite(true))

	require.NoError(t, db.Put([]byte("b"), []byte("2")))
	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	keys := db.ListKeys()
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, keys)

	total, err := db.Fold(func(key, value []byte, acc any) (any, error) {
		return acc.(int) + len(value), nil
	}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := bitvault.OpenWithOptions(dir, bitvault.WithReadWrite(true), bitvault.WithSyncOnPut(true))
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("durable"), []byte("value")))
	require.NoError(t, db.Close())

	reopened, err := bitvault.OpenWithOptions(dir, bitvault.WithReadWrite(true))
	require.NoError(t, err)
	defer reopened.Close()

	val, ok, err := reopened.Get([]byte("durable"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("value"), val)
}

func TestMergeEndToEnd(t *testing.T) {
	db, _, _ := bitvault.SetupTempStore(t, bitvault.WithReadWrite(true), bitvault.WithSyncOnPut(true))

	require.NoError(t, db.Put([]byte{1, 2, 3}, []byte{4, 5, 6}))
	require.NoError(t, db.Put([]byte{7}, []byte{8}))
	require.NoError(t, db.Sync())
	require.NoError(t, db.Delete([]byte{7}))
	require.NoError(t, db.Merge())

	_, ok, err := db.Get([]byte{7})
	require.NoError(t, err)
	require.False(t, ok)

	val, ok, err := db.Get([]byte{1, 2, 3})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{4, 5, 6}, val)

	require.Equal(t, [][]byte{{1, 2, 3}}, db.ListKeys())
}

func TestSegmentRotationAcrossMaxSize(t *testing.T) {
	dir := t.TempDir()
	db, err := bitvault.OpenWithOptions(dir, bitvault.WithReadWrite(true))
	require.NoError(t, err)
	defer db.Close()

	bigValue := make([]byte, 300_000)
	for i := 0; i < 8; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("key-%d", i)), bigValue))
	}
	require.NoError(t, db.Sync())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var tdbCount int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tdb" {
			tdbCount++
		}
	}
	require.GreaterOrEqual(t, tdbCount, 2)

	for i := 0; i < 8; i++ {
		val, ok, err := db.Get([]byte(fmt.Sprintf("key-%d", i)))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, bigValue, val)
	}
}
