package bitcask

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogFromDiskEmptyDirCreatesActiveSegment(t *testing.T) {
	dir := t.TempDir()
	kd := NewKeyDir()

	l, err := FromDisk(dir, kd, testLogger(t))
	require.NoError(t, err)
	require.Len(t, l.files, 1)
	require.Equal(t, uint64(0), l.files[0].FileID)
}

func TestLogPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kd := NewKeyDir()
	l, err := FromDisk(dir, kd, testLogger(t))
	require.NoError(t, err)

	entry, err := l.Put([]byte("k"), []byte("v1"), false)
	require.NoError(t, err)
	kd.Put([]byte("k"), entry)

	val, err := l.Get(entry)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), val)
}

func TestLogRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	kd := NewKeyDir()
	l, err := FromDisk(dir, kd, testLogger(t))
	require.NoError(t, err)

	bigValue := make([]byte, MaxSegmentSize/3)
	for i := 0; i < 5; i++ {
		_, err := l.Put([]byte(fmt.Sprintf("key-%d", i)), bigValue, false)
		require.NoError(t, err)
	}

	require.Greater(t, len(l.files), 1, "expected rotation to have produced more than one segment")
}

func TestLogReopenReplaysAllSegments(t *testing.T) {
	dir := t.TempDir()
	kd := NewKeyDir()
	l, err := FromDisk(dir, kd, testLogger(t))
	require.NoError(t, err)

	entry, err := l.Put([]byte("persist"), []byte("value"), true)
	require.NoError(t, err)
	kd.Put([]byte("persist"), entry)
	require.NoError(t, l.Close())

	kd2 := NewKeyDir()
	l2, err := FromDisk(dir, kd2, testLogger(t))
	require.NoError(t, err)
	defer l2.Close()

	e2, ok := kd2.Get([]byte("persist"))
	require.True(t, ok)
	val, err := l2.Get(e2)
	require.NoError(t, err)
	require.Equal(t, []byte("value"), val)
}

func TestLogMergeDoesNotCollideWithPreMergeFileIDs(t *testing.T) {
	dir := t.TempDir()
	kd := NewKeyDir()
	l, err := FromDisk(dir, kd, testLogger(t))
	require.NoError(t, err)

	entry, err := l.Put([]byte("k"), []byte("v1"), false)
	require.NoError(t, err)
	kd.Put([]byte("k"), entry)
	preMergeID := l.activeSegment().FileID

	mergeEntry, err := l.PutOnMerge([]byte("k"), []byte("v1"), false)
	require.NoError(t, err)
	require.NotEqual(t, preMergeID, mergeEntry.FileID,
		"a merge-output segment must never reuse a file-id already present on disk")
	kd.Put([]byte("k"), mergeEntry)

	require.NoError(t, l.FinishMerge())
	require.NoError(t, l.Close())

	// the pre-merge segment must actually be gone, not clobbered-then-kept
	require.NoFileExists(t, filepath.Join(dir, fmt.Sprintf("%d.tdb", preMergeID)))

	kd2 := NewKeyDir()
	l2, err := FromDisk(dir, kd2, testLogger(t))
	require.NoError(t, err)
	defer l2.Close()

	e2, ok := kd2.Get([]byte("k"))
	require.True(t, ok, "merged key must survive a reopen")
	val, err := l2.Get(e2)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), val)
}

func TestLogOrphanedMergeSegmentIsReportedNotLoaded(t *testing.T) {
	dir := t.TempDir()
	kd := NewKeyDir()
	l, err := FromDisk(dir, kd, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// simulate a crash mid-merge: a stray ".merge" segment left behind
	require.NoError(t, os.WriteFile(filepath.Join(dir, "99.merge"), []byte("garbage"), 0o644))

	kd2 := NewKeyDir()
	l2, err := FromDisk(dir, kd2, testLogger(t))
	require.NoError(t, err, "an orphaned merge segment must not fail open")
	defer l2.Close()

	_, ok := l2.filesByID[99]
	require.False(t, ok, "a .merge file must never be loaded as a sealed segment")
}
