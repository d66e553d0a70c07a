package bitcask

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// Log owns every segment of one data directory: the sealed + active
// segment set, the active segment's running byte counter, and — only
// while a merge is in progress — the merge-output segment set with its
// own independent counter.
type Log struct {
	dataDir string
	log     *zap.SugaredLogger

	// nextFileID is a single counter shared by both the steady-state and
	// merge-output segment sequences, so a merge segment's file-id never
	// collides with one already present in the data directory — if it
	// did, renaming "<id>.merge" to "<id>.tdb" would silently overwrite
	// the pre-merge segment of the same id before FinishMerge gets a
	// chance to unlink it by its original path.
	nextFileID uint64

	files     []*Segment
	filesByID map[uint64]*Segment
	curFileSz uint64

	mergeFiles     []*Segment
	mergeFilesByID map[uint64]*Segment
	curMergeFileSz uint64
}

func (l *Log) claimNextFileID() uint64 {
	id := l.nextFileID
	l.nextFileID++
	return id
}

// FromDisk rebuilds a Log from dataDir: every "*.tdb" file is replayed
// into keydir in file-id order, then a fresh empty segment is created to
// receive further appends.
func FromDisk(dataDir string, keydir *KeyDir, logger *zap.SugaredLogger) (*Log, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir %q: %w", dataDir, err)
	}

	type idPath struct {
		id   uint64
		path string
	}
	var candidates []idPath
	var unparsed []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != "."+Extension {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		id, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			unparsed = append(unparsed, name)
			continue
		}
		candidates = append(candidates, idPath{id: id, path: filepath.Join(dataDir, name)})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })

	l := &Log{
		dataDir:        dataDir,
		log:            logger,
		filesByID:      make(map[uint64]*Segment),
		mergeFilesByID: make(map[uint64]*Segment),
	}

	for _, c := range candidates {
		seg, err := OpenSegment(c.id, c.path, keydir)
		if err != nil {
			return nil, fmt.Errorf("open segment %q: %w", c.path, err)
		}
		l.files = append(l.files, seg)
		l.filesByID[c.id] = seg
	}

	reportOrphans(logger, dataDir, unparsed)

	if len(l.files) > 0 {
		l.nextFileID = l.files[len(l.files)-1].FileID + 1
	}
	active, err := NewSegment(dataDir, l.claimNextFileID(), Extension)
	if err != nil {
		return nil, fmt.Errorf("create active segment: %w", err)
	}
	l.files = append(l.files, active)
	l.filesByID[active.FileID] = active
	l.curFileSz = 0

	return l, nil
}

// reportOrphans logs (never fails open on) directory entries that were
// not folded into the keydir: ".merge" leftovers from a crash mid-merge,
// and any "*.tdb"-looking file whose stem didn't parse as a file-id.
func reportOrphans(logger *zap.SugaredLogger, dataDir string, unparsed []string) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return
	}

	present := mapset.NewSet[string]()
	for _, entry := range entries {
		if !entry.IsDir() {
			present.Add(entry.Name())
		}
	}

	for _, name := range unparsed {
		logger.Warnw("segment file name did not parse as a file-id", "file", name)
	}

	merges := present.Filter(func(name string) bool {
		return filepath.Ext(name) == "."+MergeExtension
	})
	if merges.Cardinality() > 0 {
		logger.Warnw("orphaned merge segments present, a prior merge may not have completed", "files", merges.ToSlice())
	}
}

// Get resolves a keydir entry to its value bytes.
func (l *Log) Get(entry KeyDirEntry) ([]byte, error) {
	seg, ok := l.filesByID[entry.FileID]
	if !ok {
		return nil, fmt.Errorf("segment %d referenced by keydir is not open", entry.FileID)
	}
	return seg.ReadValueAt(entry.ValuePos, entry.ValueSize)
}

// Put appends a live record for key/value.
func (l *Log) Put(key, value []byte, syncOnPut bool) (KeyDirEntry, error) {
	return l.append(NewLiveRecord(key, value), syncOnPut)
}

// Delete appends a tombstone for key.
func (l *Log) Delete(key []byte, syncOnPut bool) (KeyDirEntry, error) {
	return l.append(NewTombstone(key), syncOnPut)
}

func (l *Log) activeSegment() *Segment { return l.files[len(l.files)-1] }

func (l *Log) append(rec Record, syncOnPut bool) (KeyDirEntry, error) {
	entrySz := rec.TotalSize()
	if l.curFileSz+entrySz > MaxSegmentSize {
		if err := l.rotateActive(); err != nil {
			return KeyDirEntry{}, err
		}
	}
	l.curFileSz += entrySz

	seg := l.activeSegment()
	valuePos, err := seg.AppendEntry(rec, syncOnPut)
	if err != nil {
		return KeyDirEntry{}, err
	}

	return KeyDirEntry{FileID: seg.FileID, ValueSize: rec.ValueSize(), ValuePos: valuePos}, nil
}

func (l *Log) rotateActive() error {
	seg, err := NewSegment(l.dataDir, l.claimNextFileID(), Extension)
	if err != nil {
		return fmt.Errorf("rotate active segment: %w", err)
	}
	l.files = append(l.files, seg)
	l.filesByID[seg.FileID] = seg
	l.curFileSz = 0
	l.log.Debugw("rotated active segment", "fileId", seg.FileID)
	return nil
}

// PutOnMerge appends a live record to the merge-output segment set,
// rotating it by the same size policy but tracked with an independent
// byte counter from the steady-state segment list. File-ids are still
// drawn from the single shared sequence, so a merge segment can never
// collide with a pre-merge one once FinishMerge renames it into place.
func (l *Log) PutOnMerge(key, value []byte, syncOnPut bool) (KeyDirEntry, error) {
	rec := NewLiveRecord(key, value)
	entrySz := rec.TotalSize()
	if l.curMergeFileSz+entrySz > MaxSegmentSize || l.curMergeFileSz == 0 {
		if err := l.rotateMerge(); err != nil {
			return KeyDirEntry{}, err
		}
	}
	l.curMergeFileSz += entrySz

	seg := l.mergeFiles[len(l.mergeFiles)-1]
	valuePos, err := seg.AppendEntry(rec, syncOnPut)
	if err != nil {
		return KeyDirEntry{}, err
	}

	return KeyDirEntry{FileID: seg.FileID, ValueSize: rec.ValueSize(), ValuePos: valuePos}, nil
}

func (l *Log) rotateMerge() error {
	seg, err := NewSegment(l.dataDir, l.claimNextFileID(), MergeExtension)
	if err != nil {
		return fmt.Errorf("rotate merge segment: %w", err)
	}
	l.mergeFiles = append(l.mergeFiles, seg)
	l.mergeFilesByID[seg.FileID] = seg
	l.curMergeFileSz = 0
	return nil
}

// FinishMerge commits the merge-output segment set as the new active
// segment list: every "merge" segment is renamed to "tdb" in place, the
// old segment set is closed and unlinked, and the merge counters reset.
func (l *Log) FinishMerge() error {
	for _, seg := range l.mergeFiles {
		if err := seg.Sync(); err != nil {
			return err
		}
		if err := seg.ChangeExtension(); err != nil {
			return err
		}
	}

	oldFiles := l.files

	l.files = l.mergeFiles
	l.filesByID = l.mergeFilesByID
	l.curFileSz = l.curMergeFileSz

	l.mergeFiles = nil
	l.mergeFilesByID = make(map[uint64]*Segment)
	l.curMergeFileSz = 0

	// The merge rewrote every live key, so every pre-merge segment is now
	// obsolete; reclaiming their disk space is recommended, not required,
	// by the spec this engine follows — we reclaim it, unlike the source
	// this design was distilled from, which leaves them unlinked.
	for _, seg := range oldFiles {
		if err := seg.Remove(); err != nil {
			l.log.Warnw("failed to remove obsolete segment after merge", "fileId", seg.FileID, "error", err)
		}
	}

	if len(l.files) == 0 {
		// merge of an empty keydir: keep the engine writable by creating
		// a fresh active segment, same as a brand-new data directory.
		seg, err := NewSegment(l.dataDir, l.claimNextFileID(), Extension)
		if err != nil {
			return fmt.Errorf("create active segment after empty merge: %w", err)
		}
		l.files = append(l.files, seg)
		l.filesByID[seg.FileID] = seg
	}

	return nil
}

// Sync flushes every segment's handle, sealed and active.
func (l *Log) Sync() error {
	for _, seg := range l.files {
		if err := seg.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every open segment handle.
func (l *Log) Close() error {
	for _, seg := range l.files {
		if err := seg.Sync(); err != nil {
			return err
		}
		if err := seg.Close(); err != nil {
			return err
		}
	}
	return nil
}
