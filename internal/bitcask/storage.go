package bitcask

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Storage is the ungated, unlocked core: it coordinates a Log and a
// KeyDir for get/put/delete/list/fold/merge/sync. It accepts writes
// unconditionally — the read-only writability gate is enforced one
// layer up, at the public engine wrapper.
type Storage struct {
	log    *Log
	keydir *KeyDir
}

// New opens (creating if necessary) the data directory at dataDir and
// rebuilds its keydir by replaying every sealed segment.
func New(dataDir string, logger *zap.SugaredLogger) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %q: %w", dataDir, err)
	}

	keydir := NewKeyDir()
	log, err := FromDisk(dataDir, keydir, logger)
	if err != nil {
		return nil, err
	}

	return &Storage{log: log, keydir: keydir}, nil
}

// Get returns the current value for key, or ok=false if it has no live
// entry (never written, or most recently deleted).
func (s *Storage) Get(key []byte) ([]byte, bool, error) {
	entry, ok := s.keydir.Get(key)
	if !ok {
		return nil, false, nil
	}
	val, err := s.log.Get(entry)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put appends a live record for key/value and installs its keydir entry.
func (s *Storage) Put(key, value []byte, syncOnPut bool) error {
	entry, err := s.log.Put(key, value, syncOnPut)
	if err != nil {
		return err
	}
	s.keydir.Put(key, entry)
	return nil
}

// Delete appends a tombstone and removes key's keydir entry. The
// tombstone is written even if key is not currently live — idempotent on
// the log, a harmless record that merge will later reclaim.
func (s *Storage) Delete(key []byte, syncOnPut bool) error {
	if _, err := s.log.Delete(key, syncOnPut); err != nil {
		return err
	}
	s.keydir.Delete(key)
	return nil
}

// ListKeys returns every currently-live key, sorted.
func (s *Storage) ListKeys() [][]byte {
	return s.keydir.ListKeys()
}

// Fold applies fn left-to-right over every currently-live key in sorted
// order, threading an accumulator through. fn may return an error to
// abort early. The key snapshot is taken up front; a key disappearing
// between snapshot and fetch (impossible under the single-writer,
// exclusive-lock model the public wrapper enforces, but not ruled out by
// this unlocked core) surfaces as an error rather than a panic.
func (s *Storage) Fold(fn func(key, value []byte, acc any) (any, error), acc any) (any, error) {
	for _, key := range s.keydir.ListKeys() {
		value, ok, err := s.Get(key)
		if err != nil {
			return acc, err
		}
		if !ok {
			return acc, fmt.Errorf("fold: key %q vanished between snapshot and fetch", key)
		}
		acc, err = fn(key, value, acc)
		if err != nil {
			return acc, err
		}
	}
	return acc, nil
}

// Merge rewrites every currently-live key into fresh "merge" segments,
// then commits them as the new segment set in place of the old one.
func (s *Storage) Merge(syncOnPut bool) error {
	for _, key := range s.keydir.ListKeys() {
		value, ok, err := s.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			// deleted concurrently with the snapshot; nothing to carry forward
			continue
		}
		if err := s.putOnMerge(key, value, syncOnPut); err != nil {
			return err
		}
	}
	return s.log.FinishMerge()
}

func (s *Storage) putOnMerge(key, value []byte, syncOnPut bool) error {
	entry, err := s.log.PutOnMerge(key, value, syncOnPut)
	if err != nil {
		return err
	}
	s.keydir.Put(key, entry)
	return nil
}

// Sync flushes every segment to the filesystem.
func (s *Storage) Sync() error {
	return s.log.Sync()
}

// Close flushes and closes every open segment handle.
func (s *Storage) Close() error {
	return s.log.Close()
}
