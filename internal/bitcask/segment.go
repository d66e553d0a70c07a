package bitcask

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Extension, MergeExtension and MaxSegmentSize are the file-naming and
// rotation constants of the on-disk layout: a sealed segment carries
// Extension, a segment still being produced by a merge carries
// MergeExtension, and MaxSegmentSize is the soft per-segment byte target.
const (
	Extension      = "tdb"
	MergeExtension = "merge"
	MaxSegmentSize = 1_000_000
)

// Segment wraps one on-disk log file: append-only writes, bounded reads
// by absolute offset, and — when opened from an existing file — the
// recovery scan that rebuilds keydir entries for every record it holds.
type Segment struct {
	FileID uint64
	path   string
	file   *os.File
}

func segmentPath(dataDir string, fileID uint64, ext string) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s.%s", strconv.FormatUint(fileID, 10), ext))
}

// NewSegment creates (or reopens) an empty append-only segment file.
func NewSegment(dataDir string, fileID uint64, ext string) (*Segment, error) {
	path := segmentPath(dataDir, fileID, ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %q: %w", path, err)
	}
	return &Segment{FileID: fileID, path: path, file: f}, nil
}

// OpenSegment opens an existing segment file at path and replays every
// record it contains into keydir. Any decode failure aborts: a checksum
// mismatch or a torn trailing record is returned wrapping
// ErrChecksumMismatch (a DataError at the public wrapper), and any other
// read failure is returned as the underlying io error (an IOError there).
func OpenSegment(fileID uint64, path string, keydir *KeyDir) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %q: %w", path, err)
	}

	seg := &Segment{FileID: fileID, path: path, file: f}
	if err := seg.populateKeydir(keydir); err != nil {
		_ = f.Close()
		return nil, err
	}

	return seg, nil
}

// AppendEntry serializes rec at the current end of the segment and
// returns the absolute file offset of the first value byte, for the
// keydir entry. If sync is true the handle is flushed before returning.
func (s *Segment) AppendEntry(rec Record, sync bool) (uint64, error) {
	pos, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek segment %d: %w", s.FileID, err)
	}
	valuePos := uint64(pos) + rec.ValueOffset()

	if err := rec.Serialize(s.file); err != nil {
		return 0, fmt.Errorf("append to segment %d: %w", s.FileID, err)
	}

	if sync {
		if err := s.file.Sync(); err != nil {
			return 0, fmt.Errorf("sync segment %d: %w", s.FileID, err)
		}
	}

	return valuePos, nil
}

// ReadValueAt reads exactly size bytes at off, the form every value fetch
// takes once the keydir has resolved a key to (file-id, size, offset).
func (s *Segment) ReadValueAt(off, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := s.file.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("read value at segment %d offset %d: %w", s.FileID, off, err)
	}
	return buf, nil
}

// ChangeExtension renames a "merge" segment in place to "tdb", the step
// that commits a merge-output segment as a first-class sealed segment.
func (s *Segment) ChangeExtension() error {
	newPath := segmentPath(filepath.Dir(s.path), s.FileID, Extension)
	if err := os.Rename(s.path, newPath); err != nil {
		return fmt.Errorf("rename segment %d to %s: %w", s.FileID, Extension, err)
	}
	s.path = newPath
	return nil
}

// Sync flushes the segment's handle to the filesystem.
func (s *Segment) Sync() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync segment %d: %w", s.FileID, err)
	}
	return nil
}

// Close releases the segment's file handle.
func (s *Segment) Close() error {
	return s.file.Close()
}

// Path returns the segment's current on-disk path.
func (s *Segment) Path() string { return s.path }

// Remove closes and unlinks the segment's file; used to reclaim space
// for segments merge has made obsolete.
func (s *Segment) Remove() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close segment %d: %w", s.FileID, err)
	}
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("remove segment %d: %w", s.FileID, err)
	}
	return nil
}

func (s *Segment) populateKeydir(keydir *KeyDir) error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat segment %d: %w", s.FileID, err)
	}
	fileSize := uint64(info.Size())

	sr := io.NewSectionReader(s.file, 0, int64(fileSize))
	br := bufio.NewReader(sr)

	var cursor uint64
	for cursor < fileSize {
		rec, err := DeserializeRecord(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: segment %d: truncated record at offset %d", ErrChecksumMismatch, s.FileID, cursor)
			}
			return fmt.Errorf("recover segment %d at offset %d: %w", s.FileID, cursor, err)
		}

		if rec.IsTombstone() {
			keydir.Delete(rec.Key)
		} else {
			keydir.Put(rec.Key, KeyDirEntry{
				FileID:    s.FileID,
				ValueSize: rec.ValueSize(),
				ValuePos:  cursor + rec.ValueOffset(),
			})
		}

		cursor += rec.TotalSize()
	}

	return nil
}
