package bitcask

import "sort"

// KeyDirEntry is the in-memory pointer to a key's most recent value.
type KeyDirEntry struct {
	FileID    uint64
	ValueSize uint64
	ValuePos  uint64 // absolute offset of the first value byte
}

// KeyDir is the derived index mapping every live key to its KeyDirEntry.
// It holds no persistence of its own — it is rebuilt from the log at
// open — and no segment ownership, only ordinals and offsets into
// segments the log manager owns.
type KeyDir struct {
	entries map[string]KeyDirEntry
}

// NewKeyDir returns an empty keydir.
func NewKeyDir() *KeyDir {
	return &KeyDir{entries: make(map[string]KeyDirEntry)}
}

// Get returns the entry for key, if any.
func (kd *KeyDir) Get(key []byte) (KeyDirEntry, bool) {
	e, ok := kd.entries[string(key)]
	return e, ok
}

// Put installs entry for key and returns the previous entry, if any.
func (kd *KeyDir) Put(key []byte, entry KeyDirEntry) (KeyDirEntry, bool) {
	prev, had := kd.entries[string(key)]
	kd.entries[string(key)] = entry
	return prev, had
}

// Delete removes key's entry and returns it, if any.
func (kd *KeyDir) Delete(key []byte) (KeyDirEntry, bool) {
	k := string(key)
	prev, had := kd.entries[k]
	delete(kd.entries, k)
	return prev, had
}

// ListKeys returns a snapshot of every live key, sorted lexicographically.
func (kd *KeyDir) ListKeys() [][]byte {
	keys := make([]string, 0, len(kd.entries))
	for k := range kd.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// Len returns the number of live keys.
func (kd *KeyDir) Len() int { return len(kd.entries) }
