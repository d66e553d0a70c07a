// Package bitvault is an embeddable, persistent key-value store built on
// the Bitcask design: an append-only on-disk log plus an in-memory
// keydir index. Engine wraps the unlocked bitcask core in a
// readers-writer lock and a writability gate; the core itself lives in
// the internal/bitcask package.
package bitvault

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kvforge/bitvault/internal/bitcask"
	"go.uber.org/zap"
)

// Engine is a thread-safe handle to one data directory. The zero value is
// not usable; construct one with Open or OpenWithOptions.
type Engine struct {
	mu        sync.RWMutex
	storage   *bitcask.Storage
	mutable   bool
	syncOnPut bool
	log       *zap.SugaredLogger
}

// Open opens or creates a store at dir, defaulting to read-only with no
// sync-on-put — matching the reference implementation's plain open().
func Open(dir string) (*Engine, error) {
	return OpenWithOptions(dir)
}

// OpenWithOptions opens or creates a store at dir with opts applied.
func OpenWithOptions(dir string, opts ...Option) (*Engine, error) {
	o := buildOptions(opts...)

	logger, err := newLogger()
	if err != nil {
		return nil, NewIOError(err)
	}

	storage, err := bitcask.New(dir, logger)
	if err != nil {
		return nil, classifyCoreError(err)
	}

	return &Engine{
		storage:   storage,
		mutable:   o.readWrite,
		syncOnPut: o.syncOnPut,
		log:       logger,
	}, nil
}

func newLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Get returns the current value for key, or ok=false if it has no live
// entry.
func (e *Engine) Get(key []byte) (value []byte, ok bool, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	value, ok, err = e.storage.Get(key)
	if err != nil {
		return nil, false, classifyCoreError(err)
	}
	return value, ok, nil
}

// Put stores value under key. It fails with an *OptionError if the
// engine was opened read-only.
func (e *Engine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.mutable {
		return NewOptionError("tried to write in read-only access")
	}
	if err := e.storage.Put(key, value, e.syncOnPut); err != nil {
		return classifyCoreError(err)
	}
	return nil
}

// Delete removes key. It fails with an *OptionError if the engine was
// opened read-only. A tombstone is written even if key is not currently
// live; this is idempotent on the log and is reclaimed by a later merge.
func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.mutable {
		return NewOptionError("tried to delete in read-only access")
	}
	if err := e.storage.Delete(key, e.syncOnPut); err != nil {
		return classifyCoreError(err)
	}
	return nil
}

// ListKeys returns every currently-live key, sorted lexicographically.
func (e *Engine) ListKeys() [][]byte {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.storage.ListKeys()
}

// FoldFunc is applied left-to-right over every live key in sorted order.
type FoldFunc func(key, value []byte, acc any) (any, error)

// Fold threads acc through fn over a snapshot of every live key, in
// sorted order, and returns the final accumulator.
func (e *Engine) Fold(fn FoldFunc, acc any) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result, err := e.storage.Fold(fn, acc)
	if err != nil {
		return result, classifyCoreError(err)
	}
	return result, nil
}

// Merge rewrites every live key into fresh segments and replaces the
// segment set in place. It requires the exclusive lock for its duration;
// there is no concurrent/background merge.
func (e *Engine) Merge() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.storage.Merge(e.syncOnPut); err != nil {
		return classifyCoreError(err)
	}
	return nil
}

// Sync flushes every segment to the filesystem. It is the only
// durability boundary this engine promises independent of sync-on-put.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.storage.Sync(); err != nil {
		return classifyCoreError(err)
	}
	return nil
}

// Close syncs the store and releases its segment handles.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.storage.Sync(); err != nil {
		return classifyCoreError(err)
	}
	if err := e.storage.Close(); err != nil {
		return classifyCoreError(err)
	}
	return nil
}

// classifyCoreError maps an error surfaced by the unlocked core onto the
// three-variant public taxonomy: a checksum/decode failure is a
// DataError, anything else is an IOError.
func classifyCoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bitcask.ErrChecksumMismatch) {
		return NewDataError(fmt.Sprintf("%v", err), err)
	}
	return NewIOError(err)
}
