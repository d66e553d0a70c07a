package bitvault

// Options controls how Open attaches to a data directory: whether writes
// are permitted, and whether each append is flushed before returning.
// The zero value matches Open's defaults: read-only, no sync-on-put.
type Options struct {
	readWrite  bool
	syncOnPut  bool
}

// NewOptions builds an Options value directly, mirroring the two-argument
// constructor of the reference implementation's options object.
func NewOptions(readWrite, syncOnPut bool) Options {
	return Options{readWrite: readWrite, syncOnPut: syncOnPut}
}

// SetReadWrite updates the writability flag in place.
func (o *Options) SetReadWrite(readWrite bool) { o.readWrite = readWrite }

// SetSyncOnPut updates the durability flag in place.
func (o *Options) SetSyncOnPut(syncOnPut bool) { o.syncOnPut = syncOnPut }

// ReadWrite reports whether put/delete are permitted.
func (o Options) ReadWrite() bool { return o.readWrite }

// SyncOnPut reports whether every append is flushed before returning.
func (o Options) SyncOnPut() bool { return o.syncOnPut }

// Option configures an Options value being built via OpenWithOptions.
type Option func(*Options)

// WithReadWrite sets the writability flag.
func WithReadWrite(readWrite bool) Option {
	return func(o *Options) { o.readWrite = readWrite }
}

// WithSyncOnPut sets the durability flag.
func WithSyncOnPut(syncOnPut bool) Option {
	return func(o *Options) { o.syncOnPut = syncOnPut }
}

func buildOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
