package cache

// WriteStrategy picks how a cache write is propagated to the system of
// record. Callers choose per call site; the Manager carries no default
// because the right choice depends on the caller's durability
// requirement, not on the data type being written.
type WriteStrategy int

const (
	// WriteThrough writes the hot store and the system of record
	// synchronously; the call only succeeds if both do.
	WriteThrough WriteStrategy = iota
	// WriteBehind writes the hot store synchronously and queues the
	// system-of-record write to drain asynchronously in the background.
	// On a full queue the write is still accepted in the hot store
	// (eventual consistency) and a metric is incremented.
	WriteBehind
)
