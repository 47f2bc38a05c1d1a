package audit

import "context"

// Store persists audit entries (C6). A single append per request writes
// one Entry; a failed write is logged by the caller but must not change an
// already-computed decision (spec §4.6, §7).
type Store interface {
	Append(ctx context.Context, entry Entry) error

	// Close releases resources (flush loops, open files, db handles).
	Close() error
}
