// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/sentinelpolicy/policygate/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditStore implements audit.Store, writing each entry as a JSON line to
// the configured writer and keeping a bounded ring buffer of the most
// recent entries for local inspection. Development/test implementation of
// C6; the SQL-backed store is the production implementation.
type AuditStore struct {
	mu      sync.Mutex
	encoder *json.Encoder
	writer  io.Writer
	recent  []audit.Entry
	cap     int
}

// NewAuditStore creates an audit store writing JSON lines to stdout.
func NewAuditStore() *AuditStore {
	return NewAuditStoreWithWriter(os.Stdout)
}

// NewAuditStoreWithWriter creates an audit store writing JSON lines to w.
func NewAuditStoreWithWriter(w io.Writer) *AuditStore {
	return &AuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.Entry, 0, defaultRecentCap),
		cap:     defaultRecentCap,
	}
}

// Append implements audit.Store.
func (s *AuditStore) Append(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(entry); err != nil {
		return err
	}
	if len(s.recent) >= s.cap {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = entry
	} else {
		s.recent = append(s.recent, entry)
	}
	return nil
}

// Close implements audit.Store.
func (s *AuditStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Recent returns the n most recent entries, newest first (test/debug helper).
func (s *AuditStore) Recent(n int) []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.recent)
	if n > total {
		n = total
	}
	out := make([]audit.Entry, n)
	for i := 0; i < n; i++ {
		out[i] = s.recent[total-1-i]
	}
	return out
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
