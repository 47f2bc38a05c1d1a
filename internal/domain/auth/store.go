package auth

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an API key row does not exist.
var ErrNotFound = errors.New("auth: not found")

// Store provides prefix-indexed API key lookup (C5).
type Store interface {
	// CandidatesByPrefix returns up to maxCandidates active (non-revoked)
	// rows matching keyPrefix, for the caller to compare in constant time.
	// The lookup is global on keyPrefix (spec §6's index is keyPrefix
	// alone): the caller does not know which environment a presented key
	// belongs to until a candidate's hash matches.
	CandidatesByPrefix(ctx context.Context, keyPrefix string, maxCandidates int) ([]*ApiKey, error)
}
