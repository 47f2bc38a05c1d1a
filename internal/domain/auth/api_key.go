package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when no candidate row's hash matches the
// presented secret.
var ErrInvalidKey = errors.New("auth: invalid api key")

// ErrKeyRevoked is returned when the matching row has been revoked.
var ErrKeyRevoked = errors.New("auth: api key revoked")

// ErrMalformedKey is returned when the presented key is absent or shorter
// than the configured minimum length.
var ErrMalformedKey = errors.New("auth: malformed api key")

// Gate validates presented API keys against a prefix-indexed store in
// constant time (spec §4.5, steps 1-4).
type Gate struct {
	store         Store
	prefixLength  int
	minKeyLength  int
	maxCandidates int
}

// NewGate builds a Gate. prefixLength and minKeyLength come from
// configuration (API_KEY_PREFIX_LENGTH, API_KEY_MIN_LENGTH); maxCandidates
// bounds the per-request lookup work (K in spec §4.5).
func NewGate(store Store, prefixLength, minKeyLength, maxCandidates int) *Gate {
	return &Gate{
		store:         store,
		prefixLength:  prefixLength,
		minKeyLength:  minKeyLength,
		maxCandidates: maxCandidates,
	}
}

// Validate extracts the prefix from presented, loads at most K candidate
// rows for that prefix (the caller does not know which environment the key
// belongs to yet — that is resolved from the matched row's EnvID), and
// compares the presented secret's hash to every candidate's stored hash
// with a constant-time equal — even after a match is found, so that no
// candidate skips work and a non-matching length still performs equal work
// to avoid a timing leak.
func (g *Gate) Validate(ctx context.Context, presented string) (*ApiKey, error) {
	if len(presented) < g.minKeyLength || len(presented) < g.prefixLength {
		return nil, ErrMalformedKey
	}
	prefix := presented[:g.prefixLength]

	candidates, err := g.store.CandidatesByPrefix(ctx, prefix, g.maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("auth: load candidates: %w", err)
	}

	presentedSHA256 := sha256Hex(presented)

	var matched *ApiKey
	var matchedRevoked bool
	for _, cand := range candidates {
		var ok bool
		switch cand.HashAlgo {
		case "argon2id":
			ok, _ = safeArgon2idCompare(presented, cand.KeyHash)
		default: // "sha256" and unset default to the normative fast path
			ok = subtle.ConstantTimeCompare([]byte(presentedSHA256), []byte(cand.KeyHash)) == 1
		}
		if ok {
			matched = cand
			matchedRevoked = cand.Revoked()
		}
	}

	if matched == nil {
		return nil, ErrInvalidKey
	}
	if matchedRevoked {
		return nil, ErrKeyRevoked
	}
	return matched, nil
}

// HashSHA256 returns the hex SHA-256 hash of a raw secret — the normative
// storage/comparison hash for an ApiKey (spec §3).
func HashSHA256(raw string) string {
	return sha256Hex(raw)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// argon2idParams mirrors OWASP's minimum recommended Argon2id cost.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashArgon2id returns a PHC-formatted Argon2id hash of raw, for operators
// who provision keys via the alternate higher-cost algorithm.
func HashArgon2id(raw string) (string, error) {
	return argon2id.CreateHash(raw, argon2idParams)
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery: the underlying library panics on malformed parameters (e.g.
// t=0), which must never crash the credential gate.
func safeArgon2idCompare(raw, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match, err = false, fmt.Errorf("auth: invalid argon2id hash: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(raw, stored)
}
