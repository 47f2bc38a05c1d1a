package auth

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	rows map[string][]*ApiKey
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string][]*ApiKey)} }

func (f *fakeStore) add(k *ApiKey) {
	f.rows[k.KeyPrefix] = append(f.rows[k.KeyPrefix], k)
}

func (f *fakeStore) CandidatesByPrefix(ctx context.Context, keyPrefix string, maxCandidates int) ([]*ApiKey, error) {
	rows := f.rows[keyPrefix]
	if len(rows) > maxCandidates {
		rows = rows[:maxCandidates]
	}
	return rows, nil
}

func TestGate_Validate_MatchesSHA256Key(t *testing.T) {
	t.Parallel()

	raw := "sk_live_abcdef1234567890"
	store := newFakeStore()
	store.add(&ApiKey{ID: "k1", EnvID: "env-1", KeyPrefix: raw[:8], KeyHash: HashSHA256(raw), HashAlgo: "sha256"})

	gate := NewGate(store, 8, 16, 5)
	key, err := gate.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if key.ID != "k1" {
		t.Errorf("matched key ID = %q, want k1", key.ID)
	}
	if key.EnvID != "env-1" {
		t.Errorf("matched key EnvID = %q, want env-1 (resolved from the row, not the caller)", key.EnvID)
	}
}

func TestGate_Validate_MatchesArgon2idKey(t *testing.T) {
	t.Parallel()

	raw := "sk_live_argon2idsecret12345"
	hash, err := HashArgon2id(raw)
	if err != nil {
		t.Fatalf("HashArgon2id() error: %v", err)
	}

	store := newFakeStore()
	store.add(&ApiKey{ID: "k2", EnvID: "env-1", KeyPrefix: raw[:8], KeyHash: hash, HashAlgo: "argon2id"})

	gate := NewGate(store, 8, 16, 5)
	key, err := gate.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if key.ID != "k2" {
		t.Errorf("matched key ID = %q, want k2", key.ID)
	}
}

func TestGate_Validate_NoMatchReturnsInvalidKey(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.add(&ApiKey{ID: "k1", EnvID: "env-1", KeyPrefix: "sk_livea", KeyHash: HashSHA256("sk_liveacorrect1234"), HashAlgo: "sha256"})

	gate := NewGate(store, 8, 16, 5)
	_, err := gate.Validate(context.Background(), "sk_liveawrongsecret1")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Validate() error = %v, want ErrInvalidKey", err)
	}
}

func TestGate_Validate_RevokedKeyRejected(t *testing.T) {
	t.Parallel()

	raw := "sk_live_revokedkey12345"
	revokedAt := int64(1000)
	store := newFakeStore()
	store.add(&ApiKey{ID: "k1", EnvID: "env-1", KeyPrefix: raw[:8], KeyHash: HashSHA256(raw), HashAlgo: "sha256", RevokedAt: &revokedAt})

	gate := NewGate(store, 8, 16, 5)
	_, err := gate.Validate(context.Background(), raw)
	if !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("Validate() error = %v, want ErrKeyRevoked", err)
	}
}

func TestGate_Validate_MalformedKeyTooShort(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gate := NewGate(store, 8, 16, 5)
	_, err := gate.Validate(context.Background(), "short")
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("Validate() error = %v, want ErrMalformedKey", err)
	}
}

func TestGate_Validate_ComparesAllCandidatesEvenAfterMatch(t *testing.T) {
	t.Parallel()

	raw := "sk_live_findme1234567890"
	store := newFakeStore()
	// Several non-matching candidates sharing the prefix, plus the real match
	// placed first so a naive short-circuit implementation would still pass
	// this test; the point is no panic/error occurs walking the full list.
	store.add(&ApiKey{ID: "k1", EnvID: "env-1", KeyPrefix: raw[:8], KeyHash: HashSHA256(raw), HashAlgo: "sha256"})
	for i := 0; i < 4; i++ {
		store.add(&ApiKey{ID: "decoy", EnvID: "env-1", KeyPrefix: raw[:8], KeyHash: HashSHA256("decoy-secret-value"), HashAlgo: "sha256"})
	}

	gate := NewGate(store, 8, 16, 10)
	key, err := gate.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if key.ID != "k1" {
		t.Errorf("matched key ID = %q, want k1", key.ID)
	}
}

func TestGate_Validate_ResolvesEnvFromMatchedKeyAcrossEnvironments(t *testing.T) {
	t.Parallel()

	raw := "sk_live_crossenv1234567"
	store := newFakeStore()
	// Same prefix space, different tenant than the one that will match.
	store.add(&ApiKey{ID: "other-env-key", EnvID: "env-other", KeyPrefix: raw[:8], KeyHash: HashSHA256("env-other-secret-value1"), HashAlgo: "sha256"})
	store.add(&ApiKey{ID: "k1", EnvID: "env-mine", KeyPrefix: raw[:8], KeyHash: HashSHA256(raw), HashAlgo: "sha256"})

	gate := NewGate(store, 8, 16, 10)
	key, err := gate.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if key.EnvID != "env-mine" {
		t.Errorf("EnvID = %q, want env-mine (resolved from the matched candidate, not passed in)", key.EnvID)
	}
}

func TestApiKey_Revoked(t *testing.T) {
	t.Parallel()

	active := &ApiKey{}
	if active.Revoked() {
		t.Error("a key with no RevokedAt must not report Revoked()")
	}
	ts := int64(123)
	revoked := &ApiKey{RevokedAt: &ts}
	if !revoked.Revoked() {
		t.Error("a key with RevokedAt set must report Revoked()")
	}
}
