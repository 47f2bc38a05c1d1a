package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sentinelpolicy/policygate/internal/domain/session"
)

func TestSessionStore_GetOrCreate_CreatesOnFirstContact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	defaults := session.CreationDefaults{
		AgentID:             "agent-1",
		PolicyID:             "policy-1",
		PolicyVersionLocked: 3,
		InitialState:        "idle",
	}

	sess, created, err := store.GetOrCreate(ctx, "env-1", "session-1", defaults)
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if !created {
		t.Error("first call must report created=true")
	}
	if sess.CurrentState != "idle" || sess.InitialState != "idle" {
		t.Errorf("CurrentState/InitialState = %q/%q, want idle/idle", sess.CurrentState, sess.InitialState)
	}
	if sess.PolicyVersionLocked != 3 {
		t.Errorf("PolicyVersionLocked = %d, want 3", sess.PolicyVersionLocked)
	}
}

func TestSessionStore_GetOrCreate_SeedsInitialCounters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()
	defaults := session.CreationDefaults{
		PolicyID:            "policy-1",
		PolicyVersionLocked: 1,
		InitialState:        "idle",
		Counters:            map[string]int64{"calls_remaining": 5, "strikes": 0},
	}

	sess, created, err := store.GetOrCreate(ctx, "env-1", "session-1", defaults)
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if !created {
		t.Fatal("first call must create")
	}
	if sess.Counters["calls_remaining"] != 5 {
		t.Errorf("Counters[calls_remaining] = %d, want 5", sess.Counters["calls_remaining"])
	}
	if sess.Counters["strikes"] != 0 {
		t.Errorf("Counters[strikes] = %d, want 0", sess.Counters["strikes"])
	}
}

func TestSessionStore_GetOrCreate_ReusesExisting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()
	defaults := session.CreationDefaults{PolicyID: "policy-1", PolicyVersionLocked: 1, InitialState: "idle"}

	first, created, err := store.GetOrCreate(ctx, "env-1", "session-1", defaults)
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}
	if !created {
		t.Fatal("first call must create")
	}

	second, created2, err := store.GetOrCreate(ctx, "env-1", "session-1", session.CreationDefaults{PolicyID: "policy-2", PolicyVersionLocked: 99, InitialState: "other"})
	if err != nil {
		t.Fatalf("GetOrCreate() second call error: %v", err)
	}
	if created2 {
		t.Error("second call for the same (envId, sessionId) must not create")
	}
	if second.ID != first.ID {
		t.Error("second call must return the same row")
	}
	if second.PolicyVersionLocked != first.PolicyVersionLocked {
		t.Error("policyVersionLocked must stay frozen at the original creation value")
	}
}

func TestSessionStore_LockSerializesAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()
	sess, _, err := store.GetOrCreate(ctx, "env-1", "session-1", session.CreationDefaults{InitialState: "idle"})
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}

	release, err := store.Lock(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Lock() error: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		release2, err := store.Lock(ctx, sess.ID)
		if err != nil {
			t.Errorf("second Lock() error: %v", err)
			return
		}
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock() must block while the first holder has not released")
	default:
	}
	release()
	<-acquired
}

func TestSessionStore_Lock_UnknownID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	_, err := store.Lock(ctx, "nonexistent")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Lock() error = %v, want ErrNotFound", err)
	}
}

func TestSessionStore_UpdateState_MovesAllFiveFieldsTogether(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()
	sess, _, err := store.GetOrCreate(ctx, "env-1", "session-1", session.CreationDefaults{InitialState: "idle"})
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}

	mutation := session.Mutation{
		NewState:             "active",
		NewCounters:          map[string]int64{"calls": 1},
		NewToolCallsHistory:  []string{"search"},
		NewToolCallCounts:    map[string]int64{"search": 1},
		NewLastToolCallTimes: map[string]int64{"search": 1000},
	}

	updated, err := store.UpdateState(ctx, sess.ID, mutation)
	if err != nil {
		t.Fatalf("UpdateState() error: %v", err)
	}
	if updated.CurrentState != "active" {
		t.Errorf("CurrentState = %q, want active", updated.CurrentState)
	}
	if updated.Counters["calls"] != 1 {
		t.Errorf("Counters[calls] = %d, want 1", updated.Counters["calls"])
	}
	if len(updated.ToolCallsHistory) != 1 || updated.ToolCallsHistory[0] != "search" {
		t.Errorf("ToolCallsHistory = %v, want [search]", updated.ToolCallsHistory)
	}
}

func TestSessionStore_UpdateState_UnknownID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	_, err := store.UpdateState(ctx, "nonexistent", session.Mutation{})
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("UpdateState() error = %v, want ErrNotFound", err)
	}
}

func TestSessionStore_Get_ReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()
	sess, _, err := store.GetOrCreate(ctx, "env-1", "session-1", session.CreationDefaults{InitialState: "idle"})
	if err != nil {
		t.Fatalf("GetOrCreate() error: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	got.Counters["tampered"] = 1

	again, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() second call error: %v", err)
	}
	if _, ok := again.Counters["tampered"]; ok {
		t.Error("mutating a returned session must not affect the store")
	}
}

func TestSessionStore_Get_UnknownID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	_, err := store.Get(ctx, "nonexistent")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSessionStore_ConcurrentGetOrCreate_SameKeyCreatesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	var wg sync.WaitGroup
	ids := make(chan string, 50)
	createdCount := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, created, err := store.GetOrCreate(ctx, "env-1", "shared-session", session.CreationDefaults{InitialState: "idle"})
			if err != nil {
				t.Errorf("GetOrCreate() error: %v", err)
				return
			}
			ids <- sess.ID
			createdCount <- created
		}()
	}
	wg.Wait()
	close(ids)
	close(createdCount)

	first := ""
	for id := range ids {
		if first == "" {
			first = id
		} else if id != first {
			t.Errorf("all concurrent GetOrCreate calls for the same key must return the same row id")
		}
	}

	trueCount := 0
	for c := range createdCount {
		if c {
			trueCount++
		}
	}
	if trueCount != 1 {
		t.Errorf("exactly one caller should observe created=true, got %d", trueCount)
	}
}
