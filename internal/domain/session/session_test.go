package session

import "testing"

func TestGenerateID_LengthAndHexFormat(t *testing.T) {
	t.Parallel()

	id, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID() error: %v", err)
	}
	if len(id) != 64 {
		t.Errorf("len(id) = %d, want 64 (32 bytes hex-encoded)", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("id %q contains non-hex character %q", id, c)
		}
	}
}

func TestGenerateID_UniqueAcrossCalls(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID()
		if err != nil {
			t.Fatalf("GenerateID() error: %v", err)
		}
		if seen[id] {
			t.Fatalf("GenerateID() produced a duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestSession_Snapshot_DeepCopiesState(t *testing.T) {
	t.Parallel()

	s := &Session{
		CurrentState:      "idle",
		Counters:          map[string]int64{"calls": 1},
		ToolCallsHistory:  []string{"search"},
		ToolCallCounts:    map[string]int64{"search": 1},
		LastToolCallTimes: map[string]int64{"search": 1000},
	}

	snap := s.Snapshot()
	snap.Counters["calls"] = 99
	snap.ToolCallCounts["search"] = 99
	snap.LastToolCallTimes["search"] = 99
	snap.ToolCallsHistory[0] = "tampered"

	if s.Counters["calls"] != 1 {
		t.Error("mutating the snapshot's Counters must not affect the session")
	}
	if s.ToolCallCounts["search"] != 1 {
		t.Error("mutating the snapshot's ToolCallCounts must not affect the session")
	}
	if s.LastToolCallTimes["search"] != 1000 {
		t.Error("mutating the snapshot's LastToolCallTimes must not affect the session")
	}
	if s.ToolCallsHistory[0] != "search" {
		t.Error("mutating the snapshot's ToolCallsHistory must not affect the session")
	}
}

func TestSession_Snapshot_CopiesCurrentState(t *testing.T) {
	t.Parallel()

	s := &Session{CurrentState: "authenticated"}
	snap := s.Snapshot()
	if snap.CurrentState != "authenticated" {
		t.Errorf("Snapshot().CurrentState = %q, want authenticated", snap.CurrentState)
	}
}
