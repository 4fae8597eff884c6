package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryAppendAndHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("append auto-creates the session", func(t *testing.T) {
		m := NewMemory()
		err := m.Append(ctx, "s1",
			Turn{Role: RoleUser, Text: "What is the never-exceed speed?"},
			Turn{Role: RoleAssistant, Text: "Vne is 163 knots."})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		turns, err := m.History(ctx, "s1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(turns))
		}
		if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
			t.Errorf("unexpected roles: %q, %q", turns[0].Role, turns[1].Role)
		}
	})

	t.Run("unknown session has empty history", func(t *testing.T) {
		m := NewMemory()
		turns, err := m.History(ctx, "never-seen")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("expected empty history, got %d turns", len(turns))
		}
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		m := NewMemory()
		mustAppend(t, m, "a", Turn{Role: RoleUser, Text: "question for a"})
		mustAppend(t, m, "b", Turn{Role: RoleUser, Text: "question for b"})

		turns, err := m.History(ctx, "a")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(turns) != 1 || turns[0].Text != "question for a" {
			t.Errorf("session a sees foreign turns: %v", turns)
		}
	})

	t.Run("timestamps strictly increase even with a frozen clock", func(t *testing.T) {
		frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		m := NewMemory(WithClock(func() time.Time { return frozen }))

		for i := 0; i < 3; i++ {
			mustAppend(t, m, "s",
				Turn{Role: RoleUser, Text: "q"},
				Turn{Role: RoleAssistant, Text: "a"})
		}

		turns, err := m.History(ctx, "s")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 1; i < len(turns); i++ {
			if !turns[i].Timestamp.After(turns[i-1].Timestamp) {
				t.Errorf("turn %d timestamp %v not after turn %d timestamp %v",
					i, turns[i].Timestamp, i-1, turns[i-1].Timestamp)
			}
		}
	})

	t.Run("history is a copy", func(t *testing.T) {
		m := NewMemory()
		mustAppend(t, m, "s", Turn{Role: RoleUser, Text: "original"})

		turns, err := m.History(ctx, "s")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		turns[0].Text = "mutated"

		again, err := m.History(ctx, "s")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again[0].Text != "original" {
			t.Error("caller mutation leaked into the store")
		}
	})

	t.Run("appending zero turns is a no-op", func(t *testing.T) {
		m := NewMemory()
		if err := m.Append(ctx, "s"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids, err := m.ListIDs(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("empty append created a session: %v", ids)
		}
	})
}

func TestMemoryGetOrCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if exists, err := m.Exists(ctx, "s"); err != nil || exists {
		t.Fatalf("Exists before create = %v, %v; want false, nil", exists, err)
	}

	if err := m.GetOrCreate(ctx, "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The session exists with an empty history.
	if exists, err := m.Exists(ctx, "s"); err != nil || !exists {
		t.Fatalf("Exists after create = %v, %v; want true, nil", exists, err)
	}
	ids, err := m.ListIDs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s" {
		t.Fatalf("expected [s], got %v", ids)
	}
	turns, err := m.History(ctx, "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty history, got %d turns", len(turns))
	}

	// Calling again leaves an existing session untouched.
	mustAppend(t, m, "s", Turn{Role: RoleUser, Text: "q"})
	if err := m.GetOrCreate(ctx, "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	turns, err = m.History(ctx, "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 1 {
		t.Errorf("expected 1 turn to survive, got %d", len(turns))
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	mustAppend(t, m, "s", Turn{Role: RoleUser, Text: "q"})

	if err := m.Delete(ctx, "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	turns, err := m.History(ctx, "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty history after delete, got %d turns", len(turns))
	}

	// Deleting again is a no-op.
	if err := m.Delete(ctx, "s"); err != nil {
		t.Errorf("repeat delete: %v", err)
	}
	// Deleting a session that never existed is a no-op too.
	if err := m.Delete(ctx, "ghost"); err != nil {
		t.Errorf("delete unknown: %v", err)
	}
}

func TestMemoryListIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		mustAppend(t, m, id, Turn{Role: RoleUser, Text: "q"})
	}

	ids, err := m.ListIDs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"alpha", "bravo", "charlie"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], ids[i])
		}
	}
}

func TestMemoryEvictIdle(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return current }))

	mustAppend(t, m, "old", Turn{Role: RoleUser, Text: "q"})

	current = current.Add(time.Hour)
	mustAppend(t, m, "fresh", Turn{Role: RoleUser, Text: "q"})

	evicted, err := m.EvictIdle(ctx, current.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evicted != 1 {
		t.Errorf("expected 1 evicted session, got %d", evicted)
	}

	ids, err := m.ListIDs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Errorf("expected only fresh to survive, got %v", ids)
	}

	// Nothing idle enough: no-op.
	evicted, err = m.EvictIdle(ctx, current.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evicted != 0 {
		t.Errorf("expected no evictions, got %d", evicted)
	}
}

func TestMemoryConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const workers = 8
	const pairs = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < pairs; i++ {
				err := m.Append(ctx, "shared",
					Turn{Role: RoleUser, Text: fmt.Sprintf("q %d-%d", w, i)},
					Turn{Role: RoleAssistant, Text: fmt.Sprintf("a %d-%d", w, i)})
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	turns, err := m.History(ctx, "shared")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != workers*pairs*2 {
		t.Fatalf("expected %d turns, got %d", workers*pairs*2, len(turns))
	}

	// Pairs appended together must stay adjacent: user then assistant with
	// matching worker and iteration suffixes.
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != RoleUser || turns[i+1].Role != RoleAssistant {
			t.Fatalf("turn pair at %d has roles %q, %q", i, turns[i].Role, turns[i+1].Role)
		}
		if turns[i].Text[2:] != turns[i+1].Text[2:] {
			t.Errorf("pair at %d interleaved: %q vs %q", i, turns[i].Text, turns[i+1].Text)
		}
	}
	for i := 1; i < len(turns); i++ {
		if !turns[i].Timestamp.After(turns[i-1].Timestamp) {
			t.Errorf("timestamps not strictly increasing at %d", i)
		}
	}
}

func mustAppend(t *testing.T, m *Memory, sessionID string, turns ...Turn) {
	t.Helper()
	if err := m.Append(context.Background(), sessionID, turns...); err != nil {
		t.Fatalf("Append(%q): %v", sessionID, err)
	}
}
