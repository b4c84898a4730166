package convo

import (
	"errors"
	"testing"
	"time"
)

func TestUpdateAppendsAndBumpsVersion(t *testing.T) {
	s := NewStore()

	base := s.Get()
	h, err := s.Update(base, UserTurn("onboard me"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(h.Turns) != 1 || h.Turns[0].Content != "onboard me" {
		t.Fatalf("expected one appended turn, got %+v", h.Turns)
	}
	if h.Version == base.Version {
		t.Fatalf("expected version bump, still %d", h.Version)
	}
}

func TestUpdateRejectsStaleSnapshot(t *testing.T) {
	s := NewStore()

	base := s.Get()
	if _, err := s.Update(base, UserTurn("first")); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	// base is now stale; the racing writer must lose.
	_, err := s.Update(base, UserTurn("second"))
	if !errors.Is(err, ErrStaleHistory) {
		t.Fatalf("expected ErrStaleHistory, got %v", err)
	}

	h := s.Get()
	if len(h.Turns) != 1 || h.Turns[0].Content != "first" {
		t.Fatalf("stale update must not change state, got %+v", h.Turns)
	}
}

func TestGetReturnsImmutableSnapshot(t *testing.T) {
	s := NewStore()
	if _, err := s.Update(s.Get(), UserTurn("hello")); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	h := s.Get()
	h.Turns[0].Content = "mutated"

	if got := s.Get().Turns[0].Content; got != "hello" {
		t.Fatalf("snapshot mutation leaked into store: %q", got)
	}
}

func TestCommitFiresHookWithFullSequence(t *testing.T) {
	s := NewStore()
	var saved []Turn
	s.SetCommitHook(func(turns []Turn) error {
		saved = turns
		return nil
	})

	h, err := s.Update(s.Get(), UserTurn("yes"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if saved != nil {
		t.Fatalf("hook must not fire on Update")
	}

	if _, err := s.Commit(h, TaggedTurn(TagWorkspaceForm, "workspace form for the user has been sent")); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected hook to see 2 turns, got %d", len(saved))
	}
}

func TestCommitRollsBackOnHookFailure(t *testing.T) {
	s := NewStore()
	h, err := s.Update(s.Get(), UserTurn("yes"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	boom := errors.New("disk full")
	s.SetCommitHook(func([]Turn) error { return boom })

	if _, err := s.Commit(h, AssistantTurn("reply")); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	got := s.Get()
	if got.Version != h.Version || len(got.Turns) != 1 {
		t.Fatalf("failed commit must leave store unchanged, got version %d turns %d", got.Version, len(got.Turns))
	}
}

func TestRestoreRollsBackAbandonedTurn(t *testing.T) {
	s := NewStore()
	prior, err := s.Update(s.Get(), UserTurn("onboard me"), AssistantTurn("hi there"))
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	inflight, err := s.Update(prior, UserTurn("abandoned"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if err := s.Restore(inflight, prior); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	got := s.Get()
	if len(got.Turns) != 2 {
		t.Fatalf("expected prior 2 turns after restore, got %d", len(got.Turns))
	}

	// The same turn retried against fresh history must succeed.
	if _, err := s.Update(got, UserTurn("abandoned")); err != nil {
		t.Fatalf("retry after restore failed: %v", err)
	}
}

func TestRestoreLosesToRacingCommit(t *testing.T) {
	s := NewStore()
	prior := s.Get()
	inflight, err := s.Update(prior, UserTurn("first"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	racing, err := s.Update(inflight, AssistantTurn("committed meanwhile"))
	if err != nil {
		t.Fatalf("racing update failed: %v", err)
	}

	if err := s.Restore(inflight, prior); !errors.Is(err, ErrStaleHistory) {
		t.Fatalf("expected ErrStaleHistory, got %v", err)
	}
	if got := s.Get(); got.Version != racing.Version {
		t.Fatalf("racing commit must survive, version %d != %d", got.Version, racing.Version)
	}
}

func TestHistoryTagHelpers(t *testing.T) {
	h := History{Turns: []Turn{
		UserTurn("should we continue"),
		TaggedTurn(TagShouldContinue, "should we continue prompt has been sent"),
		UserTurn("yes"),
	}}

	if !h.HasTag(TagShouldContinue) {
		t.Fatalf("expected HasTag(%q) to be true", TagShouldContinue)
	}
	if h.HasTag(TagWorkspaceForm) {
		t.Fatalf("expected HasTag(%q) to be false", TagWorkspaceForm)
	}
	tagged, ok := h.LastTagged()
	if !ok || tagged.Name != TagShouldContinue {
		t.Fatalf("expected last tagged turn %q, got %+v ok=%v", TagShouldContinue, tagged, ok)
	}
	last, ok := h.Last()
	if !ok || last.Content != "yes" {
		t.Fatalf("expected last turn %q, got %+v ok=%v", "yes", last, ok)
	}
}

func TestTurnIDsAreMonotonic(t *testing.T) {
	a := UserTurn("a")
	b := UserTurn("b")
	if b.ID <= a.ID {
		t.Fatalf("expected strictly increasing IDs, got %d then %d", a.ID, b.ID)
	}
}

func TestManagerSessionLifecycle(t *testing.T) {
	m := NewManager()

	s1 := m.Get("sess-1", "user-1")
	if s1 == nil || s1.UserID != "user-1" {
		t.Fatalf("expected new session for user-1, got %+v", s1)
	}
	if again := m.Get("sess-1", "someone-else"); again != s1 {
		t.Fatalf("expected same session instance on second Get")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", m.Len())
	}

	m.Close("sess-1")
	if m.Len() != 0 {
		t.Fatalf("expected 0 sessions after close, got %d", m.Len())
	}
}

func TestManagerSeedsFromLoader(t *testing.T) {
	m := NewManager()
	m.SetLoader(func(sessionID string) ([]Turn, error) {
		if sessionID != "sess-1" {
			return nil, nil
		}
		return []Turn{UserTurn("onboard me"), AssistantTurn("hi")}, nil
	})

	s := m.Get("sess-1", "user-1")
	if got := len(s.Store.Get().Turns); got != 2 {
		t.Fatalf("expected 2 seeded turns, got %d", got)
	}

	empty := m.Get("sess-2", "user-1")
	if got := len(empty.Store.Get().Turns); got != 0 {
		t.Fatalf("expected empty session, got %d turns", got)
	}
}

func TestManagerExpire(t *testing.T) {
	m := NewManager()
	idle := m.Get("idle", "u")
	m.Get("fresh", "u")

	idle.mu.Lock()
	idle.lastActive = time.Now().Add(-time.Hour)
	idle.mu.Unlock()

	if removed := m.Expire(30 * time.Minute); removed != 1 {
		t.Fatalf("expected 1 expired session, got %d", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session left, got %d", m.Len())
	}
}
