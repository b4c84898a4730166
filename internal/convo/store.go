package convo

import (
	"errors"
	"sync"
)

// ErrStaleHistory is returned when an update is attempted against a
// snapshot that no longer matches the stored sequence. The caller's
// turn lost the race and must be retried against fresh history.
var ErrStaleHistory = errors.New("convo: history changed since snapshot was taken")

// History is an immutable snapshot of a session's turn sequence.
// Version identifies the snapshot for compare-and-swap updates.
type History struct {
	Version uint64
	Turns   []Turn
}

// Last returns the most recent turn and true, or a zero turn and false
// for an empty history.
func (h History) Last() (Turn, bool) {
	if len(h.Turns) == 0 {
		return Turn{}, false
	}
	return h.Turns[len(h.Turns)-1], true
}

// LastTagged returns the most recent turn carrying a stage tag.
func (h History) LastTagged() (Turn, bool) {
	for i := len(h.Turns) - 1; i >= 0; i-- {
		if h.Turns[i].Name != "" {
			return h.Turns[i], true
		}
	}
	return Turn{}, false
}

// HasTag reports whether any turn in history carries the given tag.
func (h History) HasTag(tag string) bool {
	for _, t := range h.Turns {
		if t.Name == tag {
			return true
		}
	}
	return false
}

// CommitHook receives the full committed sequence after every Commit.
type CommitHook func(turns []Turn) error

// Store holds the turn sequence for one session. The only mutation is
// an atomic compare-and-swap replace: either the new sequence is
// committed in full or the prior state is retained unchanged.
type Store struct {
	mu      sync.RWMutex
	version uint64
	turns   []Turn
	hook    CommitHook
}

func NewStore() *Store {
	return &Store{}
}

// SetCommitHook installs a hook fired after each successful Commit,
// used to persist durable snapshots. Not fired by Update or Restore.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Get returns an immutable snapshot of the current sequence.
func (s *Store) Get() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

func (s *Store) snapshot() History {
	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return History{Version: s.version, Turns: turns}
}

// Update atomically replaces the stored sequence with base plus the
// given turns. It fails with ErrStaleHistory if base does not match
// the stored snapshot, leaving the store unchanged.
func (s *Store) Update(base History, add ...Turn) (History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replace(base, add...)
}

// Commit is the terminal replace for the turn currently in flight: the
// same CAS semantics as Update, plus the commit hook fires with the
// full new sequence. A hook failure rolls the store back so the
// durable snapshot and the in-memory state never diverge.
func (s *Store) Commit(base History, add ...Turn) (History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevTurns := s.turns
	prevVersion := s.version

	h, err := s.replace(base, add...)
	if err != nil {
		return History{}, err
	}
	if s.hook != nil {
		if err := s.hook(h.Turns); err != nil {
			s.turns = prevTurns
			s.version = prevVersion
			return History{}, err
		}
	}
	return h, nil
}

// Restore rolls the store back to a prior snapshot, used when a
// streamed turn is abandoned mid-flight. It is CAS-guarded on the
// current snapshot so a racing commit is never overwritten.
func (s *Store) Restore(current, prior History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current.Version != s.version {
		return ErrStaleHistory
	}
	turns := make([]Turn, len(prior.Turns))
	copy(turns, prior.Turns)
	s.turns = turns
	s.version++
	return nil
}

func (s *Store) replace(base History, add ...Turn) (History, error) {
	if base.Version != s.version {
		return History{}, ErrStaleHistory
	}
	turns := make([]Turn, 0, len(base.Turns)+len(add))
	turns = append(turns, base.Turns...)
	turns = append(turns, add...)
	s.turns = turns
	s.version++
	return s.snapshot(), nil
}
