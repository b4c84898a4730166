package convo

import (
	"sync/atomic"
	"time"
)

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Stage tags carried on assistant turns produced by tool dispatch.
// The workflow stage of a session is derived from which tags are
// present in history, never stored separately.
const (
	TagShouldContinue  = "should_continue"
	TagWorkspaceForm   = "workspace_form"
	TagProjectForm     = "project_form"
	TagOnboardComplete = "onboard_complete"
)

// Turn is one exchange unit in a conversation. Turns are immutable
// once appended; history is an ordered sequence and insertion order
// is the conversation's canonical timeline.
type Turn struct {
	ID        int64     `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// UserTurn builds a plain user turn.
func UserTurn(content string) Turn {
	return Turn{ID: nextID(), Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

// AssistantTurn builds a plain assistant text turn.
func AssistantTurn(content string) Turn {
	return Turn{ID: nextID(), Role: RoleAssistant, Content: content, CreatedAt: time.Now().UTC()}
}

// TaggedTurn builds an assistant turn carrying a stage tag.
func TaggedTurn(tag, content string) Turn {
	return Turn{ID: nextID(), Role: RoleAssistant, Name: tag, Content: content, CreatedAt: time.Now().UTC()}
}

var lastID atomic.Int64

// nextID mints a millisecond-clock turn ID, bumped past the previous
// one so turns created within the same millisecond stay distinct.
func nextID() int64 {
	now := time.Now().UnixMilli()
	for {
		prev := lastID.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastID.CompareAndSwap(prev, now) {
			return now
		}
	}
}
