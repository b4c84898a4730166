package onboard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/plura-ai/onboard/internal/convo"
	"github.com/plura-ai/onboard/internal/dispatch"
	"github.com/plura-ai/onboard/internal/gateway"
	"github.com/plura-ai/onboard/internal/persist"
)

type fakeDirectory struct {
	ws        *dispatch.WorkspaceRecord
	proj      *dispatch.ProjectRecord
	completed []string
}

func (d *fakeDirectory) FirstWorkspaceOfUser(context.Context, string) (*dispatch.WorkspaceRecord, error) {
	return d.ws, nil
}

func (d *fakeDirectory) ProjectOfWorkspace(context.Context, string) (*dispatch.ProjectRecord, error) {
	return d.proj, nil
}

func (d *fakeDirectory) CompleteOnboarding(_ context.Context, userID string) error {
	d.completed = append(d.completed, userID)
	return nil
}

type fakeIdentities struct {
	ident *persist.Identity
	err   error
}

func (f *fakeIdentities) GetSession(string) (*persist.Identity, error) {
	return f.ident, f.err
}

func newTestAssistant(dir dispatch.Directory, ids Identities) *Assistant {
	return NewAssistant(convo.NewManager(), gateway.NewRuleProvider(), dir, ids)
}

func send(t *testing.T, a *Assistant, sessionID, text string) (Reply, string) {
	t.Helper()
	var streamed strings.Builder
	reply, err := a.SendMessage(context.Background(), sessionID, "user-1", text, func(frag string) {
		streamed.WriteString(frag)
	})
	if err != nil {
		t.Fatalf("send %q failed: %v", text, err)
	}
	return reply, streamed.String()
}

func TestFullOnboardingFlow(t *testing.T) {
	dir := &fakeDirectory{}
	ids := &fakeIdentities{ident: &persist.Identity{UserID: "user-1", Name: "Jess", Email: "jess@example.com"}}
	a := newTestAssistant(dir, ids)
	const sessionID = "sess-1"

	greeting, _ := Greeting("Jess", "jess@example.com")

	reply, streamed := send(t, a, sessionID, "onboard me")
	if reply.Role != "assistant" || reply.ID == "" {
		t.Fatalf("malformed reply %+v", reply)
	}
	if reply.Display.Kind != dispatch.KindText || reply.Display.Text != greeting {
		t.Fatalf("expected greeting reply, got %+v", reply.Display)
	}
	if streamed != greeting {
		t.Fatalf("streamed fragments %q do not rebuild the reply", streamed)
	}

	reply, _ = send(t, a, sessionID, "should we continue")
	if reply.Display.Kind != dispatch.KindProceed {
		t.Fatalf("expected proceed gate, got %+v", reply.Display)
	}

	reply, _ = send(t, a, sessionID, "yes")
	if reply.Display.Kind != dispatch.KindWorkspaceForm || reply.Display.Workspace.Exists {
		t.Fatalf("expected empty workspace form, got %+v", reply.Display)
	}

	reply, _ = send(t, a, sessionID, "workspace Acme created")
	want := "Your first workspace with name - ✅Acme  has been created"
	if reply.Display.Kind != dispatch.KindText || reply.Display.Text != want {
		t.Fatalf("expected %q, got %+v", want, reply.Display)
	}

	reply, _ = send(t, a, sessionID, "call project form with workspaceId:ws-1")
	p := reply.Display.Project
	if reply.Display.Kind != dispatch.KindProjectForm || p == nil || p.WorkspaceID != "ws-1" || p.Exists {
		t.Fatalf("expected empty project form for ws-1, got %+v", reply.Display)
	}

	reply, _ = send(t, a, sessionID, "onboardComplete")
	if reply.Display.Kind != dispatch.KindComplete {
		t.Fatalf("expected completion, got %+v", reply.Display)
	}
	if len(dir.completed) != 1 || dir.completed[0] != "user-1" {
		t.Fatalf("expected completion side effect, got %v", dir.completed)
	}
	if a.Sessions().Len() != 0 {
		t.Fatalf("expected session to be closed after completion")
	}
}

func TestRefusalKeepsGateOpen(t *testing.T) {
	a := newTestAssistant(&fakeDirectory{}, &fakeIdentities{})
	const sessionID = "sess-1"

	send(t, a, sessionID, "should we continue")
	reply, _ := send(t, a, sessionID, "no")
	if reply.Display.Kind != dispatch.KindText || reply.Display.Text != gateway.RefuseText {
		t.Fatalf("expected refusal text, got %+v", reply.Display)
	}

	// The gate stays answered-no, not consumed: "yes" may still follow.
	reply, _ = send(t, a, sessionID, "yes")
	if reply.Display.Kind != dispatch.KindWorkspaceForm {
		t.Fatalf("expected workspace form after late yes, got %+v", reply.Display)
	}
}

func TestTurnsAreCommittedInOrder(t *testing.T) {
	a := newTestAssistant(&fakeDirectory{}, &fakeIdentities{})
	const sessionID = "sess-1"

	send(t, a, sessionID, "hello there")

	h := a.Sessions().Get(sessionID, "user-1").Store.Get()
	if len(h.Turns) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(h.Turns))
	}
	if h.Turns[0].Role != convo.RoleUser || h.Turns[0].Content != "hello there" {
		t.Fatalf("user turn missing or out of order: %+v", h.Turns[0])
	}
	if h.Turns[1].Role != convo.RoleAssistant || h.Turns[1].Content != gateway.FallbackText {
		t.Fatalf("assistant turn missing or out of order: %+v", h.Turns[1])
	}
}

// errorProvider fails the model call outright.
type errorProvider struct{ err error }

func (p *errorProvider) Name() string { return "error" }
func (p *errorProvider) Complete(context.Context, gateway.Request) (*gateway.Completion, error) {
	return nil, p.err
}

func TestModelFailureRollsBackUserTurn(t *testing.T) {
	boom := errors.New("model unavailable")
	a := NewAssistant(convo.NewManager(), &errorProvider{err: boom}, &fakeDirectory{}, &fakeIdentities{})

	_, err := a.SendMessage(context.Background(), "sess-1", "user-1", "onboard me", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}

	h := a.Sessions().Get("sess-1", "user-1").Store.Get()
	if len(h.Turns) != 0 {
		t.Fatalf("failed turn must leave no trace, got %d turns", len(h.Turns))
	}

	// The same prompt retried against fresh history must work.
	a2 := newTestAssistant(&fakeDirectory{}, &fakeIdentities{})
	if _, err := a2.SendMessage(context.Background(), "sess-1", "user-1", "onboard me", nil); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

// badToolProvider asks for a tool outside the closed set.
type badToolProvider struct{}

func (p *badToolProvider) Name() string { return "bad" }
func (p *badToolProvider) Complete(context.Context, gateway.Request) (*gateway.Completion, error) {
	return &gateway.Completion{ToolCall: &gateway.ToolCall{Name: "formatDisk"}}, nil
}

func TestInvalidToolBecomesDiagnosticTurn(t *testing.T) {
	a := NewAssistant(convo.NewManager(), &badToolProvider{}, &fakeDirectory{}, &fakeIdentities{})

	reply, err := a.SendMessage(context.Background(), "sess-1", "user-1", "hello", nil)
	if err != nil {
		t.Fatalf("validation failure must be recoverable, got %v", err)
	}
	if reply.Display.Kind != dispatch.KindText {
		t.Fatalf("expected diagnostic text, got %+v", reply.Display)
	}

	h := a.Sessions().Get("sess-1", "user-1").Store.Get()
	if len(h.Turns) != 2 || h.Turns[1].Role != convo.RoleAssistant {
		t.Fatalf("expected committed diagnostic turn, got %+v", h.Turns)
	}
	if h.Turns[1].Name != "" {
		t.Fatalf("diagnostic turn must not carry a stage tag, got %q", h.Turns[1].Name)
	}
}

func TestOutOfOrderToolBecomesDiagnosticTurn(t *testing.T) {
	a := newTestAssistant(&fakeDirectory{}, &fakeIdentities{})

	// onboardComplete without any prior stage is a policy violation.
	reply, err := a.SendMessage(context.Background(), "sess-1", "user-1", "onboardComplete", nil)
	if err != nil {
		t.Fatalf("policy violation must be recoverable, got %v", err)
	}
	if reply.Display.Kind != dispatch.KindText {
		t.Fatalf("expected diagnostic text, got %+v", reply.Display)
	}

	h := a.Sessions().Get("sess-1", "user-1").Store.Get()
	if h.HasTag(convo.TagOnboardComplete) {
		t.Fatalf("rejected tool must not commit its stage turn")
	}
}

func TestCancelledStreamRollsBack(t *testing.T) {
	a := newTestAssistant(&fakeDirectory{}, &fakeIdentities{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.SendMessage(ctx, "sess-1", "user-1", "hello", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	h := a.Sessions().Get("sess-1", "user-1").Store.Get()
	if len(h.Turns) != 0 {
		t.Fatalf("abandoned turn must be rolled back, got %d turns", len(h.Turns))
	}
}

func TestIdentityLookupFailureSkipsGreeting(t *testing.T) {
	a := newTestAssistant(&fakeDirectory{}, &fakeIdentities{err: errors.New("directory down")})

	reply, _ := send(t, a, "sess-1", "onboard me")
	if reply.Display.Text != gateway.FallbackText {
		t.Fatalf("expected fallback without identity, got %+v", reply.Display)
	}
}
