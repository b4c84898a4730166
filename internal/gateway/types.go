package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/plura-ai/onboard/internal/convo"
)

// Tool names form a closed enumeration. The assistant can request at
// most one of these per user turn; anything else is a policy violation.
const (
	ToolProceed         = "proceed"
	ToolWorkspace       = "workspace"
	ToolProject         = "project"
	ToolOnboardComplete = "onboardComplete"
)

// Tool describes one workflow action the model may request.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is the model's request to invoke a named tool with raw
// JSON arguments. Arguments are validated before dispatch; invalid
// arguments are a hard failure, never silently coerced.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ProjectArgs is the validated argument record of the project tool.
type ProjectArgs struct {
	WorkspaceID string `json:"workspaceId"`
}

// ValidationError reports malformed tool arguments or an unknown tool
// name. It is recoverable: no tool runs, and the conversation
// continues with a diagnostic text turn.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Reason)
}

// Validate checks the call against the closed tool set and its
// argument schema.
func (c ToolCall) Validate() error {
	switch c.Name {
	case ToolProceed, ToolWorkspace, ToolOnboardComplete:
		return nil
	case ToolProject:
		_, err := c.ProjectArgs()
		return err
	default:
		return &ValidationError{Tool: c.Name, Reason: "unknown tool"}
	}
}

// ProjectArgs parses and validates the project tool arguments.
func (c ToolCall) ProjectArgs() (ProjectArgs, error) {
	var args ProjectArgs
	if len(c.Args) > 0 {
		if err := json.Unmarshal(c.Args, &args); err != nil {
			return ProjectArgs{}, &ValidationError{Tool: c.Name, Reason: "malformed arguments: " + err.Error()}
		}
	}
	if strings.TrimSpace(args.WorkspaceID) == "" {
		return ProjectArgs{}, &ValidationError{Tool: c.Name, Reason: "workspaceId is required"}
	}
	return args, nil
}

// Request carries one inference round: full ordered history (oldest
// first) ending with the newest user turn, plus the greeting computed
// for this call. Greeting is empty when no identity is available.
type Request struct {
	History  []convo.Turn
	Greeting string
}

// Prompt returns the newest user turn's content.
func (r Request) Prompt() string {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == convo.RoleUser {
			return r.History[i].Content
		}
	}
	return ""
}

// Completion is the gateway's output for one turn: exactly one of a
// tool invocation request or a streamed prose reply.
type Completion struct {
	ToolCall *ToolCall
	Stream   *TextStream
}

// Provider wraps a single call to a generative model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// TextStream is a finite, non-restartable lazy fragment sequence
// whose concatenation is the assistant's full reply.
type TextStream struct {
	fragments chan string

	mu   sync.Mutex
	full strings.Builder
	err  error
}

// NewTextStream returns a stream plus its producer side: push emits
// one fragment and reports false once the context is done, finish
// terminates the stream (err nil on success).
func NewTextStream(ctx context.Context) (s *TextStream, push func(string) bool, finish func(error)) {
	s = &TextStream{fragments: make(chan string, 16)}
	push = func(frag string) bool {
		if frag == "" {
			return true
		}
		s.mu.Lock()
		s.full.WriteString(frag)
		s.mu.Unlock()
		select {
		case s.fragments <- frag:
			return true
		case <-ctx.Done():
			return false
		}
	}
	finish = func(err error) {
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		close(s.fragments)
	}
	return s, push, finish
}

// Recv returns the next fragment; ok is false once the stream is
// exhausted or failed.
func (s *TextStream) Recv() (frag string, ok bool) {
	frag, ok = <-s.fragments
	return frag, ok
}

// Err reports the stream's terminal error, if any. Valid after Recv
// has returned ok=false.
func (s *TextStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text returns the concatenation of all fragments produced so far.
// The full reply is only available once the stream is exhausted.
func (s *TextStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full.String()
}

// staticStream wraps an already-complete reply as a one-fragment
// stream so every prose turn flows through the same surface.
func staticStream(text string) *TextStream {
	s, push, finish := NewTextStream(context.Background())
	push(text)
	finish(nil)
	return s
}

// Tools returns the closed tool set presented to the model.
func Tools() []Tool {
	return []Tool{
		{
			Name:        ToolProceed,
			Description: "should we continue option that contains yes and no options",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolWorkspace,
			Description: "a tool that sends the workspace form to the user. When the user responds with yes or when the user asks to create a workspace then this tool should be called",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolProject,
			Description: "a tool that sends the project form to the user after workspace creation",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"workspaceId":{"type":"string"}},"required":["workspaceId"]}`),
		},
		{
			Name:        ToolOnboardComplete,
			Description: "a tool that is called after the onboarding is complete",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}
