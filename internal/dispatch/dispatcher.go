package dispatch

import (
	"context"
	"fmt"

	"github.com/plura-ai/onboard/internal/convo"
	"github.com/plura-ai/onboard/internal/gateway"
	"github.com/plura-ai/onboard/internal/logger"
)

// Stage is the position in the onboarding flow, derived from the
// tagged turns already committed to history. It is never stored.
type Stage int

const (
	StageGreeting Stage = iota
	StageAwaitingChoice
	StageAwaitingWorkspace
	StageAwaitingProject
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageGreeting:
		return "greeting"
	case StageAwaitingChoice:
		return "awaiting_choice"
	case StageAwaitingWorkspace:
		return "awaiting_workspace"
	case StageAwaitingProject:
		return "awaiting_project"
	case StageComplete:
		return "complete"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageOf replays the tag markers in history. The latest milestone
// wins, so a stale earlier tag cannot move the flow backwards.
func StageOf(h convo.History) Stage {
	stage := StageGreeting
	for _, t := range h.Turns {
		switch t.Name {
		case convo.TagShouldContinue:
			if stage < StageAwaitingChoice {
				stage = StageAwaitingChoice
			}
		case convo.TagWorkspaceForm:
			if stage < StageAwaitingWorkspace {
				stage = StageAwaitingWorkspace
			}
		case convo.TagProjectForm:
			if stage < StageAwaitingProject {
				stage = StageAwaitingProject
			}
		case convo.TagOnboardComplete:
			stage = StageComplete
		}
	}
	return stage
}

// PolicyViolationError reports a tool call that arrived out of order
// for the session's current stage.
type PolicyViolationError struct {
	Tool  string
	Stage Stage
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("dispatch: tool %q is not allowed at stage %s", e.Tool, e.Stage)
}

// WorkspaceRecord and ProjectRecord are the minimal directory rows the
// dispatcher needs to pre-fill forms.
type WorkspaceRecord struct {
	ID   string
	Name string
}

type ProjectRecord struct {
	Name string
}

// Directory is the external account directory the dispatcher consults
// and notifies. A nil record with a nil error means "not found".
type Directory interface {
	FirstWorkspaceOfUser(ctx context.Context, userID string) (*WorkspaceRecord, error)
	ProjectOfWorkspace(ctx context.Context, workspaceID string) (*ProjectRecord, error)
	CompleteOnboarding(ctx context.Context, userID string) error
}

// Canonical turn contents recorded for each tool. The tag in the
// turn's Name field is what drives stage derivation; the content is
// for humans and models reading the transcript.
const (
	contentShouldContinue  = "should we continue prompt has been sent"
	contentWorkspaceForm   = "workspace form for the user has been sent"
	contentProjectForm     = "project form for the user has been sent"
	contentOnboardComplete = "Your onboarding has been completed! redirecting to the main page"
)

// ProceedText is the visible label for the yes/no gate.
const ProceedText = "should we continue?"

// Dispatcher executes validated tool calls against the directory and
// records each one as a tagged turn before handing back an outcome.
type Dispatcher struct {
	dir Directory
}

func New(dir Directory) *Dispatcher {
	return &Dispatcher{dir: dir}
}

// Dispatch guards the call against the stage derived from base,
// performs any directory work, then commits the canonical tagged turn
// on top of base. The outcome is only returned once the turn is
// durably in the store, so a render always has a matching record.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *convo.Session, base convo.History, call gateway.ToolCall) (Outcome, error) {
	if err := call.Validate(); err != nil {
		return Outcome{}, err
	}

	stage := StageOf(base)
	if !allowed(call.Name, stage) {
		logger.Warn("[Dispatch] Rejected tool %q at stage %s for session %s", call.Name, stage, sess.ID)
		return Outcome{}, &PolicyViolationError{Tool: call.Name, Stage: stage}
	}

	switch call.Name {
	case gateway.ToolProceed:
		if _, err := sess.Store.Commit(base, convo.TaggedTurn(convo.TagShouldContinue, contentShouldContinue)); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindProceed, Text: ProceedText}, nil

	case gateway.ToolWorkspace:
		ws, err := d.dir.FirstWorkspaceOfUser(ctx, sess.UserID)
		if err != nil {
			return Outcome{}, fmt.Errorf("dispatch: workspace lookup: %w", err)
		}
		if _, err := sess.Store.Commit(base, convo.TaggedTurn(convo.TagWorkspaceForm, contentWorkspaceForm)); err != nil {
			return Outcome{}, err
		}
		view := &WorkspaceView{}
		if ws != nil {
			view.Exists = true
			view.ID = ws.ID
			view.Name = ws.Name
		}
		return Outcome{Kind: KindWorkspaceForm, Workspace: view}, nil

	case gateway.ToolProject:
		args, err := call.ProjectArgs()
		if err != nil {
			return Outcome{}, err
		}
		proj, err := d.dir.ProjectOfWorkspace(ctx, args.WorkspaceID)
		if err != nil {
			return Outcome{}, fmt.Errorf("dispatch: project lookup: %w", err)
		}
		if _, err := sess.Store.Commit(base, convo.TaggedTurn(convo.TagProjectForm, contentProjectForm)); err != nil {
			return Outcome{}, err
		}
		view := &ProjectView{WorkspaceID: args.WorkspaceID}
		if proj != nil {
			view.Exists = true
			view.Name = proj.Name
		}
		return Outcome{Kind: KindProjectForm, Project: view}, nil

	case gateway.ToolOnboardComplete:
		if err := d.dir.CompleteOnboarding(ctx, sess.UserID); err != nil {
			return Outcome{}, fmt.Errorf("dispatch: completing onboarding: %w", err)
		}
		if _, err := sess.Store.Commit(base, convo.TaggedTurn(convo.TagOnboardComplete, contentOnboardComplete)); err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: KindComplete, Text: contentOnboardComplete}, nil
	}

	// Validate already rejects unknown names.
	return Outcome{}, &gateway.ValidationError{Tool: call.Name, Reason: "unknown tool"}
}

func allowed(tool string, stage Stage) bool {
	switch tool {
	case gateway.ToolProceed:
		return stage == StageGreeting
	case gateway.ToolWorkspace:
		return stage == StageAwaitingChoice
	case gateway.ToolProject:
		return stage == StageAwaitingWorkspace
	case gateway.ToolOnboardComplete:
		return stage == StageAwaitingProject
	}
	return false
}
