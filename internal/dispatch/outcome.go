package dispatch

// Kind enumerates the closed set of renderable result shapes a turn
// can produce for the presentation layer.
type Kind string

const (
	KindText          Kind = "text"
	KindProceed       Kind = "proceed"
	KindWorkspaceForm Kind = "workspace_form"
	KindProjectForm   Kind = "project_form"
	KindComplete      Kind = "complete"
)

// WorkspaceView is the pre-fill data for the workspace-creation view,
// letting the presentation layer branch between "create" and "already
// created".
type WorkspaceView struct {
	Exists bool   `json:"exists"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ProjectView mirrors WorkspaceView for the project-creation view.
type ProjectView struct {
	Exists      bool   `json:"exists"`
	Name        string `json:"name,omitempty"`
	WorkspaceID string `json:"workspace_id"`
}

// Outcome is one of five closed variants: plain text, a yes/no gate,
// a workspace form, a project form, or a completion notice telling
// the caller to navigate away.
type Outcome struct {
	Kind      Kind           `json:"kind"`
	Text      string         `json:"text,omitempty"`
	Workspace *WorkspaceView `json:"workspace,omitempty"`
	Project   *ProjectView   `json:"project,omitempty"`
}

// TextOutcome wraps a plain assistant reply.
func TextOutcome(text string) Outcome {
	return Outcome{Kind: KindText, Text: text}
}
