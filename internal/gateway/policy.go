package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// Literal reply texts, reproduced exactly as product shipped them.
// The "wlecome" typo and the double space before "has been created"
// are contract text. Do not correct them without a product decision.
const (
	// FallbackText answers any message unrelated to onboarding.
	FallbackText = "wlecome to Plura"
	// RefuseText answers "no" to the proceed gate.
	RefuseText = "please create a workspace to continue your onboarding"
	// AwaitWorkspaceText nags while a workspace is still pending.
	AwaitWorkspaceText = "Please create a workspace to continue"
)

// Trigger phrases. Tools fire only on these exact texts.
const (
	TriggerOnboardMe       = "onboard me"
	TriggerShouldContinue  = "should we continue"
	TriggerYes             = "yes"
	TriggerNo              = "no"
	TriggerOnboardComplete = "onboardComplete"
)

var (
	workspaceCreatedRe = regexp.MustCompile(`^workspace (.+) created$`)
	projectFormRe      = regexp.MustCompile(`^call project form with workspaceId:(.*)$`)
)

// MatchWorkspaceCreated reports whether prompt is the workspace-created
// confirmation and returns the workspace name.
func MatchWorkspaceCreated(prompt string) (name string, ok bool) {
	m := workspaceCreatedRe.FindStringSubmatch(prompt)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MatchProjectForm reports whether prompt is the project-form trigger
// and returns the workspace id, which may be empty (validation will
// reject it downstream rather than coercing).
func MatchProjectForm(prompt string) (workspaceID string, ok bool) {
	m := projectFormRe.FindStringSubmatch(prompt)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// WorkspaceCreatedText builds the exact confirmation reply for a
// created workspace. The two spaces before "has" are contract text.
func WorkspaceCreatedText(name string) string {
	return fmt.Sprintf("Your first workspace with name - ✅%s  has been created", name)
}

// SystemPrompt builds the policy prompt handed to the model on every
// call. It is the entire behavioral contract of the assistant; the
// greeting slot is filled from session identity and left blank when
// no identity is available.
func SystemPrompt(greeting string) string {
	return fmt.Sprintf(`You are an onboarding assistant and you are helping users to onboard them to Plura AI.
- any question not related to the onboarding should not be answered by you
- if someone asks any message that is not related to the onboarding then you should respond with the exact same text "%s"
- the first message from the user will be "%s", you should always respond with the exact text:
%s
- No tools should be called for this
- if the message comes as "%s" then call the %s tool, and only for that exact message
The workflow is as follows:
- User sends "yes" or "no" to proceed
- If the user sends "yes" then you call the %s tool
- If the user sends "no", respond with exactly: "%s". Do not call any tools for "no"
- If the user sends any message after the workspace tool is called then you should respond with the exact same text: "%s"
- don't call any tools if the user doesn't create a workspace
- If the message comes as workspace {workspaceName} created then respond with the exact same text
"Your first workspace with name - ✅{workspaceName}  has been created"
- if the message comes as "call project form with workspaceId:{workspaceId}" then call the %s tool with that workspaceId
- If the message comes as "%s" then call the %s tool`,
		FallbackText,
		TriggerOnboardMe,
		greeting,
		TriggerShouldContinue, ToolProceed,
		ToolWorkspace,
		RefuseText,
		AwaitWorkspaceText,
		ToolProject,
		TriggerOnboardComplete, ToolOnboardComplete,
	)
}
