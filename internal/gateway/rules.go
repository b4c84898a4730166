package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/plura-ai/onboard/internal/convo"
	"github.com/plura-ai/onboard/internal/logger"
)

// RuleProvider is a deterministic, offline implementation of the
// policy contract. It classifies the newest user turn against the
// exact trigger phrases and infers the workflow stage from raw
// history, the way the hosted model is prompted to. Used when no API
// key is configured, and by tests that need reproducible turns.
type RuleProvider struct{}

func NewRuleProvider() *RuleProvider {
	return &RuleProvider{}
}

func (p *RuleProvider) Name() string {
	return "rules"
}

func (p *RuleProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	prompt := strings.TrimSpace(req.Prompt())

	switch prompt {
	case TriggerShouldContinue:
		return toolCompletion(ToolProceed, nil), nil
	case TriggerOnboardComplete:
		return toolCompletion(ToolOnboardComplete, nil), nil
	}

	if id, ok := MatchProjectForm(prompt); ok {
		args, err := json.Marshal(ProjectArgs{WorkspaceID: id})
		if err != nil {
			return nil, fmt.Errorf("encode project args: %w", err)
		}
		return toolCompletion(ToolProject, args), nil
	}

	if name, ok := MatchWorkspaceCreated(prompt); ok {
		return p.prose(ctx, WorkspaceCreatedText(name)), nil
	}

	if tag, ok := lastTag(req.History); ok && tag == convo.TagShouldContinue {
		switch prompt {
		case TriggerYes:
			return toolCompletion(ToolWorkspace, nil), nil
		case TriggerNo:
			return p.prose(ctx, RefuseText), nil
		}
	}

	if prompt == TriggerOnboardMe && isFirstUserMessage(req.History) {
		if req.Greeting == "" {
			// No authenticated identity: proceed without
			// personalization. Product has not decided what this
			// reply should be, so fall back rather than invent one.
			logger.Warn("[Gateway] \"%s\" received with no session identity, greeting skipped (pending product decision)", TriggerOnboardMe)
			return p.prose(ctx, FallbackText), nil
		}
		return p.prose(ctx, req.Greeting), nil
	}

	if awaitingWorkspace(req.History) {
		return p.prose(ctx, AwaitWorkspaceText), nil
	}

	return p.prose(ctx, FallbackText), nil
}

// prose emits the reply as a word-fragment stream so callers exercise
// the same incremental surface a hosted model produces.
func (p *RuleProvider) prose(ctx context.Context, text string) *Completion {
	stream, push, finish := NewTextStream(ctx)
	go func() {
		words := strings.SplitAfter(text, " ")
		for _, w := range words {
			if !push(w) {
				finish(ctx.Err())
				return
			}
		}
		finish(nil)
	}()
	return &Completion{Stream: stream}
}

func toolCompletion(name string, args json.RawMessage) *Completion {
	if args == nil {
		args = json.RawMessage(`{}`)
	}
	return &Completion{ToolCall: &ToolCall{Name: name, Args: args}}
}

func lastTag(turns []convo.Turn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Name != "" {
			return turns[i].Name, true
		}
	}
	return "", false
}

func isFirstUserMessage(turns []convo.Turn) bool {
	for _, t := range turns {
		if t.Role == convo.RoleAssistant {
			return false
		}
	}
	return true
}

// awaitingWorkspace reports whether the workspace form went out but no
// workspace-created confirmation has been exchanged yet.
func awaitingWorkspace(turns []convo.Turn) bool {
	formSent := false
	for _, t := range turns {
		if t.Name == convo.TagWorkspaceForm {
			formSent = true
		}
		if t.Name == convo.TagProjectForm || t.Name == convo.TagOnboardComplete {
			return false
		}
		if t.Role == convo.RoleAssistant && strings.HasPrefix(t.Content, "Your first workspace with name -") {
			return false
		}
	}
	return formSent
}
