package gateway

import (
	"strings"
	"testing"
)

func TestWorkspaceCreatedTextIsExact(t *testing.T) {
	// Contract text, double space included.
	want := "Your first workspace with name - ✅Acme  has been created"
	if got := WorkspaceCreatedText("Acme"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMatchWorkspaceCreated(t *testing.T) {
	name, ok := MatchWorkspaceCreated("workspace My Space created")
	if !ok || name != "My Space" {
		t.Fatalf("expected name %q, got %q ok=%v", "My Space", name, ok)
	}
	if _, ok := MatchWorkspaceCreated("workspace created"); ok {
		t.Fatalf("nameless message must not match")
	}
	if _, ok := MatchWorkspaceCreated("the workspace Acme created it"); ok {
		t.Fatalf("non-anchored message must not match")
	}
}

func TestMatchProjectForm(t *testing.T) {
	id, ok := MatchProjectForm("call project form with workspaceId:ws-7")
	if !ok || id != "ws-7" {
		t.Fatalf("expected ws-7, got %q ok=%v", id, ok)
	}

	// Empty id still matches; validation rejects it downstream.
	id, ok = MatchProjectForm("call project form with workspaceId:")
	if !ok || id != "" {
		t.Fatalf("expected empty id match, got %q ok=%v", id, ok)
	}

	if _, ok := MatchProjectForm("call project form"); ok {
		t.Fatalf("truncated trigger must not match")
	}
}

func TestSystemPromptCarriesContractText(t *testing.T) {
	prompt := SystemPrompt("Hi Jess, welcome to Plura AI!")

	for _, want := range []string{
		"wlecome to Plura",
		"please create a workspace to continue your onboarding",
		"Please create a workspace to continue",
		"Hi Jess, welcome to Plura AI!",
		"onboard me",
		"onboardComplete",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("system prompt missing %q", want)
		}
	}
}
