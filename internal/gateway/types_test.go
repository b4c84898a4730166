package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestToolCallValidateUnknownTool(t *testing.T) {
	err := ToolCall{Name: "deleteEverything"}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Tool != "deleteEverything" {
		t.Fatalf("expected tool name in error, got %+v", verr)
	}
}

func TestToolCallValidateProjectArgs(t *testing.T) {
	cases := []struct {
		name string
		args string
		ok   bool
	}{
		{"valid", `{"workspaceId":"ws-1"}`, true},
		{"missing id", `{}`, false},
		{"blank id", `{"workspaceId":"  "}`, false},
		{"no args", ``, false},
		{"malformed", `{"workspaceId":`, false},
	}
	for _, tc := range cases {
		call := ToolCall{Name: ToolProject, Args: json.RawMessage(tc.args)}
		err := call.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
			}
		}
	}
}

func TestRequestPromptIsNewestUserTurn(t *testing.T) {
	req := Request{History: nil}
	if got := req.Prompt(); got != "" {
		t.Fatalf("empty history should yield empty prompt, got %q", got)
	}
}

func TestTextStreamAccumulates(t *testing.T) {
	s, push, finish := NewTextStream(context.Background())
	go func() {
		push("Hello ")
		push("there")
		finish(nil)
	}()

	var parts []string
	for {
		frag, ok := s.Recv()
		if !ok {
			break
		}
		parts = append(parts, frag)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if got := strings.Join(parts, ""); got != "Hello there" {
		t.Fatalf("fragments %q do not concatenate to full text", got)
	}
	if s.Text() != "Hello there" {
		t.Fatalf("Text() = %q, want %q", s.Text(), "Hello there")
	}
}

func TestTextStreamPushStopsWhenAbandoned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, push, finish := NewTextStream(ctx)
	// Consumer is gone; once the buffer fills, push must bail out
	// instead of blocking the producer forever.
	stopped := false
	for i := 0; i < 64; i++ {
		if !push("x") {
			stopped = true
			break
		}
	}
	if !stopped {
		t.Fatalf("push never reported the abandoned consumer")
	}
	finish(ctx.Err())
}

func TestTextStreamErrSurfacesAfterDrain(t *testing.T) {
	boom := errors.New("upstream closed")
	s, push, finish := NewTextStream(context.Background())
	push("partial ")
	finish(boom)

	for {
		if _, ok := s.Recv(); !ok {
			break
		}
	}
	if !errors.Is(s.Err(), boom) {
		t.Fatalf("expected terminal error, got %v", s.Err())
	}
}

func TestToolsSchemaRequiresWorkspaceID(t *testing.T) {
	var project *Tool
	tools := Tools()
	for i := range tools {
		if tools[i].Name == ToolProject {
			project = &tools[i]
		}
	}
	if project == nil {
		t.Fatalf("project tool missing from tool set")
	}
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(project.InputSchema, &schema); err != nil {
		t.Fatalf("bad schema: %v", err)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "workspaceId" {
		t.Fatalf("expected workspaceId to be required, got %v", schema.Required)
	}
}
