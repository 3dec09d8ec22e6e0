// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValidateStepIDs(t *testing.T) {
	cases := []struct {
		name    string
		steps   []Step
		wantErr error
	}{
		{name: "empty chain", steps: nil},
		{name: "unique ids", steps: []Step{{ID: "a"}, {ID: "b"}}},
		{name: "duplicate id", steps: []Step{{ID: "a"}, {ID: "a"}}, wantErr: ErrDuplicateStepID},
		{name: "blank id", steps: []Step{{ID: " "}}, wantErr: ErrInvalidChain},
		{
			name:  "unknown dependency is not checked",
			steps: []Step{{ID: "a", Dependencies: []string{"ghost"}}},
		},
	}

	for _, tc := range cases {
		err := ValidateStepIDs(tc.steps)
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestChainSpecValidateDurations(t *testing.T) {
	cases := []struct {
		name    string
		spec    ChainSpec
		wantErr bool
	}{
		{name: "whole milliseconds", spec: ChainSpec{
			Steps:    []Step{{ID: "a", Timeout: 1500 * time.Millisecond, Retry: RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Second}}},
			Workflow: WorkflowConfig{Timeout: time.Minute},
		}},
		{name: "sub-millisecond step timeout", spec: ChainSpec{
			Steps: []Step{{ID: "a", Timeout: 1500 * time.Microsecond}},
		}, wantErr: true},
		{name: "sub-millisecond base delay", spec: ChainSpec{
			Steps: []Step{{ID: "a", Retry: RetryPolicy{BaseDelay: 10 * time.Nanosecond}}},
		}, wantErr: true},
		{name: "sub-millisecond workflow timeout", spec: ChainSpec{
			Workflow: WorkflowConfig{Timeout: time.Second + time.Microsecond},
		}, wantErr: true},
		{name: "negative max delay", spec: ChainSpec{
			Steps: []Step{{ID: "a", Retry: RetryPolicy{MaxDelay: -time.Second}}},
		}, wantErr: true},
	}

	for _, tc := range cases {
		err := tc.spec.Validate()
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tc.wantErr && !errors.Is(err, ErrInvalidChain) {
			t.Fatalf("%s: expected ErrInvalidChain got %v", tc.name, err)
		}
	}
}

func TestChainPatchApplyKeepsUnsetFields(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	chain := Chain{
		ID:          "c1",
		Name:        "original",
		Description: "desc",
		Steps:       []Step{{ID: "a", Config: ToolConfig{Tool: "search"}}},
		Workflow:    DefaultWorkflow(),
		CreatedAt:   created,
	}

	name := "renamed"
	patched := ChainPatch{Name: &name}.Apply(chain)

	if patched.Name != "renamed" {
		t.Fatalf("expected name to be patched, got %q", patched.Name)
	}
	if patched.Description != "desc" {
		t.Fatalf("expected description to be kept, got %q", patched.Description)
	}
	if len(patched.Steps) != 1 || patched.Steps[0].ID != "a" {
		t.Fatalf("expected steps to be kept, got %+v", patched.Steps)
	}
	if !patched.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at to be untouched")
	}
}

func TestParseErrorHandling(t *testing.T) {
	cases := []struct {
		in      string
		want    ErrorHandling
		wantErr bool
	}{
		{in: "", want: ErrorHandlingStop},
		{in: "STOP", want: ErrorHandlingStop},
		{in: "continue", want: ErrorHandlingContinue},
		{in: " rollback ", want: ErrorHandlingRollback},
		{in: "retry", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseErrorHandling(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseErrorHandling(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseErrorHandling(%q): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseErrorHandling(%q): expected %s got %s", tc.in, tc.want, got)
		}
	}
}

func TestChainSpecDecodesTaggedStepConfigs(t *testing.T) {
	body := `{
		"name": "support",
		"steps": [
			{"id": "draft", "kind": "llm", "config": {"model": "gpt", "prompt": "answer {question}"},
			 "retry_policy": {"max_retries": 2, "base_delay_ms": 10, "max_delay_ms": 50}},
			{"id": "check", "kind": "validation", "dependencies": ["draft"],
			 "config": {"rules": [{"type": "content", "rule": "non_empty"}]}},
			{"id": "fr", "kind": "translation", "dependencies": ["check"], "timeout_ms": 1500,
			 "config": {"prompt": "Translate to French", "tools": ["preserve_formatting"]}}
		],
		"workflow": {"parallel_execution": true, "error_handling": "continue", "max_concurrency": 2}
	}`

	var spec ChainSpec
	if err := json.Unmarshal([]byte(body), &spec); err != nil {
		t.Fatalf("decode chain spec: %v", err)
	}

	if len(spec.Steps) != 3 {
		t.Fatalf("expected 3 steps got %d", len(spec.Steps))
	}

	llm, ok := spec.Steps[0].Config.(LLMConfig)
	if !ok {
		t.Fatalf("expected LLMConfig got %T", spec.Steps[0].Config)
	}
	if llm.Prompt != "answer {question}" {
		t.Fatalf("unexpected prompt %q", llm.Prompt)
	}
	if spec.Steps[0].Retry.MaxRetries != 2 || spec.Steps[0].Retry.BaseDelay != 10*time.Millisecond {
		t.Fatalf("unexpected retry policy %+v", spec.Steps[0].Retry)
	}
	if spec.Steps[1].Kind() != StepValidation {
		t.Fatalf("expected validation kind got %s", spec.Steps[1].Kind())
	}
	if spec.Steps[2].Timeout != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s timeout got %s", spec.Steps[2].Timeout)
	}
	if !spec.Workflow.ParallelExecution || spec.Workflow.ErrorHandling != ErrorHandlingContinue {
		t.Fatalf("unexpected workflow %+v", spec.Workflow)
	}
	if !spec.Workflow.AuditTrail {
		t.Fatal("expected audit trail to default to true")
	}
}

func TestStepUnmarshalRejectsUnknownKind(t *testing.T) {
	var step Step
	err := json.Unmarshal([]byte(`{"id":"x","kind":"summarize"}`), &step)
	if !errors.Is(err, ErrUnsupportedStepKind) {
		t.Fatalf("expected ErrUnsupportedStepKind got %v", err)
	}
}

func TestStepWithoutKindRoundTrips(t *testing.T) {
	raw, err := json.Marshal(Step{ID: "blank"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var step Step
	if err := json.Unmarshal(raw, &step); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	if step.ID != "blank" || step.Config != nil || step.Kind() != "" {
		t.Fatalf("unexpected step %+v", step)
	}
}

func TestStepErrorMatchesTaxonomy(t *testing.T) {
	cause := &ValidationError{Message: "too short"}
	err := error(&StepError{StepID: "a", Attempts: 1, Err: cause})

	if !errors.Is(err, ErrStepExecution) {
		t.Fatal("expected StepError to match ErrStepExecution")
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatal("expected wrapped ValidationError to match ErrValidationFailed")
	}
}
