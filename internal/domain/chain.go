// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ErrorHandling string

const (
	ErrorHandlingStop     ErrorHandling = "stop"
	ErrorHandlingContinue ErrorHandling = "continue"
	ErrorHandlingRollback ErrorHandling = "rollback"
)

// ParseErrorHandling maps an empty value to stop.
func ParseErrorHandling(raw string) (ErrorHandling, error) {
	switch ErrorHandling(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ErrorHandlingStop:
		return ErrorHandlingStop, nil
	case ErrorHandlingContinue:
		return ErrorHandlingContinue, nil
	case ErrorHandlingRollback:
		return ErrorHandlingRollback, nil
	default:
		return "", fmt.Errorf("unknown error handling policy %q", raw)
	}
}

type WorkflowConfig struct {
	ParallelExecution bool
	ErrorHandling     ErrorHandling
	Timeout           time.Duration
	// MaxConcurrency bounds in-flight steps of a parallel round; zero means
	// no bound.
	MaxConcurrency int
	AuditTrail     bool
}

type workflowDocument struct {
	ParallelExecution bool          `json:"parallel_execution"`
	ErrorHandling     ErrorHandling `json:"error_handling"`
	TimeoutMS         int64         `json:"timeout_ms,omitempty"`
	MaxConcurrency    int           `json:"max_concurrency,omitempty"`
	AuditTrail        bool          `json:"audit_trail"`
}

func (w WorkflowConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(workflowDocument{
		ParallelExecution: w.ParallelExecution,
		ErrorHandling:     w.ErrorHandling,
		TimeoutMS:         w.Timeout.Milliseconds(),
		MaxConcurrency:    w.MaxConcurrency,
		AuditTrail:        w.AuditTrail,
	})
}

func (w *WorkflowConfig) UnmarshalJSON(data []byte) error {
	doc := workflowDocument{AuditTrail: true}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	handling, err := ParseErrorHandling(string(doc.ErrorHandling))
	if err != nil {
		return err
	}
	*w = WorkflowConfig{
		ParallelExecution: doc.ParallelExecution,
		ErrorHandling:     handling,
		Timeout:           time.Duration(doc.TimeoutMS) * time.Millisecond,
		MaxConcurrency:    doc.MaxConcurrency,
		AuditTrail:        doc.AuditTrail,
	}
	return nil
}

// DefaultWorkflow runs steps sequentially, stops on the first failure and
// records an audit trail.
func DefaultWorkflow() WorkflowConfig {
	return WorkflowConfig{
		ErrorHandling: ErrorHandlingStop,
		AuditTrail:    true,
	}
}

type Chain struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []Step         `json:"steps"`
	Workflow    WorkflowConfig `json:"workflow"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ChainSpec is the caller-supplied part of a chain.
type ChainSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []Step         `json:"steps"`
	Workflow    WorkflowConfig `json:"workflow"`
}

// ChainPatch carries the fields of a partial update; nil fields are kept.
type ChainPatch struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Steps       *[]Step         `json:"steps,omitempty"`
	Workflow    *WorkflowConfig `json:"workflow,omitempty"`
}

// Apply merges the patch into c. Timestamps are left to the caller.
func (p ChainPatch) Apply(c Chain) Chain {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Steps != nil {
		c.Steps = cloneSteps(*p.Steps)
	}
	if p.Workflow != nil {
		c.Workflow = *p.Workflow
	}
	return c
}

// ValidateStepIDs checks that every step has a non-empty id that is unique
// within the chain. Dependencies are deliberately not checked here.
func ValidateStepIDs(steps []Step) error {
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("%w: step at position %d has an empty id", ErrInvalidChain, i)
		}
		if _, ok := seen[step.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateStepID, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// StepIndex returns the position of the step with the given id, or -1.
func (c Chain) StepIndex(id string) int {
	for i, step := range c.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep enough copy that callers cannot mutate stored steps.
func (c Chain) Clone() Chain {
	c.Steps = cloneSteps(c.Steps)
	return c
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, step := range steps {
		if step.Dependencies != nil {
			step.Dependencies = append([]string(nil), step.Dependencies...)
		}
		out[i] = step
	}
	return out
}

// Validate checks the construction-time invariants of a chain.
func (c Chain) Validate() error {
	return ChainSpec{Steps: c.Steps, Workflow: c.Workflow}.Validate()
}

// Validate checks step ids and durations of a spec before it is stored.
func (s ChainSpec) Validate() error {
	if err := ValidateStepIDs(s.Steps); err != nil {
		return err
	}
	return ValidateDurations(s.Steps, s.Workflow)
}

// ValidateDurations rejects negative durations and durations finer than a
// millisecond, which the stored documents cannot represent.
func ValidateDurations(steps []Step, workflow WorkflowConfig) error {
	if err := checkDuration("workflow.timeout", workflow.Timeout); err != nil {
		return err
	}
	for _, step := range steps {
		fields := []struct {
			name string
			d    time.Duration
		}{
			{"timeout", step.Timeout},
			{"retry_policy.base_delay", step.Retry.BaseDelay},
			{"retry_policy.max_delay", step.Retry.MaxDelay},
		}
		for _, f := range fields {
			if err := checkDuration(step.ID+"."+f.name, f.d); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkDuration(field string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidChain, field)
	}
	if d%time.Millisecond != 0 {
		return fmt.Errorf("%w: %s %s is not a whole number of milliseconds", ErrInvalidChain, field, d)
	}
	return nil
}
