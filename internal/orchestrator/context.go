// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/prompt"
)

// ExecutionContext is the mutable state of one run. Steps of a parallel
// round write to it concurrently, so every accessor locks.
type ExecutionContext struct {
	ExecutionID string
	ChainID     string
	Input       any
	Variables   map[string]any
	StartTime   time.Time

	mu        sync.RWMutex
	state     domain.ExecutionState
	statuses  map[string]domain.StepStatus
	results   map[string]any
	errors    map[string]error
	skipped   map[string]string
	completed []string
	endTime   *time.Time
}

func newExecutionContext(executionID string, chain domain.Chain, input any, variables map[string]any, start time.Time) *ExecutionContext {
	statuses := make(map[string]domain.StepStatus, len(chain.Steps))
	for _, step := range chain.Steps {
		statuses[step.ID] = domain.StepPending
	}
	if variables == nil {
		variables = map[string]any{}
	}

	return &ExecutionContext{
		ExecutionID: executionID,
		ChainID:     chain.ID,
		Input:       input,
		Variables:   variables,
		StartTime:   start,
		state:       domain.ExecutionRunning,
		statuses:    statuses,
		results:     make(map[string]any, len(chain.Steps)),
		errors:      make(map[string]error),
		skipped:     make(map[string]string),
	}
}

func (ec *ExecutionContext) Result(stepID string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	v, ok := ec.results[stepID]
	return v, ok
}

func (ec *ExecutionContext) Status(stepID string) domain.StepStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	return ec.statuses[stepID]
}

// Interpolate resolves {name} placeholders against prior results and the
// run variables.
func (ec *ExecutionContext) Interpolate(template string) string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	return prompt.Interpolate(template, ec.Variables, ec.results)
}

func (ec *ExecutionContext) setStatus(stepID string, status domain.StepStatus) {
	ec.mu.Lock()
	ec.statuses[stepID] = status
	ec.mu.Unlock()
}

func (ec *ExecutionContext) succeed(stepID string, output any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.results[stepID] = output
	ec.statuses[stepID] = domain.StepSucceeded
	ec.completed = append(ec.completed, stepID)
}

func (ec *ExecutionContext) fail(stepID string, err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.errors[stepID] = err
	ec.statuses[stepID] = domain.StepFailed
}

// skip marks stepID as blocked by the failed step cause.
func (ec *ExecutionContext) skip(stepID, cause string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.skipped[stepID] = cause
	ec.errors[stepID] = fmt.Errorf("%w: blocked by step %s", domain.ErrDependencyFailed, cause)
	ec.statuses[stepID] = domain.StepSkipped
}

// completedOrder returns succeeded steps in the order they finished.
func (ec *ExecutionContext) completedOrder() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	return append([]string(nil), ec.completed...)
}

func (ec *ExecutionContext) finish(state domain.ExecutionState, at time.Time) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.state = state
	ec.endTime = &at
}

func (ec *ExecutionContext) Snapshot() domain.ExecutionStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	status := domain.ExecutionStatus{
		ExecutionID: ec.ExecutionID,
		ChainID:     ec.ChainID,
		State:       ec.state,
		Steps:       make(map[string]domain.StepStatus, len(ec.statuses)),
		Results:     make(map[string]any, len(ec.results)),
		Errors:      make(map[string]string, len(ec.errors)),
		StartTime:   ec.StartTime,
	}
	for id, s := range ec.statuses {
		status.Steps[id] = s
	}
	for id, v := range ec.results {
		status.Results[id] = v
	}
	for id, err := range ec.errors {
		status.Errors[id] = err.Error()
	}
	if ec.endTime != nil {
		end := *ec.endTime
		status.EndTime = &end
	}
	return status
}

func (ec *ExecutionContext) result() (map[string]any, map[string]error, map[string]string) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	results := make(map[string]any, len(ec.results))
	for id, v := range ec.results {
		results[id] = v
	}
	errs := make(map[string]error, len(ec.errors))
	for id, err := range ec.errors {
		errs[id] = err
	}
	var skipped map[string]string
	if len(ec.skipped) > 0 {
		skipped = make(map[string]string, len(ec.skipped))
		for id, cause := range ec.skipped {
			skipped[id] = cause
		}
	}
	return results, errs, skipped
}
