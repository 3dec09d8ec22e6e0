// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"fmt"
)

var ErrChainNotFound = errors.New("chain not found")
var ErrExecutionNotFound = errors.New("execution not found")
var ErrInvalidChain = errors.New("invalid chain")
var ErrDuplicateStepID = errors.New("duplicate step id")
var ErrMissingDependency = errors.New("missing dependency")
var ErrCircularDependency = errors.New("circular dependency")
var ErrUnsupportedStepKind = errors.New("unsupported step kind")
var ErrStepExecution = errors.New("step execution failed")
var ErrValidationFailed = errors.New("validation failed")
var ErrDependencyFailed = errors.New("dependency failed")

// StepError is the terminal failure of a step after its retries ran out.
type StepError struct {
	StepID   string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return target == ErrStepExecution
}

// ValidationError is raised by a failing rule. Message is the rule's own
// error message when it has one.
type ValidationError struct {
	Rule    Rule
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
