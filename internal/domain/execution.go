// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepRunning    StepStatus = "RUNNING"
	StepSucceeded  StepStatus = "SUCCEEDED"
	StepFailed     StepStatus = "FAILED"
	StepSkipped    StepStatus = "SKIPPED"
	StepRolledBack StepStatus = "ROLLED_BACK"
)

type ExecutionState string

const (
	ExecutionRunning   ExecutionState = "RUNNING"
	ExecutionSucceeded ExecutionState = "SUCCEEDED"
	ExecutionFailed    ExecutionState = "FAILED"
)

// ExecutionStatus is a point-in-time view of a live execution.
type ExecutionStatus struct {
	ExecutionID string                `json:"execution_id"`
	ChainID     string                `json:"chain_id"`
	State       ExecutionState        `json:"state"`
	Steps       map[string]StepStatus `json:"steps"`
	Results     map[string]any        `json:"results"`
	Errors      map[string]string     `json:"errors"`
	StartTime   time.Time             `json:"start_time"`
	EndTime     *time.Time            `json:"end_time,omitempty"`
}

// ExecutionResult is the terminal summary of one run of a chain.
type ExecutionResult struct {
	Success     bool
	ExecutionID string
	ChainID     string
	Results     map[string]any
	Errors      map[string]error
	// Skipped maps a step that never ran to the failed upstream step that
	// blocked it.
	Skipped       map[string]string
	RolledBack    []string
	StartTime     time.Time
	EndTime       time.Time
	ExecutionTime time.Duration
	AuditTrail    []AuditEntry
}

func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	errs := make(map[string]string, len(r.Errors))
	for id, err := range r.Errors {
		errs[id] = err.Error()
	}
	trail := r.AuditTrail
	if trail == nil {
		trail = []AuditEntry{}
	}
	return json.Marshal(struct {
		Success         bool              `json:"success"`
		ExecutionID     string            `json:"execution_id"`
		ChainID         string            `json:"chain_id"`
		Results         map[string]any    `json:"results"`
		Errors          map[string]string `json:"errors"`
		Skipped         map[string]string `json:"skipped,omitempty"`
		RolledBack      []string          `json:"rolled_back,omitempty"`
		StartTime       time.Time         `json:"start_time"`
		EndTime         time.Time         `json:"end_time"`
		ExecutionTimeMS int64             `json:"execution_time_ms"`
		AuditTrail      []AuditEntry      `json:"audit_trail"`
	}{
		Success:         r.Success,
		ExecutionID:     r.ExecutionID,
		ChainID:         r.ChainID,
		Results:         r.Results,
		Errors:          errs,
		Skipped:         r.Skipped,
		RolledBack:      r.RolledBack,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		ExecutionTimeMS: r.ExecutionTime.Milliseconds(),
		AuditTrail:      trail,
	})
}
