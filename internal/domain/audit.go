// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditExecute     AuditAction = "execute"
	AuditError       AuditAction = "error"
	AuditValidation  AuditAction = "validation"
	AuditTranslation AuditAction = "translation"
	AuditRollback    AuditAction = "rollback"
)

// AuditEntry records one step attempt. Entries are never changed once
// appended; Seq is assigned by the store.
type AuditEntry struct {
	Seq         int64         `json:"seq"`
	Timestamp   time.Time     `json:"timestamp"`
	ExecutionID string        `json:"execution_id"`
	ChainID     string        `json:"chain_id"`
	StepID      string        `json:"step_id"`
	Attempt     int           `json:"attempt"`
	Action      AuditAction   `json:"action"`
	Input       any           `json:"input,omitempty"`
	Output      any           `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"-"`
}

type auditEntryJSON AuditEntry

func (e AuditEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		auditEntryJSON
		DurationMS int64 `json:"duration_ms"`
	}{
		auditEntryJSON: auditEntryJSON(e),
		DurationMS:     e.Duration.Milliseconds(),
	})
}

func (e *AuditEntry) UnmarshalJSON(data []byte) error {
	var doc struct {
		auditEntryJSON
		DurationMS int64 `json:"duration_ms"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*e = AuditEntry(doc.auditEntryJSON)
	e.Duration = time.Duration(doc.DurationMS) * time.Millisecond
	return nil
}
