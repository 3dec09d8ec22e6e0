// SPDX-License-Identifier: Apache-2.0

// Package audit keeps the append-only log of step attempts.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/metrics"
)

// Store persists audit entries in insertion order. Query with an empty
// executionID returns the whole log.
type Store interface {
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	Query(ctx context.Context, executionID string) ([]domain.AuditEntry, error)
	Clear(ctx context.Context) error
}

// Log is the process-wide audit service. Construct it once and share it
// between the orchestrator and the transport layer.
type Log struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewLog(store Store, logger *slog.Logger) *Log {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Append records entry. A store failure is logged and counted but never
// returned: losing an audit row must not fail the step it describes.
func (l *Log) Append(ctx context.Context, entry domain.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}

	if _, err := l.store.Append(ctx, entry); err != nil {
		metrics.IncAuditAppendFailures()
		l.logger.Error("audit append failed",
			"execution_id", entry.ExecutionID,
			"step_id", entry.StepID,
			"action", entry.Action,
			"error", err,
		)
	}
}

func (l *Log) Query(ctx context.Context, executionID string) ([]domain.AuditEntry, error) {
	entries, err := l.store.Query(ctx, executionID)
	if err != nil {
		l.logger.Error("audit query failed", "execution_id", executionID, "error", err)
		return nil, err
	}
	return entries, nil
}

func (l *Log) Clear(ctx context.Context) error {
	if err := l.store.Clear(ctx); err != nil {
		l.logger.Error("audit clear failed", "error", err)
		return err
	}
	l.logger.Info("audit log cleared")
	return nil
}
