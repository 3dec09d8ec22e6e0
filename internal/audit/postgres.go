// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps entries in the audit_entries table; seq is a
// BIGSERIAL so insertion order survives restarts.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}
}

func (s *PostgresStore) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	input, err := marshalNullable(entry.Input)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	output, err := marshalNullable(entry.Output)
	if err != nil {
		return domain.AuditEntry{}, err
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO audit_entries (
			execution_id, chain_id, step_id, attempt, action,
			input, output, error, duration_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10)
		RETURNING seq
	`,
		entry.ExecutionID,
		entry.ChainID,
		entry.StepID,
		entry.Attempt,
		string(entry.Action),
		input,
		output,
		entry.Error,
		entry.Duration.Milliseconds(),
		entry.Timestamp,
	).Scan(&entry.Seq)
	if err != nil {
		s.logger.Error("insert audit entry failed",
			"execution_id", entry.ExecutionID,
			"step_id", entry.StepID,
			"error", err,
		)
		return domain.AuditEntry{}, err
	}

	return entry, nil
}

func (s *PostgresStore) Query(ctx context.Context, executionID string) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, execution_id, chain_id, step_id, attempt, action,
		       input, output, error, duration_ms, created_at
		FROM audit_entries
		WHERE $1 = '' OR execution_id = $1
		ORDER BY seq ASC
	`, executionID)
	if err != nil {
		s.logger.Error("audit query failed", "execution_id", executionID, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0, 16)
	for rows.Next() {
		var (
			entry      domain.AuditEntry
			action     string
			input      []byte
			output     []byte
			durationMS int64
		)
		if err := rows.Scan(
			&entry.Seq,
			&entry.ExecutionID,
			&entry.ChainID,
			&entry.StepID,
			&entry.Attempt,
			&action,
			&input,
			&output,
			&entry.Error,
			&durationMS,
			&entry.Timestamp,
		); err != nil {
			s.logger.Error("scan audit row failed", "execution_id", executionID, "error", err)
			return nil, err
		}
		entry.Action = domain.AuditAction(action)
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		if entry.Input, err = unmarshalNullable(input); err != nil {
			return nil, err
		}
		if entry.Output, err = unmarshalNullable(output); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("audit rows iteration failed", "execution_id", executionID, "error", err)
		return nil, err
	}

	return out, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM audit_entries`); err != nil {
		s.logger.Error("clear audit entries failed", "error", err)
		return err
	}
	return nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
