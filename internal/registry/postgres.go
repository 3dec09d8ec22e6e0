// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// definition is the JSONB body of a chains row.
type definition struct {
	Steps    []domain.Step         `json:"steps"`
	Workflow domain.WorkflowConfig `json:"workflow"`
}

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

func (s *PostgresStore) Put(ctx context.Context, chain domain.Chain) error {
	body, err := json.Marshal(definition{Steps: chain.Steps, Workflow: chain.Workflow})
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO chains (id, name, description, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    definition = EXCLUDED.definition,
		    updated_at = EXCLUDED.updated_at
	`,
		chain.ID,
		chain.Name,
		chain.Description,
		body,
		chain.CreatedAt,
		chain.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("upsert chain failed", "chain_id", chain.ID, "error", err)
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.Chain, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, definition, created_at, updated_at
		FROM chains
		WHERE id = $1
	`, id)

	chain, err := scanChain(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Chain{}, false, nil
	}
	if err != nil {
		s.logger.Error("get chain failed", "chain_id", id, "error", err)
		return domain.Chain{}, false, err
	}
	return chain, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chains WHERE id = $1`, id)
	if err != nil {
		s.logger.Error("delete chain failed", "chain_id", id, "error", err)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.Chain, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, definition, created_at, updated_at
		FROM chains
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		s.logger.Error("list chains failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Chain, 0, 16)
	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			s.logger.Error("scan chain failed", "error", err)
			return nil, err
		}
		out = append(out, chain)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanChain(row pgx.Row) (domain.Chain, error) {
	var (
		chain domain.Chain
		body  []byte
	)
	if err := row.Scan(
		&chain.ID,
		&chain.Name,
		&chain.Description,
		&body,
		&chain.CreatedAt,
		&chain.UpdatedAt,
	); err != nil {
		return domain.Chain{}, err
	}

	var def definition
	if err := json.Unmarshal(body, &def); err != nil {
		return domain.Chain{}, err
	}
	chain.Steps = def.Steps
	chain.Workflow = def.Workflow
	chain.CreatedAt = chain.CreatedAt.UTC()
	chain.UpdatedAt = chain.UpdatedAt.UTC()
	return chain, nil
}
