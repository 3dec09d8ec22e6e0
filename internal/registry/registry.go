// SPDX-License-Identifier: Apache-2.0

// Package registry stores chain definitions and hands out snapshots of them.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/google/uuid"
)

type Store interface {
	Put(ctx context.Context, chain domain.Chain) error
	Get(ctx context.Context, id string) (domain.Chain, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]domain.Chain, error)
}

type Deps struct {
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

type Registry struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	// serializes read-modify-write in Update
	mu sync.Mutex
}

func New(deps Deps) *Registry {
	if deps.Store == nil {
		deps.Store = NewMemoryStore()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Registry{
		store:  deps.Store,
		logger: deps.Logger,
		now:    deps.Now,
		newID:  deps.NewID,
	}
}

// Create registers a new chain under a fresh id. Dependencies are not
// checked here; an invalid graph is reported when the chain is executed.
func (r *Registry) Create(ctx context.Context, spec domain.ChainSpec) (domain.Chain, error) {
	if err := spec.Validate(); err != nil {
		return domain.Chain{}, err
	}

	workflow := spec.Workflow
	if workflow == (domain.WorkflowConfig{}) {
		workflow = domain.DefaultWorkflow()
	}

	now := r.timestamp()
	chain, err := canonical(domain.Chain{
		ID:          r.newID(),
		Name:        spec.Name,
		Description: spec.Description,
		Steps:       spec.Steps,
		Workflow:    workflow,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Chain{}, err
	}

	if err := r.store.Put(ctx, chain); err != nil {
		r.logger.Error("store chain failed", "chain_id", chain.ID, "error", err)
		return domain.Chain{}, fmt.Errorf("store chain: %w", err)
	}

	r.logger.Info("chain created", "chain_id", chain.ID, "steps", len(chain.Steps))
	return chain, nil
}

func (r *Registry) Get(ctx context.Context, id string) (domain.Chain, bool, error) {
	chain, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return domain.Chain{}, ok, err
	}
	return chain.Clone(), true, nil
}

// GetChain is Get with a missing chain reported as domain.ErrChainNotFound.
func (r *Registry) GetChain(ctx context.Context, id string) (domain.Chain, error) {
	chain, ok, err := r.Get(ctx, id)
	if err != nil {
		return domain.Chain{}, err
	}
	if !ok {
		return domain.Chain{}, fmt.Errorf("%w: %s", domain.ErrChainNotFound, id)
	}
	return chain, nil
}

// Update merges patch into the stored chain, leaving ID and CreatedAt
// untouched. It reports false for an unknown id.
func (r *Registry) Update(ctx context.Context, id string, patch domain.ChainPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		return false, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = r.timestamp()
	if next, err = canonical(next); err != nil {
		return false, err
	}

	if err := r.store.Put(ctx, next); err != nil {
		r.logger.Error("update chain failed", "chain_id", id, "error", err)
		return false, fmt.Errorf("store chain: %w", err)
	}

	r.logger.Info("chain updated", "chain_id", id)
	return true, nil
}

func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := r.store.Delete(ctx, id)
	if err != nil {
		r.logger.Error("delete chain failed", "chain_id", id, "error", err)
		return false, err
	}
	if deleted {
		r.logger.Info("chain deleted", "chain_id", id)
	}
	return deleted, nil
}

// List returns every chain ordered by creation time.
func (r *Registry) List(ctx context.Context) ([]domain.Chain, error) {
	chains, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Chain, len(chains))
	for i, c := range chains {
		out[i] = c.Clone()
	}
	return out, nil
}

// timestamp is the current time at the precision a timestamptz column keeps.
func (r *Registry) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// canonical passes steps and workflow through the stored document encoding
// so a chain reads back from any store exactly as it was returned on write.
// Numbers inside step params come back as float64.
func canonical(chain domain.Chain) (domain.Chain, error) {
	body, err := json.Marshal(definition{Steps: chain.Steps, Workflow: chain.Workflow})
	if err != nil {
		return domain.Chain{}, fmt.Errorf("encode chain: %w", err)
	}
	var def definition
	if err := json.Unmarshal(body, &def); err != nil {
		return domain.Chain{}, fmt.Errorf("decode chain: %w", err)
	}
	chain.Steps = def.Steps
	chain.Workflow = def.Workflow
	return chain, nil
}
