// SPDX-License-Identifier: Apache-2.0

// Package orchestrator runs registered chains: it orders steps by their
// dependencies, dispatches each step to its collaborator with retries and
// records one audit entry per attempt.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/audit"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/registry"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/rules"
	"github.com/google/uuid"
)

var ErrCollaboratorMissing = errors.New("collaborator not configured")

type LLM interface {
	Invoke(ctx context.Context, prompt string, cfg domain.LLMConfig) (any, error)
}

type ToolInvoker interface {
	Invoke(ctx context.Context, tool string, input any, cfg domain.ToolConfig) (any, error)
}

type Translator interface {
	Translate(ctx context.Context, req domain.TranslationRequest) (domain.Translation, error)
}

type RuleEvaluator interface {
	Evaluate(rule domain.Rule, value any) error
}

type ChainSource interface {
	GetChain(ctx context.Context, id string) (domain.Chain, error)
}

type AuditLog interface {
	Append(ctx context.Context, entry domain.AuditEntry)
	Query(ctx context.Context, executionID string) ([]domain.AuditEntry, error)
	Clear(ctx context.Context) error
}

type Deps struct {
	Chains     ChainSource
	Audit      AuditLog
	LLM        LLM
	Tools      ToolInvoker
	Translator Translator
	Rules      RuleEvaluator
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

// Orchestrator owns the live-executions table. Construct one per process
// and share it between callers.
type Orchestrator struct {
	chains     ChainSource
	audit      AuditLog
	llm        LLM
	tools      ToolInvoker
	translator Translator
	rules      RuleEvaluator
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	mu   sync.RWMutex
	live map[string]*ExecutionContext
}

func New(deps Deps) *Orchestrator {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	if deps.Chains == nil {
		deps.Chains = registry.New(registry.Deps{Logger: l})
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLog(nil, l)
	}
	if deps.Rules == nil {
		deps.Rules = rules.NewEvaluator()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Orchestrator{
		chains:     deps.Chains,
		audit:      deps.Audit,
		llm:        deps.LLM,
		tools:      deps.Tools,
		translator: deps.Translator,
		rules:      deps.Rules,
		logger:     l,
		now:        deps.Now,
		newID:      deps.NewID,
		live:       make(map[string]*ExecutionContext),
	}
}

// GetExecutionStatus returns a snapshot of a run that is still in flight.
func (o *Orchestrator) GetExecutionStatus(executionID string) (domain.ExecutionStatus, error) {
	o.mu.RLock()
	ec, ok := o.live[executionID]
	o.mu.RUnlock()

	if !ok {
		return domain.ExecutionStatus{}, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}
	return ec.Snapshot(), nil
}

// LiveExecutions lists the ids of runs currently in flight.
func (o *Orchestrator) LiveExecutions() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.live))
	for id := range o.live {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) GetAuditTrail(ctx context.Context, executionID string) ([]domain.AuditEntry, error) {
	return o.audit.Query(ctx, executionID)
}

func (o *Orchestrator) ClearAuditLog(ctx context.Context) error {
	return o.audit.Clear(ctx)
}

func (o *Orchestrator) register(ec *ExecutionContext) {
	o.mu.Lock()
	o.live[ec.ExecutionID] = ec
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(executionID string) {
	o.mu.Lock()
	delete(o.live, executionID)
	o.mu.Unlock()
}
