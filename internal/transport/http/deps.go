// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/orchestrator"
)

type ChainRegistry interface {
	Create(ctx context.Context, spec domain.ChainSpec) (domain.Chain, error)
	Get(ctx context.Context, id string) (domain.Chain, bool, error)
	Update(ctx context.Context, id string, patch domain.ChainPatch) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]domain.Chain, error)
}

type ChainExecutor interface {
	ExecuteChain(ctx context.Context, chainID string, input any, opts orchestrator.ExecuteOptions) (*domain.ExecutionResult, error)
	GetExecutionStatus(executionID string) (domain.ExecutionStatus, error)
}

type AuditReader interface {
	GetAuditTrail(ctx context.Context, executionID string) ([]domain.AuditEntry, error)
	ClearAuditLog(ctx context.Context) error
}

type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a plain function, such as a pool's Ping, to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Check(ctx context.Context) error {
	return f(ctx)
}
