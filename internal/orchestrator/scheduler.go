// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/metrics"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/retry"
	"golang.org/x/sync/errgroup"
)

type ExecuteOptions struct {
	// Variables feed {name} placeholders in llm prompts. Step results of
	// the same name take precedence.
	Variables map[string]any
}

type run struct {
	chain  domain.Chain
	ec     *ExecutionContext
	logger *slog.Logger
}

type stepOutcome struct {
	step   domain.Step
	output any
	err    error
}

// ExecuteChain runs chainID against input. Graph errors are returned
// before any step runs. When the run aborts under the stop or rollback
// policy, both the partial result and the aborting error are returned.
func (o *Orchestrator) ExecuteChain(ctx context.Context, chainID string, input any, opts ExecuteOptions) (*domain.ExecutionResult, error) {
	chain, err := o.chains.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateGraph(chain.Steps); err != nil {
		o.logger.Warn("chain rejected before execution", "chain_id", chain.ID, "error", err)
		return nil, err
	}

	executionID := o.newID()
	ec := newExecutionContext(executionID, chain, input, opts.Variables, o.now().UTC())
	r := &run{
		chain:  chain,
		ec:     ec,
		logger: o.logger.With("execution_id", executionID, "chain_id", chain.ID),
	}

	o.register(ec)
	metrics.AddLiveExecutions(1)
	defer func() {
		o.unregister(executionID)
		metrics.AddLiveExecutions(-1)
	}()

	runCtx := ctx
	if chain.Workflow.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, chain.Workflow.Timeout)
		defer cancel()
	}

	r.logger.Info("execution started",
		"steps", len(chain.Steps),
		"parallel", chain.Workflow.ParallelExecution,
		"error_handling", chain.Workflow.ErrorHandling,
	)

	runErr := o.schedule(runCtx, r)

	var rolledBack []string
	if runErr != nil && chain.Workflow.ErrorHandling == domain.ErrorHandlingRollback {
		rolledBack = o.rollback(ctx, r)
	}

	return o.finish(ctx, r, rolledBack, runErr)
}

// schedule is the readiness loop. Each round runs every step whose
// dependencies all succeeded. Steps downstream of a failure are marked
// skipped instead of waiting forever.
func (o *Orchestrator) schedule(ctx context.Context, r *run) error {
	steps := r.chain.Steps
	done := make(map[string]bool, len(steps))
	succeeded := make(map[string]bool, len(steps))
	// failed or skipped step -> the failed step at the root of it
	blockedBy := make(map[string]string)

	for {
		o.propagateSkips(r, done, blockedBy)
		if len(done) == len(steps) {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execution aborted: %w", err)
		}

		ready := readySteps(steps, done, succeeded)
		if len(ready) == 0 {
			// unreachable once ValidateGraph passed
			return fmt.Errorf("%w: no step can make progress", domain.ErrCircularDependency)
		}

		if !r.chain.Workflow.ParallelExecution {
			for _, step := range ready {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("execution aborted: %w", err)
				}
				if err := o.settle(r, o.runStep(ctx, r, step), done, succeeded, blockedBy); err != nil {
					return err
				}
			}
			continue
		}

		var abort error
		for _, outcome := range o.runRound(ctx, r, ready) {
			if err := o.settle(r, outcome, done, succeeded, blockedBy); err != nil && abort == nil {
				abort = err
			}
		}
		if abort != nil {
			return abort
		}
	}
}

// readySteps returns pending steps whose dependencies all succeeded, in
// declaration order.
func readySteps(steps []domain.Step, done, succeeded map[string]bool) []domain.Step {
	ready := make([]domain.Step, 0, len(steps))
	for _, step := range steps {
		if done[step.ID] {
			continue
		}
		ok := true
		for _, dep := range step.Dependencies {
			if !succeeded[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step)
		}
	}
	return ready
}

// propagateSkips marks a pending step skipped once every dependency has
// been settled and at least one of them failed or was skipped itself.
func (o *Orchestrator) propagateSkips(r *run, done map[string]bool, blockedBy map[string]string) {
	for changed := true; changed; {
		changed = false
		for _, step := range r.chain.Steps {
			if done[step.ID] {
				continue
			}
			cause, settled := blockingCause(step, done, blockedBy)
			if !settled || cause == "" {
				continue
			}
			done[step.ID] = true
			blockedBy[step.ID] = cause
			r.ec.skip(step.ID, cause)
			r.logger.Warn("step skipped", "step_id", step.ID, "blocked_by", cause)
			changed = true
		}
	}
}

// blockingCause reports whether all dependencies of step are done and, if
// so, the root failure behind the first blocked one in declaration order.
func blockingCause(step domain.Step, done map[string]bool, blockedBy map[string]string) (string, bool) {
	cause := ""
	for _, dep := range step.Dependencies {
		if !done[dep] {
			return "", false
		}
		if root, blocked := blockedBy[dep]; blocked && cause == "" {
			cause = root
		}
	}
	return cause, true
}

// runRound runs ready steps concurrently, at most MaxConcurrency at a
// time. A failing step never cancels its siblings.
func (o *Orchestrator) runRound(ctx context.Context, r *run, ready []domain.Step) []stepOutcome {
	outcomes := make([]stepOutcome, len(ready))

	var g errgroup.Group
	if limit := r.chain.Workflow.MaxConcurrency; limit > 0 {
		g.SetLimit(limit)
	}
	for i, step := range ready {
		g.Go(func() error {
			outcomes[i] = o.runStep(ctx, r, step)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// settle folds one outcome into the loop state and reports whether the
// run must abort.
func (o *Orchestrator) settle(r *run, outcome stepOutcome, done, succeeded map[string]bool, blockedBy map[string]string) error {
	id := outcome.step.ID
	done[id] = true

	if outcome.err == nil {
		succeeded[id] = true
		return nil
	}

	blockedBy[id] = id
	if errors.Is(outcome.err, domain.ErrUnsupportedStepKind) {
		return outcome.err
	}
	if r.chain.Workflow.ErrorHandling == domain.ErrorHandlingContinue {
		return nil
	}
	return outcome.err
}

// runStep drives one step through its retry policy and records the
// terminal outcome on the execution context.
func (o *Orchestrator) runStep(ctx context.Context, r *run, step domain.Step) stepOutcome {
	logger := r.logger.With("step_id", step.ID, "kind", step.Kind())
	r.ec.setStatus(step.ID, domain.StepRunning)
	started := time.Now()

	attempts := 0
	output, err := retry.Do(ctx, step.Retry, logger, func(ctx context.Context, attempt int) (any, error) {
		attempts = attempt
		return o.attempt(ctx, r, step, attempt)
	})
	if err != nil {
		stepErr := &domain.StepError{StepID: step.ID, Attempts: attempts, Err: err}
		r.ec.fail(step.ID, stepErr)
		logger.Error("step failed",
			"attempts", attempts,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err,
		)
		return stepOutcome{step: step, err: stepErr}
	}

	r.ec.succeed(step.ID, output)
	logger.Info("step completed",
		"attempts", attempts,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return stepOutcome{step: step, output: output}
}

// attempt is a single try of step, bounded by the step timeout, with
// exactly one audit entry written for it.
func (o *Orchestrator) attempt(ctx context.Context, r *run, step domain.Step, attempt int) (any, error) {
	attemptCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	started := time.Now()
	input, output, err := o.dispatch(attemptCtx, r, step)
	elapsed := time.Since(started)

	entry := domain.AuditEntry{
		Timestamp:   o.now().UTC(),
		ExecutionID: r.ec.ExecutionID,
		ChainID:     r.chain.ID,
		StepID:      step.ID,
		Attempt:     attempt,
		Input:       input,
		Duration:    elapsed,
	}
	if err != nil {
		entry.Action = domain.AuditError
		entry.Error = err.Error()
		metrics.ObserveStepAttempt(step.Kind(), metrics.OutcomeFailure, elapsed)
	} else {
		entry.Action = successAction(step.Kind())
		entry.Output = output
		metrics.ObserveStepAttempt(step.Kind(), metrics.OutcomeSuccess, elapsed)
	}
	o.record(ctx, r, entry)

	if err != nil && isPermanent(err) {
		return nil, retry.Permanent(err)
	}
	return output, err
}

func successAction(kind domain.StepKind) domain.AuditAction {
	switch kind {
	case domain.StepValidation:
		return domain.AuditValidation
	case domain.StepTranslation:
		return domain.AuditTranslation
	default:
		return domain.AuditExecute
	}
}

// isPermanent reports errors that another attempt cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrValidationFailed) ||
		errors.Is(err, domain.ErrUnsupportedStepKind) ||
		errors.Is(err, ErrCollaboratorMissing)
}

func (o *Orchestrator) record(ctx context.Context, r *run, entry domain.AuditEntry) {
	if !r.chain.Workflow.AuditTrail {
		return
	}
	o.audit.Append(context.WithoutCancel(ctx), entry)
}

// rollback compensates completed steps in reverse completion order. Steps
// without a compensation are left as they are.
func (o *Orchestrator) rollback(ctx context.Context, r *run) []string {
	ctx = context.WithoutCancel(ctx)
	completed := r.ec.completedOrder()
	rolledBack := make([]string, 0, len(completed))

	for i := len(completed) - 1; i >= 0; i-- {
		id := completed[i]
		idx := r.chain.StepIndex(id)
		if idx < 0 || r.chain.Steps[idx].Compensation == nil {
			continue
		}
		comp := *r.chain.Steps[idx].Compensation
		output, _ := r.ec.Result(id)

		started := time.Now()
		var (
			res any
			err error
		)
		if o.tools == nil {
			err = fmt.Errorf("%w: tool", ErrCollaboratorMissing)
		} else {
			res, err = o.tools.Invoke(ctx, comp.Tool, output, comp)
		}

		entry := domain.AuditEntry{
			Timestamp:   o.now().UTC(),
			ExecutionID: r.ec.ExecutionID,
			ChainID:     r.chain.ID,
			StepID:      id,
			Attempt:     1,
			Action:      domain.AuditRollback,
			Input:       output,
			Output:      res,
			Duration:    time.Since(started),
		}
		if err != nil {
			entry.Error = err.Error()
			o.record(ctx, r, entry)
			r.logger.Error("compensation failed", "step_id", id, "tool", comp.Tool, "error", err)
			continue
		}
		o.record(ctx, r, entry)

		r.ec.setStatus(id, domain.StepRolledBack)
		rolledBack = append(rolledBack, id)
		r.logger.Info("step rolled back", "step_id", id, "tool", comp.Tool)
	}

	return rolledBack
}

func (o *Orchestrator) finish(ctx context.Context, r *run, rolledBack []string, runErr error) (*domain.ExecutionResult, error) {
	end := o.now().UTC()
	results, errs, skipped := r.ec.result()

	success := runErr == nil && len(errs) == 0
	state := domain.ExecutionSucceeded
	if !success {
		state = domain.ExecutionFailed
	}
	r.ec.finish(state, end)
	metrics.IncExecution(state)

	trail := []domain.AuditEntry{}
	if r.chain.Workflow.AuditTrail {
		entries, err := o.audit.Query(context.WithoutCancel(ctx), r.ec.ExecutionID)
		if err != nil {
			r.logger.Warn("audit trail unavailable", "error", err)
		} else {
			trail = entries
		}
	}

	result := &domain.ExecutionResult{
		Success:       success,
		ExecutionID:   r.ec.ExecutionID,
		ChainID:       r.chain.ID,
		Results:       results,
		Errors:        errs,
		Skipped:       skipped,
		RolledBack:    rolledBack,
		StartTime:     r.ec.StartTime,
		EndTime:       end,
		ExecutionTime: end.Sub(r.ec.StartTime),
		AuditTrail:    trail,
	}

	if runErr != nil {
		r.logger.Error("execution aborted",
			"failed_steps", len(errs),
			"rolled_back", len(rolledBack),
			"error", runErr,
		)
		return result, runErr
	}

	r.logger.Info("execution finished",
		"success", success,
		"failed_steps", len(errs),
		"duration_ms", result.ExecutionTime.Milliseconds(),
	)
	return result, nil
}
