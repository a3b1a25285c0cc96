package iaf

import (
	"context"
	"time"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/metrics"
)

// terminalActionStatuses are StoredAction.Status values that short-circuit
// a repeated ExecuteAction call with the same idempotency_key instead of
// re-invoking the adapter, per spec §4.2: "at-most-once observable effect
// per idempotency_key."
var terminalActionStatuses = map[string]bool{
	"succeeded": true,
	"failed":    true,
}

// ActionExecutor runs outbound actions (spec §4.2's action execution path):
// idempotency guard, budget check, circuit-breaker-wrapped adapter call,
// and a best-effort evidence receipt.
type ActionExecutor struct {
	Registry *Registry
	Breakers *Manager
	Budget   BudgetChecker
	Actions  ActionStore
	Receipts ReceiptSink
	Now      func() time.Time
}

func (e *ActionExecutor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Execute runs action, returning the stored terminal result. A repeated
// call with the same (tenant_id, idempotency_key) short-circuits to the
// previously stored result without re-invoking the adapter.
func (e *ActionExecutor) Execute(ctx context.Context, action Action) (*StoredAction, error) {
	if action.IdempotencyKey != "" {
		existing, err := e.Actions.FindByIdempotencyKey(ctx, action.TenantID, action.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil && terminalActionStatuses[existing.Status] {
			return existing, nil
		}
	}

	if allowed, err := e.Budget.Allow(ctx, action.ConnectionID); err == nil && !allowed {
		return nil, apperrors.Newf(apperrors.ErrorTypeRateLimit, "action budget exhausted for connection %s", action.ConnectionID)
	}

	stored, err := e.Actions.Create(ctx, action)
	if err != nil {
		return nil, err
	}

	if err := e.Actions.MarkProcessing(ctx, stored.ActionID); err != nil {
		return nil, err
	}

	adapter, err := e.Registry.Get(ctx, action.ConnectionID)
	if err != nil {
		return nil, err
	}
	breaker := e.Breakers.Get(action.ConnectionID)

	metrics.IncrementConcurrentActions()
	start := e.now()
	var result ActionResult
	callErr := breaker.Call(ctx, func(ctx context.Context) error {
		var execErr error
		result, execErr = adapter.ExecuteAction(ctx, action)
		return execErr
	})
	elapsed := e.now().Sub(start)
	metrics.DecrementConcurrentActions()

	if callErr != nil {
		result = ActionResult{Status: "failed", Error: callErr.Error()}
		metrics.RecordActionError(action.CanonicalType, string(apperrors.GetType(callErr)))
	} else {
		metrics.RecordAction(action.CanonicalType, elapsed)
	}

	if err := e.Actions.Complete(ctx, stored.ActionID, result); err != nil {
		return nil, err
	}

	if e.Receipts != nil {
		e.Receipts.Record(ctx, Receipt{
			Kind:         "action",
			ConnectionID: action.ConnectionID,
			TenantID:     action.TenantID,
			ReferenceID:  stored.ActionID,
			Status:       result.Status,
			OccurredAt:   e.now(),
		})
	}

	stored.Status = result.Status
	stored.Result = result.Result
	stored.Error = result.Error
	if callErr != nil {
		return stored, callErr
	}
	return stored, nil
}
