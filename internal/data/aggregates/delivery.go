package aggregates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	domainagg "github.com/yungbote/northstar-backend/internal/domain/aggregates"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

const failureRecordTimeout = 5 * time.Second

type DeliveryAggregateDeps struct {
	Base     BaseDeps
	EventLog repos.IntegrationEventLogRepo
}

type deliveryAggregate struct {
	deps     BaseDeps
	eventLog repos.IntegrationEventLogRepo
}

func NewDeliveryAggregate(deps DeliveryAggregateDeps) domainagg.DeliveryAggregate {
	return &deliveryAggregate{
		deps:     deps.Base.withDefaults(),
		eventLog: deps.EventLog,
	}
}

func (a *deliveryAggregate) Contract() domainagg.Contract {
	return domainagg.DeliveryAggregateContract
}

func (a *deliveryAggregate) Apply(ctx context.Context, in ApplyDeliveryInput) (ApplyDeliveryResult, error) {
	const op = "delivery.apply"
	provider := strings.TrimSpace(in.Provider)
	key := strings.TrimSpace(in.DeliveryKey)
	if provider == "" || key == "" {
		return ApplyDeliveryResult{}, MapError(op, ValidationError("provider and delivery_key are required"))
	}
	if in.Handle == nil {
		return ApplyDeliveryResult{}, MapError(op, ValidationError("delivery handler is required"))
	}

	var out ApplyDeliveryResult
	err := executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		out = ApplyDeliveryResult{}
		row := &types.IntegrationEventLog{
			Provider:    provider,
			DeliveryKey: key,
			Action:      strings.TrimSpace(in.EventKind),
			Entity:      strings.TrimSpace(in.Entity),
			Status:      types.LedgerStatusProcessing,
		}
		acquired, err := a.eventLog.InsertIfAbsent(dbc, row)
		if err != nil {
			return err
		}
		if !acquired {
			existing, err := a.eventLog.Get(dbc, provider, key)
			if err != nil {
				return err
			}
			if existing == nil {
				return RetryableError("ledger record disappeared during acquire")
			}
			if existing.Blocks() {
				out.Status = existing.Status
				out.Attempts = existing.Attempts
				return nil
			}
			ok, err := a.deps.CASGuard.UpdateByStatus(dbc, existing.TableName(), existing.ID,
				[]string{types.LedgerStatusError},
				map[string]any{
					"status":     types.LedgerStatusProcessing,
					"attempts":   gorm.Expr("attempts + 1"),
					"updated_at": time.Now().UTC(),
				})
			if err != nil {
				return err
			}
			if err := RequireCASSuccess(ok, "delivery re-acquired concurrently"); err != nil {
				return err
			}
			existing.Attempts++
			row = existing
		}
		out.Acquired = true
		out.Attempts = row.Attempts

		outcome, err := in.Handle(dbc)
		if err != nil {
			return err
		}
		status := strings.TrimSpace(outcome.Status)
		if status == "" {
			status = types.LedgerStatusProcessed
		}
		if err := RequireStatusAllowed(status, types.LedgerStatusProcessed, types.LedgerStatusSkipped); err != nil {
			return InvariantError("handler returned non-final status " + status)
		}
		if err := a.eventLog.Complete(dbc, row.ID, status, outcome.TenantID, outcome.Metadata); err != nil {
			return err
		}
		out.Status = status
		return nil
	})
	if err != nil {
		return ApplyDeliveryResult{Attempts: out.Attempts}, err
	}
	return out, nil
}

// RecordFailure runs outside the failed transaction and survives caller cancellation.
func (a *deliveryAggregate) RecordFailure(ctx context.Context, in RecordDeliveryFailureInput) error {
	const op = "delivery.record_failure"
	provider := strings.TrimSpace(in.Provider)
	key := strings.TrimSpace(in.DeliveryKey)
	if provider == "" || key == "" {
		return MapError(op, ValidationError("provider and delivery_key are required"))
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
	defer cancel()

	meta := map[string]interface{}{}
	for k, v := range in.Metadata {
		meta[k] = v
	}
	if in.Cause != nil {
		meta["error"] = in.Cause.Error()
		if code := domainagg.CodeOf(in.Cause); code != "" {
			meta["error_code"] = string(code)
		}
		var aggErr *domainagg.Error
		if errors.As(in.Cause, &aggErr) && aggErr.Op != "" {
			meta["error_op"] = aggErr.Op
		}
	}
	return executeWrite(ctx, a.deps, op, func(dbc dbctx.Context) error {
		return a.eventLog.UpsertError(dbc, &types.IntegrationEventLog{
			Provider:    provider,
			DeliveryKey: key,
			Action:      strings.TrimSpace(in.EventKind),
			Entity:      strings.TrimSpace(in.Entity),
			Metadata:    meta,
		})
	})
}

type (
	ApplyDeliveryInput         = domainagg.ApplyDeliveryInput
	ApplyDeliveryResult        = domainagg.ApplyDeliveryResult
	DeliveryOutcome            = domainagg.DeliveryOutcome
	RecordDeliveryFailureInput = domainagg.RecordDeliveryFailureInput
)
