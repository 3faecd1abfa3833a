package aggregates

import (
	"context"

	"github.com/google/uuid"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

var DeliveryAggregateContract = Contract{
	Name:             "Attribution.DeliveryAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns the idempotency ledger record and every workflow mutation of one delivery in a single transaction.",
}

// DeliveryAggregate owns exactly-once acceptance of webhook deliveries.
//
// Write method failures should return *aggregates.Error with codes:
// CodeValidation, CodeConflict, CodeRetryable, CodeInternal.
type DeliveryAggregate interface {
	Aggregate

	// Apply acquires (provider, delivery_key) and runs Handle inside the same
	// transaction. When the key is already held by a processed or skipped record
	// Handle is not called and Acquired is false.
	Apply(ctx context.Context, in ApplyDeliveryInput) (ApplyDeliveryResult, error)

	// RecordFailure persists an error record for a delivery whose Apply failed.
	// It never overwrites a processed or skipped record.
	RecordFailure(ctx context.Context, in RecordDeliveryFailureInput) error
}

// DeliveryHandler runs the provider-specific mutations for one delivery.
type DeliveryHandler func(dbc dbctx.Context) (DeliveryOutcome, error)

type ApplyDeliveryInput struct {
	Provider    string
	DeliveryKey string
	EventKind   string
	Entity      string
	Handle      DeliveryHandler
}

type DeliveryOutcome struct {
	// Status is processed or skipped.
	Status   string
	TenantID *uuid.UUID
	Metadata map[string]any
}

type ApplyDeliveryResult struct {
	Acquired bool
	Status   string
	Attempts int
}

type RecordDeliveryFailureInput struct {
	Provider    string
	DeliveryKey string
	EventKind   string
	Entity      string
	Cause       error
	Metadata    map[string]any
}
