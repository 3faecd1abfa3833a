package delivery

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/northstar-backend/internal/domain"
)

// Non-retryable application error types raised by the activity.
const (
	ErrTypeValidation = "validation"
)

// RetryPolicy is the upstream retry decision for deliveries the engine marked error.
func RetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        2 * time.Second,
		BackoffCoefficient:     2,
		MaximumInterval:        5 * time.Minute,
		MaximumAttempts:        8,
		NonRetryableErrorTypes: []string{ErrTypeValidation},
	}
}

// Workflow runs one delivery through the engine exactly once per successful attempt.
func Workflow(ctx workflow.Context, env types.Envelope) (types.Result, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         RetryPolicy(),
	})
	var res types.Result
	if err := workflow.ExecuteActivity(ctx, ActivityProcess, env).Get(ctx, &res); err != nil {
		workflow.GetLogger(ctx).Error("delivery failed", "provider", env.Provider, "delivery", env.DeliveryKey, "error", err)
		return res, err
	}
	return res, nil
}
