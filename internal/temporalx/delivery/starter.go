package delivery

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/engine"
)

// Starter hands deliveries to Temporal instead of processing them in-process.
type Starter struct {
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewStarter(tc temporalsdkclient.Client, taskQueue string) (*Starter, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	return &Starter{tc: tc, taskQueue: taskQueue}, nil
}

// Start enqueues env and returns without waiting. A delivery whose earlier run
// failed may start again; one that is running or completed may not.
func (s *Starter) Start(ctx context.Context, env types.Envelope) (string, error) {
	provider, ok := types.NormalizeProvider(env.Provider)
	if !ok {
		return "", fmt.Errorf("unknown provider %q", env.Provider)
	}
	env.Provider = provider
	env.DeliveryKey = engine.DeliveryKeyOf(env)
	if env.DeliveryKey == "" {
		return "", fmt.Errorf("delivery key cannot be derived from an empty payload")
	}
	id := WorkflowID(env.Provider, env.DeliveryKey)
	run, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                s.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowExecutionErrorWhenAlreadyStarted: false,
	}, WorkflowName, env)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return id, nil
	}
	if err != nil {
		return "", err
	}
	return run.GetID(), nil
}
