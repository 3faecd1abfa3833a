package app

import (
	"context"

	types "github.com/yungbote/northstar-backend/internal/domain"
	httpH "github.com/yungbote/northstar-backend/internal/http/handlers"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/engine"
	"github.com/yungbote/northstar-backend/internal/temporalx/delivery"
)

// inlineIntake processes each webhook before answering it.
type inlineIntake struct {
	dispatcher *engine.Dispatcher
}

func (i inlineIntake) Submit(ctx context.Context, env types.Envelope) (httpH.Receipt, error) {
	res, err := i.dispatcher.Dispatch(ctx, env)
	if err != nil {
		return httpH.Receipt{}, err
	}
	r := httpH.Receipt{
		Provider:     res.Provider,
		DeliveryKey:  res.DeliveryKey,
		Outcome:      string(res.Outcome),
		TriageReason: res.TriageReason,
		Finalized:    len(res.Finalized),
		ReceivedAt:   env.ReceivedAt,
	}
	for _, id := range res.WorkflowIDs {
		r.WorkflowIDs = append(r.WorkflowIDs, id.String())
	}
	return r, nil
}

// queuedIntake enqueues a Temporal run and answers immediately.
type queuedIntake struct {
	starter *delivery.Starter
}

func (q queuedIntake) Submit(ctx context.Context, env types.Envelope) (httpH.Receipt, error) {
	workflowID, err := q.starter.Start(ctx, env)
	if err != nil {
		return httpH.Receipt{}, err
	}
	provider, _ := types.NormalizeProvider(env.Provider)
	return httpH.Receipt{
		Provider:    provider,
		DeliveryKey: engine.DeliveryKeyOf(env),
		Outcome:     "queued",
		QueuedAs:    workflowID,
		ReceivedAt:  env.ReceivedAt,
	}, nil
}
