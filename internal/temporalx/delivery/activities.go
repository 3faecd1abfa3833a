package delivery

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	types "github.com/yungbote/northstar-backend/internal/domain"
	domainagg "github.com/yungbote/northstar-backend/internal/domain/aggregates"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/engine"
	"github.com/yungbote/northstar-backend/internal/observability"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type Activities struct {
	Log     *logger.Logger
	Engine  engine.Processor
	Metrics *observability.Metrics
}

func (a *Activities) Process(ctx context.Context, env types.Envelope) (res types.Result, err error) {
	if a == nil || a.Engine == nil {
		return res, fmt.Errorf("delivery: activity not configured")
	}
	start := time.Now()
	defer func() {
		status := string(res.Outcome)
		if err != nil {
			status = "failed"
		}
		a.Metrics.ObserveActivity(ActivityProcess, status, time.Since(start))
	}()

	info := activity.GetInfo(ctx)
	res, err = a.Engine.Process(ctx, env)
	if err == nil {
		return res, nil
	}
	if a.Log != nil {
		a.Log.Warn("delivery activity failed",
			"provider", env.Provider,
			"delivery", env.DeliveryKey,
			"attempt", info.Attempt,
			"error", err,
		)
	}
	if domainagg.IsCode(err, domainagg.CodeValidation) {
		return res, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeValidation, err)
	}
	return res, err
}
