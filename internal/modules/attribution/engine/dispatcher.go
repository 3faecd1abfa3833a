package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

const defaultConcurrency = 8

// Processor is what the dispatch surfaces hand deliveries to.
type Processor interface {
	Process(ctx context.Context, env types.Envelope) (types.Result, error)
}

// Dispatcher runs deliveries on a bounded pool. Deliveries share no ordering.
type Dispatcher struct {
	log   *logger.Logger
	proc  Processor
	limit int
}

func NewDispatcher(log *logger.Logger, proc Processor, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Dispatcher{log: log.With("service", "AttributionDispatcher"), proc: proc, limit: concurrency}
}

// Dispatch processes one delivery on the caller's goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, env types.Envelope) (types.Result, error) {
	return d.proc.Process(ctx, env)
}

// Run processes every envelope and returns results in input order. A failed
// delivery does not stop the others; the first error is returned after all finish.
func (d *Dispatcher) Run(ctx context.Context, envs []types.Envelope) ([]types.Result, error) {
	results := make([]types.Result, len(envs))
	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, env := range envs {
		i, env := i, env
		g.Go(func() error {
			res, err := d.proc.Process(ctx, env)
			results[i] = res
			if err != nil {
				d.log.Warn("dispatch failed", "provider", env.Provider, "delivery", env.DeliveryKey, "error", err)
				return err
			}
			return nil
		})
	}
	return results, g.Wait()
}
