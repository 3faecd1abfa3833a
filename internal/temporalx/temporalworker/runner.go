package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/northstar-backend/internal/modules/attribution/engine"
	"github.com/yungbote/northstar-backend/internal/observability"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
	"github.com/yungbote/northstar-backend/internal/temporalx"
	"github.com/yungbote/northstar-backend/internal/temporalx/delivery"
)

type Runner struct {
	log         *logger.Logger
	tc          temporalsdkclient.Client
	cfg         temporalx.Config
	proc        engine.Processor
	metrics     *observability.Metrics
	concurrency int
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, proc engine.Processor, metrics *observability.Metrics, concurrency int) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if proc == nil {
		return nil, fmt.Errorf("temporal worker missing engine")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:         log.With("service", "TemporalWorker"),
		tc:          tc,
		cfg:         cfg,
		proc:        proc,
		metrics:     metrics,
		concurrency: concurrency,
	}, nil
}

// Start polls the task queue until ctx is done. Startup is retried for up to a
// minute so the worker can come up before the Temporal frontend.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	deadline := time.Now().Add(time.Minute)
	backoff := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) {
			if !r.cfg.AutoRegister {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if time.Now().After(deadline) {
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.concurrency,
	})
	acts := &delivery.Activities{Log: r.log, Engine: r.proc, Metrics: r.metrics}
	w.RegisterWorkflowWithOptions(delivery.Workflow, workflow.RegisterOptions{Name: delivery.WorkflowName})
	w.RegisterActivityWithOptions(acts.Process, activity.RegisterOptions{Name: delivery.ActivityProcess})
	return w
}
