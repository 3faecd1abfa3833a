// Package engine turns one decoded webhook delivery into ledger, workflow and
// skill-score mutations. Every mutation of a delivery commits in the same
// transaction as its idempotency record.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	domainagg "github.com/yungbote/northstar-backend/internal/domain/aggregates"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/identity"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/labels"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/peercredit"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/repocontext"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/signal"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/triage"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/workflow"
	"github.com/yungbote/northstar-backend/internal/observability"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
	"github.com/yungbote/northstar-backend/internal/platform/redisx"
)

const defaultCallTimeout = 30 * time.Second

type Deps struct {
	Log        *logger.Logger
	Deliveries domainagg.DeliveryAggregate
	EventLog   repos.IntegrationEventLogRepo
	Context    repocontext.Resolver
	Identity   identity.Resolver
	Workflows  workflow.Aggregator
	PeerCredit peercredit.Allocator
	Triage     triage.Sink
	Labeler    labels.Labeler
	Keystore   redisx.DeliveryKeystore
	Signals    signal.Emitter
	Metrics    *observability.Metrics
	Tracer     trace.Tracer
	// CallTimeout bounds each external call made outside the store (labeling).
	CallTimeout time.Duration
}

type Engine struct {
	log        *logger.Logger
	deliveries domainagg.DeliveryAggregate
	eventLog   repos.IntegrationEventLogRepo
	mappings   repocontext.Resolver
	identity   identity.Resolver
	workflows  workflow.Aggregator
	peer       peercredit.Allocator
	triage     triage.Sink
	labeler    labels.Labeler
	keystore   redisx.DeliveryKeystore
	signals    signal.Emitter
	metrics    *observability.Metrics
	tracer     trace.Tracer
	timeout    time.Duration
}

func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Log == nil:
		return nil, errors.New("engine: logger is required")
	case deps.Deliveries == nil || deps.EventLog == nil:
		return nil, errors.New("engine: delivery aggregate and event log are required")
	case deps.Context == nil || deps.Identity == nil:
		return nil, errors.New("engine: context and identity resolvers are required")
	case deps.Workflows == nil || deps.PeerCredit == nil || deps.Triage == nil:
		return nil, errors.New("engine: workflow aggregator, peer credit allocator and triage sink are required")
	}
	e := &Engine{
		log:        deps.Log.With("service", "AttributionEngine"),
		deliveries: deps.Deliveries,
		eventLog:   deps.EventLog,
		mappings:   deps.Context,
		identity:   deps.Identity,
		workflows:  deps.Workflows,
		peer:       deps.PeerCredit,
		triage:     deps.Triage,
		labeler:    deps.Labeler,
		keystore:   deps.Keystore,
		signals:    signal.OrNop(deps.Signals),
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		timeout:    deps.CallTimeout,
	}
	if e.labeler == nil {
		e.labeler = labels.Noop{}
	}
	if e.keystore == nil {
		e.keystore = redisx.NopKeystore{}
	}
	if e.tracer == nil {
		e.tracer = observability.Tracer("attribution.engine")
	}
	if e.timeout <= 0 {
		e.timeout = defaultCallTimeout
	}
	return e, nil
}

// Process handles one delivery. Duplicates and unresolvable events are outcomes,
// not errors. A returned error means the ledger row was marked error and the
// delivery may be retried.
func (e *Engine) Process(ctx context.Context, env types.Envelope) (res types.Result, err error) {
	const op = "attribution.process"
	start := time.Now()

	provider, ok := types.NormalizeProvider(env.Provider)
	if !ok {
		return types.Result{}, domainagg.NewError(domainagg.CodeValidation, op, "unknown provider "+env.Provider, nil)
	}
	env.Provider = provider
	env.EventKind = strings.TrimSpace(env.EventKind)
	env.DeliveryKey = DeliveryKeyOf(env)
	if env.DeliveryKey == "" {
		return types.Result{}, domainagg.NewError(domainagg.CodeValidation, op, "delivery key cannot be derived from an empty payload", nil)
	}

	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("attribution.provider", provider),
		attribute.String("attribution.event_kind", env.EventKind),
		attribute.String("attribution.delivery", env.DeliveryKey),
	))
	res = types.Result{Provider: provider, DeliveryKey: env.DeliveryKey, EventKind: env.EventKind}
	defer func() {
		status := string(res.Outcome)
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("attribution.outcome", status))
		span.End()
		e.signals.Emit(signal.Delivery, status, "provider", provider, "delivery", env.DeliveryKey)
		e.metrics.ObserveDelivery(provider, status, time.Since(start))
	}()

	ev, decodeErr := decode(provider, env.EventKind, env.Payload)
	if decodeErr != nil && !errors.Is(decodeErr, events.ErrMalformedPayload) {
		return res, decodeErr
	}

	claimed, err := e.keystore.Claim(ctx, provider, env.DeliveryKey)
	if err != nil {
		e.log.Warn("delivery pre-check unavailable", "provider", provider, "delivery", env.DeliveryKey, "error", err)
		claimed = false
	}
	if !claimed {
		dup, err := e.alreadyHandled(ctx, provider, env.DeliveryKey)
		if err != nil {
			return res, err
		}
		if dup {
			res.Outcome = types.OutcomeDuplicate
			return res, nil
		}
	}

	var assertions []types.SkillAssertion
	if decodeErr == nil {
		assertions, err = e.label(ctx, ev)
		if err != nil {
			return res, e.fail(ctx, env, entityOf(ev), claimed, err)
		}
	}

	var out *outcome
	applied, err := e.deliveries.Apply(ctx, domainagg.ApplyDeliveryInput{
		Provider:    provider,
		DeliveryKey: env.DeliveryKey,
		EventKind:   env.EventKind,
		Entity:      entityOf(ev),
		Handle: func(dbc dbctx.Context) (domainagg.DeliveryOutcome, error) {
			// Signals wait for the commit; a rolled-back run drops its buffer.
			buf := &signal.Buffer{}
			dbc = dbctx.Context{Ctx: signal.WithBuffer(dbc.Ctx, buf), Tx: dbc.Tx}
			d := &delivery{env: env, event: ev, assertions: assertions, out: &outcome{signals: buf}}
			if decodeErr != nil {
				e.log.Warn("payload rejected", "provider", provider, "delivery", env.DeliveryKey, "error", decodeErr)
				if err := d.skip(dbc, e, types.TriageMalformedPayload, env.Payload); err != nil {
					return domainagg.DeliveryOutcome{}, err
				}
			} else if err := e.dispatch(dbc, d); err != nil {
				return domainagg.DeliveryOutcome{}, err
			}
			out = d.out
			return d.out.ledger(), nil
		},
	})
	if err != nil {
		return res, e.fail(ctx, env, entityOf(ev), claimed, err)
	}
	if !applied.Acquired {
		res.Outcome = types.OutcomeDuplicate
		return res, nil
	}
	out.signals.Flush(e.signals)
	out.fill(&res)
	e.log.Debug("delivery handled",
		"provider", provider,
		"delivery", env.DeliveryKey,
		"kind", env.EventKind,
		"outcome", res.Outcome,
		"triage", res.TriageReason,
		"workflows", len(res.WorkflowIDs),
		"finalized", len(res.Finalized),
	)
	return res, nil
}

// alreadyHandled reads the durable ledger after the pre-check saw the key held.
func (e *Engine) alreadyHandled(ctx context.Context, provider, key string) (bool, error) {
	row, err := e.eventLog.Get(dbctx.Context{Ctx: ctx}, provider, key)
	if err != nil {
		return false, err
	}
	return row.Blocks(), nil
}

// label asks the labeler for skill assertions on events that carry work content.
func (e *Engine) label(ctx context.Context, ev events.Event) ([]types.SkillAssertion, error) {
	var payload []byte
	switch v := ev.(type) {
	case events.PushEvent:
		payload = v.Payload
	case events.PullRequestEvent:
		payload = v.Payload
	default:
		return nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	as, err := e.labeler.Label(callCtx, ev.Kind(), payload)
	if err != nil {
		return nil, domainagg.NewError(domainagg.CodeRetryable, "attribution.label", "skill labeling failed", err)
	}
	return as, nil
}

// fail marks the ledger row error and frees the pre-check key so a retry can run.
func (e *Engine) fail(ctx context.Context, env types.Envelope, entity string, claimed bool, cause error) error {
	err := cause
	recErr := e.deliveries.RecordFailure(ctx, domainagg.RecordDeliveryFailureInput{
		Provider:    env.Provider,
		DeliveryKey: env.DeliveryKey,
		EventKind:   env.EventKind,
		Entity:      entity,
		Cause:       cause,
	})
	err = multierr.Append(err, recErr)
	if claimed {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, e.keystore.Release(relCtx, env.Provider, env.DeliveryKey))
	}
	e.log.Error("delivery failed",
		"provider", env.Provider,
		"delivery", env.DeliveryKey,
		"kind", env.EventKind,
		"error", err,
	)
	return err
}

// outcome accumulates what one handler run did. It is rebuilt on every run.
type outcome struct {
	status    string
	reason    string
	tenant    *uuid.UUID
	workflows []uuid.UUID
	finalized []uuid.UUID
	meta      map[string]any
	signals   *signal.Buffer
}

func (o *outcome) touch(wf *types.AttributionWorkflow) {
	for _, id := range o.workflows {
		if id == wf.ID {
			return
		}
	}
	o.workflows = append(o.workflows, wf.ID)
	if o.tenant == nil {
		t := wf.TenantID
		o.tenant = &t
	}
}

func (o *outcome) setMeta(k string, v any) {
	if o.meta == nil {
		o.meta = map[string]any{}
	}
	o.meta[k] = v
}

func (o *outcome) ledger() domainagg.DeliveryOutcome {
	status := o.status
	if status == "" {
		status = types.LedgerStatusProcessed
	}
	if o.reason != "" {
		o.setMeta("reason", o.reason)
	}
	if len(o.workflows) > 0 {
		ids := make([]string, 0, len(o.workflows))
		for _, id := range o.workflows {
			ids = append(ids, id.String())
		}
		o.setMeta("workflow_ids", ids)
	}
	if len(o.finalized) > 0 {
		o.setMeta("finalized", len(o.finalized))
	}
	return domainagg.DeliveryOutcome{Status: status, TenantID: o.tenant, Metadata: o.meta}
}

func (o *outcome) fill(res *types.Result) {
	res.Outcome = types.OutcomeProcessed
	if o.status == types.LedgerStatusSkipped {
		res.Outcome = types.OutcomeSkipped
	}
	if isTriageReason(o.reason) {
		res.TriageReason = o.reason
	}
	res.TenantID = o.tenant
	res.WorkflowIDs = o.workflows
	res.Finalized = o.finalized
}

func isTriageReason(r string) bool {
	switch r {
	case types.TriageMissingIdentity, types.TriageMissingRepoMapping, types.TriageWorkflowMissing,
		types.TriageAmbiguousWorkflow, types.TriageMalformedPayload:
		return true
	}
	return false
}
