// Package workflow accumulates evidence for one unit of work and finalizes it
// exactly once.
package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	domainagg "github.com/yungbote/northstar-backend/internal/domain/aggregates"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/scoring"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/signal"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/skillledger"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

// Lifecycle tags for signal.WorkflowLifecycle.
const (
	LifecycleCreated = "created"
	LifecycleReused  = "reused"
	LifecycleMerged  = "merged"
)

// Key locates a workflow. At least one of PRNumber and JiraKey must be set.
type Key struct {
	TenantID uuid.UUID
	Repo     string
	PRNumber *int
	JiraKey  string
}

type Aggregator interface {
	// FindOrCreate locks the live workflow for key, creating it when absent. A key-only
	// row found alongside the PR row is merged into it. The caller saves the returned row.
	FindOrCreate(dbc dbctx.Context, key Key) (*types.AttributionWorkflow, error)
	// FindByJiraKey locks every live workflow carrying key. A nil tenant searches all tenants.
	FindByJiraKey(dbc dbctx.Context, tenantID *uuid.UUID, key string) ([]*types.AttributionWorkflow, error)
	Save(dbc dbctx.Context, wf *types.AttributionWorkflow) error
	// TryFinalize scores wf when it is complete and not yet scored, applies the delta
	// to every asserted skill, and stamps baseline_applied_at. It reports whether this
	// call finalized wf. Incomplete workflows defer silently.
	TryFinalize(dbc dbctx.Context, wf *types.AttributionWorkflow, mapping *types.RepositoryMapping, deliveryKey string) (bool, error)
}

type aggregator struct {
	log       *logger.Logger
	weights   scoring.Weights
	workflows repos.AttributionWorkflowRepo
	ledger    skillledger.Writer
	signals   signal.Emitter
}

func NewAggregator(log *logger.Logger, weights scoring.Weights, workflows repos.AttributionWorkflowRepo, ledger skillledger.Writer, signals signal.Emitter) Aggregator {
	return &aggregator{
		log:       log.With("service", "WorkflowAggregator"),
		weights:   weights,
		workflows: workflows,
		ledger:    ledger,
		signals:   signal.OrNop(signals),
	}
}

func (a *aggregator) FindOrCreate(dbc dbctx.Context, k Key) (*types.AttributionWorkflow, error) {
	const op = "workflow.find_or_create"
	k.JiraKey = strings.TrimSpace(k.JiraKey)
	if k.TenantID == uuid.Nil || strings.TrimSpace(k.Repo) == "" || (k.PRNumber == nil && k.JiraKey == "") {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "tenant, repo and a pr number or issue key are required", nil)
	}
	var jiraKey *string
	if k.JiraKey != "" {
		jiraKey = &k.JiraKey
	}
	tenant := k.TenantID.String()

	// A concurrent insert of the same natural key makes CreateIfAbsent a no-op; the
	// second pass then finds the committed row.
	for attempt := 0; attempt < 2; attempt++ {
		rows, err := a.workflows.FindLiveForUpdate(dbc, k.TenantID, k.Repo, k.PRNumber, jiraKey)
		if err != nil {
			return nil, err
		}
		target, sources := pick(rows, k)
		if target == nil {
			wf := newWorkflow(k)
			created, err := a.workflows.CreateIfAbsent(dbc, wf)
			if err != nil {
				return nil, err
			}
			if !created {
				continue
			}
			signal.For(dbc.Ctx, a.signals).Emit(signal.WorkflowLifecycle, LifecycleCreated, "tenant_id", tenant, "workflow_id", wf.ID)
			return wf, nil
		}

		for _, src := range sources {
			Merge(target, src)
			if err := a.workflows.Save(dbc, src); err != nil {
				return nil, err
			}
			a.log.Info("workflow merged", "source_id", src.ID, "target_id", target.ID, "jira_key", k.JiraKey)
			signal.For(dbc.Ctx, a.signals).Emit(signal.WorkflowLifecycle, LifecycleMerged, "tenant_id", tenant, "workflow_id", target.ID)
		}
		attachKeys(target, k)
		signal.For(dbc.Ctx, a.signals).Emit(signal.WorkflowLifecycle, LifecycleReused, "tenant_id", tenant, "workflow_id", target.ID)
		return target, nil
	}
	return nil, domainagg.NewError(domainagg.CodeRetryable, op, "workflow row vanished between insert and read", nil)
}

// pick chooses the row an event applies to and the key-only rows to fold into it.
// Rows for other pull requests that share the issue key are left alone.
func pick(rows []*types.AttributionWorkflow, k Key) (*types.AttributionWorkflow, []*types.AttributionWorkflow) {
	var prRow *types.AttributionWorkflow
	var keyOnly, otherPR []*types.AttributionWorkflow
	for _, r := range rows {
		switch {
		case r.PRNumber == nil:
			keyOnly = append(keyOnly, r)
		case k.PRNumber != nil && *r.PRNumber == *k.PRNumber:
			prRow = r
		default:
			otherPR = append(otherPR, r)
		}
	}
	if k.PRNumber != nil {
		if prRow != nil {
			return prRow, keyOnly
		}
		if len(keyOnly) > 0 {
			return keyOnly[0], keyOnly[1:]
		}
		return nil, nil
	}
	if len(otherPR) > 0 {
		return otherPR[0], keyOnly
	}
	if len(keyOnly) > 0 {
		return keyOnly[0], keyOnly[1:]
	}
	return nil, nil
}

func newWorkflow(k Key) *types.AttributionWorkflow {
	wf := &types.AttributionWorkflow{
		ID:               uuid.New(),
		TenantID:         k.TenantID,
		RepoFullName:     k.Repo,
		PeerReviewCredit: datatypes.NewJSONType(map[string]float64{}),
		Assertions:       datatypes.JSONSlice[types.SkillAssertion]{},
		Evidence:         datatypes.JSONMap{},
	}
	attachKeys(wf, k)
	return wf
}

// attachKeys fills in a missing PR number or issue key. The first issue key seen sticks.
func attachKeys(wf *types.AttributionWorkflow, k Key) {
	if k.PRNumber != nil && wf.PRNumber == nil {
		n := *k.PRNumber
		wf.PRNumber = &n
	}
	if k.JiraKey != "" && wf.JiraKey == nil {
		key := k.JiraKey
		wf.JiraKey = &key
	}
	wf.UnlinkedJiraKey = nil
	if wf.PRNumber == nil && wf.JiraKey != nil {
		key := *wf.JiraKey
		wf.UnlinkedJiraKey = &key
	}
}

func (a *aggregator) FindByJiraKey(dbc dbctx.Context, tenantID *uuid.UUID, key string) ([]*types.AttributionWorkflow, error) {
	return a.workflows.FindLiveByJiraKeyForUpdate(dbc, tenantID, key)
}

func (a *aggregator) Save(dbc dbctx.Context, wf *types.AttributionWorkflow) error {
	return a.workflows.Save(dbc, wf)
}

func (a *aggregator) TryFinalize(dbc dbctx.Context, wf *types.AttributionWorkflow, mapping *types.RepositoryMapping, deliveryKey string) (bool, error) {
	if wf == nil {
		return false, nil
	}
	if reason := Deferral(wf); reason != "" {
		a.log.Info("skill.finalize.deferred", "workflow_id", wf.ID, "reason", reason, "delivery", deliveryKey)
		return false, nil
	}
	res, ok := scoring.Compute(a.weights, scoring.InputFromWorkflow(wf))
	if !ok {
		return false, nil
	}

	corr := CorrelationKey(wf)
	wf.CorrelationKey = &corr
	if res.TimeToMerge != nil {
		secs := int64(res.TimeToMerge.Seconds())
		wf.TimeToMergeSeconds = &secs
	}
	tenant := wf.TenantID.String()
	emit := signal.For(dbc.Ctx, a.signals)
	emitModifiers(emit, wf, res, tenant, deliveryKey)

	projectID := wf.ProjectID
	if mapping != nil && mapping.ProjectID != nil {
		projectID = mapping.ProjectID
	}
	ref := EvidenceRef(wf)
	for _, as := range wf.Assertions {
		conf := as.Confidence
		if conf <= 0 {
			conf = a.weights.DefaultConfidence
		}
		if _, err := a.ledger.Apply(dbc, skillledger.ApplyInput{
			DeveloperID: *wf.DeveloperID,
			Path:        as.CleanPath(),
			ProjectID:   projectID,
			Delta:       res.Delta,
			Confidence:  conf,
			EvidenceRef: ref,
		}); err != nil {
			return false, err
		}
	}

	now := time.Now().UTC()
	delta := res.Delta
	wf.BaselineAppliedAt = &now
	wf.BaselineDelta = &delta
	if err := a.workflows.Save(dbc, wf); err != nil {
		return false, err
	}

	a.log.Info("skill.finalized",
		"workflow_id", wf.ID,
		"developer_id", *wf.DeveloperID,
		"tenant_id", tenant,
		"correlation", corr,
		"baseline", res.Baseline,
		"delta", res.Delta,
		"skills", len(wf.Assertions),
		"delivery", deliveryKey,
	)
	emit.Emit(signal.Finalized, "", "tenant_id", tenant, "developer_id", *wf.DeveloperID)
	emit.ObserveDelta(tenant, res.Delta)
	if res.TimeToMerge != nil {
		emit.ObserveTimeToMerge(tenant, res.TimeToMerge.Seconds())
	}
	return true, nil
}

func emitModifiers(emit signal.Emitter, wf *types.AttributionWorkflow, res scoring.Result, tenant, deliveryKey string) {
	for _, m := range res.Modifiers {
		switch m.Name {
		case scoring.ModMajorRework:
			emit.Emit(signal.ReviewPenalty, "major_rework", "tenant_id", tenant, "delivery", deliveryKey)
		case scoring.ModCycles:
			if wf.ReviewCycles > 1 {
				emit.Emit(signal.ReviewPenalty, "additional_cycle", "tenant_id", tenant, "cycles", wf.ReviewCycles-1, "delivery", deliveryKey)
			}
		case scoring.ModNits:
			emit.Emit(signal.ReviewPenalty, "nit_comment", "tenant_id", tenant, "delivery", deliveryKey)
		case scoring.ModFirstReview:
			emit.Emit(signal.ReviewBonus, "first_review", "tenant_id", tenant, "delivery", deliveryKey)
		case scoring.ModPeerCredit:
			emit.Emit(signal.ReviewBonus, "peer_credit", "tenant_id", tenant, "delivery", deliveryKey)
		case scoring.ModTimeToMerge:
			if m.Value >= 0 {
				emit.Emit(signal.ReviewBonus, "fast_merge", "tenant_id", tenant, "delivery", deliveryKey)
			} else {
				emit.Emit(signal.ReviewPenalty, "slow_merge", "tenant_id", tenant, "delivery", deliveryKey)
			}
		}
	}
}
