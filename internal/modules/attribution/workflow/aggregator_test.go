package workflow

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	"github.com/yungbote/northstar-backend/internal/data/repos/testutil"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/scoring"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/signal"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/skillledger"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

type fixture struct {
	ctx     context.Context
	dbc     dbctx.Context
	set     repos.Set
	agg     Aggregator
	signals *signal.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	rec := &signal.Recorder{}
	agg := NewAggregator(log, scoring.DefaultWeights(), set.Workflows, skillledger.NewWriter(log, set.Skills, set.DeveloperSkills), rec)
	return fixture{ctx: ctx, dbc: dbctx.Context{Ctx: ctx, Tx: db}, set: set, agg: agg, signals: rec}
}

func TestFindOrCreateCreatesThenReuses(t *testing.T) {
	f := newFixture(t)
	tenant := uuid.New()
	pr := 7
	first, err := f.agg.FindOrCreate(f.dbc, Key{TenantID: tenant, Repo: "acme/api", PRNumber: &pr, JiraKey: "PX-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := f.agg.FindOrCreate(f.dbc, Key{TenantID: tenant, Repo: "acme/api", PRNumber: &pr})
	if err != nil {
		t.Fatalf("reuse: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("reuse: want=%s got=%s", first.ID, second.ID)
	}
	if f.signals.Count(signal.WorkflowLifecycle, LifecycleCreated) != 1 || f.signals.Count(signal.WorkflowLifecycle, LifecycleReused) != 1 {
		t.Fatalf("lifecycle signals: created=%d reused=%d",
			f.signals.Count(signal.WorkflowLifecycle, LifecycleCreated),
			f.signals.Count(signal.WorkflowLifecycle, LifecycleReused))
	}
}

func TestFindOrCreateRejectsKeylessEvents(t *testing.T) {
	f := newFixture(t)
	if _, err := f.agg.FindOrCreate(f.dbc, Key{TenantID: uuid.New(), Repo: "acme/api"}); err == nil {
		t.Fatalf("keyless: want validation error")
	}
}

func TestKeyOnlyRowGainsPRNumber(t *testing.T) {
	f := newFixture(t)
	tenant := uuid.New()
	keyOnly, err := f.agg.FindOrCreate(f.dbc, Key{TenantID: tenant, Repo: "acme/api", JiraKey: "PX-9"})
	if err != nil {
		t.Fatalf("key-only: %v", err)
	}
	if err := f.agg.Save(f.dbc, keyOnly); err != nil {
		t.Fatalf("save: %v", err)
	}
	pr := 12
	wf, err := f.agg.FindOrCreate(f.dbc, Key{TenantID: tenant, Repo: "acme/api", PRNumber: &pr, JiraKey: "PX-9"})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if wf.ID != keyOnly.ID || wf.PRNumber == nil || *wf.PRNumber != 12 || wf.UnlinkedJiraKey != nil {
		t.Fatalf("attach: id=%s pr=%v unlinked=%v", wf.ID, wf.PRNumber, wf.UnlinkedJiraKey)
	}
}

func TestKeyOnlyRowMergesIntoPRRow(t *testing.T) {
	f := newFixture(t)
	tenant := uuid.New()
	key := "PX-123"
	done := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	keyRow := testutil.SeedWorkflow(t, f.ctx, f.dbc.Tx, &types.AttributionWorkflow{
		TenantID: tenant, RepoFullName: "acme/api", JiraKey: &key, JiraDoneAt: &done,
	})
	pr := 5
	prRow := testutil.SeedWorkflow(t, f.ctx, f.dbc.Tx, &types.AttributionWorkflow{
		TenantID: tenant, RepoFullName: "acme/api", PRNumber: &pr,
	})

	wf, err := f.agg.FindOrCreate(f.dbc, Key{TenantID: tenant, Repo: "acme/api", PRNumber: &pr, JiraKey: key})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if wf.ID != prRow.ID || wf.JiraDoneAt == nil || wf.JiraKey == nil || *wf.JiraKey != key {
		t.Fatalf("target: id=%s done=%v key=%v", wf.ID, wf.JiraDoneAt, wf.JiraKey)
	}
	merged, err := f.set.Workflows.GetByID(f.dbc, keyRow.ID)
	if err != nil || merged == nil || merged.MergedIntoID == nil || *merged.MergedIntoID != prRow.ID {
		t.Fatalf("source: row=%+v err=%v", merged, err)
	}
	if f.signals.Count(signal.WorkflowLifecycle, LifecycleMerged) != 1 {
		t.Fatalf("merged signal: got=%d", f.signals.Count(signal.WorkflowLifecycle, LifecycleMerged))
	}
}

func ready(t *testing.T, f fixture, tenant uuid.UUID) *types.AttributionWorkflow {
	t.Helper()
	dev := testutil.SeedDeveloper(t, f.ctx, f.dbc.Tx, tenant, types.ProviderSourceControl, "octo", "octo@example.com")
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	merged := created.Add(2 * time.Hour)
	done := merged.Add(time.Hour)
	pr := 3
	key := "PX-1"
	return testutil.SeedWorkflow(t, f.ctx, f.dbc.Tx, &types.AttributionWorkflow{
		TenantID:       tenant,
		RepoFullName:   "acme/api",
		PRNumber:       &pr,
		JiraKey:        &key,
		DeveloperID:    &dev.ID,
		PRCreatedAt:    &created,
		PRMergedAt:     &merged,
		JiraDoneAt:     &done,
		ApprovalsCount: 1,
		Assertions: datatypes.JSONSlice[types.SkillAssertion]{
			{Path: []string{"Backend", "Go"}, Confidence: 0.8},
			{Path: []string{"Backend", "SQL"}},
		},
	})
}

func TestTryFinalizeAppliesOnce(t *testing.T) {
	f := newFixture(t)
	tenant := uuid.New()
	wf := ready(t, f, tenant)
	project := uuid.New()
	mapping := &types.RepositoryMapping{RepoFullName: "acme/api", TenantID: tenant, ProjectID: &project}

	ok, err := f.agg.TryFinalize(f.dbc, wf, mapping, "d1")
	if err != nil || !ok {
		t.Fatalf("finalize: ok=%v err=%v", ok, err)
	}
	if wf.BaselineDelta == nil || math.Abs(*wf.BaselineDelta-2.4) > 1e-9 {
		t.Fatalf("delta: want=2.4 got=%v", wf.BaselineDelta)
	}
	if wf.CorrelationKey == nil || *wf.CorrelationKey != "acme/api#3" || wf.TimeToMergeSeconds == nil || *wf.TimeToMergeSeconds != 7200 {
		t.Fatalf("bookkeeping: corr=%v ttm=%v", wf.CorrelationKey, wf.TimeToMergeSeconds)
	}

	ok, err = f.agg.TryFinalize(f.dbc, wf, mapping, "d2")
	if err != nil || ok {
		t.Fatalf("second finalize: want no-op got ok=%v err=%v", ok, err)
	}

	rows, err := f.set.DeveloperSkills.ListByDeveloper(f.dbc, *wf.DeveloperID)
	if err != nil || len(rows) != 2 {
		t.Fatalf("skills: rows=%d err=%v", len(rows), err)
	}
	for _, row := range rows {
		if math.Abs(row.Score-2.4) > 1e-9 {
			t.Fatalf("score: want=2.4 got=%v", row.Score)
		}
		if row.ProjectID == nil || *row.ProjectID != project {
			t.Fatalf("project: got=%v", row.ProjectID)
		}
		if row.Confidence != 0.8 && row.Confidence != 0.7 {
			t.Fatalf("confidence: got=%v", row.Confidence)
		}
		if row.EvidenceRef != "repo=acme/api,pr=3,jira=PX-1" {
			t.Fatalf("evidence ref: got=%s", row.EvidenceRef)
		}
	}
	if f.signals.Count(signal.Finalized, "") != 1 || f.signals.Count(signal.ReviewBonus, "first_review") != 1 {
		t.Fatalf("signals: finalized=%d first_review=%d", f.signals.Count(signal.Finalized, ""), f.signals.Count(signal.ReviewBonus, "first_review"))
	}
}

func TestTryFinalizeDefersWithoutDone(t *testing.T) {
	f := newFixture(t)
	wf := ready(t, f, uuid.New())
	wf.JiraDoneAt = nil
	ok, err := f.agg.TryFinalize(f.dbc, wf, nil, "d1")
	if err != nil || ok || wf.Finalized() {
		t.Fatalf("defer: ok=%v err=%v applied=%v", ok, err, wf.BaselineAppliedAt)
	}
	if len(f.signals.Deltas()) != 0 {
		t.Fatalf("defer: no delta expected, got=%v", f.signals.Deltas())
	}
}
