package aggregates_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/northstar-backend/internal/data/aggregates"
	aggtestutil "github.com/yungbote/northstar-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/northstar-backend/internal/data/repos"
	"github.com/yungbote/northstar-backend/internal/data/repos/testutil"
	types "github.com/yungbote/northstar-backend/internal/domain"
	domainagg "github.com/yungbote/northstar-backend/internal/domain/aggregates"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"gorm.io/gorm"
)

type deliveryFixture struct {
	db    *gorm.DB
	repos repos.Set
	hooks *aggtestutil.HooksRecorder
	agg   domainagg.DeliveryAggregate
}

func newDeliveryFixture(t *testing.T, runner aggregates.TxRunner) deliveryFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	hooks := &aggtestutil.HooksRecorder{}
	agg := aggregates.NewDeliveryAggregate(aggregates.DeliveryAggregateDeps{
		Base:     aggregates.BaseDeps{DB: db, Log: log, Runner: runner, Hooks: hooks},
		EventLog: set.EventLog,
	})
	return deliveryFixture{db: db, repos: set, hooks: hooks, agg: agg}
}

func (f deliveryFixture) ledger(t *testing.T, key string) *types.IntegrationEventLog {
	t.Helper()
	row, err := f.repos.EventLog.Get(dbctx.Context{Ctx: context.Background()}, "github", key)
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	return row
}

func TestDeliveryApplyRunsHandlerOnce(t *testing.T) {
	f := newDeliveryFixture(t, nil)
	tenant := uuid.New()
	calls := 0
	in := aggregates.ApplyDeliveryInput{
		Provider:    "github",
		DeliveryKey: "d-1",
		EventKind:   "push",
		Handle: func(dbc dbctx.Context) (aggregates.DeliveryOutcome, error) {
			calls++
			if dbc.Tx == nil {
				t.Fatalf("handler must run inside the delivery transaction")
			}
			return aggregates.DeliveryOutcome{TenantID: &tenant, Metadata: map[string]any{"workflows": 1}}, nil
		},
	}

	first, err := f.agg.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if !first.Acquired || first.Status != types.LedgerStatusProcessed || first.Attempts != 1 {
		t.Fatalf("first result: %+v", first)
	}
	second, err := f.agg.Apply(context.Background(), in)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second.Acquired || second.Status != types.LedgerStatusProcessed {
		t.Fatalf("second result: want duplicate got %+v", second)
	}
	if calls != 1 {
		t.Fatalf("handler calls: want=1 got=%d", calls)
	}
	row := f.ledger(t, "d-1")
	if row.TenantID == nil || *row.TenantID != tenant || row.Action != "push" {
		t.Fatalf("ledger row: %+v", row)
	}
}

func TestDeliveryApplyHandlerFailureRollsBackAndAllowsRetry(t *testing.T) {
	f := newDeliveryFixture(t, nil)
	ctx := context.Background()
	boom := errors.New("store unavailable")

	_, err := f.agg.Apply(ctx, aggregates.ApplyDeliveryInput{
		Provider:    "github",
		DeliveryKey: "d-2",
		Handle: func(dbc dbctx.Context) (aggregates.DeliveryOutcome, error) {
			dev := &types.Developer{ID: uuid.New(), TenantID: uuid.New()}
			if err := f.repos.Developers.Create(dbc, dev); err != nil {
				t.Fatalf("create developer: %v", err)
			}
			return aggregates.DeliveryOutcome{}, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("apply err: want=%v got=%v", boom, err)
	}
	if row := f.ledger(t, "d-2"); row != nil {
		t.Fatalf("ledger row should be rolled back, got %+v", row)
	}
	var devs int64
	f.db.Model(&types.Developer{}).Count(&devs)
	if devs != 0 {
		t.Fatalf("developers after rollback: want=0 got=%d", devs)
	}

	if err := f.agg.RecordFailure(ctx, aggregates.RecordDeliveryFailureInput{
		Provider: "github", DeliveryKey: "d-2", EventKind: "push", Cause: err,
	}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	row := f.ledger(t, "d-2")
	if row == nil || row.Status != types.LedgerStatusError || row.Metadata["error"] == nil {
		t.Fatalf("error row: %+v", row)
	}

	res, err := f.agg.Apply(ctx, aggregates.ApplyDeliveryInput{
		Provider:    "github",
		DeliveryKey: "d-2",
		Handle: func(dbctx.Context) (aggregates.DeliveryOutcome, error) {
			return aggregates.DeliveryOutcome{Status: types.LedgerStatusSkipped}, nil
		},
	})
	if err != nil {
		t.Fatalf("retry apply: %v", err)
	}
	if !res.Acquired || res.Status != types.LedgerStatusSkipped || res.Attempts != 2 {
		t.Fatalf("retry result: %+v", res)
	}
}

func TestDeliveryRecordFailureNeverDowngradesProcessed(t *testing.T) {
	f := newDeliveryFixture(t, nil)
	ctx := context.Background()
	_, err := f.agg.Apply(ctx, aggregates.ApplyDeliveryInput{
		Provider:    "github",
		DeliveryKey: "d-3",
		Handle: func(dbctx.Context) (aggregates.DeliveryOutcome, error) {
			return aggregates.DeliveryOutcome{}, nil
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := f.agg.RecordFailure(ctx, aggregates.RecordDeliveryFailureInput{
		Provider: "github", DeliveryKey: "d-3", Cause: errors.New("late failure"),
	}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if row := f.ledger(t, "d-3"); row.Status != types.LedgerStatusProcessed {
		t.Fatalf("status: want=processed got=%s", row.Status)
	}
}

func TestDeliveryApplyRejectsNonFinalStatus(t *testing.T) {
	f := newDeliveryFixture(t, nil)
	_, err := f.agg.Apply(context.Background(), aggregates.ApplyDeliveryInput{
		Provider:    "github",
		DeliveryKey: "d-4",
		Handle: func(dbctx.Context) (aggregates.DeliveryOutcome, error) {
			return aggregates.DeliveryOutcome{Status: types.LedgerStatusProcessing}, nil
		},
	})
	if !domainagg.IsCode(err, domainagg.CodeInvariantViolation) {
		t.Fatalf("err: want invariant_violation got=%v", err)
	}
	if got := f.hooks.StatusesFor("delivery.apply"); len(got) != 1 || got[0] != string(domainagg.CodeInvariantViolation) {
		t.Fatalf("hook statuses: %v", got)
	}
}

func TestDeliveryApplyCommitFailureLeavesNoLedgerRow(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	runner := &aggtestutil.InjectedTxRunner{
		Inner:      aggregates.NewGormTxRunner(db),
		FailCommit: aggregates.RetryableError("commit lost"),
	}
	agg := aggregates.NewDeliveryAggregate(aggregates.DeliveryAggregateDeps{
		Base:     aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		EventLog: set.EventLog,
	})
	_, err := agg.Apply(context.Background(), aggregates.ApplyDeliveryInput{
		Provider:    "github",
		DeliveryKey: "d-5",
		Handle: func(dbctx.Context) (aggregates.DeliveryOutcome, error) {
			return aggregates.DeliveryOutcome{}, nil
		},
	})
	if !domainagg.IsRetryable(err) {
		t.Fatalf("err: want retryable got=%v", err)
	}
	row, err := set.EventLog.Get(dbctx.Context{Ctx: context.Background()}, "github", "d-5")
	if err != nil || row != nil {
		t.Fatalf("ledger after failed commit: row=%+v err=%v", row, err)
	}
}

func TestDeliveryApplyValidatesInput(t *testing.T) {
	f := newDeliveryFixture(t, nil)
	_, err := f.agg.Apply(context.Background(), aggregates.ApplyDeliveryInput{Provider: "github"})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("err: want validation got=%v", err)
	}
}
