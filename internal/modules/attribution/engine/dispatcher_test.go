package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/northstar-backend/internal/data/repos/testutil"
	types "github.com/yungbote/northstar-backend/internal/domain"
)

func TestRunDeduplicatesConcurrentReplays(t *testing.T) {
	f := newEngineFixture(t)
	d := NewDispatcher(testutil.Logger(t), f.eng, 5)

	envs := make([]types.Envelope, 5)
	for i := range envs {
		envs[i] = pullRequest("d-race", repoName, fastMerge)
	}
	results, err := d.Run(f.ctx, envs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	counts := map[types.Outcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	if counts[types.OutcomeProcessed] != 1 || counts[types.OutcomeDuplicate] != 4 {
		t.Fatalf("outcomes: %v", counts)
	}
	if n := f.count(t, &types.IntegrationEventLog{}); n != 1 {
		t.Fatalf("ledger rows: want=1 got=%d", n)
	}
	if n := f.count(t, &types.AttributionWorkflow{}); n != 1 {
		t.Fatalf("workflows: want=1 got=%d", n)
	}
}

type scriptedProcessor struct{ fail string }

func (p scriptedProcessor) Process(_ context.Context, env types.Envelope) (types.Result, error) {
	if env.DeliveryKey == p.fail {
		return types.Result{DeliveryKey: env.DeliveryKey}, errors.New("boom")
	}
	return types.Result{DeliveryKey: env.DeliveryKey, Outcome: types.OutcomeProcessed}, nil
}

func TestRunKeepsInputOrderAndFinishesAfterFailure(t *testing.T) {
	d := NewDispatcher(testutil.Logger(t), scriptedProcessor{fail: "b"}, 2)
	keys := []string{"a", "b", "c", "d"}
	envs := make([]types.Envelope, len(keys))
	for i, k := range keys {
		envs[i] = types.Envelope{Provider: types.ProviderSourceControl, DeliveryKey: k}
	}
	results, err := d.Run(context.Background(), envs)
	if err == nil {
		t.Fatalf("run: want error")
	}
	for i, k := range keys {
		if results[i].DeliveryKey != k {
			t.Fatalf("results[%d]: want=%s got=%s", i, k, results[i].DeliveryKey)
		}
	}
	if results[3].Outcome != types.OutcomeProcessed {
		t.Fatalf("delivery after failure: want processed got %q", results[3].Outcome)
	}
}
