package scoring

import (
	"math"
	"os"
	"testing"
	"time"
)

func at(h int) *time.Time {
	t := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
	return &t
}

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComputeCleanFirstPass(t *testing.T) {
	res, ok := Compute(DefaultWeights(), Input{
		PRCreatedAt:    at(0),
		PRMergedAt:     at(10),
		JiraDoneAt:     at(12),
		ApprovalsCount: 1,
	})
	if !ok {
		t.Fatalf("expected a baseline")
	}
	if !approxEqual(res.Delta, 2.4) {
		t.Fatalf("delta: want=2.4 got=%v", res.Delta)
	}
	if res.TimeToMerge == nil || *res.TimeToMerge != 10*time.Hour {
		t.Fatalf("time to merge: got=%v", res.TimeToMerge)
	}
}

func TestComputeReworkGoesNegative(t *testing.T) {
	res, ok := Compute(DefaultWeights(), Input{
		PRCreatedAt:          at(0),
		PRMergedAt:           at(72),
		JiraDoneAt:           at(73),
		ReviewCycles:         2,
		MajorReworkRequested: true,
	})
	if !ok {
		t.Fatalf("expected a baseline")
	}
	if !approxEqual(res.Delta, -0.3) {
		t.Fatalf("delta: want=-0.3 got=%v", res.Delta)
	}
	if len(res.Modifiers) != 3 {
		t.Fatalf("modifiers: want 3 got=%+v", res.Modifiers)
	}
}

func TestComputeFailsClosed(t *testing.T) {
	w := DefaultWeights()
	cases := map[string]Input{
		"no_merge":        {PRCreatedAt: at(0), JiraDoneAt: at(1)},
		"no_done":         {PRCreatedAt: at(0), PRMergedAt: at(1)},
		"already_applied": {PRCreatedAt: at(0), PRMergedAt: at(1), JiraDoneAt: at(2), AlreadyApplied: true},
		"merged_early":    {PRCreatedAt: at(5), PRMergedAt: at(1), JiraDoneAt: at(6)},
	}
	for name, in := range cases {
		if _, ok := Compute(w, in); ok {
			t.Fatalf("%s: expected no delta", name)
		}
	}
}

func TestComputeUnknownCreationSkipsTimeModifier(t *testing.T) {
	res, ok := Compute(DefaultWeights(), Input{PRMergedAt: at(1), JiraDoneAt: at(2), NitCommentCount: 2, PeerCreditTotal: 0.4})
	if !ok {
		t.Fatalf("expected a baseline")
	}
	if res.TimeToMerge != nil {
		t.Fatalf("time to merge: want nil got=%v", *res.TimeToMerge)
	}
	if !approxEqual(res.Delta, 1.0-0.2+0.4) {
		t.Fatalf("delta: want=1.2 got=%v", res.Delta)
	}
}

func TestComputeReviewSignalsDisabled(t *testing.T) {
	w := DefaultWeights()
	w.EnableReviewSignals = false
	res, ok := Compute(w, Input{PRCreatedAt: at(0), PRMergedAt: at(100), JiraDoneAt: at(101), MajorReworkRequested: true})
	if !ok || res.Delta != w.BaselineIncrement {
		t.Fatalf("delta: want=%v got=%v ok=%v", w.BaselineIncrement, res.Delta, ok)
	}
}

func TestLoadWeightsYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/weights.yaml"
	writeFile(t, path, "approval_bonus: 0.5\ntime_to_merge_threshold: 48h\nenable_review_signals: false\n")
	t.Setenv("SCORING_WEIGHTS_FILE", path)
	t.Setenv("SKILL_PEER_CREDIT_CAP", "3")

	w, err := LoadWeights()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if w.ApprovalBonus != 0.5 || w.TimeToMergeThreshold != 48*time.Hour || w.EnableReviewSignals {
		t.Fatalf("yaml overrides not applied: %+v", w)
	}
	if w.PeerCreditCap != 3 || !approxEqual(w.PeerCreditLimit(), 0.6) {
		t.Fatalf("env override: cap=%d limit=%v", w.PeerCreditCap, w.PeerCreditLimit())
	}
	if w.CyclePenalty != 0.3 {
		t.Fatalf("untouched default changed: cycle=%v", w.CyclePenalty)
	}
}

func TestLoadWeightsRejectsInvalid(t *testing.T) {
	t.Setenv("SKILL_CONFIDENCE_DEFAULT", "1.5")
	if _, err := LoadWeights(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
