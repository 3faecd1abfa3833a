// Package scoring computes the skill delta of a finished unit of work.
// Everything here is a pure function of workflow state and Weights.
package scoring

import (
	"time"

	types "github.com/yungbote/northstar-backend/internal/domain"
)

type Input struct {
	AlreadyApplied bool
	PRCreatedAt    *time.Time
	PRMergedAt     *time.Time
	JiraDoneAt     *time.Time

	ReviewCycles         int
	ApprovalsCount       int
	NitCommentCount      int
	MajorReworkRequested bool
	PeerCreditTotal      float64
}

func InputFromWorkflow(wf *types.AttributionWorkflow) Input {
	if wf == nil {
		return Input{}
	}
	return Input{
		AlreadyApplied:       wf.Finalized(),
		PRCreatedAt:          wf.PRCreatedAt,
		PRMergedAt:           wf.PRMergedAt,
		JiraDoneAt:           wf.JiraDoneAt,
		ReviewCycles:         wf.ReviewCycles,
		ApprovalsCount:       wf.ApprovalsCount,
		NitCommentCount:      wf.NitCommentCount,
		MajorReworkRequested: wf.MajorReworkRequested,
		PeerCreditTotal:      wf.PeerCreditTotal(),
	}
}

const (
	ModMajorRework = "major_rework"
	ModCycles      = "review_cycles"
	ModNits        = "nit_comments"
	ModFirstReview = "first_review"
	ModTimeToMerge = "time_to_merge"
	ModPeerCredit  = "peer_credit"
)

type Modifier struct {
	Name  string
	Value float64
}

type Result struct {
	Baseline    float64
	Delta       float64
	TimeToMerge *time.Duration
	Modifiers   []Modifier
}

// Baseline returns the fixed increment when the work is complete and not yet scored.
func Baseline(w Weights, in Input) (float64, bool) {
	if in.AlreadyApplied || in.PRMergedAt == nil || in.JiraDoneAt == nil {
		return 0, false
	}
	if in.PRCreatedAt != nil && in.PRMergedAt.Before(*in.PRCreatedAt) {
		return 0, false
	}
	return w.BaselineIncrement, true
}

// TimeToMerge is nil unless both creation and merge are known.
func TimeToMerge(in Input) *time.Duration {
	if in.PRCreatedAt == nil || in.PRMergedAt == nil {
		return nil
	}
	d := in.PRMergedAt.Sub(*in.PRCreatedAt)
	return &d
}

// Compute returns false when no baseline applies. The delta is never clamped.
func Compute(w Weights, in Input) (Result, bool) {
	base, ok := Baseline(w, in)
	if !ok {
		return Result{}, false
	}
	res := Result{Baseline: base, Delta: base, TimeToMerge: TimeToMerge(in)}
	if !w.EnableReviewSignals {
		return res, true
	}
	add := func(name string, v float64) {
		res.Modifiers = append(res.Modifiers, Modifier{Name: name, Value: v})
		res.Delta += v
	}

	if in.MajorReworkRequested {
		add(ModMajorRework, -w.MajorReworkPenalty)
	}
	if in.ReviewCycles > 0 {
		add(ModCycles, -w.CyclePenalty*float64(in.ReviewCycles))
	}
	if in.NitCommentCount > 0 {
		add(ModNits, -w.NitPenalty*float64(in.NitCommentCount))
	}
	if in.ApprovalsCount > 0 && in.ReviewCycles == 0 {
		add(ModFirstReview, base*w.FirstReviewMultiplier+w.ApprovalBonus)
	}
	if res.TimeToMerge != nil {
		if *res.TimeToMerge <= w.TimeToMergeThreshold {
			add(ModTimeToMerge, w.TimeToMergeBonus)
		} else {
			add(ModTimeToMerge, -w.TimeToMergePenalty)
		}
	}
	if in.PeerCreditTotal != 0 {
		add(ModPeerCredit, in.PeerCreditTotal)
	}
	return res, true
}
