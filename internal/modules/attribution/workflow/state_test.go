package workflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/northstar-backend/internal/domain"
)

func TestApplyReviewKeepsMajorReworkSticky(t *testing.T) {
	wf := &types.AttributionWorkflow{}
	ApplyReview(wf, "CHANGES_REQUESTED")
	ApplyReview(wf, "approved")
	ApplyReview(wf, "commented")
	if !wf.MajorReworkRequested || wf.ReviewCycles != 1 || wf.ApprovalsCount != 1 || wf.NitCommentCount != 1 {
		t.Fatalf("review counters: got=%+v", wf)
	}
}

func TestDeferralOrder(t *testing.T) {
	dev := uuid.New()
	merged := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	created := merged.Add(time.Hour)
	applied := merged
	cases := []struct {
		name string
		wf   types.AttributionWorkflow
		want string
	}{
		{"no developer", types.AttributionWorkflow{PRMergedAt: &merged, JiraDoneAt: &merged}, DeferMissingDeveloper},
		{"no merge", types.AttributionWorkflow{DeveloperID: &dev, JiraDoneAt: &merged}, DeferMissingPRMerge},
		{"no done", types.AttributionWorkflow{DeveloperID: &dev, PRMergedAt: &merged}, DeferMissingJiraDone},
		{"merged before created", types.AttributionWorkflow{DeveloperID: &dev, PRMergedAt: &merged, JiraDoneAt: &merged, PRCreatedAt: &created}, DeferMergedBeforeCreate},
		{"applied", types.AttributionWorkflow{BaselineAppliedAt: &applied}, DeferAlreadyApplied},
		{"ready", types.AttributionWorkflow{DeveloperID: &dev, PRMergedAt: &merged, JiraDoneAt: &merged}, ""},
	}
	for _, tc := range cases {
		wf := tc.wf
		if got := Deferral(&wf); got != tc.want {
			t.Fatalf("%s: want=%q got=%q", tc.name, tc.want, got)
		}
	}
}

func TestAttachDeveloperAuthority(t *testing.T) {
	pusher, author := uuid.New(), uuid.New()
	wf := &types.AttributionWorkflow{}
	AttachDeveloper(wf, pusher, false)
	AttachDeveloper(wf, author, true)
	AttachDeveloper(wf, pusher, false)
	if wf.DeveloperID == nil || *wf.DeveloperID != author {
		t.Fatalf("developer: want=%s got=%v", author, wf.DeveloperID)
	}
}

func TestTimestampsKeepFirstKnownValue(t *testing.T) {
	wf := &types.AttributionWorkflow{}
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	SetCreatedAt(wf, &late)
	SetCreatedAt(wf, &early)
	SetMergedAt(wf, late)
	SetMergedAt(wf, early)
	if !wf.PRCreatedAt.Equal(early) || !wf.PRMergedAt.Equal(late) {
		t.Fatalf("timestamps: created=%v merged=%v", wf.PRCreatedAt, wf.PRMergedAt)
	}
}

func TestMerge(t *testing.T) {
	reviewer := uuid.New()
	dev := uuid.New()
	done := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	key := "PX-123"
	dst := &types.AttributionWorkflow{
		ID:               uuid.New(),
		ReviewCycles:     1,
		PeerReviewCredit: datatypes.NewJSONType(map[string]float64{reviewer.String(): 0.2}),
		Evidence:         datatypes.JSONMap{"pr:1": "dst"},
	}
	src := &types.AttributionWorkflow{
		ID:                   uuid.New(),
		JiraKey:              &key,
		UnlinkedJiraKey:      &key,
		DeveloperID:          &dev,
		JiraDoneAt:           &done,
		ReviewCycles:         2,
		MajorReworkRequested: true,
		PeerReviewCredit:     datatypes.NewJSONType(map[string]float64{reviewer.String(): 0.2}),
		Evidence:             datatypes.JSONMap{"pr:1": "src", "push:9": "src"},
		Assertions:           datatypes.JSONSlice[types.SkillAssertion]{{Path: []string{"Go"}}},
	}
	Merge(dst, src)

	if dst.ReviewCycles != 3 || !dst.MajorReworkRequested {
		t.Fatalf("counters: cycles=%d major=%v", dst.ReviewCycles, dst.MajorReworkRequested)
	}
	if dst.JiraKey == nil || *dst.JiraKey != key || dst.JiraDoneAt == nil || dst.DeveloperID == nil {
		t.Fatalf("fields: key=%v done=%v dev=%v", dst.JiraKey, dst.JiraDoneAt, dst.DeveloperID)
	}
	if got := dst.PeerCreditTotal(); got < 0.4-1e-9 || got > 0.4+1e-9 {
		t.Fatalf("peer credit: want=0.4 got=%v", got)
	}
	if dst.Evidence["pr:1"] != "dst" || dst.Evidence["push:9"] != "src" {
		t.Fatalf("evidence: got=%v", dst.Evidence)
	}
	if len(dst.Assertions) != 1 {
		t.Fatalf("assertions: got=%v", dst.Assertions)
	}
	if src.MergedIntoID == nil || *src.MergedIntoID != dst.ID || src.UnlinkedJiraKey != nil {
		t.Fatalf("source: merged_into=%v unlinked=%v", src.MergedIntoID, src.UnlinkedJiraKey)
	}
}

func TestMergeInheritsFinalization(t *testing.T) {
	at := time.Now().UTC()
	delta := 1.5
	dst := &types.AttributionWorkflow{ID: uuid.New()}
	src := &types.AttributionWorkflow{ID: uuid.New(), BaselineAppliedAt: &at, BaselineDelta: &delta}
	Merge(dst, src)
	if !dst.Finalized() || dst.BaselineDelta == nil || *dst.BaselineDelta != delta {
		t.Fatalf("inherit: applied=%v delta=%v", dst.BaselineAppliedAt, dst.BaselineDelta)
	}
}

func TestCorrelationAndEvidenceRef(t *testing.T) {
	pr := 42
	key := "PX-1"
	wf := &types.AttributionWorkflow{RepoFullName: "acme/api", PRNumber: &pr, JiraKey: &key}
	if got := CorrelationKey(wf); got != "acme/api#42" {
		t.Fatalf("correlation: got=%s", got)
	}
	if got := EvidenceRef(wf); got != "repo=acme/api,pr=42,jira=PX-1" {
		t.Fatalf("evidence ref: got=%s", got)
	}
	wf.PRNumber = nil
	if got := CorrelationKey(wf); got != "acme/api#PX-1" {
		t.Fatalf("key-only correlation: got=%s", got)
	}
}
