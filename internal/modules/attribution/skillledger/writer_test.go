package skillledger

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	"github.com/yungbote/northstar-backend/internal/data/repos/testutil"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

func TestApplyAccumulatesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	w := NewWriter(testutil.Logger(t), set.Skills, set.DeveloperSkills)
	dbc := dbctx.Context{Ctx: ctx, Tx: db}
	dev := uuid.New()
	project := uuid.New()

	first, err := w.Apply(dbc, ApplyInput{DeveloperID: dev, Path: []string{"backend", "go"}, Delta: 2.4, Confidence: 0.6})
	if err != nil || first == uuid.Nil {
		t.Fatalf("first apply: id=%s err=%v", first, err)
	}
	second, err := w.Apply(dbc, ApplyInput{DeveloperID: dev, Path: []string{" backend ", "go"}, ProjectID: &project, Delta: -0.3, Confidence: 0.4})
	if err != nil || second != first {
		t.Fatalf("second apply: want skill=%s got=%s err=%v", first, second, err)
	}
	row, err := set.DeveloperSkills.Get(dbc, dev, first)
	if err != nil || row == nil {
		t.Fatalf("get: row=%v err=%v", row, err)
	}
	if math.Abs(row.Score-2.1) > 1e-9 || row.Confidence != 0.6 {
		t.Fatalf("row: score=%v confidence=%v", row.Score, row.Confidence)
	}
	if row.ProjectID == nil || *row.ProjectID != project {
		t.Fatalf("project fill: got=%v", row.ProjectID)
	}
}

func TestApplySkipsEmptyPath(t *testing.T) {
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	w := NewWriter(testutil.Logger(t), set.Skills, set.DeveloperSkills)
	id, err := w.Apply(dbctx.Context{Ctx: context.Background(), Tx: db}, ApplyInput{DeveloperID: uuid.New(), Path: []string{" ", ""}, Delta: 1})
	if err != nil || id != uuid.Nil {
		t.Fatalf("empty path: id=%s err=%v", id, err)
	}
}
