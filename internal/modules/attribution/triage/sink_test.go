package triage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	"github.com/yungbote/northstar-backend/internal/data/repos/testutil"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/signal"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

func TestRecordKeepsUnparseablePayloadVerbatim(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	rec := &signal.Recorder{}
	s := NewSink(testutil.Logger(t), set.Triage, rec)
	dbc := dbctx.Context{Ctx: ctx}

	raw := `{"commits": [ truncated`
	if err := s.Record(dbc, types.ProviderSourceControl, "d-bad", types.TriageMalformedPayload, []byte(raw)); err != nil {
		t.Fatalf("record malformed: %v", err)
	}
	if err := s.Record(dbc, types.ProviderSourceControl, "d-good", types.TriageMissingIdentity, []byte(`{"sender":{"login":"x"}}`)); err != nil {
		t.Fatalf("record valid: %v", err)
	}

	rows, err := set.Triage.ListByDelivery(dbc, types.ProviderSourceControl, "d-bad")
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows: want=1 got=%d err=%v", len(rows), err)
	}
	var kept string
	if err := json.Unmarshal(rows[0].Payload, &kept); err != nil {
		t.Fatalf("payload is not a json string: %s (%v)", string(rows[0].Payload), err)
	}
	if kept != raw {
		t.Fatalf("payload: want=%q got=%q", raw, kept)
	}

	rows, err = set.Triage.ListByDelivery(dbc, types.ProviderSourceControl, "d-good")
	if err != nil || len(rows) != 1 {
		t.Fatalf("valid rows: want=1 got=%d err=%v", len(rows), err)
	}
	var obj map[string]any
	if err := json.Unmarshal(rows[0].Payload, &obj); err != nil || obj["sender"] == nil {
		t.Fatalf("valid payload: %s err=%v", string(rows[0].Payload), err)
	}
	if rec.Count(signal.Triage, types.TriageMalformedPayload) != 1 {
		t.Fatalf("triage signal: want=1 got=%d", rec.Count(signal.Triage, types.TriageMalformedPayload))
	}
}

func TestRecordDefersSignalToBuffer(t *testing.T) {
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	rec := &signal.Recorder{}
	s := NewSink(testutil.Logger(t), set.Triage, rec)

	buf := &signal.Buffer{}
	dbc := dbctx.Context{Ctx: signal.WithBuffer(context.Background(), buf)}
	if err := s.Record(dbc, types.ProviderIssueTracker, "d-1", types.TriageWorkflowMissing, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Count(signal.Triage, types.TriageWorkflowMissing) != 0 || buf.Len() != 1 {
		t.Fatalf("before flush: emitted=%d buffered=%d", rec.Count(signal.Triage, types.TriageWorkflowMissing), buf.Len())
	}
	buf.Flush(rec)
	if rec.Count(signal.Triage, types.TriageWorkflowMissing) != 1 || buf.Len() != 0 {
		t.Fatalf("after flush: emitted=%d buffered=%d", rec.Count(signal.Triage, types.TriageWorkflowMissing), buf.Len())
	}
}
