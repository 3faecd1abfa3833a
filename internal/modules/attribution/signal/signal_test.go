package signal

import (
	"context"
	"testing"
)

func TestBufferReplaysInOrderOnFlush(t *testing.T) {
	rec := &Recorder{}
	buf := &Buffer{}
	ctx := WithBuffer(context.Background(), buf)

	e := For(ctx, rec)
	e.Emit(Finalized, "")
	e.ObserveDelta("t1", 2.4)
	e.Emit(ReviewBonus, "fast_merge")
	if rec.Count(Finalized, "") != 0 || len(rec.Deltas()) != 0 {
		t.Fatalf("emitted before flush")
	}

	buf.Flush(rec)
	if rec.Count(Finalized, "") != 1 || rec.Count(ReviewBonus, "fast_merge") != 1 {
		t.Fatalf("counts after flush: finalized=%d fast_merge=%d", rec.Count(Finalized, ""), rec.Count(ReviewBonus, "fast_merge"))
	}
	if d := rec.Deltas(); len(d) != 1 || d[0] != 2.4 {
		t.Fatalf("deltas: got=%v", d)
	}
	buf.Flush(rec)
	if rec.Count(Finalized, "") != 1 {
		t.Fatalf("second flush replayed: got=%d", rec.Count(Finalized, ""))
	}
}

func TestForFallsBackWithoutBuffer(t *testing.T) {
	rec := &Recorder{}
	For(context.Background(), rec).Emit(Triage, "missing_identity")
	if rec.Count(Triage, "missing_identity") != 1 {
		t.Fatalf("direct emit: want=1 got=%d", rec.Count(Triage, "missing_identity"))
	}
	For(context.Background(), nil).Emit(Triage, "x")
	var nilBuf *Buffer
	nilBuf.Flush(rec)
}
