package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

func TestInjectedTxRunnerCommitsOnSuccess(t *testing.T) {
	r := &InjectedTxRunner{}
	called := false
	if err := r.InTx(context.Background(), func(_ dbctx.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if !called {
		t.Fatalf("callback not invoked")
	}
	if r.BeginCalls != 1 || r.CommitCalls != 1 || r.RollbackCalls != 0 {
		t.Fatalf("counters: begin=%d commit=%d rollback=%d", r.BeginCalls, r.CommitCalls, r.RollbackCalls)
	}
}

func TestInjectedTxRunnerRollsBackOnBodyError(t *testing.T) {
	r := &InjectedTxRunner{}
	bodyErr := errors.New("handler failed")
	err := r.InTx(context.Background(), func(_ dbctx.Context) error { return bodyErr })
	if !errors.Is(err, bodyErr) {
		t.Fatalf("err: want=%v got=%v", bodyErr, err)
	}
	if r.CommitCalls != 0 || r.RollbackCalls != 1 {
		t.Fatalf("counters: commit=%d rollback=%d", r.CommitCalls, r.RollbackCalls)
	}
}

func TestInjectedTxRunnerCommitFailureReachesInner(t *testing.T) {
	commitErr := errors.New("commit failed")
	inner := &InjectedTxRunner{}
	r := &InjectedTxRunner{Inner: inner, FailCommit: commitErr}
	err := r.InTx(context.Background(), func(_ dbctx.Context) error { return nil })
	if !errors.Is(err, commitErr) {
		t.Fatalf("err: want=%v got=%v", commitErr, err)
	}
	if inner.RollbackCalls != 1 || inner.CommitCalls != 0 {
		t.Fatalf("inner counters: commit=%d rollback=%d", inner.CommitCalls, inner.RollbackCalls)
	}
	if r.RollbackCalls != 1 {
		t.Fatalf("outer rollback: want=1 got=%d", r.RollbackCalls)
	}
}
