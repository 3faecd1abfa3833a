package aggregates

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	domainagg "github.com/yungbote/northstar-backend/internal/domain/aggregates"
	"gorm.io/gorm"
)

func TestMapErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want domainagg.ErrorCode
	}{
		{"validation", ValidationError("bad input"), domainagg.CodeValidation},
		{"conflict", ConflictError("stale"), domainagg.CodeConflict},
		{"not_found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"pg_unique", &pgconn.PgError{Code: "23505"}, domainagg.CodeConflict},
		{"pg_deadlock", &pgconn.PgError{Code: "40P01"}, domainagg.CodeRetryable},
		{"sqlite_unique", errors.New("UNIQUE constraint failed: attribution_workflows.pr_number"), domainagg.CodeConflict},
		{"sqlite_locked", errors.New("database is locked"), domainagg.CodeRetryable},
		{"other", errors.New("boom"), domainagg.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domainagg.CodeOf(MapError("op", tc.in)); got != tc.want {
				t.Fatalf("code: want=%s got=%s", tc.want, got)
			}
		})
	}
}

func TestMapErrorPassesThroughWrappedAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	if out := MapError("other", in); out != in {
		t.Fatalf("expected passthrough aggregate error, got %v", out)
	}
	wrapped := errors.Join(errors.New("context"), in)
	if got := domainagg.CodeOf(MapError("other", wrapped)); got != domainagg.CodeRetryable {
		t.Fatalf("wrapped code: want=retryable got=%s", got)
	}
}
