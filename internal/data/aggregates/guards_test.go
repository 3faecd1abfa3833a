package aggregates

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/northstar-backend/internal/data/repos/testutil"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

func TestRequireStatusAllowed(t *testing.T) {
	if err := RequireStatusAllowed("processed", "processed", "skipped"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireStatusAllowed("processing", "processed", "skipped"); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestRequireCASSuccess(t *testing.T) {
	if err := RequireCASSuccess(true, "ok"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireCASSuccess(false, "stale"); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestCASGuardUpdateByStatus(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: db}
	row := &types.IntegrationEventLog{
		ID:          uuid.New(),
		Provider:    "github",
		DeliveryKey: "d-1",
		Status:      types.LedgerStatusError,
		Attempts:    1,
		Metadata:    map[string]interface{}{},
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	guard := NewCASGuard(db)
	updates := map[string]any{"status": types.LedgerStatusProcessing}
	ok, err := guard.UpdateByStatus(dbc, row.TableName(), row.ID, []string{types.LedgerStatusError}, updates)
	if err != nil || !ok {
		t.Fatalf("first CAS: ok=%v err=%v", ok, err)
	}
	ok, err = guard.UpdateByStatus(dbc, row.TableName(), row.ID, []string{types.LedgerStatusError}, updates)
	if err != nil || ok {
		t.Fatalf("second CAS: want ok=false got ok=%v err=%v", ok, err)
	}
	if _, err := guard.UpdateByStatus(dbc, row.TableName(), row.ID, nil, updates); err == nil {
		t.Fatalf("expected validation error for empty allowed statuses")
	}
}
