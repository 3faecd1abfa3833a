package attribution

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type IntegrationEventLogRepo interface {
	Get(dbc dbctx.Context, provider, deliveryKey string) (*types.IntegrationEventLog, error)
	// InsertIfAbsent inserts row unless (provider, delivery_key) already exists.
	InsertIfAbsent(dbc dbctx.Context, row *types.IntegrationEventLog) (bool, error)
	Complete(dbc dbctx.Context, id uuid.UUID, status string, tenantID *uuid.UUID, metadata map[string]interface{}) error
	// UpsertError writes an error row, or flips an existing non-final row to error.
	UpsertError(dbc dbctx.Context, row *types.IntegrationEventLog) error
}

type integrationEventLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIntegrationEventLogRepo(db *gorm.DB, baseLog *logger.Logger) IntegrationEventLogRepo {
	return &integrationEventLogRepo{db: db, log: baseLog.With("repo", "IntegrationEventLogRepo")}
}

func (r *integrationEventLogRepo) Get(dbc dbctx.Context, provider, deliveryKey string) (*types.IntegrationEventLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	provider = strings.TrimSpace(provider)
	deliveryKey = strings.TrimSpace(deliveryKey)
	if provider == "" || deliveryKey == "" {
		return nil, nil
	}
	var row types.IntegrationEventLog
	err := t.WithContext(dbc.Ctx).
		Where("provider = ? AND delivery_key = ?", provider, deliveryKey).
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *integrationEventLogRepo) InsertIfAbsent(dbc dbctx.Context, row *types.IntegrationEventLog) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.Provider == "" || row.DeliveryKey == "" {
		return false, nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if row.Attempts == 0 {
		row.Attempts = 1
	}
	if row.Metadata == nil {
		row.Metadata = map[string]interface{}{}
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "delivery_key"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *integrationEventLogRepo) Complete(dbc dbctx.Context, id uuid.UUID, status string, tenantID *uuid.UUID, metadata map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if tenantID != nil && *tenantID != uuid.Nil {
		updates["tenant_id"] = *tenantID
	}
	if metadata != nil {
		updates["metadata"] = datatypes.JSONMap(metadata)
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.IntegrationEventLog{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *integrationEventLogRepo) UpsertError(dbc dbctx.Context, row *types.IntegrationEventLog) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.Provider == "" || row.DeliveryKey == "" {
		return nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Status = types.LedgerStatusError
	row.Attempts = 1
	row.CreatedAt = now
	row.UpdatedAt = now
	if row.Metadata == nil {
		row.Metadata = map[string]interface{}{}
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "delivery_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":     types.LedgerStatusError,
				"metadata":   gorm.Expr("excluded.metadata"),
				"attempts":   gorm.Expr("integration_event_log.attempts + 1"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{
					SQL:  "integration_event_log.status IN ?",
					Vars: []interface{}{[]string{types.LedgerStatusError, types.LedgerStatusProcessing}},
				},
			}},
		}).
		Create(row).Error
}
