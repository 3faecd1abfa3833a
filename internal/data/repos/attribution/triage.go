package attribution

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type AttributionTriageRepo interface {
	Create(dbc dbctx.Context, row *types.AttributionTriage) error
	ListByDelivery(dbc dbctx.Context, provider, deliveryKey string) ([]*types.AttributionTriage, error)
	ListByReason(dbc dbctx.Context, reason string, limit int) ([]*types.AttributionTriage, error)
}

type attributionTriageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttributionTriageRepo(db *gorm.DB, baseLog *logger.Logger) AttributionTriageRepo {
	return &attributionTriageRepo{db: db, log: baseLog.With("repo", "AttributionTriageRepo")}
}

func (r *attributionTriageRepo) Create(dbc dbctx.Context, row *types.AttributionTriage) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *attributionTriageRepo) ListByDelivery(dbc dbctx.Context, provider, deliveryKey string) ([]*types.AttributionTriage, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.AttributionTriage{}
	if err := t.WithContext(dbc.Ctx).
		Where("provider = ? AND delivery_key = ?", provider, deliveryKey).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *attributionTriageRepo) ListByReason(dbc dbctx.Context, reason string, limit int) ([]*types.AttributionTriage, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	out := []*types.AttributionTriage{}
	if err := t.WithContext(dbc.Ctx).
		Where("reason = ?", reason).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
