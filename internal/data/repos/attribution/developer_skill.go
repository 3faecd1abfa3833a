package attribution

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type DeveloperSkillRepo interface {
	// ApplyDelta is a single atomic upsert: score accumulates, confidence keeps the max,
	// project_id fills only when unset, last_seen_at is always overwritten.
	ApplyDelta(dbc dbctx.Context, row *types.DeveloperSkill) error
	Get(dbc dbctx.Context, developerID, skillID uuid.UUID) (*types.DeveloperSkill, error)
	ListByDeveloper(dbc dbctx.Context, developerID uuid.UUID) ([]*types.DeveloperSkill, error)
}

type developerSkillRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeveloperSkillRepo(db *gorm.DB, baseLog *logger.Logger) DeveloperSkillRepo {
	return &developerSkillRepo{db: db, log: baseLog.With("repo", "DeveloperSkillRepo")}
}

func (r *developerSkillRepo) ApplyDelta(dbc dbctx.Context, row *types.DeveloperSkill) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.DeveloperID == uuid.Nil || row.SkillID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.LastSeenAt.IsZero() {
		row.LastSeenAt = now
	}
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "developer_id"}, {Name: "skill_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"score":        gorm.Expr("developer_skills.score + excluded.score"),
				"confidence":   gorm.Expr("CASE WHEN excluded.confidence > developer_skills.confidence THEN excluded.confidence ELSE developer_skills.confidence END"),
				"project_id":   gorm.Expr("COALESCE(developer_skills.project_id, excluded.project_id)"),
				"evidence_ref": gorm.Expr("excluded.evidence_ref"),
				"last_seen_at": gorm.Expr("excluded.last_seen_at"),
			}),
		}).
		Create(row).Error
}

func (r *developerSkillRepo) Get(dbc dbctx.Context, developerID, skillID uuid.UUID) (*types.DeveloperSkill, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.DeveloperSkill
	err := t.WithContext(dbc.Ctx).
		Where("developer_id = ? AND skill_id = ?", developerID, skillID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *developerSkillRepo) ListByDeveloper(dbc dbctx.Context, developerID uuid.UUID) ([]*types.DeveloperSkill, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.DeveloperSkill{}
	if err := t.WithContext(dbc.Ctx).
		Where("developer_id = ?", developerID).
		Order("score DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
