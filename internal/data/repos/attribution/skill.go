package attribution

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type SkillRepo interface {
	GetByPathKey(dbc dbctx.Context, pathKey string) (*types.Skill, error)
	// EnsurePath creates any missing taxonomy nodes along path and returns the leaf.
	EnsurePath(dbc dbctx.Context, path []string) (*types.Skill, error)
}

type skillRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSkillRepo(db *gorm.DB, baseLog *logger.Logger) SkillRepo {
	return &skillRepo{db: db, log: baseLog.With("repo", "SkillRepo")}
}

func (r *skillRepo) GetByPathKey(dbc dbctx.Context, pathKey string) (*types.Skill, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if strings.TrimSpace(pathKey) == "" {
		return nil, nil
	}
	var s types.Skill
	err := t.WithContext(dbc.Ctx).Where("path_key = ?", pathKey).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *skillRepo) EnsurePath(dbc dbctx.Context, path []string) (*types.Skill, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var parent *types.Skill
	segments := make([]string, 0, len(path))
	for _, seg := range path {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
		key := strings.Join(segments, "/")

		node := &types.Skill{
			ID:        uuid.New(),
			Name:      seg,
			PathKey:   key,
			Depth:     len(segments) - 1,
			CreatedAt: time.Now().UTC(),
		}
		if parent != nil {
			pid := parent.ID
			node.ParentID = &pid
		}
		if err := t.WithContext(dbc.Ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "path_key"}},
				DoNothing: true,
			}).
			Create(node).Error; err != nil {
			return nil, err
		}
		got, err := r.GetByPathKey(dbctx.Context{Ctx: dbc.Ctx, Tx: t}, key)
		if err != nil {
			return nil, err
		}
		if got == nil {
			return nil, gorm.ErrRecordNotFound
		}
		parent = got
	}
	return parent, nil
}
