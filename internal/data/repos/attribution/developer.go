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

type DeveloperRepo interface {
	Create(dbc dbctx.Context, dev *types.Developer) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Developer, error)
	// LockByID takes a row lock on the developer for the rest of the transaction.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Developer, error)
}

type developerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeveloperRepo(db *gorm.DB, baseLog *logger.Logger) DeveloperRepo {
	return &developerRepo{db: db, log: baseLog.With("repo", "DeveloperRepo")}
}

func (r *developerRepo) Create(dbc dbctx.Context, dev *types.Developer) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if dev == nil {
		return nil
	}
	now := time.Now().UTC()
	if dev.ID == uuid.Nil {
		dev.ID = uuid.New()
	}
	if dev.CreatedAt.IsZero() {
		dev.CreatedAt = now
	}
	dev.UpdatedAt = now
	return t.WithContext(dbc.Ctx).Create(dev).Error
}

func (r *developerRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Developer, error) {
	return r.get(dbc, id, false)
}

func (r *developerRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Developer, error) {
	return r.get(dbc, id, true)
}

func (r *developerRepo) get(dbc dbctx.Context, id uuid.UUID, lock bool) (*types.Developer, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	q := t.WithContext(dbc.Ctx).Where("id = ?", id)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var dev types.Developer
	if err := q.Take(&dev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dev, nil
}
