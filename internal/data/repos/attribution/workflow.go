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

type AttributionWorkflowRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AttributionWorkflow, error)
	// FindLiveForUpdate locks every unmerged workflow in (tenant, repo) matching the
	// PR number or the issue key, oldest first.
	FindLiveForUpdate(dbc dbctx.Context, tenantID uuid.UUID, repo string, prNumber *int, jiraKey *string) ([]*types.AttributionWorkflow, error)
	// FindLiveByJiraKeyForUpdate locks every unmerged workflow carrying jiraKey.
	// A nil tenantID searches across tenants.
	FindLiveByJiraKeyForUpdate(dbc dbctx.Context, tenantID *uuid.UUID, jiraKey string) ([]*types.AttributionWorkflow, error)
	// CreateIfAbsent inserts wf unless a row with the same natural key exists.
	CreateIfAbsent(dbc dbctx.Context, wf *types.AttributionWorkflow) (bool, error)
	Save(dbc dbctx.Context, wf *types.AttributionWorkflow) error
	ListByDeveloper(dbc dbctx.Context, developerID uuid.UUID) ([]*types.AttributionWorkflow, error)
}

type attributionWorkflowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttributionWorkflowRepo(db *gorm.DB, baseLog *logger.Logger) AttributionWorkflowRepo {
	return &attributionWorkflowRepo{db: db, log: baseLog.With("repo", "AttributionWorkflowRepo")}
}

func (r *attributionWorkflowRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AttributionWorkflow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var wf types.AttributionWorkflow
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).Take(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *attributionWorkflowRepo) FindLiveForUpdate(dbc dbctx.Context, tenantID uuid.UUID, repo string, prNumber *int, jiraKey *string) ([]*types.AttributionWorkflow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.AttributionWorkflow{}
	key := ""
	if jiraKey != nil {
		key = strings.TrimSpace(*jiraKey)
	}
	if tenantID == uuid.Nil || (prNumber == nil && key == "") {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND repo_full_name = ? AND merged_into_id IS NULL", tenantID, repo)
	switch {
	case prNumber != nil && key != "":
		q = q.Where("(pr_number = ? OR jira_key = ?)", *prNumber, key)
	case prNumber != nil:
		q = q.Where("pr_number = ?", *prNumber)
	default:
		q = q.Where("jira_key = ?", key)
	}
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *attributionWorkflowRepo) FindLiveByJiraKeyForUpdate(dbc dbctx.Context, tenantID *uuid.UUID, jiraKey string) ([]*types.AttributionWorkflow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.AttributionWorkflow{}
	jiraKey = strings.TrimSpace(jiraKey)
	if jiraKey == "" {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("jira_key = ? AND merged_into_id IS NULL", jiraKey)
	if tenantID != nil && *tenantID != uuid.Nil {
		q = q.Where("tenant_id = ?", *tenantID)
	}
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *attributionWorkflowRepo) CreateIfAbsent(dbc dbctx.Context, wf *types.AttributionWorkflow) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if wf == nil || wf.TenantID == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(wf)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *attributionWorkflowRepo) Save(dbc dbctx.Context, wf *types.AttributionWorkflow) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if wf == nil || wf.ID == uuid.Nil {
		return nil
	}
	wf.UpdatedAt = time.Now().UTC()
	return t.WithContext(dbc.Ctx).Save(wf).Error
}

func (r *attributionWorkflowRepo) ListByDeveloper(dbc dbctx.Context, developerID uuid.UUID) ([]*types.AttributionWorkflow, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.AttributionWorkflow{}
	if developerID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("developer_id = ? AND merged_into_id IS NULL", developerID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
