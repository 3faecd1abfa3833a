package attribution

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type RepositoryMappingRepo interface {
	GetActive(dbc dbctx.Context, provider, repoFullName string) (*types.RepositoryMapping, error)
}

type repositoryMappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepositoryMappingRepo(db *gorm.DB, baseLog *logger.Logger) RepositoryMappingRepo {
	return &repositoryMappingRepo{db: db, log: baseLog.With("repo", "RepositoryMappingRepo")}
}

func (r *repositoryMappingRepo) GetActive(dbc dbctx.Context, provider, repoFullName string) (*types.RepositoryMapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	repoFullName = strings.TrimSpace(repoFullName)
	if provider == "" || repoFullName == "" {
		return nil, nil
	}
	var row types.RepositoryMapping
	err := t.WithContext(dbc.Ctx).
		Where("provider = ? AND repo_full_name = ? AND active = ?", provider, repoFullName, true).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type IssueProjectMappingRepo interface {
	GetActive(dbc dbctx.Context, provider, projectKey string) (*types.IssueProjectMapping, error)
}

type issueProjectMappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIssueProjectMappingRepo(db *gorm.DB, baseLog *logger.Logger) IssueProjectMappingRepo {
	return &issueProjectMappingRepo{db: db, log: baseLog.With("repo", "IssueProjectMappingRepo")}
}

func (r *issueProjectMappingRepo) GetActive(dbc dbctx.Context, provider, projectKey string) (*types.IssueProjectMapping, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	projectKey = strings.ToUpper(strings.TrimSpace(projectKey))
	if provider == "" || projectKey == "" {
		return nil, nil
	}
	var row types.IssueProjectMapping
	err := t.WithContext(dbc.Ctx).
		Where("provider = ? AND project_key = ? AND active = ?", provider, projectKey, true).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
