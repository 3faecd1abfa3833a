// Package repocontext maps repositories and issue projects onto tenants.
// Lookups are exact; the engine never guesses a tenant.
package repocontext

import (
	"strings"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type Resolver interface {
	// Repository returns the active mapping for (source-control, repoFullName), or nil.
	Repository(dbc dbctx.Context, repoFullName string) (*types.RepositoryMapping, error)
	// IssueProject returns the active mapping for an issue project key, or nil.
	IssueProject(dbc dbctx.Context, projectKey string) (*types.IssueProjectMapping, error)
}

type resolver struct {
	log      *logger.Logger
	repoMaps repos.RepositoryMappingRepo
	projects repos.IssueProjectMappingRepo
}

func NewResolver(log *logger.Logger, repoMaps repos.RepositoryMappingRepo, projects repos.IssueProjectMappingRepo) Resolver {
	return &resolver{log: log.With("service", "ContextResolver"), repoMaps: repoMaps, projects: projects}
}

func (r *resolver) Repository(dbc dbctx.Context, repoFullName string) (*types.RepositoryMapping, error) {
	repoFullName = strings.TrimSpace(repoFullName)
	if repoFullName == "" {
		return nil, nil
	}
	m, err := r.repoMaps.GetActive(dbc, types.ProviderSourceControl, repoFullName)
	if err != nil {
		return nil, err
	}
	if m == nil {
		r.log.Debug("repo mapping missing", "repo", repoFullName)
	}
	return m, nil
}

func (r *resolver) IssueProject(dbc dbctx.Context, projectKey string) (*types.IssueProjectMapping, error) {
	projectKey = strings.TrimSpace(projectKey)
	if projectKey == "" || r.projects == nil {
		return nil, nil
	}
	return r.projects.GetActive(dbc, types.ProviderIssueTracker, projectKey)
}
