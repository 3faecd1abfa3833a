package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"gorm.io/gorm"
)

func SeedRepositoryMapping(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, repo string, projectID *uuid.UUID) *types.RepositoryMapping {
	tb.Helper()
	m := &types.RepositoryMapping{
		ID:           uuid.New(),
		Provider:     types.ProviderSourceControl,
		RepoFullName: repo,
		TenantID:     tenantID,
		ProjectID:    projectID,
		Active:       true,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed repository mapping: %v", err)
	}
	return m
}

func SeedIssueProjectMapping(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, projectKey string) *types.IssueProjectMapping {
	tb.Helper()
	m := &types.IssueProjectMapping{
		ID:         uuid.New(),
		Provider:   types.ProviderIssueTracker,
		ProjectKey: projectKey,
		TenantID:   tenantID,
		Active:     true,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed issue project mapping: %v", err)
	}
	return m
}

// SeedDeveloper creates a developer with one identity for the given provider.
func SeedDeveloper(tb testing.TB, ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, provider, login, email string) *types.Developer {
	tb.Helper()
	dev := &types.Developer{
		ID:          uuid.New(),
		TenantID:    tenantID,
		DisplayName: login,
	}
	if err := tx.WithContext(ctx).Create(dev).Error; err != nil {
		tb.Fatalf("seed developer: %v", err)
	}
	ident := &types.DeveloperIdentity{
		ID:            uuid.New(),
		DeveloperID:   dev.ID,
		TenantID:      tenantID,
		Provider:      provider,
		ProviderLogin: strings.ToLower(login),
		Email:         strings.ToLower(email),
		IsPrimary:     true,
	}
	if err := tx.WithContext(ctx).Create(ident).Error; err != nil {
		tb.Fatalf("seed developer identity: %v", err)
	}
	return dev
}

func SeedWorkflow(tb testing.TB, ctx context.Context, tx *gorm.DB, wf *types.AttributionWorkflow) *types.AttributionWorkflow {
	tb.Helper()
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if wf.Evidence == nil {
		wf.Evidence = map[string]interface{}{}
	}
	if wf.Assertions == nil {
		wf.Assertions = []types.SkillAssertion{}
	}
	if wf.PRNumber == nil && wf.JiraKey != nil {
		k := *wf.JiraKey
		wf.UnlinkedJiraKey = &k
	}
	if err := tx.WithContext(ctx).Create(wf).Error; err != nil {
		tb.Fatalf("seed workflow: %v", err)
	}
	return wf
}

func Ptr[T any](v T) *T { return &v }

func UTC(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}
