// Package identity maps external actor strings onto developers of one tenant.
package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

const (
	SourceEmail         = "email"
	SourceLogin         = "login"
	SourceAutoProvision = "autoprovision"
)

type Match struct {
	DeveloperID uuid.UUID
	TenantID    uuid.UUID
	Source      string
}

type Resolver interface {
	// Resolve tries every candidate email, then every login, in candidate order.
	// Matching is exact on lowercased values. It returns nil when nothing matches.
	Resolve(dbc dbctx.Context, tenantID uuid.UUID, provider string, c events.Candidates) (*Match, error)
	// Provision creates one developer and primary identity from the first
	// available login or email. It returns nil when disabled or c is empty.
	Provision(dbc dbctx.Context, tenantID uuid.UUID, provider string, c events.Candidates) (*Match, error)
}

type resolver struct {
	log           *logger.Logger
	developers    repos.DeveloperRepo
	identities    repos.DeveloperIdentityRepo
	autoProvision bool
}

func NewResolver(log *logger.Logger, developers repos.DeveloperRepo, identities repos.DeveloperIdentityRepo, autoProvision bool) Resolver {
	return &resolver{
		log:           log.With("service", "IdentityResolver"),
		developers:    developers,
		identities:    identities,
		autoProvision: autoProvision,
	}
}

func (r *resolver) Resolve(dbc dbctx.Context, tenantID uuid.UUID, provider string, c events.Candidates) (*Match, error) {
	if tenantID == uuid.Nil || c.Empty() {
		return nil, nil
	}
	if len(c.Emails) > 0 {
		found, err := r.identities.FindByEmails(dbc, tenantID, provider, c.Emails)
		if err != nil {
			return nil, err
		}
		if m := firstInOrder(c.Emails, found, func(i *types.DeveloperIdentity) string { return i.Email }); m != nil {
			return &Match{DeveloperID: m.DeveloperID, TenantID: m.TenantID, Source: SourceEmail}, nil
		}
	}
	if len(c.Logins) > 0 {
		found, err := r.identities.FindByLogins(dbc, tenantID, provider, c.Logins)
		if err != nil {
			return nil, err
		}
		if m := firstInOrder(c.Logins, found, func(i *types.DeveloperIdentity) string { return i.ProviderLogin }); m != nil {
			return &Match{DeveloperID: m.DeveloperID, TenantID: m.TenantID, Source: SourceLogin}, nil
		}
	}
	return nil, nil
}

// firstInOrder keeps the repo's primary-first ordering among identities sharing a value.
func firstInOrder(wanted []string, found []*types.DeveloperIdentity, key func(*types.DeveloperIdentity) string) *types.DeveloperIdentity {
	byValue := make(map[string]*types.DeveloperIdentity, len(found))
	for _, ident := range found {
		k := strings.ToLower(key(ident))
		if _, ok := byValue[k]; !ok {
			byValue[k] = ident
		}
	}
	for _, w := range wanted {
		if ident, ok := byValue[strings.ToLower(w)]; ok {
			return ident
		}
	}
	return nil
}

func (r *resolver) Provision(dbc dbctx.Context, tenantID uuid.UUID, provider string, c events.Candidates) (*Match, error) {
	if !r.autoProvision || tenantID == uuid.Nil || c.Empty() {
		return nil, nil
	}
	login, email := c.First()
	name := login
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	now := time.Now().UTC()
	dev := &types.Developer{
		ID:          uuid.New(),
		TenantID:    tenantID,
		DisplayName: name,
		Provisioned: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.developers.Create(dbc, dev); err != nil {
		return nil, err
	}
	ident := &types.DeveloperIdentity{
		ID:            uuid.New(),
		DeveloperID:   dev.ID,
		TenantID:      tenantID,
		Provider:      provider,
		ProviderLogin: login,
		Email:         email,
		IsPrimary:     true,
		CreatedAt:     now,
	}
	if err := r.identities.Create(dbc, ident); err != nil {
		return nil, err
	}
	r.log.Info("developer auto-provisioned", "developer_id", dev.ID, "tenant_id", tenantID, "login", login)
	return &Match{DeveloperID: dev.ID, TenantID: tenantID, Source: SourceAutoProvision}, nil
}
