package attribution

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type DeveloperIdentityRepo interface {
	Create(dbc dbctx.Context, ident *types.DeveloperIdentity) error
	// FindByEmails returns identities whose email is in emails, ordered primary first.
	FindByEmails(dbc dbctx.Context, tenantID uuid.UUID, provider string, emails []string) ([]*types.DeveloperIdentity, error)
	FindByLogins(dbc dbctx.Context, tenantID uuid.UUID, provider string, logins []string) ([]*types.DeveloperIdentity, error)
}

type developerIdentityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeveloperIdentityRepo(db *gorm.DB, baseLog *logger.Logger) DeveloperIdentityRepo {
	return &developerIdentityRepo{db: db, log: baseLog.With("repo", "DeveloperIdentityRepo")}
}

func (r *developerIdentityRepo) Create(dbc dbctx.Context, ident *types.DeveloperIdentity) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if ident == nil || ident.DeveloperID == uuid.Nil {
		return nil
	}
	if ident.ID == uuid.Nil {
		ident.ID = uuid.New()
	}
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = time.Now().UTC()
	}
	ident.ProviderLogin = strings.ToLower(strings.TrimSpace(ident.ProviderLogin))
	ident.Email = strings.ToLower(strings.TrimSpace(ident.Email))
	return t.WithContext(dbc.Ctx).Create(ident).Error
}

func (r *developerIdentityRepo) FindByEmails(dbc dbctx.Context, tenantID uuid.UUID, provider string, emails []string) ([]*types.DeveloperIdentity, error) {
	return r.findBy(dbc, tenantID, provider, "email", emails)
}

func (r *developerIdentityRepo) FindByLogins(dbc dbctx.Context, tenantID uuid.UUID, provider string, logins []string) ([]*types.DeveloperIdentity, error) {
	return r.findBy(dbc, tenantID, provider, "provider_login", logins)
}

func (r *developerIdentityRepo) findBy(dbc dbctx.Context, tenantID uuid.UUID, provider, column string, values []string) ([]*types.DeveloperIdentity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.DeveloperIdentity{}
	values = lowerNonEmpty(values)
	if tenantID == uuid.Nil || len(values) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		Where(column+" IN ?", values).
		Order("is_primary DESC").
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func lowerNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
