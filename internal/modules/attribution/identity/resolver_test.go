package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	"github.com/yungbote/northstar-backend/internal/data/repos/testutil"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

func candidates(emails, logins []string) events.Candidates {
	var s events.CandidateSet
	for _, e := range emails {
		s.AddEmail(e)
	}
	for _, l := range logins {
		s.AddLogin(l)
	}
	return s.Candidates()
}

func TestResolveEmailBeatsLogin(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	tenant := uuid.New()
	byEmail := testutil.SeedDeveloper(t, ctx, db, tenant, types.ProviderSourceControl, "someone", "octo@acme.dev")
	testutil.SeedDeveloper(t, ctx, db, tenant, types.ProviderSourceControl, "octo", "other@acme.dev")

	r := NewResolver(testutil.Logger(t), set.Developers, set.Identities, false)
	dbc := dbctx.Context{Ctx: ctx, Tx: db}
	m, err := r.Resolve(dbc, tenant, types.ProviderSourceControl, candidates([]string{"OCTO@acme.dev"}, []string{"octo"}))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m == nil || m.DeveloperID != byEmail.ID || m.Source != SourceEmail {
		t.Fatalf("match: want developer=%s via email got=%+v", byEmail.ID, m)
	}
}

func TestResolveScopedToTenant(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	testutil.SeedDeveloper(t, ctx, db, uuid.New(), types.ProviderSourceControl, "octo", "")

	r := NewResolver(testutil.Logger(t), set.Developers, set.Identities, false)
	m, err := r.Resolve(dbctx.Context{Ctx: ctx, Tx: db}, uuid.New(), types.ProviderSourceControl, candidates(nil, []string{"octo"}))
	if err != nil || m != nil {
		t.Fatalf("cross-tenant match: want nil got=%+v err=%v", m, err)
	}
}

func TestProvisionCreatesOneIdentity(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	set := repos.NewSet(db, testutil.Logger(t))
	tenant := uuid.New()
	dbc := dbctx.Context{Ctx: ctx, Tx: db}
	c := candidates([]string{"new@acme.dev"}, []string{"NewDev"})

	disabled := NewResolver(testutil.Logger(t), set.Developers, set.Identities, false)
	if m, err := disabled.Provision(dbc, tenant, types.ProviderSourceControl, c); err != nil || m != nil {
		t.Fatalf("disabled provision: want nil got=%+v err=%v", m, err)
	}

	r := NewResolver(testutil.Logger(t), set.Developers, set.Identities, true)
	m, err := r.Provision(dbc, tenant, types.ProviderSourceControl, c)
	if err != nil || m == nil || m.Source != SourceAutoProvision {
		t.Fatalf("provision: got=%+v err=%v", m, err)
	}
	again, err := r.Resolve(dbc, tenant, types.ProviderSourceControl, candidates(nil, []string{"newdev"}))
	if err != nil || again == nil || again.DeveloperID != m.DeveloperID {
		t.Fatalf("resolve after provision: got=%+v err=%v", again, err)
	}
	var idents int64
	db.Model(&types.DeveloperIdentity{}).Where("developer_id = ?", m.DeveloperID).Count(&idents)
	if idents != 1 {
		t.Fatalf("identities: want=1 got=%d", idents)
	}
}
