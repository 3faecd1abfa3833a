package repos

import (
	"github.com/yungbote/northstar-backend/internal/data/repos/attribution"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type IntegrationEventLogRepo = attribution.IntegrationEventLogRepo
type DeveloperRepo = attribution.DeveloperRepo
type DeveloperIdentityRepo = attribution.DeveloperIdentityRepo
type RepositoryMappingRepo = attribution.RepositoryMappingRepo
type IssueProjectMappingRepo = attribution.IssueProjectMappingRepo
type AttributionWorkflowRepo = attribution.AttributionWorkflowRepo
type PeerReviewCreditRepo = attribution.PeerReviewCreditRepo
type AttributionTriageRepo = attribution.AttributionTriageRepo
type SkillRepo = attribution.SkillRepo
type DeveloperSkillRepo = attribution.DeveloperSkillRepo

// Set bundles every attribution repo built over one handle.
type Set struct {
	EventLog        IntegrationEventLogRepo
	Developers      DeveloperRepo
	Identities      DeveloperIdentityRepo
	RepoMappings    RepositoryMappingRepo
	IssueProjects   IssueProjectMappingRepo
	Workflows       AttributionWorkflowRepo
	PeerCredits     PeerReviewCreditRepo
	Triage          AttributionTriageRepo
	Skills          SkillRepo
	DeveloperSkills DeveloperSkillRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		EventLog:        attribution.NewIntegrationEventLogRepo(db, log),
		Developers:      attribution.NewDeveloperRepo(db, log),
		Identities:      attribution.NewDeveloperIdentityRepo(db, log),
		RepoMappings:    attribution.NewRepositoryMappingRepo(db, log),
		IssueProjects:   attribution.NewIssueProjectMappingRepo(db, log),
		Workflows:       attribution.NewAttributionWorkflowRepo(db, log),
		PeerCredits:     attribution.NewPeerReviewCreditRepo(db, log),
		Triage:          attribution.NewAttributionTriageRepo(db, log),
		Skills:          attribution.NewSkillRepo(db, log),
		DeveloperSkills: attribution.NewDeveloperSkillRepo(db, log),
	}
}
