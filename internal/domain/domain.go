package domain

import (
	"github.com/yungbote/northstar-backend/internal/domain/attribution"
)

const (
	ProviderSourceControl = attribution.ProviderSourceControl
	ProviderIssueTracker  = attribution.ProviderIssueTracker

	LedgerStatusProcessing = attribution.LedgerStatusProcessing
	LedgerStatusProcessed  = attribution.LedgerStatusProcessed
	LedgerStatusSkipped    = attribution.LedgerStatusSkipped
	LedgerStatusError      = attribution.LedgerStatusError

	OutcomeProcessed = attribution.OutcomeProcessed
	OutcomeSkipped   = attribution.OutcomeSkipped
	OutcomeDuplicate = attribution.OutcomeDuplicate

	TriageMissingIdentity    = attribution.TriageMissingIdentity
	TriageMissingRepoMapping = attribution.TriageMissingRepoMapping
	TriageWorkflowMissing    = attribution.TriageWorkflowMissing
	TriageAmbiguousWorkflow  = attribution.TriageAmbiguousWorkflow
	TriageMalformedPayload   = attribution.TriageMalformedPayload
)

type Envelope = attribution.Envelope
type Outcome = attribution.Outcome
type Result = attribution.Result
type SkillAssertion = attribution.SkillAssertion

type IntegrationEventLog = attribution.IntegrationEventLog
type Developer = attribution.Developer
type DeveloperIdentity = attribution.DeveloperIdentity
type RepositoryMapping = attribution.RepositoryMapping
type IssueProjectMapping = attribution.IssueProjectMapping
type AttributionWorkflow = attribution.AttributionWorkflow
type PeerReviewCredit = attribution.PeerReviewCredit
type AttributionTriage = attribution.AttributionTriage
type Skill = attribution.Skill
type DeveloperSkill = attribution.DeveloperSkill

func NormalizeProvider(p string) (string, bool) { return attribution.NormalizeProvider(p) }

// Models lists every persisted attribution model in migration order.
func Models() []interface{} {
	return []interface{}{
		&IntegrationEventLog{},
		&Developer{},
		&DeveloperIdentity{},
		&RepositoryMapping{},
		&IssueProjectMapping{},
		&AttributionWorkflow{},
		&PeerReviewCredit{},
		&AttributionTriage{},
		&Skill{},
		&DeveloperSkill{},
	}
}
