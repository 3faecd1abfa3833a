package attribution

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	LedgerStatusProcessing = "processing"
	LedgerStatusProcessed  = "processed"
	LedgerStatusSkipped    = "skipped"
	LedgerStatusError      = "error"
)

// IntegrationEventLog is the idempotency record for one webhook delivery.
// The unique (provider, delivery_key) index is the dedup primitive.
type IntegrationEventLog struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Provider    string            `gorm:"column:provider;not null;index:idx_event_log_delivery,unique,priority:1" json:"provider"`
	DeliveryKey string            `gorm:"column:delivery_key;not null;index:idx_event_log_delivery,unique,priority:2" json:"delivery_key"`
	Action      string            `gorm:"column:action" json:"action"`
	Entity      string            `gorm:"column:entity" json:"entity"`
	TenantID    *uuid.UUID        `gorm:"type:uuid;column:tenant_id;index" json:"tenant_id,omitempty"`
	Status      string            `gorm:"column:status;not null;index" json:"status"`
	Attempts    int               `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

func (IntegrationEventLog) TableName() string { return "integration_event_log" }

// Blocks reports whether the record prevents another attempt at the same delivery.
func (r *IntegrationEventLog) Blocks() bool {
	if r == nil {
		return false
	}
	return r.Status != LedgerStatusError
}

type Developer struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`
	Provisioned bool      `gorm:"column:provisioned;not null;default:false" json:"provisioned"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Developer) TableName() string { return "developers" }

// DeveloperIdentity links an external actor (login and/or email) to a developer.
// Login and email are stored lowercased.
type DeveloperIdentity struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DeveloperID   uuid.UUID `gorm:"type:uuid;not null;index" json:"developer_id"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index:idx_identity_email,priority:1;index:idx_identity_login,priority:1" json:"tenant_id"`
	Provider      string    `gorm:"column:provider;not null;index:idx_identity_email,priority:2;index:idx_identity_login,priority:2" json:"provider"`
	ProviderLogin string    `gorm:"column:provider_login;index:idx_identity_login,priority:3" json:"provider_login"`
	Email         string    `gorm:"column:email;index:idx_identity_email,priority:3" json:"email"`
	IsPrimary     bool      `gorm:"column:is_primary;not null;default:false" json:"is_primary"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (DeveloperIdentity) TableName() string { return "developer_identities" }

type RepositoryMapping struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Provider     string     `gorm:"column:provider;not null;index:idx_repo_mapping,unique,priority:1" json:"provider"`
	RepoFullName string     `gorm:"column:repo_full_name;not null;index:idx_repo_mapping,unique,priority:2" json:"repo_full_name"`
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ProjectID    *uuid.UUID `gorm:"type:uuid;column:project_id" json:"project_id,omitempty"`
	Active       bool       `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
}

func (RepositoryMapping) TableName() string { return "repository_mappings" }

// IssueProjectMapping scopes an issue-tracker project key to a tenant.
type IssueProjectMapping struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Provider   string     `gorm:"column:provider;not null;index:idx_issue_project_mapping,unique,priority:1" json:"provider"`
	ProjectKey string     `gorm:"column:project_key;not null;index:idx_issue_project_mapping,unique,priority:2" json:"project_key"`
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ProjectID  *uuid.UUID `gorm:"type:uuid;column:project_id" json:"project_id,omitempty"`
	Active     bool       `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

func (IssueProjectMapping) TableName() string { return "issue_project_mappings" }

// AttributionWorkflow accumulates evidence for one unit of work.
//
// PR-bearing rows are unique per (tenant, repo, pr_number). Rows known only by an
// issue key carry that key in UnlinkedJiraKey as well, which is unique per
// (tenant, repo) and cleared once a PR number attaches.
type AttributionWorkflow struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        uuid.UUID  `gorm:"type:uuid;not null;index:idx_workflow_pr,unique,priority:1;index:idx_workflow_unlinked,unique,priority:1;index:idx_workflow_jira,priority:1" json:"tenant_id"`
	RepoFullName    string     `gorm:"column:repo_full_name;not null;index:idx_workflow_pr,unique,priority:2;index:idx_workflow_unlinked,unique,priority:2;index:idx_workflow_jira,priority:2" json:"repo_full_name"`
	PRNumber        *int       `gorm:"column:pr_number;index:idx_workflow_pr,unique,priority:3" json:"pr_number,omitempty"`
	JiraKey         *string    `gorm:"column:jira_key;index:idx_workflow_jira,priority:3;index:idx_workflow_jira_key" json:"jira_key,omitempty"`
	UnlinkedJiraKey *string    `gorm:"column:unlinked_jira_key;index:idx_workflow_unlinked,unique,priority:3" json:"-"`
	DeveloperID     *uuid.UUID `gorm:"type:uuid;column:developer_id;index" json:"developer_id,omitempty"`
	ProjectID       *uuid.UUID `gorm:"type:uuid;column:project_id" json:"project_id,omitempty"`

	PRCreatedAt *time.Time `gorm:"column:pr_created_at" json:"pr_created_at,omitempty"`
	PRMergedAt  *time.Time `gorm:"column:pr_merged_at" json:"pr_merged_at,omitempty"`
	JiraDoneAt  *time.Time `gorm:"column:jira_done_at" json:"jira_done_at,omitempty"`

	ReviewCycles         int  `gorm:"column:review_cycles;not null;default:0" json:"review_cycles"`
	ApprovalsCount       int  `gorm:"column:approvals_count;not null;default:0" json:"approvals_count"`
	NitCommentCount      int  `gorm:"column:nit_comment_count;not null;default:0" json:"nit_comment_count"`
	MajorReworkRequested bool `gorm:"column:major_rework_requested;not null;default:false" json:"major_rework_requested"`

	PeerReviewCredit   datatypes.JSONType[map[string]float64] `gorm:"column:peer_review_credit" json:"peer_review_credit"`
	TimeToMergeSeconds *int64                                 `gorm:"column:time_to_merge_seconds" json:"time_to_merge_seconds,omitempty"`
	Assertions         datatypes.JSONSlice[SkillAssertion]    `gorm:"column:assertions" json:"assertions"`
	Evidence           datatypes.JSONMap                      `gorm:"column:evidence" json:"evidence,omitempty"`

	CorrelationKey    *string    `gorm:"column:correlation_key" json:"correlation_key,omitempty"`
	BaselineAppliedAt *time.Time `gorm:"column:baseline_applied_at" json:"baseline_applied_at,omitempty"`
	BaselineDelta     *float64   `gorm:"column:baseline_delta" json:"baseline_delta,omitempty"`

	MergedIntoID *uuid.UUID `gorm:"type:uuid;column:merged_into_id;index" json:"merged_into_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AttributionWorkflow) TableName() string { return "attribution_workflows" }

func (w *AttributionWorkflow) Finalized() bool {
	return w != nil && w.BaselineAppliedAt != nil
}

// PeerCredit returns a copy of the reviewer -> credit map.
func (w *AttributionWorkflow) PeerCredit() map[string]float64 {
	out := map[string]float64{}
	if w == nil {
		return out
	}
	for k, v := range w.PeerReviewCredit.Data() {
		out[k] = v
	}
	return out
}

func (w *AttributionWorkflow) PeerCreditTotal() float64 {
	total := 0.0
	for _, v := range w.PeerCredit() {
		total += v
	}
	return total
}

// PeerReviewCredit is an append-only ledger row, one per credited review.
type PeerReviewCredit struct {
	ID                  uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID            uuid.UUID         `gorm:"type:uuid;not null;index:idx_peer_credit_window,priority:1" json:"tenant_id"`
	ReviewerDeveloperID uuid.UUID         `gorm:"type:uuid;not null;index:idx_peer_credit_window,priority:2" json:"reviewer_developer_id"`
	RepoFullName        string            `gorm:"column:repo_full_name;not null;index:idx_peer_credit_repo_pr,priority:1" json:"repo_full_name"`
	PRNumber            int               `gorm:"column:pr_number;not null;index:idx_peer_credit_repo_pr,priority:2" json:"pr_number"`
	CreditValue         float64           `gorm:"column:credit_value;not null" json:"credit_value"`
	SubmittedAt         time.Time         `gorm:"column:submitted_at;not null;index:idx_peer_credit_window,priority:3" json:"submitted_at"`
	WindowStart         time.Time         `gorm:"column:window_start;not null" json:"window_start"`
	WindowEnd           time.Time         `gorm:"column:window_end;not null" json:"window_end"`
	Evidence            datatypes.JSONMap `gorm:"column:evidence" json:"evidence,omitempty"`
	CreatedAt           time.Time         `gorm:"not null" json:"created_at"`
}

func (PeerReviewCredit) TableName() string { return "peer_review_credits" }

type AttributionTriage struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Provider    string         `gorm:"column:provider;not null;index" json:"provider"`
	DeliveryKey string         `gorm:"column:delivery_key;not null;index" json:"delivery_key"`
	Reason      string         `gorm:"column:reason;not null;index" json:"reason"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AttributionTriage) TableName() string { return "attribution_triage" }

// Skill is a node in the skill taxonomy. PathKey is the full path joined by "/".
type Skill struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ParentID  *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parent_id,omitempty"`
	Name      string     `gorm:"column:name;not null" json:"name"`
	PathKey   string     `gorm:"column:path_key;not null;uniqueIndex" json:"path_key"`
	Depth     int        `gorm:"column:depth;not null;default:0" json:"depth"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

func (Skill) TableName() string { return "skills" }

type DeveloperSkill struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DeveloperID uuid.UUID  `gorm:"type:uuid;not null;index:idx_developer_skill,unique,priority:1" json:"developer_id"`
	SkillID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_developer_skill,unique,priority:2" json:"skill_id"`
	ProjectID   *uuid.UUID `gorm:"type:uuid;column:project_id" json:"project_id,omitempty"`
	Score       float64    `gorm:"column:score;not null;default:0" json:"score"`
	Confidence  float64    `gorm:"column:confidence;not null;default:0" json:"confidence"`
	EvidenceRef string     `gorm:"column:evidence_ref" json:"evidence_ref"`
	LastSeenAt  time.Time  `gorm:"column:last_seen_at;not null" json:"last_seen_at"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
}

func (DeveloperSkill) TableName() string { return "developer_skills" }
