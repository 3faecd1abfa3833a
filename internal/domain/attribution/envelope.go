package attribution

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ProviderSourceControl = "source-control"
	ProviderIssueTracker  = "issue-tracker"
)

// NormalizeProvider maps vendor aliases onto the two provider families.
func NormalizeProvider(p string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case ProviderSourceControl, "github", "git":
		return ProviderSourceControl, true
	case ProviderIssueTracker, "jira":
		return ProviderIssueTracker, true
	default:
		return "", false
	}
}

// Envelope is one decoded delivery handed to the engine.
type Envelope struct {
	Provider    string          `json:"provider"`
	DeliveryKey string          `json:"delivery_key"`
	EventKind   string          `json:"event_kind"`
	Payload     json.RawMessage `json:"payload"`
	ReceivedAt  time.Time       `json:"received_at"`
}

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
)

const (
	TriageMissingIdentity    = "missing_identity"
	TriageMissingRepoMapping = "missing_repo_mapping"
	TriageWorkflowMissing    = "workflow_missing"
	TriageAmbiguousWorkflow  = "ambiguous_workflow"
	TriageMalformedPayload   = "malformed_payload"
)

// Result describes what one delivery did.
type Result struct {
	Provider     string      `json:"provider"`
	DeliveryKey  string      `json:"delivery_key"`
	EventKind    string      `json:"event_kind"`
	Outcome      Outcome     `json:"outcome"`
	TriageReason string      `json:"triage_reason,omitempty"`
	TenantID     *uuid.UUID  `json:"tenant_id,omitempty"`
	WorkflowIDs  []uuid.UUID `json:"workflow_ids,omitempty"`
	Finalized    []uuid.UUID `json:"finalized,omitempty"`
}

// SkillAssertion is a candidate skill path with confidence, as produced by labeling.
type SkillAssertion struct {
	Path       []string `json:"path"`
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence,omitempty"`
}

// PathKey joins the trimmed, non-empty path segments with "/".
func (a SkillAssertion) PathKey() string {
	return strings.Join(a.CleanPath(), "/")
}

func (a SkillAssertion) CleanPath() []string {
	out := make([]string, 0, len(a.Path))
	for _, seg := range a.Path {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, seg)
	}
	return out
}
