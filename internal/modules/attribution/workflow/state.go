package workflow

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
)

// Deferral reasons logged when finalization waits for more evidence.
const (
	DeferMissingDeveloper   = "missing_developer"
	DeferMissingPRMerge     = "missing_pr_merge"
	DeferMissingJiraDone    = "missing_jira_done"
	DeferAlreadyApplied     = "already_applied"
	DeferMergedBeforeCreate = "merged_before_created"
)

// Deferral returns why wf cannot be finalized yet, or "" when it can.
func Deferral(wf *types.AttributionWorkflow) string {
	switch {
	case wf.Finalized():
		return DeferAlreadyApplied
	case wf.DeveloperID == nil:
		return DeferMissingDeveloper
	case wf.PRMergedAt == nil:
		return DeferMissingPRMerge
	case wf.JiraDoneAt == nil:
		return DeferMissingJiraDone
	case wf.PRCreatedAt != nil && wf.PRMergedAt.Before(*wf.PRCreatedAt):
		return DeferMergedBeforeCreate
	}
	return ""
}

// AppendEvidence stores payload verbatim under key. Invalid JSON is kept as a string.
func AppendEvidence(wf *types.AttributionWorkflow, key string, payload json.RawMessage) {
	if wf.Evidence == nil {
		wf.Evidence = datatypes.JSONMap{}
	}
	switch {
	case len(payload) == 0:
		wf.Evidence[key] = nil
	case json.Valid(payload):
		var v any
		_ = json.Unmarshal(payload, &v)
		wf.Evidence[key] = v
	default:
		wf.Evidence[key] = string(payload)
	}
}

// ReplaceAssertions swaps in a fresh label set. An empty set leaves the current one.
func ReplaceAssertions(wf *types.AttributionWorkflow, as []types.SkillAssertion) bool {
	if len(as) == 0 {
		return false
	}
	wf.Assertions = datatypes.JSONSlice[types.SkillAssertion](append([]types.SkillAssertion(nil), as...))
	return true
}

// AttachDeveloper sets the developer. Only an authoritative source replaces an existing one.
func AttachDeveloper(wf *types.AttributionWorkflow, id uuid.UUID, authoritative bool) {
	if id == uuid.Nil {
		return
	}
	if wf.DeveloperID == nil || authoritative {
		wf.DeveloperID = &id
	}
}

func AttachProject(wf *types.AttributionWorkflow, projectID *uuid.UUID) {
	if wf.ProjectID == nil && projectID != nil {
		p := *projectID
		wf.ProjectID = &p
	}
}

// ApplyReview counts one submitted review. major_rework_requested is sticky.
func ApplyReview(wf *types.AttributionWorkflow, state string) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case events.ReviewApproved:
		wf.ApprovalsCount++
	case events.ReviewChangesRequested:
		wf.ReviewCycles++
		wf.MajorReworkRequested = true
	default:
		wf.NitCommentCount++
	}
}

func AddPeerCredit(wf *types.AttributionWorkflow, reviewer uuid.UUID, credit float64) {
	if credit == 0 || reviewer == uuid.Nil {
		return
	}
	m := wf.PeerCredit()
	m[reviewer.String()] += credit
	wf.PeerReviewCredit = datatypes.NewJSONType(m)
}

// SetCreatedAt keeps the earliest known creation time.
func SetCreatedAt(wf *types.AttributionWorkflow, at *time.Time) {
	if at == nil {
		return
	}
	if wf.PRCreatedAt == nil || at.Before(*wf.PRCreatedAt) {
		t := at.UTC()
		wf.PRCreatedAt = &t
	}
}

// SetMergedAt records the first merge time seen; later deliveries never move it.
func SetMergedAt(wf *types.AttributionWorkflow, at time.Time) {
	if wf.PRMergedAt == nil {
		t := at.UTC()
		wf.PRMergedAt = &t
	}
}

// SetDoneAt records the first done transition seen.
func SetDoneAt(wf *types.AttributionWorkflow, at time.Time) {
	if wf.JiraDoneAt == nil {
		t := at.UTC()
		wf.JiraDoneAt = &t
	}
}

// Merge folds src into dst and marks src as merged. Counters add, sticky flags OR,
// timestamps keep the first known value, and dst wins on evidence key clashes.
func Merge(dst, src *types.AttributionWorkflow) {
	dst.ReviewCycles += src.ReviewCycles
	dst.ApprovalsCount += src.ApprovalsCount
	dst.NitCommentCount += src.NitCommentCount
	dst.MajorReworkRequested = dst.MajorReworkRequested || src.MajorReworkRequested

	SetCreatedAt(dst, src.PRCreatedAt)
	if src.PRMergedAt != nil {
		SetMergedAt(dst, *src.PRMergedAt)
	}
	if src.JiraDoneAt != nil {
		SetDoneAt(dst, *src.JiraDoneAt)
	}
	if src.DeveloperID != nil {
		AttachDeveloper(dst, *src.DeveloperID, false)
	}
	AttachProject(dst, src.ProjectID)
	if dst.JiraKey == nil && src.JiraKey != nil {
		k := *src.JiraKey
		dst.JiraKey = &k
	}

	for reviewer, credit := range src.PeerCredit() {
		if id, err := uuid.Parse(reviewer); err == nil {
			AddPeerCredit(dst, id, credit)
		}
	}
	for k, v := range src.Evidence {
		if dst.Evidence == nil {
			dst.Evidence = datatypes.JSONMap{}
		}
		if _, ok := dst.Evidence[k]; !ok {
			dst.Evidence[k] = v
		}
	}
	if len(dst.Assertions) == 0 && len(src.Assertions) > 0 {
		dst.Assertions = append(datatypes.JSONSlice[types.SkillAssertion]{}, src.Assertions...)
	}
	if src.Finalized() && !dst.Finalized() {
		at := *src.BaselineAppliedAt
		dst.BaselineAppliedAt = &at
		if src.BaselineDelta != nil {
			d := *src.BaselineDelta
			dst.BaselineDelta = &d
		}
		if dst.CorrelationKey == nil && src.CorrelationKey != nil {
			c := *src.CorrelationKey
			dst.CorrelationKey = &c
		}
	}

	id := dst.ID
	src.MergedIntoID = &id
	src.UnlinkedJiraKey = nil
}

// CorrelationKey is repo#pr, or repo#issue when no PR is known.
func CorrelationKey(wf *types.AttributionWorkflow) string {
	switch {
	case wf.PRNumber != nil:
		return wf.RepoFullName + "#" + strconv.Itoa(*wf.PRNumber)
	case wf.JiraKey != nil:
		return wf.RepoFullName + "#" + *wf.JiraKey
	default:
		return wf.RepoFullName + "#n/a"
	}
}

// EvidenceRef identifies the unit of work on a skill ledger row.
func EvidenceRef(wf *types.AttributionWorkflow) string {
	pr, key := "none", "none"
	if wf.PRNumber != nil {
		pr = strconv.Itoa(*wf.PRNumber)
	}
	if wf.JiraKey != nil {
		key = *wf.JiraKey
	}
	return "repo=" + wf.RepoFullName + ",pr=" + pr + ",jira=" + key
}
