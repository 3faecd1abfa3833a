package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/issuetracker"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/sourcecontrol"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

// Ledger-only reasons. They never produce a triage row.
const (
	reasonUnsupported     = "unsupported_event"
	reasonNoCorrelation   = "no_correlation_key"
	reasonIssueNotDone    = "issue_not_done"
	reasonReviewerUnknown = "reviewer_unresolved"
)

// DeliveryKeyOf returns the envelope's key, else the payload's delivery_guid,
// else <event_kind>:<sha256(payload)> so replays of identical bytes collide.
func DeliveryKeyOf(env types.Envelope) string {
	if k := strings.TrimSpace(env.DeliveryKey); k != "" {
		return k
	}
	if len(env.Payload) == 0 {
		return ""
	}
	if guid := strings.TrimSpace(gjson.GetBytes(env.Payload, "delivery_guid").String()); guid != "" {
		return guid
	}
	if env.Provider == types.ProviderIssueTracker {
		if k := issuetracker.DeliveryKey(env.Payload); k != "" {
			return k
		}
	}
	sum := sha256.Sum256(env.Payload)
	kind := strings.TrimSpace(env.EventKind)
	if kind == "" {
		kind = "event"
	}
	return kind + ":" + hex.EncodeToString(sum[:])
}

func decode(provider, kind string, payload []byte) (events.Event, error) {
	switch provider {
	case types.ProviderSourceControl:
		return sourcecontrol.Decode(kind, payload)
	case types.ProviderIssueTracker:
		return issuetracker.Decode(kind, payload)
	default:
		return nil, fmt.Errorf("%w: provider %q", events.ErrMalformedPayload, provider)
	}
}

// entityOf names the unit of work a delivery is about, for the ledger row.
func entityOf(ev events.Event) string {
	switch v := ev.(type) {
	case events.PushEvent:
		if v.PRNumber != nil {
			return fmt.Sprintf("%s#%d", v.Repo, *v.PRNumber)
		}
		if len(v.JiraKeys) > 0 {
			return v.Repo + "#" + v.JiraKeys[0]
		}
		return v.Repo
	case events.PullRequestEvent:
		return fmt.Sprintf("%s#%d", v.Repo, v.Number)
	case events.ReviewEvent:
		return fmt.Sprintf("%s#%d", v.Repo, v.PRNumber)
	case events.ReviewCommentEvent:
		return fmt.Sprintf("%s#%d", v.Repo, v.PRNumber)
	case events.IssueTransitionEvent:
		return v.IssueKey
	default:
		return ""
	}
}

// delivery is the per-transaction state of one handler run.
type delivery struct {
	env        types.Envelope
	event      events.Event
	assertions []types.SkillAssertion
	out        *outcome
}

func (d *delivery) evidenceKey(prefix string) string {
	return prefix + ":" + d.env.DeliveryKey
}

// receivedAt is the fallback timestamp for events that omit their own.
func (d *delivery) receivedAt() time.Time {
	if d.env.ReceivedAt.IsZero() {
		return time.Now().UTC()
	}
	return d.env.ReceivedAt.UTC()
}

// skip ends the delivery as skipped. Triage reasons also write a triage row.
func (d *delivery) skip(dbc dbctx.Context, e *Engine, reason string, payload []byte) error {
	d.out.status = types.LedgerStatusSkipped
	d.out.reason = reason
	if !isTriageReason(reason) {
		return nil
	}
	return e.triage.Record(dbc, d.env.Provider, d.env.DeliveryKey, reason, payload)
}

// triageOnly records a triage row for one sub-unit without ending the delivery.
func (d *delivery) triageOnly(dbc dbctx.Context, e *Engine, reason string, payload []byte) error {
	if d.out.reason == "" {
		d.out.reason = reason
	}
	return e.triage.Record(dbc, d.env.Provider, d.env.DeliveryKey, reason, payload)
}

func (e *Engine) dispatch(dbc dbctx.Context, d *delivery) error {
	switch ev := d.event.(type) {
	case events.PushEvent:
		return e.handlePush(dbc, d, ev)
	case events.PullRequestEvent:
		return e.handlePullRequest(dbc, d, ev)
	case events.ReviewEvent:
		return e.handleReview(dbc, d, ev)
	case events.ReviewCommentEvent:
		return e.handleReviewComment(dbc, d, ev)
	case events.IssueTransitionEvent:
		return e.handleIssueTransition(dbc, d, ev)
	case events.UnsupportedEvent:
		d.out.setMeta("event_kind", ev.EventKind)
		return d.skip(dbc, e, reasonUnsupported, nil)
	default:
		return d.skip(dbc, e, reasonUnsupported, nil)
	}
}

// developer resolves candidates in tenant, provisioning one when enabled.
func (e *Engine) developer(dbc dbctx.Context, tenantID uuid.UUID, provider string, c events.Candidates) (*uuid.UUID, error) {
	m, err := e.identity.Resolve(dbc, tenantID, provider, c)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m, err = e.identity.Provision(dbc, tenantID, provider, c)
		if err != nil {
			return nil, err
		}
	}
	if m == nil {
		return nil, nil
	}
	id := m.DeveloperID
	return &id, nil
}
