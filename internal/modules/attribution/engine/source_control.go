package engine

import (
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/peercredit"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/workflow"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

// mapping resolves the repository's tenant or skips the delivery to triage.
func (e *Engine) mapping(dbc dbctx.Context, d *delivery, repo string, payload []byte) (*types.RepositoryMapping, error) {
	m, err := e.mappings.Repository(dbc, repo)
	if err != nil {
		return nil, err
	}
	if m == nil {
		d.out.setMeta("repo", repo)
		return nil, d.skip(dbc, e, types.TriageMissingRepoMapping, payload)
	}
	d.out.setMeta("repo", m.RepoFullName)
	t := m.TenantID
	d.out.tenant = &t
	return m, nil
}

// Push never finalizes. Each distinct issue key gets its own workflow.
func (e *Engine) handlePush(dbc dbctx.Context, d *delivery, ev events.PushEvent) error {
	m, err := e.mapping(dbc, d, ev.Repo, ev.Payload)
	if m == nil || err != nil {
		return err
	}
	dev, err := e.developer(dbc, m.TenantID, d.env.Provider, ev.Actors)
	if err != nil {
		return err
	}
	if dev == nil {
		return d.skip(dbc, e, types.TriageMissingIdentity, ev.Payload)
	}

	var keys []workflow.Key
	for _, k := range ev.JiraKeys {
		keys = append(keys, workflow.Key{TenantID: m.TenantID, Repo: m.RepoFullName, PRNumber: ev.PRNumber, JiraKey: k})
	}
	if len(keys) == 0 && ev.PRNumber != nil {
		keys = append(keys, workflow.Key{TenantID: m.TenantID, Repo: m.RepoFullName, PRNumber: ev.PRNumber})
	}
	if len(keys) == 0 {
		return d.skip(dbc, e, reasonNoCorrelation, nil)
	}

	for _, k := range keys {
		wf, err := e.workflows.FindOrCreate(dbc, k)
		if err != nil {
			return err
		}
		workflow.AttachDeveloper(wf, *dev, false)
		workflow.AttachProject(wf, m.ProjectID)
		workflow.AppendEvidence(wf, d.evidenceKey("push"), ev.Payload)
		workflow.ReplaceAssertions(wf, d.assertions)
		if err := e.workflows.Save(dbc, wf); err != nil {
			return err
		}
		d.out.touch(wf)
	}
	return nil
}

// The pull request author is authoritative for the workflow's developer.
func (e *Engine) handlePullRequest(dbc dbctx.Context, d *delivery, ev events.PullRequestEvent) error {
	m, err := e.mapping(dbc, d, ev.Repo, ev.Payload)
	if m == nil || err != nil {
		return err
	}
	dev, err := e.developer(dbc, m.TenantID, d.env.Provider, ev.Actors)
	if err != nil {
		return err
	}
	if dev == nil {
		return d.skip(dbc, e, types.TriageMissingIdentity, ev.Payload)
	}

	number := ev.Number
	wf, err := e.workflows.FindOrCreate(dbc, workflow.Key{TenantID: m.TenantID, Repo: m.RepoFullName, PRNumber: &number, JiraKey: ev.JiraKey})
	if err != nil {
		return err
	}
	workflow.AttachDeveloper(wf, *dev, true)
	workflow.AttachProject(wf, m.ProjectID)
	workflow.SetCreatedAt(wf, ev.CreatedAt)
	workflow.AppendEvidence(wf, d.evidenceKey("pr"), ev.Payload)
	workflow.ReplaceAssertions(wf, d.assertions)
	if ev.Merged {
		at := d.receivedAt()
		if ev.MergedAt != nil {
			at = *ev.MergedAt
		}
		workflow.SetMergedAt(wf, at)
	}
	d.out.setMeta("action", ev.Action)
	return e.saveAndFinalize(dbc, d, wf, m)
}

func (e *Engine) handleReview(dbc dbctx.Context, d *delivery, ev events.ReviewEvent) error {
	m, err := e.mapping(dbc, d, ev.Repo, ev.Review)
	if m == nil || err != nil {
		return err
	}
	number := ev.PRNumber
	wf, err := e.workflows.FindOrCreate(dbc, workflow.Key{TenantID: m.TenantID, Repo: m.RepoFullName, PRNumber: &number, JiraKey: ev.JiraKey})
	if err != nil {
		return err
	}
	if err := e.fallbackDeveloper(dbc, d, wf, m, ev.Author); err != nil {
		return err
	}
	workflow.AttachProject(wf, m.ProjectID)
	workflow.ApplyReview(wf, ev.State)
	workflow.AppendEvidence(wf, d.evidenceKey("review"), ev.Review)
	d.out.setMeta("review_state", ev.State)

	reviewer, err := e.identity.Resolve(dbc, m.TenantID, d.env.Provider, ev.Actors)
	if err != nil {
		return err
	}
	switch {
	case reviewer == nil:
		d.out.setMeta("peer_credit", reasonReviewerUnknown)
	case wf.DeveloperID != nil && reviewer.DeveloperID != *wf.DeveloperID:
		submitted := d.receivedAt()
		if ev.SubmittedAt != nil {
			submitted = *ev.SubmittedAt
		}
		credit, err := e.peer.Allocate(dbc, peercredit.AllocateInput{
			TenantID:    m.TenantID,
			ReviewerID:  reviewer.DeveloperID,
			Repo:        m.RepoFullName,
			PRNumber:    ev.PRNumber,
			SubmittedAt: submitted,
			Evidence:    map[string]interface{}{"delivery": d.env.DeliveryKey, "review_id": ev.ReviewID, "state": ev.State},
		})
		if err != nil {
			return err
		}
		if credit > 0 {
			workflow.AddPeerCredit(wf, reviewer.DeveloperID, credit)
		}
		d.out.setMeta("peer_credit", credit)
	}
	return e.saveAndFinalize(dbc, d, wf, m)
}

func (e *Engine) handleReviewComment(dbc dbctx.Context, d *delivery, ev events.ReviewCommentEvent) error {
	m, err := e.mapping(dbc, d, ev.Repo, ev.Comment)
	if m == nil || err != nil {
		return err
	}
	number := ev.PRNumber
	wf, err := e.workflows.FindOrCreate(dbc, workflow.Key{TenantID: m.TenantID, Repo: m.RepoFullName, PRNumber: &number, JiraKey: ev.JiraKey})
	if err != nil {
		return err
	}
	if err := e.fallbackDeveloper(dbc, d, wf, m, ev.Author); err != nil {
		return err
	}
	workflow.AttachProject(wf, m.ProjectID)
	wf.NitCommentCount++
	workflow.AppendEvidence(wf, d.evidenceKey("review_comment"), ev.Comment)
	return e.saveAndFinalize(dbc, d, wf, m)
}

// fallbackDeveloper fills a missing developer from the pull request author.
func (e *Engine) fallbackDeveloper(dbc dbctx.Context, d *delivery, wf *types.AttributionWorkflow, m *types.RepositoryMapping, author events.Candidates) error {
	if wf.DeveloperID != nil || author.Empty() {
		return nil
	}
	dev, err := e.developer(dbc, m.TenantID, d.env.Provider, author)
	if err != nil || dev == nil {
		return err
	}
	workflow.AttachDeveloper(wf, *dev, false)
	return nil
}

func (e *Engine) saveAndFinalize(dbc dbctx.Context, d *delivery, wf *types.AttributionWorkflow, m *types.RepositoryMapping) error {
	if err := e.workflows.Save(dbc, wf); err != nil {
		return err
	}
	d.out.touch(wf)
	done, err := e.workflows.TryFinalize(dbc, wf, m, d.env.DeliveryKey)
	if err != nil {
		return err
	}
	if done {
		d.out.finalized = append(d.out.finalized, wf.ID)
	}
	return nil
}
