package engine

import (
	"github.com/google/uuid"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/events"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/workflow"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
)

// handleIssueTransition marks every live workflow carrying the issue key done.
// It never creates a workflow.
func (e *Engine) handleIssueTransition(dbc dbctx.Context, d *delivery, ev events.IssueTransitionEvent) error {
	d.out.setMeta("issue_key", ev.IssueKey)
	if !ev.Done() {
		d.out.setMeta("status", ev.Status)
		return d.skip(dbc, e, reasonIssueNotDone, nil)
	}

	project, err := e.mappings.IssueProject(dbc, ev.ProjectKey)
	if err != nil {
		return err
	}
	var tenant *uuid.UUID
	if project != nil {
		t := project.TenantID
		tenant = &t
	}
	rows, err := e.workflows.FindByJiraKey(dbc, tenant, ev.IssueKey)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return d.skip(dbc, e, types.TriageWorkflowMissing, ev.Payload)
	}
	if tenant == nil && spansTenants(rows) {
		return d.skip(dbc, e, types.TriageAmbiguousWorkflow, ev.Payload)
	}

	doneAt := d.receivedAt()
	if ev.ResolvedAt != nil {
		doneAt = ev.ResolvedAt.UTC()
	}
	for _, wf := range rows {
		workflow.SetDoneAt(wf, doneAt)
		workflow.AppendEvidence(wf, d.evidenceKey("issue"), ev.Payload)
		if project != nil {
			workflow.AttachProject(wf, project.ProjectID)
		}

		m, err := e.mappings.Repository(dbc, wf.RepoFullName)
		if err != nil {
			return err
		}
		if m == nil || m.TenantID != wf.TenantID {
			if err := e.workflows.Save(dbc, wf); err != nil {
				return err
			}
			d.out.touch(wf)
			if err := d.triageOnly(dbc, e, types.TriageMissingRepoMapping, ev.Payload); err != nil {
				return err
			}
			continue
		}
		if err := e.saveAndFinalize(dbc, d, wf, m); err != nil {
			return err
		}
	}
	return nil
}

func spansTenants(rows []*types.AttributionWorkflow) bool {
	for _, wf := range rows[1:] {
		if wf.TenantID != rows[0].TenantID {
			return true
		}
	}
	return false
}
