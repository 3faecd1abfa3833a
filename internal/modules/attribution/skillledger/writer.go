// Package skillledger applies finalized deltas to per-developer skill scores.
package skillledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type ApplyInput struct {
	DeveloperID uuid.UUID
	Path        []string
	ProjectID   *uuid.UUID
	Delta       float64
	Confidence  float64
	EvidenceRef string
}

type Writer interface {
	// Apply ensures the skill path exists and upserts the developer's running score.
	// It returns the skill id, or uuid.Nil when the path has no usable segments.
	Apply(dbc dbctx.Context, in ApplyInput) (uuid.UUID, error)
}

type writer struct {
	log    *logger.Logger
	skills repos.SkillRepo
	scores repos.DeveloperSkillRepo
}

func NewWriter(log *logger.Logger, skills repos.SkillRepo, scores repos.DeveloperSkillRepo) Writer {
	return &writer{log: log.With("service", "SkillLedgerWriter"), skills: skills, scores: scores}
}

func (w *writer) Apply(dbc dbctx.Context, in ApplyInput) (uuid.UUID, error) {
	if in.DeveloperID == uuid.Nil {
		return uuid.Nil, nil
	}
	skill, err := w.skills.EnsurePath(dbc, in.Path)
	if err != nil {
		return uuid.Nil, err
	}
	if skill == nil {
		w.log.Debug("skill path empty, skipped", "developer_id", in.DeveloperID)
		return uuid.Nil, nil
	}
	now := time.Now().UTC()
	row := &types.DeveloperSkill{
		DeveloperID: in.DeveloperID,
		SkillID:     skill.ID,
		ProjectID:   in.ProjectID,
		Score:       in.Delta,
		Confidence:  in.Confidence,
		EvidenceRef: in.EvidenceRef,
		LastSeenAt:  now,
		CreatedAt:   now,
	}
	if err := w.scores.ApplyDelta(dbc, row); err != nil {
		return uuid.Nil, err
	}
	return skill.ID, nil
}
