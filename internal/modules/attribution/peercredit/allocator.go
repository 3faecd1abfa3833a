// Package peercredit awards capped, windowed credit to reviewers for other people's work.
package peercredit

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/northstar-backend/internal/data/repos"
	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/modules/attribution/scoring"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

// capEpsilon absorbs float drift when summing many equal credits.
const capEpsilon = 1e-9

type AllocateInput struct {
	TenantID    uuid.UUID
	ReviewerID  uuid.UUID
	Repo        string
	PRNumber    int
	SubmittedAt time.Time
	Evidence    map[string]interface{}
}

type Allocator interface {
	// Allocate returns the credit recorded for this review, or 0 when the reviewer
	// is at the window cap. It must run inside the delivery transaction: the
	// reviewer row lock serializes concurrent calls.
	Allocate(dbc dbctx.Context, in AllocateInput) (float64, error)
}

type allocator struct {
	log        *logger.Logger
	weights    scoring.Weights
	developers repos.DeveloperRepo
	credits    repos.PeerReviewCreditRepo
}

func NewAllocator(log *logger.Logger, weights scoring.Weights, developers repos.DeveloperRepo, credits repos.PeerReviewCreditRepo) Allocator {
	return &allocator{
		log:        log.With("service", "PeerCreditAllocator"),
		weights:    weights,
		developers: developers,
		credits:    credits,
	}
}

func (a *allocator) Allocate(dbc dbctx.Context, in AllocateInput) (float64, error) {
	value := a.weights.PeerCreditValue
	if in.TenantID == uuid.Nil || in.ReviewerID == uuid.Nil || value <= 0 {
		return 0, nil
	}
	submitted := in.SubmittedAt.UTC()
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	if _, err := a.developers.LockByID(dbc, in.ReviewerID); err != nil {
		return 0, err
	}
	// Trailing window ending at this submission.
	window := a.weights.PeerCreditWindow
	total, err := a.credits.SumSubmittedBetween(dbc, in.TenantID, in.ReviewerID, submitted.Add(-window), submitted)
	if err != nil {
		return 0, err
	}
	if total >= a.weights.PeerCreditLimit()-capEpsilon {
		a.log.Debug("peer credit capped", "reviewer_id", in.ReviewerID, "window_total", total)
		return 0, nil
	}

	row := &types.PeerReviewCredit{
		TenantID:            in.TenantID,
		ReviewerDeveloperID: in.ReviewerID,
		RepoFullName:        in.Repo,
		PRNumber:            in.PRNumber,
		CreditValue:         value,
		SubmittedAt:         submitted,
		WindowStart:         submitted.Add(-window),
		WindowEnd:           submitted,
		Evidence:            in.Evidence,
	}
	if err := a.credits.Insert(dbc, row); err != nil {
		return 0, err
	}
	return value, nil
}
