package attribution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"github.com/yungbote/northstar-backend/internal/platform/dbctx"
	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

type PeerReviewCreditRepo interface {
	// SumSubmittedBetween sums credit for a reviewer whose submission falls in [from, to].
	SumSubmittedBetween(dbc dbctx.Context, tenantID, reviewerID uuid.UUID, from, to time.Time) (float64, error)
	// Insert appends one credit row. Callers enforce the window cap.
	Insert(dbc dbctx.Context, row *types.PeerReviewCredit) error
	ListByReviewer(dbc dbctx.Context, tenantID, reviewerID uuid.UUID) ([]*types.PeerReviewCredit, error)
}

type peerReviewCreditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPeerReviewCreditRepo(db *gorm.DB, baseLog *logger.Logger) PeerReviewCreditRepo {
	return &peerReviewCreditRepo{db: db, log: baseLog.With("repo", "PeerReviewCreditRepo")}
}

func (r *peerReviewCreditRepo) SumSubmittedBetween(dbc dbctx.Context, tenantID, reviewerID uuid.UUID, from, to time.Time) (float64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var total float64
	err := t.WithContext(dbc.Ctx).
		Model(&types.PeerReviewCredit{}).
		Select("COALESCE(SUM(credit_value), 0)").
		Where("tenant_id = ? AND reviewer_developer_id = ?", tenantID, reviewerID).
		Where("submitted_at >= ? AND submitted_at <= ?", from.UTC(), to.UTC()).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *peerReviewCreditRepo) Insert(dbc dbctx.Context, row *types.PeerReviewCredit) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.TenantID == uuid.Nil || row.ReviewerDeveloperID == uuid.Nil {
		return fmt.Errorf("peer credit row missing tenant or reviewer")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Evidence == nil {
		row.Evidence = map[string]interface{}{}
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *peerReviewCreditRepo) ListByReviewer(dbc dbctx.Context, tenantID, reviewerID uuid.UUID) ([]*types.PeerReviewCredit, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := []*types.PeerReviewCredit{}
	if err := t.WithContext(dbc.Ctx).
		Where("tenant_id = ? AND reviewer_developer_id = ?", tenantID, reviewerID).
		Order("submitted_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
