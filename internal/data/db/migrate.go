package db

import (
	"fmt"

	types "github.com/yungbote/northstar-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := dropRetiredIndexes(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Peer credit used to be unique per (tenant, reviewer, repo, pr); every credited
// review now appends a row.
func dropRetiredIndexes(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&types.PeerReviewCredit{}) || !m.HasIndex(&types.PeerReviewCredit{}, "idx_peer_credit_pr") {
		return nil
	}
	if err := m.DropIndex(&types.PeerReviewCredit{}, "idx_peer_credit_pr"); err != nil {
		return fmt.Errorf("drop idx_peer_credit_pr: %w", err)
	}
	return nil
}
