package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/kiwiblue/internal/models"
)

// Listing loads a listing by id.
func (s *Store) Listing(ctx context.Context, id uint) (*models.Listing, error) {
	var l models.Listing
	if err := s.conn(ctx).First(&l, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// InsertListing publishes a new listing.
func (s *Store) InsertListing(ctx context.Context, l *models.Listing) error {
	if err := s.conn(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// BumpPopularity adds one to a listing's popularity. Counters only grow.
func (s *Store) BumpPopularity(ctx context.Context, id uint) error {
	return s.conn(ctx).Model(&models.Listing{}).
		Where("id = ?", id).
		UpdateColumn("popularity", gorm.Expr("popularity + 1")).Error
}

// HasUnlock reports whether poster already unlocked seeker. Advisory only:
// the unique index on the pair is what enforces exclusivity.
func (s *Store) HasUnlock(ctx context.Context, posterID, seekerID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Unlock{}).
		Where("poster_id = ? AND seeker_id = ?", posterID, seekerID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check unlock: %w", err)
	}
	return n > 0, nil
}

// InsertUnlock writes the unlock row. A second row for the same pair fails
// with a unique violation (see IsUniqueViolation).
func (s *Store) InsertUnlock(ctx context.Context, u *models.Unlock) error {
	return s.conn(ctx).Create(u).Error
}

// InsertInterest records a seeker's interest; repeats are absorbed.
func (s *Store) InsertInterest(ctx context.Context, in *models.Interest) error {
	return s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(in).Error
}

// InsertReferral writes the referral edge unless one already exists for the
// referred account. It reports whether this call created it.
func (s *Store) InsertReferral(ctx context.Context, r *models.Referral) (bool, error) {
	res := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_id"}},
		DoNothing: true,
	}).Create(r)
	if res.Error != nil {
		return false, fmt.Errorf("insert referral: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Receipt loads the stored outcome for (viewer, key).
func (s *Store) Receipt(ctx context.Context, viewerID uint, key string) (*models.SwipeReceipt, error) {
	var r models.SwipeReceipt
	err := s.conn(ctx).Where("viewer_id = ? AND idempotency_key = ?", viewerID, key).First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// SaveReceipt stores a swipe outcome. Racing writers for the same key
// collide on the unique index. Expiry is kept in UTC so purges compare
// like with like.
func (s *Store) SaveReceipt(ctx context.Context, r *models.SwipeReceipt) error {
	r.ExpiresAt = r.ExpiresAt.UTC()
	return s.conn(ctx).Create(r).Error
}

// PurgeReceipts deletes receipts that expired before cutoff.
func (s *Store) PurgeReceipts(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.conn(ctx).Where("expires_at < ?", cutoff.UTC()).Delete(&models.SwipeReceipt{})
	return res.RowsAffected, res.Error
}
