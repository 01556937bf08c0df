package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sujalbistaa/kiwiblue/internal/models"
)

// Account loads an account, first resetting a stale daily quota so the
// caller never observes yesterday's counter.
func (s *Store) Account(ctx context.Context, id uint) (*models.Account, error) {
	if err := s.ResetQuotaIfStale(ctx, id); err != nil {
		return nil, err
	}
	var acct models.Account
	if err := s.conn(ctx).First(&acct, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &acct, nil
}

// PeekAccount loads an account as stored, without the lazy quota reset.
// Read paths that must not write use it.
func (s *Store) PeekAccount(ctx context.Context, id uint) (*models.Account, error) {
	var acct models.Account
	if err := s.conn(ctx).First(&acct, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &acct, nil
}

// AccountByCode resolves a human-entered referral code: a phone number
// first, then a generated referral code.
func (s *Store) AccountByCode(ctx context.Context, code string) (*models.Account, error) {
	var acct models.Account
	err := s.conn(ctx).Where("phone = ?", code).First(&acct).Error
	if err == nil {
		return &acct, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := s.conn(ctx).Where("referral_code = ?", code).First(&acct).Error; err != nil {
		return nil, notFound(err)
	}
	return &acct, nil
}

// ResetQuotaIfStale zeroes the quota counter when the stored reset day is not
// today. The condition on quota_reset_on makes repeat calls no-ops and keeps a
// reset from overwriting an increment made earlier today.
func (s *Store) ResetQuotaIfStale(ctx context.Context, id uint) error {
	today := s.Today()
	err := s.conn(ctx).Model(&models.Account{}).
		Where("id = ? AND quota_reset_on <> ?", id, today).
		Updates(map[string]interface{}{
			"quota_used":     0,
			"quota_reset_on": today,
		}).Error
	if err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	return nil
}

// ConsumeQuota takes one unit of a seeker's daily quota in a single
// read-modify-write. A stale day counts as zero used. It reports false,
// without writing, when used has already reached base + extra_quota or the
// account is not an active seeker.
func (s *Store) ConsumeQuota(ctx context.Context, id uint, base int) (bool, error) {
	today := s.Today()
	res := s.conn(ctx).Model(&models.Account{}).
		Where("id = ? AND role = ? AND active = ?", id, models.RoleSeeker, true).
		Where("(CASE WHEN quota_reset_on = ? THEN quota_used ELSE 0 END) < ? + extra_quota", today, base).
		Updates(map[string]interface{}{
			"quota_used":     gorm.Expr("CASE WHEN quota_reset_on = ? THEN quota_used + 1 ELSE 1 END", today),
			"quota_reset_on": today,
		})
	if res.Error != nil {
		return false, fmt.Errorf("consume quota: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Debit subtracts amount from the wallet only if the balance covers it, so
// the balance can never go negative. It reports whether the debit happened.
func (s *Store) Debit(ctx context.Context, id uint, amount int64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	res := s.conn(ctx).Model(&models.Account{}).
		Where("id = ? AND wallet_balance >= ?", id, amount).
		Update("wallet_balance", gorm.Expr("wallet_balance - ?", amount))
	if res.Error != nil {
		return false, fmt.Errorf("debit wallet: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Credit adds amount to the wallet.
func (s *Store) Credit(ctx context.Context, id uint, amount int64) error {
	if amount <= 0 {
		return nil
	}
	res := s.conn(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Update("wallet_balance", gorm.Expr("wallet_balance + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("credit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GrantQuota raises a seeker's permanent extra daily allowance.
func (s *Store) GrantQuota(ctx context.Context, id uint, n int64) error {
	if n <= 0 {
		return nil
	}
	res := s.conn(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Update("extra_quota", gorm.Expr("extra_quota + ?", n))
	if res.Error != nil {
		return fmt.Errorf("grant quota: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
