// Package referral settles the one-time reward paid when a new account
// registers with somebody's referral code.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/store"
)

// Rewards sizes both sides of a referral. Posters are paid in wallet
// credits, seekers in permanent extra daily quota.
type Rewards struct {
	ReferrerCredits int64
	ReferrerQuota   int64
	ReferredCredits int64
	ReferredQuota   int64
}

func (r Rewards) referrer(role models.Role) int64 {
	if role == models.RolePoster {
		return r.ReferrerCredits
	}
	return r.ReferrerQuota
}

func (r Rewards) referred(role models.Role) int64 {
	if role == models.RolePoster {
		return r.ReferredCredits
	}
	return r.ReferredQuota
}

type Settlement struct {
	store   *store.Store
	rewards Rewards
}

func NewSettlement(st *store.Store, rewards Rewards) *Settlement {
	return &Settlement{store: st, rewards: rewards}
}

var errSkip = errors.New("referral not applicable")

// Apply credits the referrer behind code and the new account. It is safe to
// call any number of times; only the first successful call pays. Failures
// are logged and never reach the caller, since registration must not fail
// on a referral. It reports whether this call paid out.
func (s *Settlement) Apply(ctx context.Context, newAccountID uint, code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}

	paid := false
	err := store.Retry(ctx, func() error {
		return s.store.Transaction(ctx, func(tx *store.Store) error {
			ok, err := s.settle(ctx, tx, newAccountID, code)
			paid = ok
			return err
		})
	})
	switch {
	case err == nil:
		if paid {
			slog.Info("referral applied", "referredId", newAccountID, "code", code)
		}
		return paid
	case errors.Is(err, errSkip):
		return false
	}
	slog.Error("referral settlement failed", "referredId", newAccountID, "code", code, "err", err)
	return false
}

func (s *Settlement) settle(ctx context.Context, tx *store.Store, newAccountID uint, code string) (bool, error) {
	referred, err := tx.PeekAccount(ctx, newAccountID)
	if err != nil {
		return false, fmt.Errorf("load referred account: %w", err)
	}
	referrer, err := tx.AccountByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return false, errSkip
	}
	if err != nil {
		return false, fmt.Errorf("resolve referral code: %w", err)
	}
	if referrer.ID == referred.ID || !referrer.Active {
		return false, errSkip
	}

	row := &models.Referral{
		ReferrerID:     referrer.ID,
		ReferredID:     referred.ID,
		CodeUsed:       code,
		ReferrerReward: s.rewards.referrer(referrer.Role),
		ReferredReward: s.rewards.referred(referred.Role),
	}
	created, err := tx.InsertReferral(ctx, row)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	if err := reward(ctx, tx, referrer, row.ReferrerReward); err != nil {
		return false, fmt.Errorf("reward referrer: %w", err)
	}
	if err := reward(ctx, tx, referred, row.ReferredReward); err != nil {
		return false, fmt.Errorf("reward referred: %w", err)
	}
	return true, nil
}

func reward(ctx context.Context, tx *store.Store, acct *models.Account, amount int64) error {
	if acct.Role == models.RolePoster {
		return tx.Credit(ctx, acct.ID, amount)
	}
	return tx.GrantQuota(ctx, acct.ID, amount)
}

// Stats is the invite panel summary for one referrer.
type Stats struct {
	ReferralCode string `json:"referralCode"`
	Invited      int64  `json:"invited"`
	Earned       int64  `json:"earned"`
	// Unit is "credits" for posters and "quota" for seekers.
	Unit string `json:"unit"`
}

// Stats reports how many accounts joined with the referrer's code and what
// those referrals paid the referrer.
func (s *Settlement) Stats(ctx context.Context, referrerID uint) (*Stats, error) {
	acct, err := s.store.PeekAccount(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	var agg struct {
		Invited int64
		Earned  int64
	}
	err = s.store.DB().WithContext(ctx).Model(&models.Referral{}).
		Select("COUNT(*) AS invited, COALESCE(SUM(referrer_reward), 0) AS earned").
		Where("referrer_id = ?", referrerID).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("referral stats: %w", err)
	}

	unit := "quota"
	if acct.Role == models.RolePoster {
		unit = "credits"
	}
	return &Stats{
		ReferralCode: acct.ReferralCode,
		Invited:      agg.Invited,
		Earned:       agg.Earned,
		Unit:         unit,
	}, nil
}
