package swipe

import (
	"time"

	"github.com/sujalbistaa/kiwiblue/internal/models"
)

// Unlock prices are one credit per year of experience, within these bounds.
// Profiles with no readable experience (stored as 0) cost the minimum.
const (
	MinUnlockCost = 1
	MaxUnlockCost = 10
)

// UnlockCost is what poster pays to see candidate's contact details at now.
// An active VIP window waives the charge entirely.
func UnlockCost(poster *models.Account, candidate *models.Listing, now time.Time) int64 {
	if poster.IsVIP(now) {
		return 0
	}
	years := candidate.ExperienceYears
	if years < MinUnlockCost {
		years = MinUnlockCost
	}
	if years > MaxUnlockCost {
		years = MaxUnlockCost
	}
	return int64(years)
}
