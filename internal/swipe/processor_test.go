package swipe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/store"
	"github.com/sujalbistaa/kiwiblue/internal/testutil"
)

var now = time.Date(2026, 5, 2, 14, 30, 0, 0, time.Local)

const today = "2026-05-02"

func setupProcessor(t *testing.T) (*Processor, *gorm.DB) {
	database := testutil.NewDB(t)
	st := store.New(database)
	st.Clock = testutil.FixedClock(now)
	return NewProcessor(st, Options{DailyQuota: 20, ReceiptTTL: time.Hour}), database
}

func withBalance(n int64) func(*models.Account) {
	return func(a *models.Account) { a.WalletBalance = n }
}

func withExperience(years int) func(*models.Listing) {
	return func(l *models.Listing) { l.ExperienceYears = years }
}

func right(viewer *models.Account, listing *models.Listing) Request {
	return Request{ViewerID: viewer.ID, ListingID: listing.ID, Direction: Right}
}

func TestSwipeLeftNeverMutates(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database)
	job := testutil.Job(t, database, testutil.Poster(t, database))

	out := p.Swipe(context.Background(), Request{ViewerID: seeker.ID, ListingID: job.ID, Direction: Left})
	assert.Equal(t, Skipped, out.Result)
	assert.Equal(t, 0, testutil.Reload(t, database, seeker.ID).QuotaUsed)
	assert.Equal(t, int64(0), testutil.ReloadListing(t, database, job.ID).Popularity)
	assert.Equal(t, int64(0), testutil.Count(t, database, &models.Interest{}, ""))
}

func TestSwipeRejectsBadInput(t *testing.T) {
	p, database := setupProcessor(t)
	ctx := context.Background()
	seeker := testutil.Seeker(t, database)
	poster := testutil.Poster(t, database, withBalance(10))
	job := testutil.Job(t, database, poster)
	profile := testutil.Profile(t, database, seeker)

	cases := []struct {
		name   string
		req    Request
		reason string
	}{
		{"unknown direction", Request{ViewerID: seeker.ID, ListingID: job.ID, Direction: "up"}, ReasonBadDirection},
		{"unknown viewer", Request{ViewerID: 9999, ListingID: job.ID, Direction: Right}, ReasonViewerNotFound},
		{"unknown listing", Request{ViewerID: seeker.ID, ListingID: 9999, Direction: Right}, ReasonListingNotFound},
		{"seeker on a profile", right(seeker, testutil.Profile(t, database, testutil.Seeker(t, database))), ReasonWrongKind},
		{"poster on a job", right(poster, testutil.Job(t, database, testutil.Poster(t, database))), ReasonWrongKind},
		{"own listing", right(poster, job), ReasonOwnListing},
		{"seeker own profile", right(seeker, profile), ReasonOwnListing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := p.Swipe(ctx, tc.req)
			assert.Equal(t, Rejected, out.Result)
			assert.Equal(t, tc.reason, out.Reason)
		})
	}
	assert.Equal(t, int64(10), testutil.Reload(t, database, poster.ID).WalletBalance)
	assert.Equal(t, 0, testutil.Reload(t, database, seeker.ID).QuotaUsed)
}

func TestSwipeRejectsInactiveViewer(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database)
	require.NoError(t, database.Model(seeker).Update("active", false).Error)
	job := testutil.Job(t, database, testutil.Poster(t, database))

	out := p.Swipe(context.Background(), right(seeker, job))
	assert.Equal(t, Rejected, out.Result)
	assert.Equal(t, ReasonViewerInactive, out.Reason)
}

func TestSeekerInterestCommits(t *testing.T) {
	p, database := setupProcessor(t)
	poster := testutil.Poster(t, database)
	seeker := testutil.Seeker(t, database)
	job := testutil.Job(t, database, poster)

	out := p.Swipe(context.Background(), right(seeker, job))
	require.Equal(t, Committed, out.Result)
	require.NotNil(t, out.QuotaUsed)
	assert.Equal(t, 1, *out.QuotaUsed)
	assert.Equal(t, 20, *out.QuotaLimit)
	assert.Nil(t, out.WalletBalance)

	assert.Equal(t, 1, testutil.Reload(t, database, seeker.ID).QuotaUsed)
	assert.Equal(t, int64(1), testutil.ReloadListing(t, database, job.ID).Popularity)
	assert.Equal(t, int64(1), testutil.Count(t, database, &models.Interest{},
		"seeker_id = ? AND listing_id = ? AND poster_id = ?", seeker.ID, job.ID, poster.ID))
}

func TestSeekerQuotaExceeded(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database, func(a *models.Account) {
		a.QuotaUsed = 20
		a.QuotaResetOn = today
	})
	job := testutil.Job(t, database, testutil.Poster(t, database))

	out := p.Swipe(context.Background(), right(seeker, job))
	assert.Equal(t, QuotaExceeded, out.Result)
	require.NotNil(t, out.QuotaUsed)
	assert.Equal(t, 20, *out.QuotaUsed)

	assert.Equal(t, 20, testutil.Reload(t, database, seeker.ID).QuotaUsed)
	assert.Equal(t, int64(0), testutil.Count(t, database, &models.Interest{}, ""))
	assert.Equal(t, int64(0), testutil.ReloadListing(t, database, job.ID).Popularity)
}

func TestSeekerExtraGrantExtendsQuota(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database, func(a *models.Account) {
		a.QuotaUsed = 20
		a.ExtraQuota = 2
		a.QuotaResetOn = today
	})
	poster := testutil.Poster(t, database)

	for i := 0; i < 2; i++ {
		out := p.Swipe(context.Background(), right(seeker, testutil.Job(t, database, poster)))
		require.Equal(t, Committed, out.Result)
	}
	out := p.Swipe(context.Background(), right(seeker, testutil.Job(t, database, poster)))
	assert.Equal(t, QuotaExceeded, out.Result)
	assert.Equal(t, 22, testutil.Reload(t, database, seeker.ID).QuotaUsed)
}

func TestSeekerQuotaResetsOnNewDay(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database, func(a *models.Account) {
		a.QuotaUsed = 20
		a.QuotaResetOn = "2026-05-01"
	})
	job := testutil.Job(t, database, testutil.Poster(t, database))

	out := p.Swipe(context.Background(), right(seeker, job))
	require.Equal(t, Committed, out.Result)
	assert.Equal(t, 1, *out.QuotaUsed)
	assert.Equal(t, today, testutil.Reload(t, database, seeker.ID).QuotaResetOn)
}

func TestSeekerQuotaNeverExceedsLimit(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database)
	poster := testutil.Poster(t, database)
	jobs := make([]*models.Listing, 25)
	for i := range jobs {
		jobs[i] = testutil.Job(t, database, poster)
	}

	var wg sync.WaitGroup
	results := make(chan Result, len(jobs))
	for _, job := range jobs {
		wg.Add(1)
		go func(job *models.Listing) {
			defer wg.Done()
			results <- p.Swipe(context.Background(), right(seeker, job)).Result
		}(job)
	}
	wg.Wait()
	close(results)

	counts := map[Result]int{}
	for r := range results {
		counts[r]++
	}
	assert.Equal(t, 20, counts[Committed])
	assert.Equal(t, 5, counts[QuotaExceeded])
	assert.Equal(t, 20, testutil.Reload(t, database, seeker.ID).QuotaUsed)
	assert.Equal(t, int64(20), testutil.Count(t, database, &models.Interest{}, ""))
}

func TestSeekerClosedJobRejected(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database)
	job := testutil.Job(t, database, testutil.Poster(t, database), func(l *models.Listing) { l.Status = models.StatusClosed })

	out := p.Swipe(context.Background(), right(seeker, job))
	assert.Equal(t, Rejected, out.Result)
	assert.Equal(t, ReasonNotOpen, out.Reason)
	assert.Equal(t, 0, testutil.Reload(t, database, seeker.ID).QuotaUsed)
}

func TestPosterUnlockCommits(t *testing.T) {
	p, database := setupProcessor(t)
	poster := testutil.Poster(t, database, withBalance(5))
	seeker := testutil.Seeker(t, database)
	profile := testutil.Profile(t, database, seeker, withExperience(3))

	out := p.Swipe(context.Background(), right(poster, profile))
	require.Equal(t, Committed, out.Result)
	assert.Equal(t, int64(3), out.Cost)
	require.NotNil(t, out.WalletBalance)
	assert.Equal(t, int64(2), *out.WalletBalance)

	assert.Equal(t, int64(2), testutil.Reload(t, database, poster.ID).WalletBalance)
	assert.Equal(t, int64(1), testutil.Count(t, database, &models.Unlock{}, "poster_id = ? AND seeker_id = ?", poster.ID, seeker.ID))
	assert.Equal(t, int64(1), testutil.ReloadListing(t, database, profile.ID).Popularity)
}

func TestPosterInsufficientFunds(t *testing.T) {
	p, database := setupProcessor(t)
	poster := testutil.Poster(t, database, withBalance(2))
	profile := testutil.Profile(t, database, testutil.Seeker(t, database), withExperience(5))

	out := p.Swipe(context.Background(), right(poster, profile))
	assert.Equal(t, InsufficientFunds, out.Result)
	assert.Equal(t, int64(5), out.Cost)
	require.NotNil(t, out.WalletBalance)
	assert.Equal(t, int64(2), *out.WalletBalance)

	assert.Equal(t, int64(2), testutil.Reload(t, database, poster.ID).WalletBalance)
	assert.Equal(t, int64(0), testutil.Count(t, database, &models.Unlock{}, ""))
	assert.Equal(t, int64(0), testutil.ReloadListing(t, database, profile.ID).Popularity)
}

func TestPosterVIPBypassesPayment(t *testing.T) {
	p, database := setupProcessor(t)
	vipUntil := now.Add(24 * time.Hour)
	poster := testutil.Poster(t, database, func(a *models.Account) { a.VIPUntil = &vipUntil })

	for _, years := range []int{0, 3, 10, 40} {
		profile := testutil.Profile(t, database, testutil.Seeker(t, database), withExperience(years))
		out := p.Swipe(context.Background(), right(poster, profile))
		require.Equal(t, Committed, out.Result)
		assert.Equal(t, int64(0), out.Cost)
		assert.Equal(t, int64(0), *out.WalletBalance)
	}
	assert.Equal(t, int64(0), testutil.Reload(t, database, poster.ID).WalletBalance)
	assert.Equal(t, int64(4), testutil.Count(t, database, &models.Unlock{}, "poster_id = ?", poster.ID))
}

func TestPosterExpiredVIPPays(t *testing.T) {
	p, database := setupProcessor(t)
	expired := now.Add(-time.Minute)
	poster := testutil.Poster(t, database, withBalance(4), func(a *models.Account) { a.VIPUntil = &expired })
	profile := testutil.Profile(t, database, testutil.Seeker(t, database), withExperience(2))

	out := p.Swipe(context.Background(), right(poster, profile))
	require.Equal(t, Committed, out.Result)
	assert.Equal(t, int64(2), *out.WalletBalance)
}

func TestPosterAlreadyUnlocked(t *testing.T) {
	p, database := setupProcessor(t)
	poster := testutil.Poster(t, database, withBalance(10))
	profile := testutil.Profile(t, database, testutil.Seeker(t, database), withExperience(2))

	require.Equal(t, Committed, p.Swipe(context.Background(), right(poster, profile)).Result)
	out := p.Swipe(context.Background(), right(poster, profile))
	assert.Equal(t, AlreadyUnlocked, out.Result)
	assert.Equal(t, int64(8), *out.WalletBalance)
	assert.Equal(t, int64(8), testutil.Reload(t, database, poster.ID).WalletBalance)
	assert.Equal(t, int64(1), testutil.ReloadListing(t, database, profile.ID).Popularity)
}

func TestPosterUnlockFailureRestoresWallet(t *testing.T) {
	p, database := setupProcessor(t)
	poster := testutil.Poster(t, database, withBalance(5))
	profile := testutil.Profile(t, database, testutil.Seeker(t, database), withExperience(3))

	err := database.Callback().Create().Before("gorm:create").Register("test:fail_unlock", func(tx *gorm.DB) {
		if tx.Statement.Table == "unlocks" {
			tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	out := p.Swipe(context.Background(), right(poster, profile))
	assert.Equal(t, Rejected, out.Result)
	assert.Equal(t, ReasonStorage, out.Reason)
	assert.Equal(t, int64(5), testutil.Reload(t, database, poster.ID).WalletBalance)
	assert.Equal(t, int64(0), testutil.Count(t, database, &models.Unlock{}, ""))
	assert.Equal(t, int64(0), testutil.ReloadListing(t, database, profile.ID).Popularity)
}

func TestConcurrentUnlocksChargeOnce(t *testing.T) {
	cases := []struct {
		name    string
		balance int64
		callers int
	}{
		{"balance covers one debit", 3, 2},
		{"balance covers many debits", 30, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, database := setupProcessor(t)
			poster := testutil.Poster(t, database, withBalance(tc.balance))
			seeker := testutil.Seeker(t, database)
			profile := testutil.Profile(t, database, seeker, withExperience(3))

			var wg sync.WaitGroup
			results := make(chan Result, tc.callers)
			for i := 0; i < tc.callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results <- p.Swipe(context.Background(), right(poster, profile)).Result
				}()
			}
			wg.Wait()
			close(results)

			committed := 0
			for r := range results {
				switch r {
				case Committed:
					committed++
				case AlreadyUnlocked, InsufficientFunds:
				default:
					t.Errorf("unexpected result %s", r)
				}
			}
			assert.Equal(t, 1, committed)
			assert.Equal(t, tc.balance-3, testutil.Reload(t, database, poster.ID).WalletBalance)
			assert.Equal(t, int64(1), testutil.Count(t, database, &models.Unlock{}, "poster_id = ? AND seeker_id = ?", poster.ID, seeker.ID))
		})
	}
}

func TestIdempotentRetryReplays(t *testing.T) {
	p, database := setupProcessor(t)
	ctx := context.Background()
	poster := testutil.Poster(t, database, withBalance(5))
	profile := testutil.Profile(t, database, testutil.Seeker(t, database), withExperience(3))

	req := right(poster, profile)
	req.IdempotencyKey = "tap-1"

	first := p.Swipe(ctx, req)
	require.Equal(t, Committed, first.Result)
	assert.False(t, first.Replayed)

	second := p.Swipe(ctx, req)
	assert.Equal(t, Committed, second.Result)
	assert.True(t, second.Replayed)
	assert.Equal(t, int64(2), *second.WalletBalance)
	assert.Equal(t, int64(2), testutil.Reload(t, database, poster.ID).WalletBalance)

	t.Run("key reused for another listing", func(t *testing.T) {
		other := testutil.Profile(t, database, testutil.Seeker(t, database))
		out := p.Swipe(ctx, Request{ViewerID: poster.ID, ListingID: other.ID, Direction: Right, IdempotencyKey: "tap-1"})
		assert.Equal(t, Rejected, out.Result)
		assert.Equal(t, ReasonConflict, out.Reason)
	})

	t.Run("seeker receipts carry quota", func(t *testing.T) {
		seeker := testutil.Seeker(t, database)
		job := testutil.Job(t, database, poster)
		req := Request{ViewerID: seeker.ID, ListingID: job.ID, Direction: Right, IdempotencyKey: "like-1"}

		require.Equal(t, Committed, p.Swipe(ctx, req).Result)
		out := p.Swipe(ctx, req)
		assert.True(t, out.Replayed)
		assert.Equal(t, 1, *out.QuotaUsed)
		assert.Equal(t, 1, testutil.Reload(t, database, seeker.ID).QuotaUsed)
	})
}

func TestQuota(t *testing.T) {
	p, database := setupProcessor(t)
	seeker := testutil.Seeker(t, database, func(a *models.Account) {
		a.QuotaUsed = 7
		a.ExtraQuota = 3
		a.QuotaResetOn = today
	})

	used, limit, err := p.Quota(context.Background(), seeker.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, used)
	assert.Equal(t, 23, limit)

	_, _, err = p.Quota(context.Background(), 4040)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
